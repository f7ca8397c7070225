package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ratewatch/ratewatch/internal/cache"
	"github.com/ratewatch/ratewatch/internal/domain"
	"github.com/ratewatch/ratewatch/internal/repository"
	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
)

// CurrencyLister is the caching surface the service reads and writes through.
type CurrencyLister interface {
	Get(ctx context.Context) ([]domain.Currency, error)
	Set(ctx context.Context, currencies []domain.Currency) error
	Invalidate(ctx context.Context) error
}

// Enqueuer accepts currency create tasks into the durable queue.
type Enqueuer interface {
	EnqueueCurrencyCreate(ctx context.Context, currency *domain.Currency) error
}

// Notifier publishes broadcast notifications.
type Notifier interface {
	PublishNotification(ctx context.Context, eventName string, payload any) error
}

// CurrencyService implements the currency record operations: cached reads,
// queue-backed creates, and synchronous updates and deletes.
type CurrencyService struct {
	repo     repository.CurrencyRepository
	cache    CurrencyLister
	enqueuer Enqueuer
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCurrencyService creates the currency service. timeout bounds enqueue
// operations.
func NewCurrencyService(
	repo repository.CurrencyRepository,
	cache CurrencyLister,
	enqueuer Enqueuer,
	notifier Notifier,
	timeout time.Duration,
	logger *slog.Logger,
) *CurrencyService {
	return &CurrencyService{
		repo:     repo,
		cache:    cache,
		enqueuer: enqueuer,
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
	}
}

// CurrencyInput holds the fields for creating or updating a currency.
type CurrencyInput struct {
	Name string
	High float64
	Low  float64
}

// List returns all currencies, read through the cache. A cache miss falls
// through to the store and repopulates the entry; an unavailable cache falls
// back to the store without repopulating.
func (s *CurrencyService) List(ctx context.Context) ([]domain.Currency, error) {
	cached, err := s.cache.Get(ctx)
	if err == nil {
		return cached, nil
	}

	cacheUsable := errors.Is(err, cache.ErrMiss)
	if !cacheUsable && !errors.Is(err, apperrors.ErrCacheUnavailable) {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	currencies, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}

	if cacheUsable {
		if err := s.cache.Set(ctx, currencies); err != nil {
			s.logger.WarnContext(ctx, "cache repopulation failed", slog.String("error", err.Error()))
		}
	}

	return currencies, nil
}

// Create accepts a currency for asynchronous persistence. The record ID is
// assigned here so redelivered tasks land on the same row; a nil return means
// the task is durably enqueued, not yet persisted.
func (s *CurrencyService) Create(ctx context.Context, input CurrencyInput) (*domain.Currency, error) {
	currency := domain.NewCurrency(input.Name, input.High, input.Low)

	enqueueCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.enqueuer.EnqueueCurrencyCreate(enqueueCtx, currency); err != nil {
		return nil, apperrors.EnqueueFailed(err)
	}

	// Drop the cached list right away so a read between accept and persist
	// is at most one TTL stale. The worker invalidates again after persist.
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed after enqueue", slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "currency create accepted",
		slog.String("currency_id", currency.ID),
		slog.String("name", currency.Name),
	)

	return currency, nil
}

// Update modifies an existing currency synchronously, invalidates the cache,
// and broadcasts a change notification.
func (s *CurrencyService) Update(ctx context.Context, id string, input CurrencyInput) (*domain.Currency, error) {
	currency, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	currency.Name = input.Name
	currency.High = input.High
	currency.Low = input.Low

	if err := s.repo.Update(ctx, currency); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, currency.ID)
	return currency, nil
}

// Delete removes a currency synchronously, invalidates the cache, and
// broadcasts a change notification.
func (s *CurrencyService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.afterMutation(ctx, id)
	return nil
}

// afterMutation invalidates the cache and emits the change broadcast. Both
// are best effort once the store write succeeded.
func (s *CurrencyService) afterMutation(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("currency_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := s.notifier.PublishNotification(ctx, domain.EventCurrencyChanged, map[string]string{"id": id}); err != nil {
		s.logger.WarnContext(ctx, "change notification failed",
			slog.String("currency_id", id),
			slog.String("error", err.Error()),
		)
	}
}
