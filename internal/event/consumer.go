package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ratewatch/ratewatch/internal/broadcast"
	"github.com/ratewatch/ratewatch/internal/domain"
	"github.com/ratewatch/ratewatch/internal/repository"
	pkgkafka "github.com/ratewatch/ratewatch/pkg/kafka"
)

// idempotencyTTL bounds the worker's duplicate-event memory. Redeliveries
// arrive shortly after the original, so a day is far more than enough.
const idempotencyTTL = 24 * time.Hour

// Invalidator drops the cached currency list.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Notifier publishes broadcast notifications.
type Notifier interface {
	PublishNotification(ctx context.Context, eventName string, payload any) error
}

// TaskHandler drains the currency create queue: it persists each task, drops
// the cache entry, and emits a broadcast notification. The surrounding
// consumer commits the offset only after Handle returns nil, so a crash
// before that point leads to redelivery and the upsert makes redelivery
// harmless.
type TaskHandler struct {
	repo     repository.CurrencyRepository
	cache    Invalidator
	notifier Notifier
	logger   *slog.Logger
}

// NewTaskHandler creates the worker-side task handler.
func NewTaskHandler(repo repository.CurrencyRepository, cache Invalidator, notifier Notifier, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
	}
}

// Handle processes one task event.
func (h *TaskHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicCurrencyCreate:
		return h.handleCurrencyCreate(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *TaskHandler) handleCurrencyCreate(ctx context.Context, event *pkgkafka.Event) error {
	var currency domain.Currency
	if err := event.UnmarshalData(&currency); err != nil {
		return fmt.Errorf("decode currency task: %w", err)
	}

	// A task missing required fields fails on its own; the process keeps
	// draining the queue and the consumer routes the task to the DLQ.
	if currency.ID == "" || currency.Name == "" {
		return fmt.Errorf("currency task %s missing required fields", event.EventID)
	}

	if err := h.repo.Upsert(ctx, &currency); err != nil {
		return fmt.Errorf("persist currency %s: %w", currency.ID, err)
	}

	// Invalidate before the offset commit so readers never see the old list
	// beyond one cache TTL. A cache failure is absorbed: reads fall back to
	// the store and the entry expires on its own.
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.WarnContext(ctx, "cache invalidation failed after persist",
			slog.String("currency_id", currency.ID),
			slog.String("error", err.Error()),
		)
	}

	// Broadcast is best-effort: live observers only.
	if err := h.notifier.PublishNotification(ctx, domain.EventCurrencyCreated, &currency); err != nil {
		h.logger.WarnContext(ctx, "broadcast notification failed",
			slog.String("currency_id", currency.ID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.InfoContext(ctx, "currency task persisted",
		slog.String("currency_id", currency.ID),
		slog.String("name", currency.Name),
		slog.String("event_id", event.EventID),
	)

	return nil
}

// RelayHandler runs inside each server instance and republishes notify events
// into the local broadcast hub.
type RelayHandler struct {
	hub    *broadcast.Hub
	logger *slog.Logger
}

// NewRelayHandler creates the server-side relay handler.
func NewRelayHandler(hub *broadcast.Hub, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{hub: hub, logger: logger}
}

// Handle republishes one notify event to local subscribers.
func (h *RelayHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	var data NotificationData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	if data.Event == "" {
		h.logger.WarnContext(ctx, "notification without event name, skipping",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	h.hub.Publish(broadcast.Event{Name: data.Event, Payload: data.Payload})
	return nil
}

// NewTaskConsumer creates the worker's queue consumer. All worker instances
// share one consumer group so each task goes to exactly one of them.
func NewTaskConsumer(brokers []string, groupID string, handler *TaskHandler, logger *slog.Logger) *pkgkafka.Consumer {
	idempotent := pkgkafka.IdempotentHandler(
		pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL),
		handler.Handle,
		logger,
	)

	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    TopicCurrencyCreate,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, idempotent, logger)
}

// NewRelayConsumer creates a server's notify consumer. Each server instance
// gets a unique group ID so every instance sees every notification; there is
// no replay for late joiners.
func NewRelayConsumer(brokers []string, handler *RelayHandler, logger *slog.Logger) *pkgkafka.Consumer {
	return pkgkafka.NewConsumer(relayConsumerConfig(brokers), handler.Handle, logger)
}

// relayConsumerConfig builds the notify reader config. The group ID is unique
// per process and starts at the latest offset, so a restarting server picks up
// live notifications only instead of replaying the whole topic into the hub.
func relayConsumerConfig(brokers []string) pkgkafka.ConsumerConfig {
	return pkgkafka.ConsumerConfig{
		Brokers:     brokers,
		GroupID:     "ratewatch-server-" + uuid.New().String(),
		Topic:       TopicCurrencyNotify,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	}
}
