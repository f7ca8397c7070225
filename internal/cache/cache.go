package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/ratewatch/ratewatch/internal/domain"
	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
)

// cacheKey is the Redis key for the currency list, kept from the original
// public contract.
const cacheKey = "moedas"

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// CurrencyCache is a Redis-backed read-through cache for the currency list.
// All Redis calls run through a circuit breaker; when the circuit is open or
// Redis fails, operations return a CacheUnavailable error so callers can fall
// back to the store without surfacing cache problems.
type CurrencyCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCurrencyCache creates a cache with the given TTL.
func NewCurrencyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *CurrencyCache {
	settings := gobreaker.Settings{
		Name:     "currency-cache",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("cache circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A miss is a normal outcome, not a Redis failure.
			return err == nil || errors.Is(err, redis.Nil)
		},
	}

	return &CurrencyCache{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		ttl:     ttl,
		logger:  logger,
	}
}

// TTL returns the configured entry lifetime.
func (c *CurrencyCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached currency list, ErrMiss when the key is absent, or a
// CacheUnavailable error when Redis cannot be reached.
func (c *CurrencyCache) Get(ctx context.Context) ([]domain.Currency, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.client.Get(ctx, cacheKey).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, c.unavailable("get", err)
	}

	var currencies []domain.Currency
	if err := json.Unmarshal(data, &currencies); err != nil {
		// Treat a corrupt entry as a miss so the store repopulates it.
		c.logger.Warn("corrupt cache entry, treating as miss", slog.String("error", err.Error()))
		return nil, ErrMiss
	}

	return currencies, nil
}

// Set stores the currency list with the configured TTL.
func (c *CurrencyCache) Set(ctx context.Context, currencies []domain.Currency) error {
	data, err := json.Marshal(currencies)
	if err != nil {
		return fmt.Errorf("marshal currencies: %w", err)
	}

	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, cacheKey, data, c.ttl).Err()
	})
	if err != nil {
		return c.unavailable("set", err)
	}

	return nil
}

// Invalidate removes the cached list. Subsequent Gets miss until the next Set.
func (c *CurrencyCache) Invalidate(ctx context.Context) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Del(ctx, cacheKey).Err()
	})
	if err != nil {
		return c.unavailable("invalidate", err)
	}

	return nil
}

func (c *CurrencyCache) unavailable(op string, err error) error {
	c.logger.Warn("cache unavailable",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: cache %s: %w", apperrors.ErrCacheUnavailable, op, err)
}
