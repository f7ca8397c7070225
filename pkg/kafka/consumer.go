package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerRetries is the maximum number of attempts before a message is
// routed to the DLQ (or committed and skipped when no DLQ is configured).
const maxHandlerRetries = 3

// Handler processes a single Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration. StartOffset decides where
// a group without committed offsets begins reading: kafka.FirstOffset replays
// the topic from the beginning, kafka.LastOffset takes only new messages. The
// zero value falls back to the kafka-go default (FirstOffset).
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	MinBytes    int
	MaxBytes    int
	StartOffset int64
}

// messageReader is the part of kafka.Reader the consumer loop depends on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// dlqPublisher routes messages that could not be processed to a dead-letter
// topic.
type dlqPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, cause error, group string) error
}

// Consumer wraps the kafka-go reader for consuming events.
type Consumer struct {
	reader    messageReader
	topic     string
	group     string
	logger    *slog.Logger
	handler   Handler
	dlq       dlqPublisher
	closeOnce sync.Once
}

// NewConsumer creates a consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: cfg.StartOffset,
	})

	return &Consumer{
		reader:  r,
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		logger:  logger,
		handler: handler,
	}
}

// WithDLQ attaches a dead-letter producer. Messages that exhaust all retries
// are published there before being committed.
func (c *Consumer) WithDLQ(dlq *DLQProducer) *Consumer {
	c.dlq = dlq
	return c
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	topic := c.topic
	group := c.group
	c.logger.Info("consumer started",
		slog.String("topic", topic),
		slog.String("group", group),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", slog.String("topic", topic))
			return c.Close()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
				continue
			}
			ConsumerMessagesReceived.WithLabelValues(topic, group).Inc()

			if done := c.processMessage(ctx, msg, topic, group); done {
				return nil
			}
		}
	}
}

// processMessage handles one fetched message end to end, including retries,
// DLQ routing, and offset commit. Returns true when the context was canceled
// mid-processing and the loop should exit.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message, topic, group string) bool {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
		)
		c.sendToDLQ(ctx, msg, err, group)
		c.commit(ctx, msg, "bad")
		return false
	}

	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		start := time.Now()
		err := c.handler(ctx, event)
		ConsumerProcessingDuration.WithLabelValues(topic, group).Observe(time.Since(start).Seconds())
		if err == nil {
			lastErr = nil
			break
		}

		lastErr = err
		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxHandlerRetries),
		)

		if attempt < maxHandlerRetries {
			backoff := time.Duration(attempt) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return true
			case <-time.After(backoff):
			}
		}
	}

	if lastErr != nil {
		ConsumerMessagesFailed.WithLabelValues(topic, group).Inc()
		c.logger.Error("handler failed after all retries, skipping poison message",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("retries", maxHandlerRetries),
		)
		c.sendToDLQ(ctx, msg, lastErr, group)
		c.commit(ctx, msg, "poison")
		return false
	}

	ConsumerMessagesProcessed.WithLabelValues(topic, group).Inc()
	c.commit(ctx, msg, "")
	return false
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg kafka.Message, cause error, group string) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, group); err != nil {
		c.logger.Error("failed to publish to DLQ", slog.String("error", err.Error()))
		return
	}
	ConsumerDLQPublished.WithLabelValues(msg.Topic, group).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, kind string) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if kind == "" {
			c.logger.Error("failed to commit message", slog.String("error", err.Error()))
			return
		}
		c.logger.Error("failed to commit "+kind+" message", slog.String("error", err.Error()))
	}
}

// Close closes the consumer. Safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
