package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ratewatch/ratewatch/internal/domain"
	pkgkafka "github.com/ratewatch/ratewatch/pkg/kafka"
	"github.com/ratewatch/ratewatch/pkg/logger"
)

// Kafka topics for the currency write pipeline.
const (
	// TopicCurrencyCreate is the durable task queue: accepted create
	// requests wait here until the worker persists them.
	TopicCurrencyCreate = "ratewatch.currency.create"

	// TopicCurrencyNotify carries broadcast notifications from the worker
	// back to server instances, which relay them to connected clients.
	TopicCurrencyNotify = "ratewatch.currency.notify"
)

// Aggregate type constant.
const AggregateTypeCurrency = "currency"

// Source identifiers for events.
const (
	SourceServer = "ratewatch-server"
	SourceWorker = "ratewatch-worker"
)

// NotificationData is the payload of a currency.notify event: the broadcast
// event name and its JSON payload.
type NotificationData struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Producer publishes currency pipeline events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	source string
	logger *slog.Logger
}

// NewProducer creates an event producer identified by the given source.
func NewProducer(kafka *pkgkafka.Producer, source string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		source: source,
		logger: logger,
	}
}

// EnqueueCurrencyCreate publishes a create task for the currency. The write
// is synchronous with acks from all replicas; a nil return means the task is
// durably accepted.
func (p *Producer) EnqueueCurrencyCreate(ctx context.Context, currency *domain.Currency) error {
	event, err := pkgkafka.NewEvent(TopicCurrencyCreate, currency.ID, AggregateTypeCurrency, p.source, currency)
	if err != nil {
		return fmt.Errorf("create currency.create event: %w", err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	if err := p.kafka.Publish(ctx, TopicCurrencyCreate, event); err != nil {
		return fmt.Errorf("publish currency.create event: %w", err)
	}

	p.logger.DebugContext(ctx, "enqueued currency create task",
		slog.String("currency_id", currency.ID),
		slog.String("name", currency.Name),
	)

	return nil
}

// PublishNotification publishes a broadcast notification for relay to
// connected clients.
func (p *Producer) PublishNotification(ctx context.Context, eventName string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	data := NotificationData{Event: eventName, Payload: raw}
	event, err := pkgkafka.NewEvent(TopicCurrencyNotify, eventName, AggregateTypeCurrency, p.source, data)
	if err != nil {
		return fmt.Errorf("create currency.notify event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCurrencyNotify, event); err != nil {
		return fmt.Errorf("publish currency.notify event: %w", err)
	}

	return nil
}
