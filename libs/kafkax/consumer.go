package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string
	// MaxAttempts bounds handler retries for one message before it is skipped.
	MaxAttempts int
	RetryDelay  time.Duration
}

type Consumer struct {
	reader      MessageReader
	logger      *slog.Logger
	handler     Handler
	maxAttempts int
	retryDelay  time.Duration
}

func NewConsumer(logger *slog.Logger, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewConsumerWithReader(logger, reader, cfg, handler)
}

func NewConsumerWithReader(logger *slog.Logger, reader MessageReader, cfg ConsumerConfig, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Consumer{
		reader:      reader,
		logger:      logger,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
}

// Run fetches until ctx is done. Offsets are committed only after the
// handler succeeded or the message ran out of attempts.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, c.retryDelay) {
				return
			}
			continue
		}

		c.handle(ctx, msg)
		if ctx.Err() != nil {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	meta := ExtractEventMeta(msg)
	ctxMsg := ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
		),
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		err := c.handler(ctxSpan, msg)
		if err == nil {
			return
		}
		span.RecordError(err)
		if attempt >= c.maxAttempts {
			c.logger.Error("handler failed, skipping event", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt)
			return
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, c.retryDelay*time.Duration(attempt)) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
