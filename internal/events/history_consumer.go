package events

import (
	"context"
	"encoding/json"
	"time"

	"renamebot/internal/adapters/kafka"
	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/reconnect"
)

// MessageReader is the consuming side of the Kafka adapter
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Recorder persists outcomes (the ClickHouse history repository)
type Recorder interface {
	Record(ctx context.Context, outcome rename.Outcome) error
}

// HistoryConsumer moves outcome events from Kafka into the history store
type HistoryConsumer struct {
	reader   MessageReader
	recorder Recorder
	backoff  *reconnect.Backoff
	log      *logger.Logger
}

// HistoryConsumerOption configures a HistoryConsumer
type HistoryConsumerOption func(*reconnect.Config)

// WithReadBackoff sets the retry spacing after failed reads
func WithReadBackoff(minBackoff, maxBackoff time.Duration) HistoryConsumerOption {
	return func(cfg *reconnect.Config) {
		cfg.MinBackoff = minBackoff
		cfg.MaxBackoff = maxBackoff
	}
}

// NewHistoryConsumer creates the consumer
func NewHistoryConsumer(reader MessageReader, recorder Recorder, log *logger.Logger, opts ...HistoryConsumerOption) *HistoryConsumer {
	log = log.With("component", "history_consumer")

	cfg := reconnect.Config{MinBackoff: time.Second, MaxBackoff: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &HistoryConsumer{
		reader:   reader,
		recorder: recorder,
		backoff:  reconnect.NewBackoff(cfg, log),
		log:      log,
	}
}

// Run consumes until ctx is cancelled. Undecodable messages are skipped.
func (c *HistoryConsumer) Run(ctx context.Context) error {
	c.log.Info("History consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("History consumer stopped")
				return nil
			}
			c.log.Errorw("Failed to read message", "error", err)
			if c.backoff.Wait(ctx) != nil {
				c.log.Info("History consumer stopped")
				return nil
			}
			continue
		}
		c.backoff.Success()

		if err := c.handle(ctx, msg); err != nil {
			c.log.Warnw("Skipping outcome message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *HistoryConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event OutcomeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "decode outcome event")
	}
	if event.Type != EventTypeRenameOutcome {
		return errors.Newf("unexpected event type %q", event.Type)
	}
	return c.recorder.Record(ctx, event.Outcome)
}
