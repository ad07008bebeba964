package events

import (
	"context"
	"strconv"

	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// Producer is the publishing side of the Kafka adapter
type Producer interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// OutcomePublisher publishes transfer outcomes to Kafka
type OutcomePublisher struct {
	producer Producer
	topic    string
	log      *logger.Logger
}

// NewOutcomePublisher creates a publisher writing to topic
func NewOutcomePublisher(producer Producer, topic string, log *logger.Logger) *OutcomePublisher {
	return &OutcomePublisher{
		producer: producer,
		topic:    topic,
		log:      log.With("component", "outcome_publisher"),
	}
}

// Record publishes the outcome keyed by user id, keeping a user's events ordered
func (p *OutcomePublisher) Record(ctx context.Context, outcome rename.Outcome) error {
	event := NewOutcomeEvent(outcome)
	key := strconv.FormatInt(outcome.UserID, 10)

	if err := p.producer.Publish(ctx, p.topic, key, event); err != nil {
		return errors.Wrap(err, "publish rename outcome")
	}

	p.log.Debugw("Outcome published", "event_id", event.ID, "session_id", outcome.SessionID, "status", outcome.Status)
	return nil
}
