package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"renamebot/internal/domain/rename"
)

const (
	// EventTypeRenameOutcome is the type of OutcomeEvent
	EventTypeRenameOutcome = "rename.outcome"

	eventVersion = "1.0"
	eventSource  = "renamebot"
)

// OutcomeEvent is the wire form of a finished transfer
type OutcomeEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	Outcome rename.Outcome `json:"outcome"`
}

// NewOutcomeEvent wraps an outcome in an event envelope. Names and error
// text are cleaned of invalid UTF-8 so the payload always encodes.
func NewOutcomeEvent(o rename.Outcome) OutcomeEvent {
	o.OriginalName = sanitizeUTF8(o.OriginalName)
	o.FinalName = sanitizeUTF8(o.FinalName)
	o.Error = sanitizeUTF8(o.Error)

	return OutcomeEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeRenameOutcome,
		Version:   eventVersion,
		Source:    eventSource,
		Timestamp: time.Now().UTC(),
		Outcome:   o,
	}
}

func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
