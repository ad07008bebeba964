package rename

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus is how a transfer ended
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the record of one finished transfer, published to the outcome
// sinks (Kafka, ClickHouse)
type Outcome struct {
	SessionID       uuid.UUID     `json:"session_id"`
	ChatID          int64         `json:"chat_id"`
	UserID          int64         `json:"user_id"`
	Kind            Kind          `json:"kind"`
	Format          Format        `json:"format"`
	OriginalName    string        `json:"original_name"`
	FinalName       string        `json:"final_name"`
	Size            int64         `json:"size"`
	Status          OutcomeStatus `json:"status"`
	FailedStage     Stage         `json:"failed_stage,omitempty"`
	Error           string        `json:"error,omitempty"`
	MetadataApplied bool          `json:"metadata_applied"`
	ThumbnailUsed   bool          `json:"thumbnail_used"`
	Duration        time.Duration `json:"duration"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// HistorySummary aggregates a user's finished transfers
type HistorySummary struct {
	Total     uint64
	Succeeded uint64
	Failed    uint64
	Cancelled uint64
	Bytes     int64 // renamed bytes, successful transfers only
	LastAt    *time.Time
}

// SuccessRate is the share of succeeded transfers in percent
func (h HistorySummary) SuccessRate() float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Succeeded) * 100 / float64(h.Total)
}

// HistoryRepository stores transfer outcomes for analytics
type HistoryRepository interface {
	Record(ctx context.Context, outcome Outcome) error
	UserSummary(ctx context.Context, userID int64, since time.Time) (*HistorySummary, error)
}
