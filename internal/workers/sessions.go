package workers

import (
	"context"
	"time"

	"renamebot/internal/metrics"
	"renamebot/pkg/logger"
)

// SessionTable is the part of the session registry the sweeper drives
type SessionTable interface {
	Sweep() int
	Len() int
}

// SessionSweeper evicts idle rename sessions so quiet chats do not pin
// memory until the next Create
type SessionSweeper struct {
	*BaseWorker
	sessions SessionTable
}

// NewSessionSweeper creates the sweeper worker
func NewSessionSweeper(sessions SessionTable, interval time.Duration, log *logger.Logger) *SessionSweeper {
	return &SessionSweeper{
		BaseWorker: NewBaseWorker("session_sweeper", interval, interval > 0, log),
		sessions:   sessions,
	}
}

// Run sweeps once and refreshes the registry size gauge
func (w *SessionSweeper) Run(ctx context.Context) error {
	removed := w.sessions.Sweep()
	live := w.sessions.Len()
	metrics.RegistrySize.Set(float64(live))

	if removed > 0 {
		w.Log().Infow("Swept idle sessions", "removed", removed, "live", live)
	}
	return nil
}
