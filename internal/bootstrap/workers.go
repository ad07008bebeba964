package bootstrap

import (
	"renamebot/internal/events"
	"renamebot/internal/workers"
)

// MustInitBackground registers periodic workers and the history consumer
func (c *Container) MustInitBackground() {
	cfg := c.Config.Rename

	scheduler := workers.NewScheduler(workers.DefaultStopTimeout, c.Log)
	scheduler.RegisterWorker(workers.NewSessionSweeper(c.Services.Registry, cfg.SweepInterval, c.Log))
	scheduler.RegisterWorker(workers.NewWorkspaceJanitor(cfg.TempDir, cfg.WorkspaceMaxAge, cfg.SweepInterval, c.Log))
	c.Background.Scheduler = scheduler

	if c.Adapters.HistoryReader != nil {
		c.Background.HistoryConsumer = events.NewHistoryConsumer(c.Adapters.HistoryReader, c.Adapters.History, c.Log)
	}

	c.Log.Info("✓ Background processing initialized")
}
