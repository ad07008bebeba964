package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "renamebot/internal/adapters/clickhouse"
	pgclient "renamebot/internal/adapters/postgres"
	redisclient "renamebot/internal/adapters/redis"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// DefaultShutdownTimeout bounds the whole shutdown sequence
const DefaultShutdownTimeout = 30 * time.Second

// handlerDrainTimeout bounds the wait for cancelled transfers to wind down
const handlerDrainTimeout = 15 * time.Second

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager; timeout 0 means DefaultShutdownTimeout
func NewLifecycle(timeout time.Duration) *Lifecycle {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &Lifecycle{shutdownTimeout: timeout}
}

// Shutdown performs coordinated cleanup of all components in order:
// intake stops before in-flight work is cancelled, history is flushed after
// its producers are gone, and stores close last.
func (l *Lifecycle) Shutdown(c *Container, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/10] Stopping HTTP server...")
	if server := c.Application.HTTPServer; server != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := server.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Stop Background Workers
	// ========================================
	log.Info("[2/10] Stopping background workers...")
	if scheduler := c.Background.Scheduler; scheduler != nil && scheduler.IsRunning() {
		if err := scheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	// ========================================
	// Step 3: Cancel in-flight transfers and loops
	// ========================================
	log.Info("[3/10] Cancelling running jobs...")
	c.Cancel()

	// ========================================
	// Step 4: Drain update handlers
	// Cancelled pipelines still report to users and remove their workspaces
	// ========================================
	log.Info("[4/10] Draining update handlers...")
	if bot := c.Application.TelegramBot; bot != nil {
		drainCtx, drainCancel := context.WithTimeout(shutdownCtx, handlerDrainTimeout)
		if err := bot.Drain(drainCtx); err != nil {
			log.Warnw("Update handlers did not finish", "timeout", handlerDrainTimeout, "error", err)
		} else {
			log.Info("✓ Update handlers finished")
		}
		drainCancel()
	}

	// ========================================
	// Step 5: Close Kafka consumer
	// Closing unblocks ReadMessage before waiting for goroutines
	// ========================================
	log.Info("[5/10] Closing Kafka consumer...")
	if reader := c.Adapters.HistoryReader; reader != nil {
		if err := reader.Close(); err != nil {
			log.Errorw("Kafka consumer close failed", "consumer", "history", "error", err)
		} else {
			log.Info("✓ Kafka consumer closed")
		}
	}

	// ========================================
	// Step 6: Wait for goroutines
	// ========================================
	log.Info("[6/10] Waiting for goroutines...")
	l.waitForGoroutines(c.WG, 10*time.Second, log)

	// ========================================
	// Step 7: Flush history, then close the producer
	// ========================================
	log.Info("[7/10] Flushing history and closing Kafka producer...")
	if history := c.Adapters.History; history != nil {
		if err := history.Stop(shutdownCtx); err != nil {
			log.Errorw("History flush failed", "error", err)
		} else {
			log.Info("✓ History flushed")
		}
	}
	if producer := c.Adapters.KafkaProducer; producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 8: Flush Error Tracker
	// ========================================
	log.Info("[8/10] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)

	// ========================================
	// Step 9: Sync Logs
	// ========================================
	log.Info("[9/10] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// ========================================
	// Step 10: Close Database Connections
	// LAST - other components may need them during shutdown
	// ========================================
	log.Info("[10/10] Closing database connections...")
	l.closeDatabases(c.PG, c.CH, c.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var closeErrs errors.MultiError

	if pgClient != nil {
		closeErrs.Add(errors.Wrap(pgClient.Close(), "postgres"))
	}
	if chClient != nil {
		closeErrs.Add(errors.Wrap(chClient.Close(), "clickhouse"))
	}
	if redisClient != nil {
		closeErrs.Add(errors.Wrap(redisClient.Close(), "redis"))
	}

	if err := closeErrs.ToError(); err != nil {
		log.Errorw("Database close errors", "error", err, "count", len(closeErrs.Errors))
	} else {
		log.Info("✓ Database connections closed")
	}
}
