package telegram

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// LoggingMiddleware logs command execution with timing
func LoggingMiddleware(log *logger.Logger) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) error {
			start := time.Now()
			err := next(ctx)

			fields := []interface{}{
				"command", ctx.Command,
				"user_id", ctx.UserID,
				"chat_id", ctx.ChatID,
				"has_args", ctx.Args != "",
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				log.Warnw("Command failed", append(fields, "error", err)...)
			} else {
				log.Debugw("Command completed", fields...)
			}
			return err
		}
	}
}

// RecoveryMiddleware recovers from panics in command handlers
func RecoveryMiddleware(log *logger.Logger) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("Command handler panicked",
						"command", ctx.Command,
						"user_id", ctx.UserID,
						"panic", r,
					)
					err = errors.Wrapf(errors.ErrInternal, "command %s panicked", ctx.Command)
				}
			}()

			return next(ctx)
		}
	}
}

// RateLimitMiddleware allows each user perMinute commands per minute with a
// burst of the same size. Limiters idle for more than idleTTL are dropped.
func RateLimitMiddleware(perMinute int, log *logger.Logger) CommandMiddleware {
	type entry struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	const idleTTL = 10 * time.Minute

	var (
		mu        sync.Mutex
		limiters  = make(map[int64]*entry)
		lastSweep time.Time
	)

	allow := func(userID int64, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()

		if now.Sub(lastSweep) > idleTTL {
			for id, e := range limiters {
				if now.Sub(e.lastSeen) > idleTTL {
					delete(limiters, id)
				}
			}
			lastSweep = now
		}

		e, ok := limiters[userID]
		if !ok {
			e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)}
			limiters[userID] = e
		}
		e.lastSeen = now
		return e.limiter.AllowN(now, 1)
	}

	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) error {
			if perMinute <= 0 || ctx.IsAdmin {
				return next(ctx)
			}
			if !allow(ctx.UserID, time.Now()) {
				log.Warnw("Rate limit exceeded",
					"user_id", ctx.UserID,
					"command", ctx.Command,
				)
				return ctx.Reply("⏱️ Slow down! Please wait a moment before trying again.")
			}
			return next(ctx)
		}
	}
}

// AdminOnlyMiddleware answers non-admins as if the command did not exist
func AdminOnlyMiddleware() CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) error {
			if !ctx.IsAdmin {
				return ctx.Reply("Unknown command: /" + Escape(ctx.Command))
			}
			return next(ctx)
		}
	}
}

// MetricsMiddleware tracks command usage metrics
func MetricsMiddleware(record func(command string, latency time.Duration, err error)) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) error {
			start := time.Now()
			err := next(ctx)
			record(ctx.Command, time.Since(start), err)
			return err
		}
	}
}
