package telegram

import (
	"context"
	"time"

	"renamebot/pkg/telegram"
)

const (
	// broadcastPageSize is how many user ids are read per query
	broadcastPageSize = 500

	// broadcastReportEvery is how many deliveries pass between status edits
	broadcastReportEvery = 25
)

// Audience pages through every user known to the settings store
type Audience interface {
	UserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

type broadcastView struct {
	Total       int64
	Sent        int64
	Failed      int64
	Elapsed     time.Duration
	Done        bool
	Interrupted bool
}

// broadcast copies the replied-to message into every user's chat. Delivery
// goes through the bot's send limiter; failures (blocked bot, deleted
// account) are counted, not retried.
func (c *Commands) broadcast(ctx *telegram.CommandContext) error {
	if c.deps.Audience == nil {
		return ctx.Reply("Broadcast is not available.")
	}
	if ctx.Message == nil || ctx.Message.ReplyTo == nil {
		return usage("broadcast", "reply to the message you want to send with /broadcast")
	}
	source := ctx.Message.ReplyTo.MessageID

	var view broadcastView
	if totals, err := c.deps.Settings.Totals(ctx.Ctx); err == nil {
		view.Total = totals.Users
	}

	text, err := c.deps.Templates.Render(tmplBroadcast, view)
	if err != nil {
		return err
	}
	statusID, err := ctx.Bot.SendMessage(ctx.Ctx, ctx.ChatID, text, telegram.MessageOptions{ReplyToMessageID: source})
	if err != nil {
		return err
	}

	started := c.now()
	report := func(reportCtx context.Context) {
		view.Elapsed = c.now().Sub(started)
		text, err := c.deps.Templates.Render(tmplBroadcast, view)
		if err != nil {
			c.log.Warnw("Failed to render broadcast status", "error", err)
			return
		}
		if err := ctx.Bot.EditMessage(reportCtx, ctx.ChatID, statusID, text, telegram.MessageOptions{}); err != nil {
			c.log.Debugw("Failed to update broadcast status", "error", err)
		}
	}

	var after int64
pages:
	for {
		ids, err := c.deps.Audience.UserIDs(ctx.Ctx, after, broadcastPageSize)
		if err != nil {
			c.log.Errorw("Broadcast stopped, user list unavailable", "after_user_id", after, "error", err)
			view.Interrupted = true
			break
		}

		for _, userID := range ids {
			if ctx.Ctx.Err() != nil {
				view.Interrupted = true
				break pages
			}
			if _, err := ctx.Bot.CopyMessage(ctx.Ctx, userID, ctx.ChatID, source); err != nil {
				view.Failed++
				c.log.Debugw("Broadcast delivery failed", "user_id", userID, "error", err)
			} else {
				view.Sent++
			}
			if (view.Sent+view.Failed)%broadcastReportEvery == 0 {
				report(ctx.Ctx)
			}
		}

		if len(ids) < broadcastPageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	view.Done = true
	report(context.WithoutCancel(ctx.Ctx))

	c.log.Infow("Broadcast finished",
		"admin_id", ctx.UserID,
		"sent", view.Sent,
		"failed", view.Failed,
		"interrupted", view.Interrupted,
		"elapsed", view.Elapsed,
	)
	return nil
}
