package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// DefaultFloodPause is how long the queue stops after Telegram answers an
// edit with flood control
const DefaultFloodPause = 5 * time.Second

type editKey struct {
	chatID    int64
	messageID int
}

type pendingEdit struct {
	text string
	opts MessageOptions
}

// EditQueue delivers message edits in the background at a bounded rate.
// Only the latest text per message is kept, so a slow API never builds a
// backlog of stale progress updates.
type EditQueue struct {
	bot        Bot
	limiter    *rate.Limiter
	floodPause time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	pending map[editKey]pendingEdit
	order   []editKey
	wake    chan struct{}
}

// NewEditQueue creates a queue sending at most one edit per interval
func NewEditQueue(bot Bot, interval time.Duration, log *logger.Logger) *EditQueue {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &EditQueue{
		bot:        bot,
		limiter:    rate.NewLimiter(limit, 1),
		floodPause: DefaultFloodPause,
		log:        log.With("component", "edit_queue"),
		pending:    make(map[editKey]pendingEdit),
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue schedules an edit, replacing any not yet sent for the same message
func (q *EditQueue) Enqueue(chatID int64, messageID int, text string, opts MessageOptions) {
	key := editKey{chatID: chatID, messageID: messageID}

	q.mu.Lock()
	if _, exists := q.pending[key]; !exists {
		q.order = append(q.order, key)
	}
	q.pending[key] = pendingEdit{text: text, opts: opts}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drop discards a pending edit, e.g. before the message is deleted
func (q *EditQueue) Drop(chatID int64, messageID int) {
	q.mu.Lock()
	delete(q.pending, editKey{chatID: chatID, messageID: messageID})
	q.mu.Unlock()
}

// Pending returns the number of edits waiting to be sent
func (q *EditQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run sends queued edits until ctx is done
func (q *EditQueue) Run(ctx context.Context) error {
	for {
		key, edit, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.wake:
				continue
			}
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return nil
		}

		// re-read after waiting so the freshest text goes out
		q.mu.Lock()
		if latest, exists := q.pending[key]; exists {
			edit = latest
			delete(q.pending, key)
		} else {
			q.mu.Unlock()
			continue
		}
		q.mu.Unlock()

		err := q.bot.EditMessage(ctx, key.chatID, key.messageID, edit.text, edit.opts)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrRateLimitExceeded):
			q.requeue(key, edit)
			q.log.Warnw("Edit rate limited, pausing",
				"chat_id", key.chatID,
				"message_id", key.messageID,
				"pause", q.floodPause,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.floodPause):
			}
		default:
			q.log.Debugw("Edit failed",
				"chat_id", key.chatID,
				"message_id", key.messageID,
				"error", err,
			)
		}
	}
}

// requeue puts a rejected edit back unless a newer one has replaced it or
// the message was dropped meanwhile
func (q *EditQueue) requeue(key editKey, edit pendingEdit) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.pending[key]; exists {
		return
	}
	q.pending[key] = edit
	q.order = append(q.order, key)
}

// next pops the oldest key that still has a pending edit
func (q *EditQueue) next() (editKey, pendingEdit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.order) > 0 {
		key := q.order[0]
		q.order = q.order[1:]
		if edit, ok := q.pending[key]; ok {
			return key, edit, true
		}
	}
	return editKey{}, pendingEdit{}, false
}
