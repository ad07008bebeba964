package telegram

import (
	"context"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/internal/metrics"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/telegram"
)

// Orchestrator is the rename state machine as seen by the handler
type Orchestrator interface {
	HandleFile(ctx context.Context, ev renamesvc.FileEvent) (*renamesvc.Session, error)
	HandleNameReply(ctx context.Context, reply renamesvc.NameReply) (*renamesvc.Session, error)
	KeepOriginal(ctx context.Context, action renamesvc.Action) (*renamesvc.Session, error)
	HandleFormatChoice(ctx context.Context, choice renamesvc.FormatChoice) (*renamesvc.Result, error)
	Cancel(ctx context.Context, action renamesvc.Action) error
	CancelActive(ctx context.Context, key rename.Key) error
	SizeLimit() int64
}

// ThumbnailStore saves the photo a user sends as their thumbnail
type ThumbnailStore interface {
	SetThumbnail(ctx context.Context, userID int64, fileID string) (*preferences.Preferences, error)
}

// Handler processes Telegram updates using pkg/telegram framework
type Handler struct {
	bot          telegram.Bot
	commands     *telegram.CommandRegistry
	orchestrator Orchestrator
	thumbnails   ThumbnailStore
	notifier     *Notifier
	isAdmin      func(userID int64) bool
	log          *logger.Logger
}

// NewHandler creates a new telegram handler
func NewHandler(
	bot telegram.Bot,
	commands *telegram.CommandRegistry,
	orchestrator Orchestrator,
	thumbnails ThumbnailStore,
	notifier *Notifier,
	isAdmin func(userID int64) bool,
	log *logger.Logger,
) *Handler {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Handler{
		bot:          bot,
		commands:     commands,
		orchestrator: orchestrator,
		thumbnails:   thumbnails,
		notifier:     notifier,
		isAdmin:      isAdmin,
		log:          log.With("component", "telegram_handler"),
	}
}

// HandleUpdate processes one update. It may block for a whole transfer, so
// every update runs on its own goroutine.
func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorw("Update handler panicked", "update_id", update.UpdateID, "panic", r)
		}
	}()

	metrics.TelegramUpdates.WithLabelValues(updateType(update)).Inc()

	switch {
	case update.HasCallback():
		if err := h.handleCallback(ctx, update.CallbackQuery); err != nil {
			h.log.Warnw("Failed to handle callback query",
				"callback_id", update.CallbackQuery.ID,
				"error", err,
			)
		}
	case update.HasMessage():
		if err := h.handleMessage(ctx, update.Message); err != nil {
			h.log.Warnw("Failed to handle message",
				"message_id", update.Message.MessageID,
				"error", err,
			)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return nil
	}

	switch {
	case msg.IsCommand:
		return h.commands.Handle(ctx, msg, h.isAdmin(msg.From.ID))
	case msg.HasMedia():
		return h.handleFile(ctx, msg)
	case len(msg.Photo) > 0:
		return h.handlePhoto(ctx, msg)
	case msg.ReplyTo != nil && msg.Text != "":
		return h.handleReply(ctx, msg)
	case msg.Text != "":
		return h.notifier.Reply(ctx, msg.Chat.ID, msg.MessageID, tmplExpired, nil)
	}
	return nil
}

func (h *Handler) handleFile(ctx context.Context, msg *telegram.Message) error {
	file, ok := FileRefFromMessage(msg)
	if !ok {
		return nil
	}

	_, err := h.orchestrator.HandleFile(ctx, renamesvc.FileEvent{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.MessageID,
		File:      file,
	})

	var tooLarge *rename.SizeLimitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &tooLarge):
		return h.notifier.Reply(ctx, msg.Chat.ID, msg.MessageID, tmplTooLarge, tooLargeView{Size: tooLarge.Size, Limit: tooLarge.Limit})
	default:
		return err
	}
}

func (h *Handler) handlePhoto(ctx context.Context, msg *telegram.Message) error {
	photo := msg.LargestPhoto()
	if photo == nil || h.thumbnails == nil {
		return nil
	}

	if _, err := h.thumbnails.SetThumbnail(ctx, msg.From.ID, photo.FileID); err != nil {
		_, _ = h.bot.SendMessage(ctx, msg.Chat.ID, "❌ Could not save the thumbnail. Please try again.", htmlOptions())
		return errors.Wrap(err, "save thumbnail")
	}

	opts := htmlOptions()
	opts.ReplyToMessageID = msg.MessageID
	_, err := h.bot.SendMessage(ctx, msg.Chat.ID, "🖼 Thumbnail saved. It will be attached to every upload. /del_thumb removes it.", opts)
	return err
}

func (h *Handler) handleReply(ctx context.Context, msg *telegram.Message) error {
	_, err := h.orchestrator.HandleNameReply(ctx, renamesvc.NameReply{
		ChatID:           msg.Chat.ID,
		UserID:           msg.From.ID,
		MessageID:        msg.MessageID,
		ReplyToMessageID: msg.ReplyTo.MessageID,
		Text:             msg.Text,
	})

	var invalid *rename.FilenameError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &invalid):
		return h.notifier.Reply(ctx, msg.Chat.ID, msg.MessageID, tmplInvalidName, reasonView{Reason: invalid.Reason})
	case errors.Is(err, rename.ErrSessionNotFound), errors.Is(err, rename.ErrInvalidState):
		// only answer replies aimed at the bot's own messages
		if msg.ReplyTo.From != nil && msg.ReplyTo.From.IsBot {
			return h.notifier.Reply(ctx, msg.Chat.ID, msg.MessageID, tmplExpired, nil)
		}
		return nil
	default:
		return err
	}
}

func (h *Handler) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}

	cb, err := DecodeCallback(cq.Data)
	if err != nil {
		_ = h.bot.AnswerCallback(ctx, cq.ID, "Unknown action", false)
		return err
	}

	chatID := cq.From.ID
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
	}
	action := renamesvc.Action{ChatID: chatID, UserID: cq.From.ID, SessionID: cb.SessionID}

	h.log.Debugw("Processing callback",
		"user_id", cq.From.ID,
		"chat_id", chatID,
		"action", cb.Action,
		"session_id", cb.SessionID,
	)

	switch cb.Action {
	case ActionKeep:
		_, err = h.orchestrator.KeepOriginal(ctx, action)
		return h.answer(ctx, cq.ID, err, "")

	case ActionCancel:
		err = h.orchestrator.Cancel(ctx, action)
		return h.answer(ctx, cq.ID, err, "Cancelling…")
	}

	format, _ := cb.Format()

	// the transfer runs in this goroutine; answer first so the button stops spinning
	_ = h.bot.AnswerCallback(ctx, cq.ID, "", false)

	start := time.Now()
	result, err := h.orchestrator.HandleFormatChoice(ctx, renamesvc.FormatChoice{Action: action, Format: format})
	switch {
	case err == nil:
		h.log.Infow("Rename finished",
			"session_id", cb.SessionID,
			"format", format,
			"size", result.Outcome.Size,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	case errors.Is(err, rename.ErrTransferCancelled), isTransferFailure(err):
		// already reported by the notifier
		return nil
	case errors.Is(err, rename.ErrUnsupportedFormat):
		_, sendErr := h.bot.SendMessage(ctx, chatID, "⚠️ "+telegram.Escape(err.Error()), htmlOptions())
		return sendErr
	case errors.Is(err, rename.ErrSessionNotFound), errors.Is(err, rename.ErrInvalidState):
		return h.notifier.Reply(ctx, chatID, 0, tmplExpired, nil)
	default:
		return err
	}
}

// answer closes a callback, turning stale sessions into an alert
func (h *Handler) answer(ctx context.Context, callbackID string, err error, okText string) error {
	switch {
	case err == nil:
		return h.bot.AnswerCallback(ctx, callbackID, okText, false)
	case errors.Is(err, rename.ErrSessionNotFound), errors.Is(err, rename.ErrInvalidState):
		return h.bot.AnswerCallback(ctx, callbackID, "This request is no longer active.", true)
	default:
		_ = h.bot.AnswerCallback(ctx, callbackID, "Something went wrong.", true)
		return err
	}
}

func updateType(update telegram.Update) string {
	switch {
	case update.HasCallback():
		return "callback"
	case !update.HasMessage():
		return "other"
	}

	msg := update.Message
	switch {
	case msg.IsCommand:
		return "command"
	case msg.HasMedia():
		return "file"
	case len(msg.Photo) > 0:
		return "photo"
	case msg.ReplyTo != nil:
		return "reply"
	}
	return "other"
}

func isTransferFailure(err error) bool {
	var failed *rename.TransferFailed
	return errors.As(err, &failed)
}

// FileRefFromMessage extracts the renamable file of a message
func FileRefFromMessage(msg *telegram.Message) (rename.FileRef, bool) {
	switch {
	case msg.Video != nil:
		v := msg.Video
		return rename.FileRef{
			FileID:   v.FileID,
			UniqueID: v.FileUniqueID,
			Name:     v.FileName,
			MimeType: v.MimeType,
			Size:     v.FileSize,
			Media: rename.Video{
				Width:    v.Width,
				Height:   v.Height,
				Duration: time.Duration(v.Duration) * time.Second,
			},
		}, true
	case msg.Audio != nil:
		a := msg.Audio
		return rename.FileRef{
			FileID:   a.FileID,
			UniqueID: a.FileUniqueID,
			Name:     a.FileName,
			MimeType: a.MimeType,
			Size:     a.FileSize,
			Media: rename.Audio{
				Duration:  time.Duration(a.Duration) * time.Second,
				Performer: a.Performer,
				Title:     a.Title,
			},
		}, true
	case msg.Document != nil:
		d := msg.Document
		return rename.FileRef{
			FileID:   d.FileID,
			UniqueID: d.FileUniqueID,
			Name:     d.FileName,
			MimeType: d.MimeType,
			Size:     d.FileSize,
			Media:    rename.Document{},
		}, true
	}
	return rename.FileRef{}, false
}
