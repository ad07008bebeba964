package telegram

import (
	"context"
	"time"

	"renamebot/internal/domain/rename"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/progress"
	"renamebot/pkg/telegram"
)

// Notifier renders rename session events as Telegram messages. Progress
// goes through the edit queue; everything else is sent directly.
type Notifier struct {
	bot       telegram.Bot
	templates telegram.TemplateRenderer
	edits     *telegram.EditQueue
	ttl       time.Duration
	log       *logger.Logger
}

// NewNotifier creates a notifier. registry supplies the TTL shown in prompts.
func NewNotifier(bot telegram.Bot, templates telegram.TemplateRenderer, edits *telegram.EditQueue, registry *renamesvc.Registry, log *logger.Logger) *Notifier {
	return &Notifier{
		bot:       bot,
		templates: templates,
		edits:     edits,
		ttl:       registry.TTL(),
		log:       log.With("component", "telegram_notifier"),
	}
}

var _ renamesvc.Notifier = (*Notifier)(nil)

func htmlOptions() telegram.MessageOptions {
	return telegram.MessageOptions{ParseMode: telegram.ParseModeHTML, DisableWebPagePreview: true}
}

// send renders a template and sends it as a new message
func (n *Notifier) send(ctx context.Context, chatID int64, name string, data any, opts telegram.MessageOptions) (int, error) {
	text, err := n.templates.Render(name, data)
	if err != nil {
		n.log.Errorw("Failed to render template", "template", name, "error", err)
		return 0, err
	}
	return n.bot.SendMessage(ctx, chatID, text, opts)
}

// edit renders a template into an existing message, falling back to a new
// message when there is none to edit
func (n *Notifier) edit(ctx context.Context, chatID int64, messageID, replyTo int, name string, data any) error {
	text, err := n.templates.Render(name, data)
	if err != nil {
		n.log.Errorw("Failed to render template", "template", name, "error", err)
		return err
	}

	if messageID != 0 {
		if n.edits != nil {
			n.edits.Drop(chatID, messageID)
		}
		if err := n.bot.EditMessage(ctx, chatID, messageID, text, htmlOptions()); err == nil {
			return nil
		}
	}

	opts := htmlOptions()
	opts.ReplyToMessageID = replyTo
	_, err = n.bot.SendMessage(ctx, chatID, text, opts)
	return err
}

// Reply renders a template as a reply to a user message
func (n *Notifier) Reply(ctx context.Context, chatID int64, replyTo int, name string, data any) error {
	opts := htmlOptions()
	opts.ReplyToMessageID = replyTo
	_, err := n.send(ctx, chatID, name, data, opts)
	return err
}

// SendNamePrompt sends the file summary with Keep original and Cancel
// buttons, followed by a force-reply message that replies must answer
func (n *Notifier) SendNamePrompt(ctx context.Context, s renamesvc.Snapshot, limit int64) (renamesvc.Prompt, error) {
	view := namePromptView{
		FileName: s.File.Name,
		Kind:     s.File.Kind(),
		Size:     s.File.Size,
		Limit:    limit,
		TTL:      n.ttl,
	}

	summaryOpts := htmlOptions()
	summaryOpts.ReplyToMessageID = s.MessageID
	summaryOpts.Keyboard = telegram.NewInlineKeyboardMarkup(
		telegram.NewInlineKeyboardRow(
			telegram.NewInlineKeyboardButtonData("📄 Keep original", EncodeCallback(ActionKeep, s.ID)),
			telegram.NewInlineKeyboardButtonData("🚫 Cancel", EncodeCallback(ActionCancel, s.ID)),
		),
	).Ptr()

	summaryID, err := n.send(ctx, s.Key.ChatID, tmplNamePrompt, view, summaryOpts)
	if err != nil {
		return renamesvc.Prompt{}, errors.Wrap(err, "send name prompt")
	}

	promptID, err := n.bot.SendMessage(ctx, s.Key.ChatID, "✏️ Send the new filename as a reply to this message.", telegram.MessageOptions{
		ParseMode:        telegram.ParseModeHTML,
		ReplyToMessageID: s.MessageID,
		ForceReply:       true,
		InputPlaceholder: truncate(s.File.Name, 64),
	})
	if err != nil {
		_ = n.bot.DeleteMessage(ctx, s.Key.ChatID, summaryID)
		return renamesvc.Prompt{}, errors.Wrap(err, "send reply prompt")
	}

	return renamesvc.Prompt{CorrelationID: promptID, MessageIDs: []int{summaryID, promptID}}, nil
}

// SendFormatPrompt offers the allowed formats; its id becomes the status message
func (n *Notifier) SendFormatPrompt(ctx context.Context, s renamesvc.Snapshot, formats []rename.Format) (int, error) {
	row := make([]telegram.InlineKeyboardButton, 0, len(formats))
	for _, f := range formats {
		row = append(row, telegram.NewInlineKeyboardButtonData(formatLabel(f), EncodeCallback(string(f), s.ID)))
	}

	opts := htmlOptions()
	opts.ReplyToMessageID = s.MessageID
	opts.Keyboard = telegram.NewInlineKeyboardMarkup(
		row,
		telegram.NewInlineKeyboardRow(
			telegram.NewInlineKeyboardButtonData("🚫 Cancel", EncodeCallback(ActionCancel, s.ID)),
		),
	).Ptr()

	return n.send(ctx, s.Key.ChatID, tmplFormatPrompt, formatPromptView{FileName: s.ChosenFilename}, opts)
}

// ReportProgress queues an edit of the status message with a Cancel button
func (n *Notifier) ReportProgress(ctx context.Context, s renamesvc.Snapshot, ev progress.Event) error {
	if s.StatusMessageID == 0 {
		return nil
	}

	text, err := n.templates.Render(tmplProgress, newProgressView(s, ev))
	if err != nil {
		return err
	}

	opts := htmlOptions()
	opts.Keyboard = telegram.NewInlineKeyboardMarkup(
		telegram.NewInlineKeyboardRow(
			telegram.NewInlineKeyboardButtonData("🚫 Cancel", EncodeCallback(ActionCancel, s.ID)),
		),
	).Ptr()

	if n.edits == nil {
		return n.bot.EditMessage(ctx, s.Key.ChatID, s.StatusMessageID, text, opts)
	}
	n.edits.Enqueue(s.Key.ChatID, s.StatusMessageID, text, opts)
	return nil
}

// SendResult replaces the status message with a short confirmation
func (n *Notifier) SendResult(ctx context.Context, s renamesvc.Snapshot) error {
	return n.edit(ctx, s.Key.ChatID, s.StatusMessageID, s.MessageID, tmplResult, resultView{
		FileName: s.ChosenFilename,
		Format:   s.Format,
		Size:     s.File.Size,
	})
}

// SendFailure reports a failed transfer
func (n *Notifier) SendFailure(ctx context.Context, s renamesvc.Snapshot, err error) error {
	return n.edit(ctx, s.Key.ChatID, s.StatusMessageID, s.MessageID, tmplFailure, newFailureView(s, err))
}

// SendCancelled confirms a cancellation
func (n *Notifier) SendCancelled(ctx context.Context, s renamesvc.Snapshot) error {
	name := s.ChosenFilename
	if name == "" {
		name = s.File.Name
	}
	return n.edit(ctx, s.Key.ChatID, s.StatusMessageID, s.MessageID, tmplCancelled, fileNameView{FileName: name})
}

// SendMilestone congratulates the user on a rename count
func (n *Notifier) SendMilestone(ctx context.Context, chatID int64, count int64) error {
	_, err := n.send(ctx, chatID, tmplMilestone, countView{Count: count}, htmlOptions())
	return err
}

// DeleteMessages deletes every message, reporting all failures
func (n *Notifier) DeleteMessages(ctx context.Context, chatID int64, messageIDs ...int) error {
	var errs []error
	for _, id := range messageIDs {
		if id == 0 {
			continue
		}
		if n.edits != nil {
			n.edits.Drop(chatID, id)
		}
		if err := n.bot.DeleteMessage(ctx, chatID, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendStartup announces a started instance to every admin chat
func (n *Notifier) SendStartup(ctx context.Context, chatIDs []int64, info StartupInfo) error {
	var errs []error
	for _, id := range chatIDs {
		if _, err := n.send(ctx, id, tmplStartup, info, htmlOptions()); err != nil {
			errs = append(errs, errors.Wrapf(err, "startup notice to %d", id))
		}
	}
	return errors.Join(errs...)
}

func formatLabel(f rename.Format) string {
	switch f {
	case rename.FormatVideo:
		return "🎬 Video"
	case rename.FormatAudio:
		return "🎵 Audio"
	default:
		return "📄 Document"
	}
}
