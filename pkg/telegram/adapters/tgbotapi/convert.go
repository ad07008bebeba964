package tgbotapi

import (
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"renamebot/pkg/errors"
	"renamebot/pkg/telegram"
)

// apiError wraps err with message. Flood-control replies (HTTP 429) are
// marked with ErrRateLimitExceeded.
func apiError(err error, message string) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.Code == http.StatusTooManyRequests {
		return errors.Wrapf(errors.ErrRateLimitExceeded, "%s: retry after %ds (%s)", message, tgErr.RetryAfter, tgErr.Message)
	}
	return errors.Wrap(err, message)
}

func parseMode(mode string) string {
	if mode == "" {
		return telegram.ParseModeHTML
	}
	return mode
}

// buildPhoto maps a stored photo and MessageOptions onto a sendPhoto request
func buildPhoto(chatID int64, fileID, caption string, opts telegram.MessageOptions) tgbotapi.PhotoConfig {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	photo.ParseMode = parseMode(opts.ParseMode)
	photo.ReplyToMessageID = opts.ReplyToMessageID
	photo.AllowSendingWithoutReply = true
	photo.DisableNotification = opts.DisableNotification
	if opts.Keyboard != nil {
		photo.ReplyMarkup = convertKeyboardToTgbotapi(*opts.Keyboard)
	}
	return photo
}

// buildMessage maps MessageOptions onto a sendMessage request
func buildMessage(chatID int64, text string, opts telegram.MessageOptions) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode(opts.ParseMode)
	msg.DisableWebPagePreview = opts.DisableWebPagePreview
	msg.DisableNotification = opts.DisableNotification

	if opts.ReplyToMessageID > 0 {
		msg.ReplyToMessageID = opts.ReplyToMessageID
		msg.AllowSendingWithoutReply = true
	}

	switch {
	case opts.Keyboard != nil:
		msg.ReplyMarkup = convertKeyboardToTgbotapi(*opts.Keyboard)
	case opts.ForceReply:
		msg.ReplyMarkup = tgbotapi.ForceReply{
			ForceReply:            true,
			InputFieldPlaceholder: opts.InputPlaceholder,
			Selective:             true,
		}
	}
	return msg
}

// buildUpload picks sendDocument, sendVideo or sendAudio for an upload
func buildUpload(u telegram.FileUpload) (tgbotapi.Chattable, error) {
	if u.Reader == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "upload without content")
	}
	if u.FileName == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "upload without file name")
	}

	file := tgbotapi.FileReader{Name: u.FileName, Reader: u.Reader}
	entities := convertEntities(u.CaptionEntities)

	var thumb tgbotapi.RequestFileData
	if u.ThumbnailPath != "" {
		thumb = tgbotapi.FilePath(u.ThumbnailPath)
	}

	switch u.Kind {
	case telegram.UploadVideo:
		cfg := tgbotapi.NewVideo(u.ChatID, file)
		cfg.Caption = u.Caption
		cfg.CaptionEntities = entities
		cfg.Thumb = thumb
		cfg.Duration = u.Duration
		cfg.SupportsStreaming = u.SupportsStreaming
		cfg.ReplyToMessageID = u.ReplyToMessageID
		cfg.AllowSendingWithoutReply = true
		return cfg, nil

	case telegram.UploadAudio:
		cfg := tgbotapi.NewAudio(u.ChatID, file)
		cfg.Caption = u.Caption
		cfg.CaptionEntities = entities
		cfg.Thumb = thumb
		cfg.Duration = u.Duration
		cfg.Performer = u.Performer
		cfg.Title = u.Title
		cfg.ReplyToMessageID = u.ReplyToMessageID
		cfg.AllowSendingWithoutReply = true
		return cfg, nil

	case telegram.UploadDocument, "":
		cfg := tgbotapi.NewDocument(u.ChatID, file)
		cfg.Caption = u.Caption
		cfg.CaptionEntities = entities
		cfg.Thumb = thumb
		cfg.ReplyToMessageID = u.ReplyToMessageID
		cfg.AllowSendingWithoutReply = true
		// keep the file a document even when Telegram could detect a video
		cfg.DisableContentTypeDetection = true
		return cfg, nil

	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown upload kind %q", u.Kind)
	}
}

// videoRequest builds a raw sendVideo request. VideoConfig has no width or
// height fields, and without them Telegram shows probed videos as squares.
func videoRequest(u telegram.FileUpload) (tgbotapi.Params, []tgbotapi.RequestFile, error) {
	if u.Reader == nil {
		return nil, nil, errors.Wrap(errors.ErrInvalidInput, "upload without content")
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", u.ChatID)
	params.AddNonEmpty("caption", u.Caption)
	if entities := convertEntities(u.CaptionEntities); len(entities) > 0 {
		if err := params.AddInterface("caption_entities", entities); err != nil {
			return nil, nil, errors.Wrap(err, "encode caption entities")
		}
	}
	params.AddNonZero("duration", u.Duration)
	params.AddNonZero("width", u.Width)
	params.AddNonZero("height", u.Height)
	params.AddBool("supports_streaming", u.SupportsStreaming)
	params.AddNonZero("reply_to_message_id", u.ReplyToMessageID)
	params.AddBool("allow_sending_without_reply", u.ReplyToMessageID > 0)

	files := []tgbotapi.RequestFile{{
		Name: "video",
		Data: tgbotapi.FileReader{Name: u.FileName, Reader: u.Reader},
	}}
	if u.ThumbnailPath != "" {
		files = append(files, tgbotapi.RequestFile{Name: "thumb", Data: tgbotapi.FilePath(u.ThumbnailPath)})
	}
	return params, files, nil
}

func convertEntities(entities []telegram.MessageEntity) []tgbotapi.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, tgbotapi.MessageEntity{Type: e.Type, Offset: e.Offset, Length: e.Length})
	}
	return out
}

// =============================================================================
// Conversion Functions (tgbotapi → telegram abstractions)
// =============================================================================

// convertUpdate converts tgbotapi.Update to telegram.Update (abstraction layer)
func convertUpdate(tgUpdate tgbotapi.Update) telegram.Update {
	update := telegram.Update{UpdateID: tgUpdate.UpdateID}

	if tgUpdate.Message != nil {
		update.Message = convertMessage(tgUpdate.Message)
	}
	if tgUpdate.CallbackQuery != nil {
		update.CallbackQuery = convertCallbackQuery(tgUpdate.CallbackQuery)
	}
	return update
}

// convertMessage converts tgbotapi.Message to telegram.Message
func convertMessage(tgMsg *tgbotapi.Message) *telegram.Message {
	msg := &telegram.Message{
		MessageID: tgMsg.MessageID,
		Text:      tgMsg.Text,
		Caption:   tgMsg.Caption,
	}

	if tgMsg.From != nil {
		msg.From = convertUser(tgMsg.From)
	}
	if tgMsg.Chat != nil {
		msg.Chat = convertChat(tgMsg.Chat)
	}

	if d := tgMsg.Document; d != nil {
		msg.Document = &telegram.Document{
			FileID:       d.FileID,
			FileUniqueID: d.FileUniqueID,
			FileName:     d.FileName,
			MimeType:     d.MimeType,
			FileSize:     int64(d.FileSize),
		}
	}
	if v := tgMsg.Video; v != nil {
		msg.Video = &telegram.Video{
			FileID:       v.FileID,
			FileUniqueID: v.FileUniqueID,
			FileName:     v.FileName,
			MimeType:     v.MimeType,
			FileSize:     int64(v.FileSize),
			Width:        v.Width,
			Height:       v.Height,
			Duration:     v.Duration,
		}
	}
	if a := tgMsg.Audio; a != nil {
		msg.Audio = &telegram.Audio{
			FileID:       a.FileID,
			FileUniqueID: a.FileUniqueID,
			FileName:     a.FileName,
			MimeType:     a.MimeType,
			FileSize:     int64(a.FileSize),
			Duration:     a.Duration,
			Performer:    a.Performer,
			Title:        a.Title,
		}
	}
	for _, p := range tgMsg.Photo {
		msg.Photo = append(msg.Photo, telegram.PhotoSize{
			FileID:       p.FileID,
			FileUniqueID: p.FileUniqueID,
			Width:        p.Width,
			Height:       p.Height,
			FileSize:     int64(p.FileSize),
		})
	}

	if tgMsg.ReplyToMessage != nil {
		msg.ReplyTo = convertMessage(tgMsg.ReplyToMessage)
	}

	msg.ParseCommand()
	return msg
}

// convertCallbackQuery converts tgbotapi.CallbackQuery to telegram.CallbackQuery
func convertCallbackQuery(tgCallback *tgbotapi.CallbackQuery) *telegram.CallbackQuery {
	callback := &telegram.CallbackQuery{
		ID:   tgCallback.ID,
		Data: tgCallback.Data,
	}
	if tgCallback.From != nil {
		callback.From = convertUser(tgCallback.From)
	}
	if tgCallback.Message != nil {
		callback.Message = convertMessage(tgCallback.Message)
	}
	return callback
}

// convertUser converts tgbotapi.User to telegram.User
func convertUser(tgUser *tgbotapi.User) *telegram.User {
	return &telegram.User{
		ID:           tgUser.ID,
		FirstName:    tgUser.FirstName,
		LastName:     tgUser.LastName,
		Username:     tgUser.UserName,
		IsBot:        tgUser.IsBot,
		LanguageCode: tgUser.LanguageCode,
	}
}

// convertChat converts tgbotapi.Chat to telegram.Chat
func convertChat(tgChat *tgbotapi.Chat) *telegram.Chat {
	return &telegram.Chat{
		ID:       tgChat.ID,
		Type:     tgChat.Type,
		Title:    tgChat.Title,
		Username: tgChat.UserName,
	}
}

// convertKeyboardToTgbotapi converts telegram.InlineKeyboardMarkup to tgbotapi.InlineKeyboardMarkup
func convertKeyboardToTgbotapi(keyboard telegram.InlineKeyboardMarkup) tgbotapi.InlineKeyboardMarkup {
	tgRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard.InlineKeyboard))

	for _, row := range keyboard.InlineKeyboard {
		tgRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			tgButton := tgbotapi.InlineKeyboardButton{Text: button.Text}
			if button.CallbackData != "" {
				data := button.CallbackData
				tgButton.CallbackData = &data
			}
			if button.URL != "" {
				url := button.URL
				tgButton.URL = &url
			}
			tgRow = append(tgRow, tgButton)
		}
		tgRows = append(tgRows, tgRow)
	}

	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: tgRows}
}
