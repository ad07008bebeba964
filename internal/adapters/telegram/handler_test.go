package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renamebot/internal/domain/rename"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/telegram"
)

const adminID = 1

type harness struct {
	bot      *fakeBot
	orch     *fakeOrchestrator
	settings *memorySettings
	history  *fakeHistory
	registry *renamesvc.Registry
	handler  *Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		bot:      newFakeBot(),
		orch:     &fakeOrchestrator{limit: 2 << 30},
		settings: newMemorySettings(),
		history:  &fakeHistory{},
		registry: renamesvc.NewRegistry(),
	}

	renderer := NewTemplateRendererAdapter(nil)
	notifier := NewNotifier(h.bot, renderer, nil, h.registry, logger.Nop())

	reg := telegram.NewCommandRegistry(h.bot, logger.Nop())
	cmds := NewCommands(CommandsDeps{
		Settings:  h.settings,
		History:   h.history,
		Audience:  h.settings,
		Sessions:  h.registry,
		Canceller: h.orch,
		Transform: staticTransform(true),
		Templates: renderer,
		SizeLimit: h.orch.limit,
	}, logger.Nop())
	require.NoError(t, cmds.Register(reg))

	h.handler = NewHandler(h.bot, reg, h.orch, h.settings, notifier, func(id int64) bool { return id == adminID }, logger.Nop())
	return h
}

func (h *harness) message(msg *telegram.Message) {
	if msg.From == nil {
		msg.From = &telegram.User{ID: 7, FirstName: "Ann"}
	}
	if msg.Chat == nil {
		msg.Chat = &telegram.Chat{ID: 42, Type: "private"}
	}
	if msg.MessageID == 0 {
		msg.MessageID = 5
	}
	msg.ParseCommand()
	h.handler.HandleUpdate(context.Background(), telegram.Update{UpdateID: 1, Message: msg})
}

func (h *harness) command(text string, from int64) {
	h.message(&telegram.Message{Text: text, From: &telegram.User{ID: from, FirstName: "Ann"}})
}

func (h *harness) callback(data string) {
	h.handler.HandleUpdate(context.Background(), telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb-1",
			From:    &telegram.User{ID: 7},
			Message: &telegram.Message{MessageID: 9, Chat: &telegram.Chat{ID: 42}},
			Data:    data,
		},
	})
}

func TestHandler_FileStartsSession(t *testing.T) {
	h := newHarness(t)

	h.message(&telegram.Message{Video: &telegram.Video{
		FileID:   "vid",
		FileName: "clip.mp4",
		MimeType: "video/mp4",
		FileSize: 1024,
		Width:    640,
		Height:   480,
		Duration: 12,
	}})

	require.Len(t, h.orch.files, 1)
	ev := h.orch.files[0]
	assert.Equal(t, int64(42), ev.ChatID)
	assert.Equal(t, int64(7), ev.UserID)
	assert.Equal(t, 5, ev.MessageID)
	assert.Equal(t, "clip.mp4", ev.File.Name)
	assert.Equal(t, rename.KindVideo, ev.File.Kind())
	assert.Equal(t, rename.Video{Width: 640, Height: 480, Duration: 12 * time.Second}, ev.File.Media)
}

func TestHandler_FileTooLarge(t *testing.T) {
	h := newHarness(t)
	h.orch.fileErr = &rename.SizeLimitError{Size: 3 << 30, Limit: 2 << 30}

	h.message(&telegram.Message{Document: &telegram.Document{FileID: "doc", FileName: "big.iso", FileSize: 3 << 30}})

	msg := h.bot.lastSent()
	assert.Contains(t, msg.Text, "larger than")
	assert.Equal(t, 5, msg.Opts.ReplyToMessageID)
}

func TestHandler_IgnoresBots(t *testing.T) {
	h := newHarness(t)
	h.message(&telegram.Message{
		From:     &telegram.User{ID: 99, IsBot: true},
		Document: &telegram.Document{FileID: "doc"},
	})
	assert.Empty(t, h.orch.files)
	assert.Empty(t, h.bot.sent)
}

func TestHandler_NameReply(t *testing.T) {
	h := newHarness(t)

	h.message(&telegram.Message{
		MessageID: 6,
		Text:      "new name.mkv",
		ReplyTo:   &telegram.Message{MessageID: 102, From: &telegram.User{ID: 1000, IsBot: true}},
	})

	require.Len(t, h.orch.replies, 1)
	r := h.orch.replies[0]
	assert.Equal(t, 102, r.ReplyToMessageID)
	assert.Equal(t, 6, r.MessageID)
	assert.Equal(t, "new name.mkv", r.Text)
	assert.Empty(t, h.bot.sent)
}

func TestHandler_NameReplyErrors(t *testing.T) {
	botMsg := &telegram.Message{MessageID: 102, From: &telegram.User{ID: 1000, IsBot: true}}
	userMsg := &telegram.Message{MessageID: 3, From: &telegram.User{ID: 8}}

	tests := []struct {
		name    string
		err     error
		replyTo *telegram.Message
		want    string
	}{
		{"invalid name", &rename.FilenameError{Reason: "name is empty"}, botMsg, "name is empty"},
		{"expired session", rename.ErrSessionNotFound, botMsg, "no longer active"},
		{"wrong state", errors.Wrap(rename.ErrInvalidState, "awaiting_format"), botMsg, "no longer active"},
		{"reply to another user", rename.ErrSessionNotFound, userMsg, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.orch.replyErr = tt.err

			h.message(&telegram.Message{Text: "x", ReplyTo: tt.replyTo})

			if tt.want == "" {
				assert.Empty(t, h.bot.sent)
				return
			}
			assert.Contains(t, h.bot.lastSent().Text, tt.want)
		})
	}
}

func TestHandler_PlainTextGetsHint(t *testing.T) {
	h := newHarness(t)
	h.message(&telegram.Message{Text: "hello"})
	assert.Contains(t, h.bot.lastSent().Text, "Send the file again")
}

func TestHandler_PhotoBecomesThumbnail(t *testing.T) {
	h := newHarness(t)

	h.message(&telegram.Message{Photo: []telegram.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "large", Width: 800, Height: 600},
		{FileID: "medium", Width: 320, Height: 240},
	}})

	p, err := h.settings.GetPreferences(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "large", p.ThumbnailRef)
	assert.Contains(t, h.bot.lastSent().Text, "Thumbnail saved")
}

func TestHandler_CallbackKeepAndCancel(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.callback(EncodeCallback(ActionKeep, id))
	require.Len(t, h.orch.keeps, 1)
	assert.Equal(t, renamesvc.Action{ChatID: 42, UserID: 7, SessionID: id}, h.orch.keeps[0])
	assert.Equal(t, answered{ID: "cb-1"}, h.bot.lastAnswer())

	h.callback(EncodeCallback(ActionCancel, id))
	require.Len(t, h.orch.cancels, 1)
	assert.Equal(t, "Cancelling…", h.bot.lastAnswer().Text)
}

func TestHandler_CallbackStaleSession(t *testing.T) {
	h := newHarness(t)
	h.orch.keepErr = rename.ErrSessionNotFound

	h.callback(EncodeCallback(ActionKeep, uuid.New()))

	ans := h.bot.lastAnswer()
	assert.True(t, ans.Alert)
	assert.Contains(t, ans.Text, "no longer active")
}

func TestHandler_CallbackFormat(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	h.callback(EncodeCallback(string(rename.FormatAudio), id))

	require.Len(t, h.orch.choices, 1)
	assert.Equal(t, rename.FormatAudio, h.orch.choices[0].Format)
	assert.Equal(t, id, h.orch.choices[0].SessionID)
	require.Len(t, h.bot.answers, 1, "the button is answered before the transfer starts")
	assert.Empty(t, h.bot.sent)
}

func TestHandler_CallbackFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transfer failure is already reported", rename.NewTransferFailed(rename.StageUpload, errors.New("boom")), ""},
		{"cancelled is already reported", rename.ErrTransferCancelled, ""},
		{"unsupported format", &rename.FormatError{Format: rename.FormatVideo, Kind: rename.KindAudio}, "⚠️"},
		{"expired", rename.ErrSessionNotFound, "no longer active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.orch.choiceErr = tt.err

			h.callback(EncodeCallback(string(rename.FormatVideo), uuid.New()))

			if tt.want == "" {
				assert.Empty(t, h.bot.sent)
				return
			}
			assert.Contains(t, h.bot.lastSent().Text, tt.want)
		})
	}
}

func TestHandler_CallbackGarbage(t *testing.T) {
	h := newHarness(t)
	h.callback("something else")
	assert.Equal(t, "Unknown action", h.bot.lastAnswer().Text)
	assert.Empty(t, h.orch.keeps)
}

func TestFileRefFromMessage(t *testing.T) {
	ref, ok := FileRefFromMessage(&telegram.Message{Audio: &telegram.Audio{
		FileID:    "a",
		FileName:  "song.mp3",
		MimeType:  "audio/mpeg",
		FileSize:  10,
		Duration:  200,
		Performer: "Band",
		Title:     "Song",
	}})
	require.True(t, ok)
	assert.Equal(t, rename.KindAudio, ref.Kind())
	assert.Equal(t, rename.Audio{Duration: 200 * time.Second, Performer: "Band", Title: "Song"}, ref.Media)

	_, ok = FileRefFromMessage(&telegram.Message{Text: "hi"})
	assert.False(t, ok)
}
