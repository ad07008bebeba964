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
	"renamebot/pkg/progress"
	"renamebot/pkg/telegram"
)

func newTestNotifier(bot *fakeBot) (*Notifier, *telegram.EditQueue) {
	edits := telegram.NewEditQueue(bot, time.Millisecond, logger.Nop())
	registry := renamesvc.NewRegistry(renamesvc.WithSessionTTL(10 * time.Minute))
	return NewNotifier(bot, NewTemplateRendererAdapter(nil), edits, registry, logger.Nop()), edits
}

func testSnapshot() renamesvc.Snapshot {
	return renamesvc.Snapshot{
		ID:        uuid.New(),
		Key:       rename.Key{ChatID: 42, UserID: 7},
		MessageID: 5,
		File: rename.FileRef{
			FileID: "file-1",
			Name:   "holiday <1>.mp4",
			Size:   3 << 20,
			Media:  rename.Video{Duration: time.Minute},
		},
		ChosenFilename: "trip.mp4",
		State:          rename.StateAwaitingName,
	}
}

func TestNotifier_SendNamePrompt(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)
	s := testSnapshot()

	prompt, err := n.SendNamePrompt(context.Background(), s, 2<<30)
	require.NoError(t, err)

	require.Len(t, bot.sent, 2)
	summary, reply := bot.sent[0], bot.sent[1]

	assert.Equal(t, []int{101, 102}, prompt.MessageIDs)
	assert.Equal(t, 102, prompt.CorrelationID, "replies must target the force-reply message")

	assert.Contains(t, summary.Text, "holiday &lt;1&gt;.mp4")
	assert.Contains(t, summary.Text, "10m")
	assert.Equal(t, 5, summary.Opts.ReplyToMessageID)
	require.NotNil(t, summary.Opts.Keyboard)
	buttons := summary.Opts.Keyboard.InlineKeyboard[0]
	require.Len(t, buttons, 2)
	assert.Equal(t, EncodeCallback(ActionKeep, s.ID), buttons[0].CallbackData)
	assert.Equal(t, EncodeCallback(ActionCancel, s.ID), buttons[1].CallbackData)

	assert.True(t, reply.Opts.ForceReply)
	assert.Nil(t, reply.Opts.Keyboard)
	assert.Equal(t, s.File.Name, reply.Opts.InputPlaceholder)
}

func TestNotifier_SendNamePromptCleansUpOnFailure(t *testing.T) {
	bot := newFakeBot()
	bot.failNth = 2
	n, _ := newTestNotifier(bot)

	_, err := n.SendNamePrompt(context.Background(), testSnapshot(), 1<<30)
	require.Error(t, err)
	assert.Equal(t, []int{101}, bot.deleted, "summary message is removed when the reply prompt fails")
}

func TestNotifier_SendFormatPrompt(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)
	s := testSnapshot()

	id, err := n.SendFormatPrompt(context.Background(), s, []rename.Format{rename.FormatDocument, rename.FormatVideo})
	require.NoError(t, err)
	assert.Equal(t, 101, id)

	msg := bot.lastSent()
	assert.Contains(t, msg.Text, "trip.mp4")
	require.NotNil(t, msg.Opts.Keyboard)
	require.Len(t, msg.Opts.Keyboard.InlineKeyboard, 2)

	formats := msg.Opts.Keyboard.InlineKeyboard[0]
	require.Len(t, formats, 2)
	assert.Equal(t, "📄 Document", formats[0].Text)
	assert.Equal(t, EncodeCallback(string(rename.FormatVideo), s.ID), formats[1].CallbackData)

	cancel := msg.Opts.Keyboard.InlineKeyboard[1]
	assert.Equal(t, EncodeCallback(ActionCancel, s.ID), cancel[0].CallbackData)
}

func TestNotifier_ReportProgressQueuesEdit(t *testing.T) {
	bot := newFakeBot()
	n, edits := newTestNotifier(bot)
	s := testSnapshot()

	require.NoError(t, n.ReportProgress(context.Background(), s, progress.Event{Stage: "download", Done: 1, Total: 2}))
	assert.Equal(t, 0, edits.Pending(), "no status message yet")

	s.StatusMessageID = 77
	require.NoError(t, n.ReportProgress(context.Background(), s, progress.Event{Stage: "download", Done: 1, Total: 2, Percent: 50}))
	require.NoError(t, n.ReportProgress(context.Background(), s, progress.Event{Stage: "download", Done: 2, Total: 2, Percent: 100}))
	assert.Equal(t, 1, edits.Pending(), "edits of one message coalesce")
	assert.Empty(t, bot.edits, "progress never edits synchronously")
}

func TestNotifier_SendResultEditsStatusMessage(t *testing.T) {
	bot := newFakeBot()
	n, edits := newTestNotifier(bot)
	s := testSnapshot()
	s.StatusMessageID = 77
	s.Format = rename.FormatVideo

	require.NoError(t, n.ReportProgress(context.Background(), s, progress.Event{Stage: "upload", Percent: 90}))
	require.NoError(t, n.SendResult(context.Background(), s))

	assert.Equal(t, 0, edits.Pending(), "pending progress is dropped before the final edit")
	require.Len(t, bot.edits, 1)
	assert.Contains(t, bot.edits[0].Text, "trip.mp4")
	assert.Contains(t, bot.edits[0].Text, "video")
	assert.Empty(t, bot.sent)
}

func TestNotifier_FallsBackToNewMessage(t *testing.T) {
	bot := newFakeBot()
	bot.editErr = errors.New("message to edit not found")
	n, _ := newTestNotifier(bot)
	s := testSnapshot()
	s.StatusMessageID = 77

	require.NoError(t, n.SendCancelled(context.Background(), s))

	msg := bot.lastSent()
	assert.Contains(t, msg.Text, "cancelled")
	assert.Equal(t, s.MessageID, msg.Opts.ReplyToMessageID)
}

func TestNotifier_SendFailure(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)
	s := testSnapshot()

	err := rename.NewTransferFailed(rename.StageDownload, errors.Wrap(errors.ErrTimeout, "step deadline"))
	require.NoError(t, n.SendFailure(context.Background(), s, err))

	msg := bot.lastSent()
	assert.Contains(t, msg.Text, "Could not download")
	assert.Contains(t, msg.Text, "took too long")
}

func TestNotifier_SendFailureOnShutdown(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)
	s := testSnapshot()

	err := rename.NewTransferFailed(rename.StageUpload, errors.Wrap(context.Canceled, "upload"))
	require.NoError(t, n.SendFailure(context.Background(), s, err))

	msg := bot.lastSent()
	assert.Contains(t, msg.Text, "restarting")
	assert.NotContains(t, msg.Text, "context canceled")
}

func TestNotifier_SendCancelledUsesOriginalNameBeforeRename(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)
	s := testSnapshot()
	s.ChosenFilename = ""

	require.NoError(t, n.SendCancelled(context.Background(), s))
	assert.Contains(t, bot.lastSent().Text, "holiday &lt;1&gt;.mp4")
}

func TestNotifier_DeleteMessages(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)

	require.NoError(t, n.DeleteMessages(context.Background(), 42, 10, 0, 11))
	assert.Equal(t, []int{10, 11}, bot.deleted)
}

func TestNotifier_SendMilestone(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)

	require.NoError(t, n.SendMilestone(context.Background(), 42, 100))
	assert.Contains(t, bot.lastSent().Text, "100")
}

func TestNotifier_SendStartup(t *testing.T) {
	bot := newFakeBot()
	n, _ := newTestNotifier(bot)

	err := n.SendStartup(context.Background(), []int64{1, 2}, StartupInfo{Name: "renamebot", Env: "production", Limit: 2 << 30})
	require.NoError(t, err)

	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(2), bot.sent[1].ChatID)
	assert.Contains(t, bot.sent[0].Text, "renamebot")
	assert.Contains(t, bot.sent[0].Text, "unavailable")
}
