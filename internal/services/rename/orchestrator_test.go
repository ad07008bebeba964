package rename

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

const (
	testChat = int64(-100500)
	testUser = int64(4242)
)

type harness struct {
	orch      *Orchestrator
	registry  *Registry
	notifier  *fakeNotifier
	transport *fakeTransport
	prefs     *fakePreferences
	transform *fakeTransform
	sink      *recordingSink
	tempDir   string
}

func newHarness(t *testing.T, size int) *harness {
	t.Helper()

	h := &harness{
		registry:  NewRegistry(),
		notifier:  &fakeNotifier{},
		transport: newFakeTransport(size),
		prefs:     newFakePreferences(),
		transform: &fakeTransform{available: true},
		sink:      &recordingSink{},
		tempDir:   t.TempDir(),
	}
	h.orch = NewOrchestrator(Config{
		TempDir:          h.tempDir,
		SizeLimit:        2000 * 1024 * 1024,
		ProgressInterval: time.Hour,
	}, Deps{
		Registry:    h.registry,
		Notifier:    h.notifier,
		Transport:   h.transport,
		Preferences: h.prefs,
		Transform:   h.transform,
		Sinks:       []OutcomeSink{h.sink},
	}, logger.Nop())
	return h
}

func videoFile(name string, size int64) rename.FileRef {
	return rename.FileRef{
		FileID:   "vid-1",
		UniqueID: "uniq-1",
		Name:     name,
		MimeType: "video/quicktime",
		Size:     size,
		Media:    rename.Video{Width: 1920, Height: 1080, Duration: 95 * time.Second},
	}
}

// startSession sends a file and returns the session plus the prompt message id to reply to
func (h *harness) startSession(t *testing.T, file rename.FileRef) (*Session, int) {
	t.Helper()

	s, err := h.orch.HandleFile(context.Background(), FileEvent{ChatID: testChat, UserID: testUser, MessageID: 7, File: file})
	require.NoError(t, err)
	return s, s.Snapshot().CorrelationID
}

func (h *harness) reply(t *testing.T, to int, text string) *Session {
	t.Helper()

	s, err := h.orch.HandleNameReply(context.Background(), NameReply{
		ChatID: testChat, UserID: testUser, MessageID: 8, ReplyToMessageID: to, Text: text,
	})
	require.NoError(t, err)
	return s
}

func (h *harness) choose(s *Session, format rename.Format) (*Result, error) {
	return h.orch.HandleFormatChoice(context.Background(), FormatChoice{
		Action: Action{ChatID: testChat, UserID: testUser, SessionID: s.ID},
		Format: format,
	})
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary artifacts must be released")
}

func TestOrchestrator_ConcurrentNameRepliesKeepFirstName(t *testing.T) {
	h := newHarness(t, 1024)
	s, promptID := h.startSession(t, videoFile("clip.mov", 1024))

	h.prefs.entered = make(chan struct{}, 2)
	h.prefs.release = make(chan struct{})

	texts := []string{"first", "second"}
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			_, errs[i] = h.orch.HandleNameReply(context.Background(), NameReply{
				ChatID: testChat, UserID: testUser, MessageID: 8 + i, ReplyToMessageID: promptID, Text: text,
			})
		}(i, text)
	}
	// both replies pass the state check before either resolves its name
	<-h.prefs.entered
	<-h.prefs.entered
	close(h.prefs.release)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one reply may be accepted")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, rename.ErrInvalidState)
	}
	require.NotEqual(t, -1, winner)

	snap := s.Snapshot()
	assert.Equal(t, rename.StateAwaitingFormat, snap.State)
	assert.Equal(t, texts[winner]+".mov", snap.ChosenFilename)
	require.Len(t, h.notifier.formatShown, 1)
	assert.Equal(t, snap.ChosenFilename, h.notifier.formatShown[0].ChosenFilename)
}

func TestOrchestrator_EndToEndRename(t *testing.T) {
	h := newHarness(t, 50*1024)
	h.prefs.set(&preferences.Preferences{UserID: testUser, Prefix: "[Trip]", Suffix: "-2024"})

	s, promptID := h.startSession(t, videoFile("clip.mov", 50*1024*1024))
	assert.Equal(t, rename.StateAwaitingName, s.State())

	h.reply(t, promptID, "holiday")
	snap := s.Snapshot()
	assert.Equal(t, rename.StateAwaitingFormat, snap.State)
	assert.Equal(t, "[Trip] holiday -2024.mov", snap.ChosenFilename)
	assert.Equal(t, []rename.Format{rename.FormatVideo, rename.FormatDocument}, h.notifier.formatPrompts[0])
	assert.ElementsMatch(t, snap.PromptMessageIDs, h.notifier.deleted, "name prompt is cleaned up")

	res, err := h.choose(s, rename.FormatVideo)
	require.NoError(t, err)

	assert.Equal(t, rename.StateDone, res.Session.State)
	assert.NoError(t, res.Session.Failure)
	require.Len(t, h.transport.uploads, 1)
	up := h.transport.uploads[0]
	assert.Equal(t, "[Trip] holiday -2024.mov", up.Filename)
	assert.Equal(t, rename.FormatVideo, up.Format)
	assert.Equal(t, 7, up.ReplyToMessageID)
	assert.Equal(t, 95*time.Second, up.Attributes.Duration)
	assert.Equal(t, "[Trip] holiday -2024.mov", up.Caption)
	assert.True(t, up.BoldCaption)
	assert.Equal(t, h.transport.payload, h.transport.uploadedData[0])

	assert.Equal(t, int64(1), h.prefs.count(testUser))
	assert.Len(t, h.notifier.results, 1)
	assertEmptyDir(t, h.tempDir)

	_, err = h.registry.Get(s.Key)
	assert.ErrorIs(t, err, rename.ErrSessionNotFound)

	require.Len(t, h.sink.outcomes, 1)
	assert.Equal(t, rename.OutcomeSucceeded, h.sink.outcomes[0].Status)
	assert.Equal(t, "clip.mov", h.sink.outcomes[0].OriginalName)

	require.NotEmpty(t, h.notifier.progress)
	last := h.notifier.progress[len(h.notifier.progress)-1]
	assert.True(t, last.Final)
	assert.Equal(t, "upload", last.Stage)
}

func TestOrchestrator_RejectsOversizedFile(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.orch.HandleFile(context.Background(), FileEvent{
		ChatID: testChat, UserID: testUser, MessageID: 1,
		File: videoFile("big.mkv", 3*1024*1024*1024),
	})

	require.ErrorIs(t, err, rename.ErrFileTooLarge)
	var sizeErr *rename.SizeLimitError
	require.True(t, errors.As(err, &sizeErr))
	assert.Equal(t, int64(2000*1024*1024), sizeErr.Limit)
	assert.Equal(t, 0, h.registry.Len(), "no session is created")
	assert.Empty(t, h.notifier.namePrompts)
}

func TestEffectiveSizeLimit(t *testing.T) {
	base, elevated := int64(2000*1024*1024), int64(4*1024*1024*1024)
	assert.Equal(t, base, EffectiveSizeLimit(base, elevated, false))
	assert.Equal(t, elevated, EffectiveSizeLimit(base, elevated, true))
}

func TestOrchestrator_PromptFailureRemovesSession(t *testing.T) {
	h := newHarness(t, 1)
	h.notifier.failPrompt = errors.ErrUnavailable

	_, err := h.orch.HandleFile(context.Background(), FileEvent{ChatID: testChat, UserID: testUser, File: testFile("a.pdf")})
	require.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Equal(t, 0, h.registry.Len())
}

func TestOrchestrator_InvalidNameKeepsWaiting(t *testing.T) {
	h := newHarness(t, 1)
	s, promptID := h.startSession(t, testFile("report.pdf"))

	for _, bad := range []string{"", "   ", "...", strings.Repeat("a", 300)} {
		_, err := h.orch.HandleNameReply(context.Background(), NameReply{
			ChatID: testChat, UserID: testUser, ReplyToMessageID: promptID, Text: bad,
		})
		assert.ErrorIs(t, err, rename.ErrInvalidFilename, "reply %q", bad)
		assert.Equal(t, rename.StateAwaitingName, s.State())
	}

	h.reply(t, promptID, "final")
	assert.Equal(t, "final.pdf", s.Snapshot().ChosenFilename)
}

func TestOrchestrator_ReplyMustTargetPrompt(t *testing.T) {
	h := newHarness(t, 1)
	_, promptID := h.startSession(t, testFile("report.pdf"))

	for _, to := range []int{0, promptID + 99} {
		_, err := h.orch.HandleNameReply(context.Background(), NameReply{
			ChatID: testChat, UserID: testUser, ReplyToMessageID: to, Text: "name",
		})
		assert.ErrorIs(t, err, rename.ErrSessionNotFound)
	}

	// another user replying to the same prompt has no session
	_, err := h.orch.HandleNameReply(context.Background(), NameReply{
		ChatID: testChat, UserID: testUser + 1, ReplyToMessageID: promptID, Text: "name",
	})
	assert.ErrorIs(t, err, rename.ErrSessionNotFound)
}

func TestOrchestrator_KeepOriginal(t *testing.T) {
	h := newHarness(t, 1)
	h.prefs.set(&preferences.Preferences{UserID: testUser, Prefix: "[Trip]"})
	s, _ := h.startSession(t, testFile("report.pdf"))

	_, err := h.orch.KeepOriginal(context.Background(), Action{ChatID: testChat, UserID: testUser, SessionID: s.ID})
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, rename.StateAwaitingFormat, snap.State)
	assert.Equal(t, "report.pdf", snap.ChosenFilename)

	_, err = h.orch.KeepOriginal(context.Background(), Action{ChatID: testChat, UserID: testUser, SessionID: s.ID})
	assert.ErrorIs(t, err, rename.ErrInvalidState)
}

func TestOrchestrator_UnsupportedFormatKeepsState(t *testing.T) {
	h := newHarness(t, 1)
	s, promptID := h.startSession(t, testFile("report.pdf"))
	h.reply(t, promptID, "x")

	_, err := h.choose(s, rename.FormatVideo)
	assert.ErrorIs(t, err, rename.ErrUnsupportedFormat)
	assert.Equal(t, rename.StateAwaitingFormat, s.State())
	assert.Empty(t, h.transport.uploads)
}

func TestOrchestrator_StaleAndForeignButtons(t *testing.T) {
	h := newHarness(t, 1)
	first, _ := h.startSession(t, testFile("a.pdf"))
	second, _ := h.startSession(t, testFile("b.pdf"))

	_, err := h.orch.KeepOriginal(context.Background(), Action{ChatID: testChat, UserID: testUser, SessionID: first.ID})
	assert.ErrorIs(t, err, rename.ErrSessionNotFound, "buttons of a replaced session are dead")

	err = h.orch.Cancel(context.Background(), Action{ChatID: testChat, UserID: testUser + 1, SessionID: second.ID})
	assert.ErrorIs(t, err, rename.ErrSessionNotFound, "only the owner can press")
	assert.Equal(t, rename.StateAwaitingName, second.State())
}

func TestOrchestrator_ExpiredSession(t *testing.T) {
	h := newHarness(t, 1)
	clock := newFakeClock()
	h.registry.now = clock.Now
	h.orch.now = clock.Now

	s, promptID := h.startSession(t, testFile("a.pdf"))
	clock.Advance(31 * time.Minute)

	_, err := h.orch.HandleNameReply(context.Background(), NameReply{
		ChatID: testChat, UserID: testUser, ReplyToMessageID: promptID, Text: "late",
	})
	assert.ErrorIs(t, err, rename.ErrSessionNotFound)
	assert.Equal(t, rename.StateExpired, s.State())
}

func TestOrchestrator_CancelBeforeTransfer(t *testing.T) {
	h := newHarness(t, 1)
	s, _ := h.startSession(t, testFile("a.pdf"))

	require.NoError(t, h.orch.Cancel(context.Background(), Action{ChatID: testChat, UserID: testUser, SessionID: s.ID}))
	assert.Equal(t, rename.StateCancelled, s.State())
	assert.Equal(t, 0, h.registry.Len())
	assert.Len(t, h.notifier.cancelled, 1)

	err := h.orch.Cancel(context.Background(), Action{ChatID: testChat, UserID: testUser, SessionID: s.ID})
	assert.ErrorIs(t, err, rename.ErrSessionNotFound)
}

func TestOrchestrator_CancelDuringTransfer(t *testing.T) {
	h := newHarness(t, 64*1024)
	s, promptID := h.startSession(t, videoFile("clip.mov", 64*1024))
	h.reply(t, promptID, "holiday")

	h.transport.onChunk = func(done int64) {
		if done == 8*1024 {
			require.NoError(t, h.orch.CancelActive(context.Background(), s.Key))
		}
	}

	res, err := h.choose(s, rename.FormatVideo)
	require.ErrorIs(t, err, rename.ErrTransferCancelled)
	assert.Equal(t, rename.StateCancelled, res.Session.State)
	assert.Empty(t, h.transport.uploads, "no upload after cancel")
	assert.Len(t, h.notifier.cancelled, 1)
	assert.Zero(t, h.prefs.count(testUser))
	assertEmptyDir(t, h.tempDir)
	assert.Equal(t, 0, h.registry.Len())

	require.Len(t, h.sink.outcomes, 1)
	assert.Equal(t, rename.OutcomeCancelled, h.sink.outcomes[0].Status)
}

func TestOrchestrator_DownloadFailure(t *testing.T) {
	h := newHarness(t, 16*1024)
	h.transport.failDownload = errors.New("connection reset")
	h.transport.failAfter = 8 * 1024

	s, promptID := h.startSession(t, videoFile("clip.mov", 16*1024))
	h.reply(t, promptID, "holiday")

	res, err := h.choose(s, rename.FormatVideo)

	var failed *rename.TransferFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, rename.StageDownload, failed.Stage)
	assert.Equal(t, rename.StateDone, res.Session.State)
	assert.Error(t, res.Session.Failure)
	assert.Empty(t, h.transport.uploads, "no upload is attempted")
	assertEmptyDir(t, h.tempDir)
	assert.Len(t, h.notifier.failures, 1)
	assert.Zero(t, h.prefs.count(testUser))

	require.Len(t, h.sink.outcomes, 1)
	assert.Equal(t, rename.OutcomeFailed, h.sink.outcomes[0].Status)
	assert.Equal(t, rename.StageDownload, h.sink.outcomes[0].FailedStage)
}

func TestOrchestrator_UploadFailure(t *testing.T) {
	h := newHarness(t, 1024)
	h.transport.failUpload = errors.New("bad request")

	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "b")

	_, err := h.choose(s, rename.FormatDocument)
	var failed *rename.TransferFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, rename.StageUpload, failed.Stage)
	assertEmptyDir(t, h.tempDir)
}

func TestOrchestrator_StepTimeout(t *testing.T) {
	h := newHarness(t, 1024)
	h.orch.cfg.StepTimeout = 20 * time.Millisecond
	h.transport.blockUpload = make(chan struct{})

	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "b")

	_, err := h.choose(s, rename.FormatDocument)
	var failed *rename.TransferFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, rename.StageUpload, failed.Stage)
	assert.ErrorIs(t, err, errors.ErrTimeout)
}

func TestOrchestrator_MetadataApplied(t *testing.T) {
	h := newHarness(t, 256)
	h.prefs.set(&preferences.Preferences{UserID: testUser, Metadata: preferences.Metadata{Enabled: true, Author: "Jane"}})

	s, promptID := h.startSession(t, videoFile("clip.mov", 256))
	h.reply(t, promptID, "holiday")

	res, err := h.choose(s, rename.FormatVideo)
	require.NoError(t, err)

	assert.Equal(t, 1, h.transform.calls)
	assert.Equal(t, "Jane", h.transform.lastMeta.Author)
	assert.True(t, res.Outcome.MetadataApplied)
	assert.Equal(t, append([]byte("META:"), h.transport.payload...), h.transport.uploadedData[0])
	assertEmptyDir(t, h.tempDir)
}

func TestOrchestrator_MetadataFailureUploadsOriginal(t *testing.T) {
	h := newHarness(t, 256)
	h.transform.fail = errors.New("ffmpeg exited with status 1")
	h.prefs.set(&preferences.Preferences{UserID: testUser, Metadata: preferences.Metadata{Enabled: true, Title: "T"}})

	s, promptID := h.startSession(t, videoFile("clip.mov", 256))
	h.reply(t, promptID, "holiday")

	res, err := h.choose(s, rename.FormatVideo)
	require.NoError(t, err)
	assert.False(t, res.Outcome.MetadataApplied)
	assert.Equal(t, h.transport.payload, h.transport.uploadedData[0])
	assertEmptyDir(t, h.tempDir)
}

func TestOrchestrator_TransformUnavailable(t *testing.T) {
	h := newHarness(t, 256)
	h.transform.available = false
	h.prefs.set(&preferences.Preferences{UserID: testUser, Metadata: preferences.Metadata{Enabled: true, Author: "Jane"}})

	s, promptID := h.startSession(t, videoFile("clip.mov", 256))
	h.reply(t, promptID, "holiday")

	res, err := h.choose(s, rename.FormatVideo)
	require.NoError(t, err)

	assert.Equal(t, rename.StateDone, res.Session.State)
	assert.Zero(t, h.transform.calls)
	assert.Equal(t, h.transport.payload, h.transport.uploadedData[0], "original download is uploaded")
}

func TestOrchestrator_CaptionTemplate(t *testing.T) {
	h := newHarness(t, 2048)
	h.prefs.set(&preferences.Preferences{UserID: testUser, CaptionTemplate: "{filename} | {filesize} | {duration}"})

	s, promptID := h.startSession(t, videoFile("clip.mov", 2048))
	h.reply(t, promptID, "holiday")

	_, err := h.choose(s, rename.FormatVideo)
	require.NoError(t, err)

	up := h.transport.uploads[0]
	assert.Equal(t, "holiday.mov | 2.0 KiB | 1m 35s", up.Caption)
	assert.False(t, up.BoldCaption)
}

func TestOrchestrator_CaptionWithUnknownPlaceholderIsVerbatim(t *testing.T) {
	h := newHarness(t, 10)
	h.prefs.set(&preferences.Preferences{UserID: testUser, CaptionTemplate: "{filename} by {uploader}"})

	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "b")

	_, err := h.choose(s, rename.FormatDocument)
	require.NoError(t, err)
	assert.Equal(t, "{filename} by {uploader}", h.transport.uploads[0].Caption)
}

func TestOrchestrator_Thumbnail(t *testing.T) {
	t.Run("used when stored", func(t *testing.T) {
		h := newHarness(t, 10)
		h.prefs.set(&preferences.Preferences{UserID: testUser, ThumbnailRef: "photo-id"})

		s, promptID := h.startSession(t, videoFile("clip.mov", 10))
		h.reply(t, promptID, "x")

		res, err := h.choose(s, rename.FormatVideo)
		require.NoError(t, err)
		assert.NotEmpty(t, h.transport.uploads[0].ThumbnailPath)
		assert.True(t, res.Outcome.ThumbnailUsed)
	})

	t.Run("failure is absorbed", func(t *testing.T) {
		h := newHarness(t, 10)
		h.transport.failThumb = errors.New("file is too big")
		h.prefs.set(&preferences.Preferences{UserID: testUser, ThumbnailRef: "photo-id"})

		s, promptID := h.startSession(t, videoFile("clip.mov", 10))
		h.reply(t, promptID, "x")

		_, err := h.choose(s, rename.FormatVideo)
		require.NoError(t, err)
		assert.Empty(t, h.transport.uploads[0].ThumbnailPath)
	})
}

func TestOrchestrator_PreferenceFailureDegrades(t *testing.T) {
	h := newHarness(t, 10)
	h.prefs.failGet = errors.ErrUnavailable

	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "plain")
	assert.Equal(t, "plain.pdf", s.Snapshot().ChosenFilename)

	_, err := h.choose(s, rename.FormatDocument)
	require.NoError(t, err)
}

func TestOrchestrator_Milestone(t *testing.T) {
	h := newHarness(t, 10)
	h.prefs.counts[testUser] = 9

	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "b")

	_, err := h.choose(s, rename.FormatDocument)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, h.notifier.milestones)
}

func TestOrchestrator_SinkFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 10)
	h.sink.fail = true

	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "b")

	_, err := h.choose(s, rename.FormatDocument)
	require.NoError(t, err)
	assert.Len(t, h.sink.outcomes, 1)
}

func TestOrchestrator_FormatChoiceTwiceIsRejected(t *testing.T) {
	h := newHarness(t, 10)
	s, promptID := h.startSession(t, testFile("a.pdf"))
	h.reply(t, promptID, "b")

	_, err := h.choose(s, rename.FormatDocument)
	require.NoError(t, err)

	_, err = h.choose(s, rename.FormatDocument)
	assert.ErrorIs(t, err, rename.ErrSessionNotFound)
}
