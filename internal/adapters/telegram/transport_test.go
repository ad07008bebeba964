package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renamebot/internal/adapters/ffmpeg"
	"renamebot/internal/domain/rename"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/progress"
	"renamebot/pkg/telegram"
)

type fakeProber struct {
	info  *ffmpeg.MediaInfo
	err   error
	calls int
}

func (p *fakeProber) CanProbe() bool { return true }

func (p *fakeProber) Probe(context.Context, string) (*ffmpeg.MediaInfo, error) {
	p.calls++
	return p.info, p.err
}

func fileServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collectEvents(events *[]progress.Event) progress.EmitFunc {
	return func(ev progress.Event) { *events = append(*events, ev) }
}

func TestTransport_Download(t *testing.T) {
	payload := strings.Repeat("a", 4096)
	srv := fileServer(t, map[string]string{"/file/doc": payload})

	bot := newFakeBot()
	bot.urls["doc-id"] = srv.URL + "/file/doc"
	tr := NewTransport(bot, srv.Client(), nil, logger.Nop())

	var events []progress.Event
	tracker := progress.NewTracker("download", collectEvents(&events), progress.WithInterval(time.Hour))

	dst := filepath.Join(t.TempDir(), "out.bin")
	err := tr.Download(context.Background(), rename.FileRef{FileID: "doc-id", Size: int64(len(payload))}, dst, tracker)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Final)
	assert.Equal(t, int64(len(payload)), last.Done)
}

func TestTransport_DownloadTruncated(t *testing.T) {
	srv := fileServer(t, map[string]string{"/file/short": "abc"})

	bot := newFakeBot()
	bot.urls["short"] = srv.URL + "/file/short"
	tr := NewTransport(bot, srv.Client(), nil, logger.Nop())

	dst := filepath.Join(t.TempDir(), "out.bin")
	err := tr.Download(context.Background(), rename.FileRef{FileID: "short", Size: 10}, dst, progress.NewTracker("download", nil))

	// the server reports the real length, so the declared size of the file reference is ignored
	require.NoError(t, err)

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(10))
		_, _ = w.Write([]byte("abc"))
	}))
	defer srv2.Close()

	bot.urls["cut"] = srv2.URL
	err = tr.Download(context.Background(), rename.FileRef{FileID: "cut", Size: 10}, dst, progress.NewTracker("download", nil))
	require.Error(t, err)
	assert.NoFileExists(t, dst)
}

func TestTransport_DownloadErrors(t *testing.T) {
	srv := fileServer(t, nil)

	bot := newFakeBot()
	bot.urls["gone"] = srv.URL + "/file/gone"
	tr := NewTransport(bot, srv.Client(), nil, logger.Nop())
	dst := filepath.Join(t.TempDir(), "out.bin")

	err := tr.Download(context.Background(), rename.FileRef{FileID: "gone"}, dst, progress.NewTracker("download", nil))
	assert.ErrorIs(t, err, errors.ErrUnavailable)

	err = tr.Download(context.Background(), rename.FileRef{FileID: "unknown"}, dst, progress.NewTracker("download", nil))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestTransport_DownloadStopsOnTrackerCheck(t *testing.T) {
	srv := fileServer(t, map[string]string{"/file/doc": strings.Repeat("a", 1024)})

	bot := newFakeBot()
	bot.urls["doc"] = srv.URL + "/file/doc"
	tr := NewTransport(bot, srv.Client(), nil, logger.Nop())

	tracker := progress.NewTracker("download", nil, progress.WithCheck(func() error { return rename.ErrTransferCancelled }))
	err := tr.Download(context.Background(), rename.FileRef{FileID: "doc"}, filepath.Join(t.TempDir(), "x"), tracker)
	assert.ErrorIs(t, err, rename.ErrTransferCancelled)
}

func TestTransport_DownloadThumbnail(t *testing.T) {
	srv := fileServer(t, map[string]string{"/file/thumb": "jpegdata"})

	bot := newFakeBot()
	bot.urls["thumb"] = srv.URL + "/file/thumb"
	tr := NewTransport(bot, srv.Client(), nil, logger.Nop())

	dst := filepath.Join(t.TempDir(), "thumb.jpg")
	require.NoError(t, tr.DownloadThumbnail(context.Background(), "thumb", dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))
}

func TestTransport_UploadVideo(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video-bytes"), 0o600))

	bot := newFakeBot()
	prober := &fakeProber{info: &ffmpeg.MediaInfo{Duration: 90 * time.Second, Width: 1280, Height: 720}}
	tr := NewTransport(bot, nil, prober, logger.Nop())

	var events []progress.Event
	tracker := progress.NewTracker("upload", collectEvents(&events), progress.WithInterval(time.Hour))

	err := tr.Upload(context.Background(), renamesvc.UploadRequest{
		ChatID:           42,
		ReplyToMessageID: 5,
		Path:             src,
		Filename:         "trip.mp4",
		Caption:          "trip.mp4",
		BoldCaption:      true,
		Format:           rename.FormatVideo,
	}, tracker)
	require.NoError(t, err)

	require.Len(t, bot.uploads, 1)
	up := bot.uploads[0]
	assert.Equal(t, telegram.UploadVideo, up.Kind)
	assert.Equal(t, "trip.mp4", up.FileName)
	assert.Equal(t, "video-bytes", string(up.Content))
	assert.Equal(t, 90, up.Duration)
	assert.Equal(t, 1280, up.Width)
	assert.Equal(t, 720, up.Height)
	assert.True(t, up.SupportsStreaming)
	assert.Equal(t, 5, up.ReplyToMessageID)
	assert.Equal(t, []telegram.MessageEntity{{Type: "bold", Offset: 0, Length: 8}}, up.CaptionEntities)
	assert.Equal(t, 1, prober.calls)

	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Final)
}

func TestTransport_UploadDocumentSkipsProbe(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	bot := newFakeBot()
	prober := &fakeProber{}
	tr := NewTransport(bot, nil, prober, logger.Nop())

	err := tr.Upload(context.Background(), renamesvc.UploadRequest{
		ChatID:   42,
		Path:     src,
		Filename: "notes.txt",
		Caption:  "custom caption",
		Format:   rename.FormatDocument,
	}, progress.NewTracker("upload", nil))
	require.NoError(t, err)

	require.Len(t, bot.uploads, 1)
	assert.Equal(t, telegram.UploadDocument, bot.uploads[0].Kind)
	assert.Empty(t, bot.uploads[0].CaptionEntities, "custom captions are sent as typed")
	assert.Zero(t, prober.calls)
}

func TestTransport_UploadMissingFile(t *testing.T) {
	tr := NewTransport(newFakeBot(), nil, nil, logger.Nop())
	err := tr.Upload(context.Background(), renamesvc.UploadRequest{Path: filepath.Join(t.TempDir(), "missing")}, progress.NewTracker("upload", nil))
	require.Error(t, err)
}
