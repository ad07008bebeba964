package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"renamebot/internal/adapters/ffmpeg"
	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/progress"
	"renamebot/pkg/telegram"
)

// maxThumbnailSize caps thumbnail downloads; Telegram itself limits them to 200 KB
const maxThumbnailSize = 10 << 20

// Prober reads media attributes from a local file
type Prober interface {
	CanProbe() bool
	Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// Transport moves files between Telegram and the local workspace
type Transport struct {
	bot    telegram.Bot
	client *http.Client
	prober Prober
	log    *logger.Logger
}

// NewTransport creates a transport. client downloads files from the Bot API
// file endpoint; prober is optional.
func NewTransport(bot telegram.Bot, client *http.Client, prober Prober, log *logger.Logger) *Transport {
	if client == nil {
		client = &http.Client{}
	}
	return &Transport{
		bot:    bot,
		client: client,
		prober: prober,
		log:    log.With("component", "telegram_transport"),
	}
}

var _ renamesvc.Transport = (*Transport)(nil)

// Download streams the user's file to dst, reporting through tracker
func (t *Transport) Download(ctx context.Context, file rename.FileRef, dst string, tracker *progress.Tracker) error {
	url, err := t.bot.FileURL(ctx, file.FileID)
	if err != nil {
		return err
	}

	body, length, err := t.open(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	total := file.Size
	if length > 0 {
		total = length
	}

	n, err := writeFile(dst, progress.NewReader(ctx, body, total, tracker))
	if err != nil {
		return err
	}
	if total > 0 && n < total {
		_ = os.Remove(dst)
		return errors.Newf("download truncated: %d of %d bytes", n, total)
	}

	t.log.Debugw("File downloaded", "file_id", file.FileID, "bytes", n)
	return nil
}

// DownloadThumbnail fetches a stored thumbnail photo to dst
func (t *Transport) DownloadThumbnail(ctx context.Context, fileID string, dst string) error {
	url, err := t.bot.FileURL(ctx, fileID)
	if err != nil {
		return err
	}

	body, _, err := t.open(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	n, err := writeFile(dst, io.LimitReader(body, maxThumbnailSize+1))
	if err != nil {
		return err
	}
	if n > maxThumbnailSize {
		_ = os.Remove(dst)
		return errors.Wrapf(errors.ErrInvalidInput, "thumbnail larger than %d bytes", maxThumbnailSize)
	}
	return nil
}

// Upload sends the renamed file in the chosen format
func (t *Transport) Upload(ctx context.Context, req renamesvc.UploadRequest, tracker *progress.Tracker) error {
	f, err := os.Open(req.Path)
	if err != nil {
		return errors.Wrap(err, "open upload source")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat upload source")
	}

	attrs := req.Attributes
	if req.Format == rename.FormatVideo {
		attrs = t.probeVideo(ctx, req.Path, attrs)
	}

	caption := truncate(req.Caption, preferences.MaxCaptionLength)
	upload := telegram.FileUpload{
		ChatID:            req.ChatID,
		Kind:              uploadKind(req.Format),
		FileName:          req.Filename,
		Reader:            progress.NewReader(ctx, f, info.Size(), tracker),
		Size:              info.Size(),
		Caption:           caption,
		ThumbnailPath:     req.ThumbnailPath,
		ReplyToMessageID:  req.ReplyToMessageID,
		Duration:          int(attrs.Duration / time.Second),
		Width:             attrs.Width,
		Height:            attrs.Height,
		SupportsStreaming: req.Format == rename.FormatVideo,
	}
	if req.BoldCaption && caption != "" {
		upload.CaptionEntities = []telegram.MessageEntity{telegram.BoldEntity(caption)}
	}

	if _, err := t.bot.SendFile(ctx, upload); err != nil {
		return err
	}

	t.log.Debugw("File uploaded", "chat_id", req.ChatID, "file_name", req.Filename, "bytes", info.Size())
	return nil
}

// probeVideo fills duration and dimensions Telegram did not report, e.g.
// for videos sent as documents
func (t *Transport) probeVideo(ctx context.Context, path string, attrs rename.Attributes) rename.Attributes {
	if attrs.Duration > 0 && attrs.Width > 0 && attrs.Height > 0 {
		return attrs
	}
	if t.prober == nil || !t.prober.CanProbe() {
		return attrs
	}

	info, err := t.prober.Probe(ctx, path)
	if err != nil {
		t.log.Debugw("Probe failed, uploading without attributes", "path", path, "error", err)
		return attrs
	}

	if attrs.Duration == 0 {
		attrs.Duration = info.Duration
	}
	if attrs.Width == 0 || attrs.Height == 0 {
		attrs.Width, attrs.Height = info.Width, info.Height
	}
	return attrs
}

func (t *Transport) open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "build file request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "request file")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, errors.Wrap(errors.ErrUnavailable, fmt.Sprintf("file endpoint returned %s", resp.Status))
	}
	return resp.Body, resp.ContentLength, nil
}

// writeFile copies r into a new file at path, removing it on failure
func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, errors.Wrap(err, "create file")
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, err
	}
	return n, nil
}

func uploadKind(f rename.Format) telegram.UploadKind {
	switch f {
	case rename.FormatVideo:
		return telegram.UploadVideo
	case rename.FormatAudio:
		return telegram.UploadAudio
	default:
		return telegram.UploadDocument
	}
}
