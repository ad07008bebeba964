package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"renamebot/internal/adapters/config"
	"renamebot/internal/domain/preferences"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// Runner executes an external command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 - binary paths come from configuration, arguments are not shell-interpreted
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// MediaInfo is the subset of ffprobe output used for uploads and captions
type MediaInfo struct {
	Duration time.Duration
	Width    int
	Height   int
	Bitrate  int64
	FPS      float64
	Codec    string
	Format   string
	HasVideo bool
	HasAudio bool
	Size     int64
}

// Client wraps the ffmpeg and ffprobe binaries
type Client struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	runner  Runner
	log     *logger.Logger
}

// Option configures the client
type Option func(*Client)

// WithRunner replaces process execution (tests)
func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithLookPath replaces binary resolution (tests)
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(c *Client) {
		c.ffmpeg = resolve(lookPath, c.ffmpeg)
		c.ffprobe = resolve(lookPath, c.ffprobe)
	}
}

// New resolves the binaries from cfg. Missing binaries are not an error:
// the client reports itself unavailable instead.
func New(cfg config.FFmpegConfig, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		timeout: cfg.Timeout,
		runner:  execRunner{},
		log:     log.With("component", "ffmpeg"),
	}

	c.ffmpeg = resolve(exec.LookPath, c.ffmpeg)
	c.ffprobe = resolve(exec.LookPath, c.ffprobe)
	for _, opt := range opts {
		opt(c)
	}

	if c.ffmpeg == "" {
		c.log.Warnw("ffmpeg not found, metadata editing disabled", "path", cfg.FFmpegPath)
	}
	if c.ffprobe == "" {
		c.log.Warnw("ffprobe not found, media probing disabled", "path", cfg.FFprobePath)
	}
	return c
}

func resolve(lookPath func(string) (string, error), name string) string {
	if name == "" {
		return ""
	}
	path, err := lookPath(name)
	if err != nil {
		return ""
	}
	return path
}

// IsAvailable reports whether ffmpeg can be run
func (c *Client) IsAvailable() bool {
	return c.ffmpeg != ""
}

// CanProbe reports whether ffprobe can be run
func (c *Client) CanProbe() bool {
	return c.ffprobe != ""
}

// Version returns the first line of `ffmpeg -version`
func (c *Client) Version(ctx context.Context) (string, error) {
	if !c.IsAvailable() {
		return "", errors.Wrap(errors.ErrUnavailable, "ffmpeg not installed")
	}

	out, err := c.runner.Run(ctx, c.ffmpeg, "-version")
	if err != nil {
		return "", errors.Wrap(err, "ffmpeg -version")
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ApplyMetadata copies every stream of in to out without re-encoding and
// sets the title and author tags that are non-empty. out is removed when
// ffmpeg fails.
func (c *Client) ApplyMetadata(ctx context.Context, in, out string, meta preferences.Metadata) error {
	if !c.IsAvailable() {
		return errors.Wrap(errors.ErrUnavailable, "ffmpeg not installed")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	output, err := c.runner.Run(ctx, c.ffmpeg, metadataArgs(in, out, meta)...)
	if err != nil {
		_ = os.Remove(out)
		if ctx.Err() != nil {
			return errors.Wrapf(errors.ErrTimeout, "ffmpeg did not finish: %v", ctx.Err())
		}
		return errors.Wrapf(err, "ffmpeg: %s", lastLine(output))
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(out)
		return errors.New("ffmpeg produced no output")
	}

	c.log.Debugw("Metadata applied", "output", out, "size", info.Size())
	return nil
}

func metadataArgs(in, out string, meta preferences.Metadata) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
	}
	if title := strings.TrimSpace(meta.Title); title != "" {
		args = append(args, "-metadata", "title="+title)
	}
	if author := strings.TrimSpace(meta.Author); author != "" {
		args = append(args, "-metadata", "author="+author, "-metadata", "artist="+author)
	}
	return append(args, out)
}

type probeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe reads container and stream information of path
func (c *Client) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	if !c.CanProbe() {
		return nil, errors.Wrap(errors.ErrUnavailable, "ffprobe not installed")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.runner.Run(ctx, c.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe %s", path)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode ffprobe output")
	}

	info := &MediaInfo{Format: raw.Format.FormatName}
	if seconds, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	info.Bitrate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)
	info.Size, _ = strconv.ParseInt(raw.Format.Size, 10, 64)

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.Codec = s.CodecName
			info.FPS = frameRate(s.RFrameRate)
		case "audio":
			info.HasAudio = true
			if info.Codec == "" {
				info.Codec = s.CodecName
			}
		}
	}
	return info, nil
}

// frameRate parses "30000/1001" style rates, rounded to two decimals
func frameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return float64(int(n/d*100+0.5)) / 100
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
