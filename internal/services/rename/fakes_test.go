package rename

import (
	"context"
	"os"
	"sync"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/progress"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeNotifier struct {
	mu            sync.Mutex
	nextID        int
	namePrompts   []Snapshot
	formatPrompts [][]rename.Format
	formatShown   []Snapshot
	progress      []progress.Event
	results       []Snapshot
	failures      []error
	cancelled     []Snapshot
	milestones    []int64
	deleted       []int
	failPrompt    error
}

func (n *fakeNotifier) id() int {
	n.nextID++
	return 1000 + n.nextID
}

func (n *fakeNotifier) SendNamePrompt(_ context.Context, s Snapshot, _ int64) (Prompt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPrompt != nil {
		return Prompt{}, n.failPrompt
	}
	n.namePrompts = append(n.namePrompts, s)
	info, reply := n.id(), n.id()
	return Prompt{CorrelationID: reply, MessageIDs: []int{info, reply}}, nil
}

func (n *fakeNotifier) SendFormatPrompt(_ context.Context, s Snapshot, formats []rename.Format) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.formatPrompts = append(n.formatPrompts, formats)
	n.formatShown = append(n.formatShown, s)
	return n.id(), nil
}

func (n *fakeNotifier) ReportProgress(_ context.Context, _ Snapshot, ev progress.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, ev)
	return nil
}

func (n *fakeNotifier) SendResult(_ context.Context, s Snapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, s)
	return nil
}

func (n *fakeNotifier) SendFailure(_ context.Context, _ Snapshot, err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
	return nil
}

func (n *fakeNotifier) SendCancelled(_ context.Context, s Snapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, s)
	return nil
}

func (n *fakeNotifier) SendMilestone(_ context.Context, _ int64, count int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.milestones = append(n.milestones, count)
	return nil
}

func (n *fakeNotifier) DeleteMessages(_ context.Context, _ int64, ids ...int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, ids...)
	return nil
}

// fakeTransport writes payload in chunks, reporting each chunk
type fakeTransport struct {
	mu           sync.Mutex
	payload      []byte
	chunk        int
	failDownload error
	failAfter    int // fail download after this many bytes (0 = at start)
	failUpload   error
	failThumb    error
	onChunk      func(done int64) // called after each reported download chunk
	blockUpload  chan struct{}

	uploads      []UploadRequest
	uploadedData [][]byte
	downloadPath string
}

func newFakeTransport(size int) *fakeTransport {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return &fakeTransport{payload: payload, chunk: 1024}
}

func (f *fakeTransport) Download(ctx context.Context, file rename.FileRef, dst string, tracker *progress.Tracker) error {
	f.mu.Lock()
	f.downloadPath = dst
	f.mu.Unlock()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	total := int64(len(f.payload))
	for done := 0; done < len(f.payload); {
		if f.failDownload != nil && done >= f.failAfter {
			return f.failDownload
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(done+f.chunk, len(f.payload))
		if _, err := out.Write(f.payload[done:end]); err != nil {
			return err
		}
		done = end
		if err := tracker.Report(int64(done), total); err != nil {
			return err
		}
		if f.onChunk != nil {
			f.onChunk(int64(done))
		}
	}
	return nil
}

func (f *fakeTransport) DownloadThumbnail(_ context.Context, _ string, dst string) error {
	if f.failThumb != nil {
		return f.failThumb
	}
	return os.WriteFile(dst, []byte("jpeg"), 0o600)
}

func (f *fakeTransport) Upload(ctx context.Context, req UploadRequest, tracker *progress.Tracker) error {
	if f.blockUpload != nil {
		select {
		case <-f.blockUpload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failUpload != nil {
		return f.failUpload
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		return err
	}
	if err := tracker.Report(int64(len(data)), int64(len(data))); err != nil {
		return err
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	f.uploadedData = append(f.uploadedData, data)
	f.mu.Unlock()
	return nil
}

type fakePreferences struct {
	mu      sync.Mutex
	prefs   map[int64]*preferences.Preferences
	counts  map[int64]int64
	failGet error

	// entered/release hold GetPreferences callers when set
	entered chan struct{}
	release chan struct{}
}

func newFakePreferences() *fakePreferences {
	return &fakePreferences{prefs: make(map[int64]*preferences.Preferences), counts: make(map[int64]int64)}
}

func (p *fakePreferences) set(pref *preferences.Preferences) {
	p.mu.Lock()
	p.prefs[pref.UserID] = pref
	p.mu.Unlock()
}

func (p *fakePreferences) GetPreferences(_ context.Context, userID int64) (*preferences.Preferences, error) {
	if p.release != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
		<-p.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet != nil {
		return nil, p.failGet
	}
	if pref, ok := p.prefs[userID]; ok {
		cp := *pref
		return &cp, nil
	}
	return preferences.Default(userID), nil
}

func (p *fakePreferences) IncrementRenameCount(_ context.Context, userID int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	return p.counts[userID], nil
}

func (p *fakePreferences) count(userID int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID]
}

type fakeTransform struct {
	available bool
	fail      error
	calls     int
	lastMeta  preferences.Metadata
}

func (f *fakeTransform) IsAvailable() bool { return f.available }

func (f *fakeTransform) ApplyMetadata(_ context.Context, in, out string, meta preferences.Metadata) error {
	f.calls++
	f.lastMeta = meta
	if f.fail != nil {
		// leave a partial output behind like a crashed encoder would
		_ = os.WriteFile(out, []byte("partial"), 0o600)
		return f.fail
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte("META:"), data...), 0o600)
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []rename.Outcome
	fail     bool
}

func (s *recordingSink) Record(_ context.Context, outcome rename.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
	if s.fail {
		return errors.ErrUnavailable
	}
	return nil
}
