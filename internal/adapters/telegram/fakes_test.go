package telegram

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/telegram"
)

type sent struct {
	ChatID int64
	Text   string
	Opts   telegram.MessageOptions
}

type answered struct {
	ID    string
	Text  string
	Alert bool
}

type photo struct {
	ChatID  int64
	FileID  string
	Caption string
}

type copied struct {
	To, From  int64
	MessageID int
}

type uploaded struct {
	telegram.FileUpload
	Content []byte
}

type fakeBot struct {
	mu       sync.Mutex
	nextID   int
	sent     []sent
	edits    []sent
	deleted  []int
	answers  []answered
	uploads  []uploaded
	urls     map[string]string
	editErr  error
	sendErr  error
	failNth  int // fail the nth SendMessage (1-based), 0 never
	fileErr  error
	sendFile func(telegram.FileUpload) error
	photos   []photo
	copies   []copied
	copyErrs map[int64]error // by destination chat
}

var _ telegram.Bot = (*fakeBot)(nil)

func newFakeBot() *fakeBot {
	return &fakeBot{nextID: 100, urls: map[string]string{}}
}

func (b *fakeBot) Start(context.Context) error      { return nil }
func (b *fakeBot) Stop()                            {}
func (b *fakeBot) SetHandler(func(telegram.Update)) {}

func (b *fakeBot) SendMessage(_ context.Context, chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return 0, b.sendErr
	}
	b.sent = append(b.sent, sent{ChatID: chatID, Text: text, Opts: opts})
	if b.failNth > 0 && len(b.sent) == b.failNth {
		return 0, errors.New("send failed")
	}
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBot) EditMessage(_ context.Context, chatID int64, messageID int, text string, opts telegram.MessageOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.editErr != nil {
		return b.editErr
	}
	b.edits = append(b.edits, sent{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (b *fakeBot) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, messageID)
	return nil
}

func (b *fakeBot) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers = append(b.answers, answered{ID: id, Text: text, Alert: alert})
	return nil
}

func (b *fakeBot) FileURL(_ context.Context, fileID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fileErr != nil {
		return "", b.fileErr
	}
	url, ok := b.urls[fileID]
	if !ok {
		return "", errors.Wrapf(errors.ErrNotFound, "file %s", fileID)
	}
	return url, nil
}

func (b *fakeBot) SendFile(_ context.Context, u telegram.FileUpload) (int, error) {
	if b.sendFile != nil {
		if err := b.sendFile(u); err != nil {
			return 0, err
		}
	}
	content, err := io.ReadAll(u.Reader)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, uploaded{FileUpload: u, Content: content})
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBot) SendPhoto(_ context.Context, chatID int64, fileID, caption string, _ telegram.MessageOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.photos = append(b.photos, photo{ChatID: chatID, FileID: fileID, Caption: caption})
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBot) CopyMessage(_ context.Context, to, from int64, messageID int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.copyErrs[to]; err != nil {
		return 0, err
	}
	b.copies = append(b.copies, copied{To: to, From: from, MessageID: messageID})
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBot) lastSent() sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return sent{}
	}
	return b.sent[len(b.sent)-1]
}

func (b *fakeBot) lastAnswer() answered {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.answers) == 0 {
		return answered{}
	}
	return b.answers[len(b.answers)-1]
}

// fakeOrchestrator records calls and returns canned errors
type fakeOrchestrator struct {
	files     []renamesvc.FileEvent
	replies   []renamesvc.NameReply
	keeps     []renamesvc.Action
	choices   []renamesvc.FormatChoice
	cancels   []renamesvc.Action
	active    []rename.Key
	fileErr   error
	replyErr  error
	keepErr   error
	choiceErr error
	cancelErr error
	limit     int64
}

var _ Orchestrator = (*fakeOrchestrator)(nil)

func (o *fakeOrchestrator) HandleFile(_ context.Context, ev renamesvc.FileEvent) (*renamesvc.Session, error) {
	o.files = append(o.files, ev)
	return nil, o.fileErr
}

func (o *fakeOrchestrator) HandleNameReply(_ context.Context, r renamesvc.NameReply) (*renamesvc.Session, error) {
	o.replies = append(o.replies, r)
	return nil, o.replyErr
}

func (o *fakeOrchestrator) KeepOriginal(_ context.Context, a renamesvc.Action) (*renamesvc.Session, error) {
	o.keeps = append(o.keeps, a)
	return nil, o.keepErr
}

func (o *fakeOrchestrator) HandleFormatChoice(_ context.Context, c renamesvc.FormatChoice) (*renamesvc.Result, error) {
	o.choices = append(o.choices, c)
	if o.choiceErr != nil {
		return nil, o.choiceErr
	}
	return &renamesvc.Result{Outcome: rename.Outcome{Size: 10}}, nil
}

func (o *fakeOrchestrator) Cancel(_ context.Context, a renamesvc.Action) error {
	o.cancels = append(o.cancels, a)
	return o.cancelErr
}

func (o *fakeOrchestrator) CancelActive(_ context.Context, key rename.Key) error {
	o.active = append(o.active, key)
	return o.cancelErr
}

func (o *fakeOrchestrator) SizeLimit() int64 { return o.limit }

// memorySettings is an in-memory settings store with the service's validation
type memorySettings struct {
	mu      sync.Mutex
	prefs   map[int64]*preferences.Preferences
	failGet bool
}

var (
	_ SettingsService = (*memorySettings)(nil)
	_ ThumbnailStore  = (*memorySettings)(nil)
	_ Audience        = (*memorySettings)(nil)
)

func newMemorySettings() *memorySettings {
	return &memorySettings{prefs: map[int64]*preferences.Preferences{}}
}

func (m *memorySettings) get(userID int64) *preferences.Preferences {
	p, ok := m.prefs[userID]
	if !ok {
		p = preferences.Default(userID)
		m.prefs[userID] = p
	}
	return p
}

func (m *memorySettings) update(userID int64, fn func(*preferences.Preferences)) (*preferences.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.get(userID)
	fn(p)
	cp := *p
	return &cp, nil
}

func (m *memorySettings) GetPreferences(_ context.Context, userID int64) (*preferences.Preferences, error) {
	if m.failGet {
		return nil, errors.ErrUnavailable
	}
	return m.update(userID, func(*preferences.Preferences) {})
}

func (m *memorySettings) SetPrefix(_ context.Context, userID int64, v string) (*preferences.Preferences, error) {
	if err := preferences.ValidateAffix("prefix", v); err != nil {
		return nil, err
	}
	return m.update(userID, func(p *preferences.Preferences) { p.Prefix = v })
}

func (m *memorySettings) ClearPrefix(_ context.Context, userID int64) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) { p.Prefix = "" })
}

func (m *memorySettings) SetSuffix(_ context.Context, userID int64, v string) (*preferences.Preferences, error) {
	if err := preferences.ValidateAffix("suffix", v); err != nil {
		return nil, err
	}
	return m.update(userID, func(p *preferences.Preferences) { p.Suffix = v })
}

func (m *memorySettings) ClearSuffix(_ context.Context, userID int64) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) { p.Suffix = "" })
}

func (m *memorySettings) SetCaption(_ context.Context, userID int64, v string) (*preferences.Preferences, error) {
	if err := preferences.ValidateCaption(v); err != nil {
		return nil, err
	}
	return m.update(userID, func(p *preferences.Preferences) { p.CaptionTemplate = v })
}

func (m *memorySettings) ClearCaption(_ context.Context, userID int64) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) { p.CaptionTemplate = "" })
}

func (m *memorySettings) SetThumbnail(_ context.Context, userID int64, fileID string) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) { p.ThumbnailRef = fileID })
}

func (m *memorySettings) ClearThumbnail(_ context.Context, userID int64) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) { p.ThumbnailRef = "" })
}

func (m *memorySettings) UpdateMetadata(_ context.Context, userID int64, upd preferences.MetadataUpdate) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) { p.Metadata = upd.Apply(p.Metadata) })
}

func (m *memorySettings) Reset(_ context.Context, userID int64) (*preferences.Preferences, error) {
	return m.update(userID, func(p *preferences.Preferences) {
		files := p.FilesRenamed
		*p = *preferences.Default(userID)
		p.FilesRenamed = files
	})
}

func (m *memorySettings) Totals(context.Context) (*preferences.Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &preferences.Totals{Users: int64(len(m.prefs))}
	for _, p := range m.prefs {
		if p.FilesRenamed > 0 {
			t.ActiveUsers++
		}
		t.FilesRenamed += p.FilesRenamed
	}
	return t, nil
}

func (m *memorySettings) UserIDs(_ context.Context, afterID int64, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.prefs))
	for id := range m.prefs {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type fakeHistory struct {
	summary *rename.HistorySummary
	err     error
	since   time.Time
}

func (h *fakeHistory) UserSummary(_ context.Context, _ int64, since time.Time) (*rename.HistorySummary, error) {
	h.since = since
	return h.summary, h.err
}

type staticTransform bool

func (s staticTransform) IsAvailable() bool { return bool(s) }
