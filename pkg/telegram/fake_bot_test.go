package telegram

import (
	"context"
	"sync"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   MessageOptions
}

type editCall struct {
	ChatID    int64
	MessageID int
	Text      string
}

type fakeBot struct {
	mu      sync.Mutex
	sent    []sentMessage
	edits   []editCall
	editErr error
	// editErrs are returned by the first edits, in order
	editErrs []error
	nextID   int
}

var _ Bot = (*fakeBot)(nil)

func (b *fakeBot) Start(context.Context) error { return nil }
func (b *fakeBot) Stop()                       {}
func (b *fakeBot) SetHandler(func(Update))     {}

func (b *fakeBot) SendMessage(_ context.Context, chatID int64, text string, opts MessageOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.sent = append(b.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return b.nextID, nil
}

func (b *fakeBot) EditMessage(_ context.Context, chatID int64, messageID int, text string, _ MessageOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, editCall{ChatID: chatID, MessageID: messageID, Text: text})
	if len(b.editErrs) > 0 {
		err := b.editErrs[0]
		b.editErrs = b.editErrs[1:]
		return err
	}
	return b.editErr
}

func (b *fakeBot) DeleteMessage(context.Context, int64, int) error            { return nil }
func (b *fakeBot) AnswerCallback(context.Context, string, string, bool) error { return nil }
func (b *fakeBot) FileURL(context.Context, string) (string, error)            { return "", nil }
func (b *fakeBot) SendFile(context.Context, FileUpload) (int, error)          { return 0, nil }

func (b *fakeBot) SendPhoto(context.Context, int64, string, string, MessageOptions) (int, error) {
	return 0, nil
}

func (b *fakeBot) CopyMessage(context.Context, int64, int64, int) (int, error) { return 0, nil }

func (b *fakeBot) lastText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return ""
	}
	return b.sent[len(b.sent)-1].Text
}

func (b *fakeBot) editCalls() []editCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]editCall(nil), b.edits...)
}
