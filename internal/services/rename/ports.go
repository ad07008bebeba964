package rename

import (
	"context"

	"github.com/google/uuid"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/pkg/progress"
)

// FileEvent is an inbound document, video or audio message
type FileEvent struct {
	ChatID    int64
	UserID    int64
	MessageID int
	File      rename.FileRef
}

// Key returns the registry key of the sender
func (e FileEvent) Key() rename.Key {
	return rename.Key{ChatID: e.ChatID, UserID: e.UserID}
}

// NameReply is a text message sent as a reply to another message
type NameReply struct {
	ChatID           int64
	UserID           int64
	MessageID        int
	ReplyToMessageID int
	Text             string
}

// Key returns the registry key of the sender
func (r NameReply) Key() rename.Key {
	return rename.Key{ChatID: r.ChatID, UserID: r.UserID}
}

// Action is a button press bound to a session
type Action struct {
	ChatID    int64
	UserID    int64
	SessionID uuid.UUID
}

// Key returns the registry key of the user who pressed the button
func (a Action) Key() rename.Key {
	return rename.Key{ChatID: a.ChatID, UserID: a.UserID}
}

// FormatChoice is the upload-format button press
type FormatChoice struct {
	Action
	Format rename.Format
}

// Prompt is what the notifier reports back after sending the name prompt
type Prompt struct {
	CorrelationID int   // message id replies must point at
	MessageIDs    []int // everything to clean up once the name is chosen
}

// Notifier renders session events to the user
type Notifier interface {
	SendNamePrompt(ctx context.Context, s Snapshot, limit int64) (Prompt, error)
	SendFormatPrompt(ctx context.Context, s Snapshot, formats []rename.Format) (int, error)
	ReportProgress(ctx context.Context, s Snapshot, ev progress.Event) error
	SendResult(ctx context.Context, s Snapshot) error
	SendFailure(ctx context.Context, s Snapshot, err error) error
	SendCancelled(ctx context.Context, s Snapshot) error
	SendMilestone(ctx context.Context, chatID int64, count int64) error
	DeleteMessages(ctx context.Context, chatID int64, messageIDs ...int) error
}

// UploadRequest describes the renamed file to send back
type UploadRequest struct {
	ChatID           int64
	ReplyToMessageID int
	Path             string
	Filename         string
	Caption          string
	BoldCaption      bool // render the whole caption bold (default caption)
	ThumbnailPath    string
	Format           rename.Format
	Attributes       rename.Attributes
}

// Transport moves bytes between Telegram and the local workspace. Download
// and Upload report through the tracker; a tracker error must abort the
// transfer and be returned.
type Transport interface {
	Download(ctx context.Context, file rename.FileRef, dst string, tracker *progress.Tracker) error
	DownloadThumbnail(ctx context.Context, fileID string, dst string) error
	Upload(ctx context.Context, req UploadRequest, tracker *progress.Tracker) error
}

// PreferencesProvider is the part of the settings store the orchestrator reads
type PreferencesProvider interface {
	GetPreferences(ctx context.Context, userID int64) (*preferences.Preferences, error)
	IncrementRenameCount(ctx context.Context, userID int64) (int64, error)
}

// MediaTransform embeds container metadata
type MediaTransform interface {
	IsAvailable() bool
	ApplyMetadata(ctx context.Context, in, out string, meta preferences.Metadata) error
}

// OutcomeSink records finished transfers. Failures are logged, never fatal.
type OutcomeSink interface {
	Record(ctx context.Context, outcome rename.Outcome) error
}
