package telegram

import (
	"context"
	"io"
)

// Parse modes
const (
	ParseModeHTML = "HTML"
)

// Bot abstracts the Telegram Bot API (for dependency injection)
type Bot interface {
	// Start receives updates until ctx is done (polling, or idle in webhook mode)
	Start(ctx context.Context) error

	// Stop stops receiving updates
	Stop()

	// SetHandler sets the update handler
	SetHandler(handler func(Update))

	// SendMessage sends a text message and returns its id
	SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) (int, error)

	// EditMessage replaces the text (and keyboard) of a message
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts MessageOptions) error

	// DeleteMessage deletes a message
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// AnswerCallback answers callback query
	AnswerCallback(ctx context.Context, callbackQueryID, text string, showAlert bool) error

	// FileURL resolves a file id to a download URL
	FileURL(ctx context.Context, fileID string) (string, error)

	// SendFile uploads a file and returns the new message id
	SendFile(ctx context.Context, upload FileUpload) (int, error)

	// SendPhoto sends an already uploaded photo by file id
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opts MessageOptions) (int, error)

	// CopyMessage copies a message to another chat without the forward header
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
}

// MessageOptions defines options for sending and editing messages
type MessageOptions struct {
	// Keyboard for inline buttons
	Keyboard *InlineKeyboardMarkup

	// ParseMode defaults to HTML
	ParseMode string

	DisableWebPagePreview bool
	DisableNotification   bool

	// ReplyToMessageID replies to specific message
	ReplyToMessageID int

	// ForceReply asks the client to open a reply to this message.
	// Ignored when Keyboard is set.
	ForceReply       bool
	InputPlaceholder string
}

// UploadKind selects the Bot API method used for an upload
type UploadKind string

const (
	UploadDocument UploadKind = "document"
	UploadVideo    UploadKind = "video"
	UploadAudio    UploadKind = "audio"
)

// MessageEntity marks up a span of text. Offset and Length count UTF-16 code units.
type MessageEntity struct {
	Type   string
	Offset int
	Length int
}

// FileUpload describes an outgoing file. Reader is streamed as the file
// content under FileName; Size is informational.
type FileUpload struct {
	ChatID           int64
	Kind             UploadKind
	FileName         string
	Reader           io.Reader
	Size             int64
	Caption          string
	CaptionEntities  []MessageEntity
	ThumbnailPath    string
	ReplyToMessageID int

	// video and audio attributes, seconds and pixels
	Duration          int
	Width             int
	Height            int
	Performer         string
	Title             string
	SupportsStreaming bool
}

// TemplateRenderer renders message templates
type TemplateRenderer interface {
	Render(templatePath string, data any) (string, error)
}

// ValidationError is a user input problem reported back verbatim
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error interface
func (v ValidationError) Error() string {
	return v.Message
}

// WebhookInfo contains information about current webhook setup
type WebhookInfo struct {
	URL                  string
	HasCustomCertificate bool
	PendingUpdateCount   int
	LastErrorDate        int
	LastErrorMessage     string
	MaxConnections       int
}
