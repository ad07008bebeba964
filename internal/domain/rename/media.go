package rename

import (
	"strings"
	"time"
)

// Kind is the media kind of an inbound file
type Kind string

const (
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
)

// Media is the kind-specific part of a FileRef: Document, Video or Audio
type Media interface {
	Kind() Kind
	isMedia()
}

// Document carries no attributes beyond the common FileRef fields
type Document struct{}

// Video is a Telegram video message
type Video struct {
	Width    int
	Height   int
	Duration time.Duration
}

// Audio is a Telegram audio message
type Audio struct {
	Duration  time.Duration
	Performer string
	Title     string
}

func (Document) Kind() Kind { return KindDocument }
func (Video) Kind() Kind    { return KindVideo }
func (Audio) Kind() Kind    { return KindAudio }

func (Document) isMedia() {}
func (Video) isMedia()    {}
func (Audio) isMedia()    {}

// FileRef identifies a file the user sent and everything known about it
// without downloading it
type FileRef struct {
	FileID   string
	UniqueID string
	Name     string
	MimeType string
	Size     int64
	Media    Media
}

// Kind returns the media kind, treating a missing variant as a document
func (f FileRef) Kind() Kind {
	if f.Media == nil {
		return KindDocument
	}
	return f.Media.Kind()
}

// Attributes is the uniform view over every media variant
type Attributes struct {
	FileName string
	FileSize int64
	MimeType string
	Kind     Kind
	Duration time.Duration
	Width    int
	Height   int
}

// Attributes extracts the uniform attribute record
func (f FileRef) Attributes() Attributes {
	attrs := Attributes{
		FileName: f.Name,
		FileSize: f.Size,
		MimeType: f.MimeType,
		Kind:     f.Kind(),
	}

	switch m := f.Media.(type) {
	case Video:
		attrs.Duration = m.Duration
		attrs.Width = m.Width
		attrs.Height = m.Height
	case *Video:
		attrs.Duration = m.Duration
		attrs.Width = m.Width
		attrs.Height = m.Height
	case Audio:
		attrs.Duration = m.Duration
	case *Audio:
		attrs.Duration = m.Duration
	}

	return attrs
}

// Format is the upload form the user picks for the renamed file
type Format string

const (
	FormatDocument Format = "document"
	FormatVideo    Format = "video"
	FormatAudio    Format = "audio"
)

// ParseFormat maps a callback value onto a Format
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatDocument:
		return FormatDocument, true
	case FormatVideo:
		return FormatVideo, true
	case FormatAudio:
		return FormatAudio, true
	}
	return "", false
}

// AllowedFormats lists the formats offered for f. Document is always offered;
// video and audio only when the media itself is video or audio, by kind or by
// mime type.
func AllowedFormats(f FileRef) []Format {
	mime := strings.ToLower(f.MimeType)
	switch {
	case f.Kind() == KindVideo || strings.HasPrefix(mime, "video/"):
		return []Format{FormatVideo, FormatDocument}
	case f.Kind() == KindAudio || strings.HasPrefix(mime, "audio/"):
		return []Format{FormatAudio, FormatDocument}
	default:
		return []Format{FormatDocument}
	}
}

// CheckFormat returns ErrUnsupportedFormat when format is not offered for f
func CheckFormat(f FileRef, format Format) error {
	for _, allowed := range AllowedFormats(f) {
		if allowed == format {
			return nil
		}
	}
	return &FormatError{Format: format, Kind: f.Kind()}
}
