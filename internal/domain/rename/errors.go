package rename

import (
	"fmt"

	"renamebot/pkg/errors"
)

var (
	// ErrFileTooLarge is returned for files above the effective size limit
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedMedia is returned for messages that are not a document, video or audio
	ErrUnsupportedMedia = errors.New("unsupported media kind")

	// ErrInvalidFilename is returned when a candidate filename cannot be used
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrUnsupportedFormat is returned for a format not offered for the media kind
	ErrUnsupportedFormat = errors.New("unsupported upload format")

	// ErrSessionNotFound covers absent, replaced and expired sessions
	ErrSessionNotFound = errors.New("rename session not found")

	// ErrInvalidState is returned when an action does not apply to the session's current state
	ErrInvalidState = errors.New("action not allowed in current session state")

	// ErrPreferenceLookupFailed marks a settings store failure; callers degrade to defaults
	ErrPreferenceLookupFailed = errors.New("preference lookup failed")

	// ErrTransferCancelled aborts a running transfer after a user cancel
	ErrTransferCancelled = errors.New("transfer cancelled")

	// ErrCaptionPlaceholder reports a caption template that could not be fully resolved
	ErrCaptionPlaceholder = errors.New("caption template has unresolved placeholders")
)

// SizeLimitError carries the numbers behind ErrFileTooLarge
type SizeLimitError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file too large: %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

func (e *SizeLimitError) Unwrap() error { return ErrFileTooLarge }

// FilenameError explains why a candidate filename was rejected
type FilenameError struct {
	Reason string
}

func (e *FilenameError) Error() string {
	return "invalid filename: " + e.Reason
}

func (e *FilenameError) Unwrap() error { return ErrInvalidFilename }

// FormatError is returned when a format is not offered for a media kind
type FormatError struct {
	Format Format
	Kind   Kind
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %q is not available for %s files", e.Format, e.Kind)
}

func (e *FormatError) Unwrap() error { return ErrUnsupportedFormat }

// Stage names a transfer pipeline step
type Stage string

const (
	StageDownload  Stage = "download"
	StageTransform Stage = "transform"
	StageUpload    Stage = "upload"
)

// TransferFailed is the terminal failure of a transfer pipeline
type TransferFailed struct {
	Stage Stage
	Cause error
}

func (e *TransferFailed) Error() string {
	return fmt.Sprintf("transfer failed at %s: %v", e.Stage, e.Cause)
}

func (e *TransferFailed) Unwrap() error { return e.Cause }

// NewTransferFailed wraps cause with the failing stage
func NewTransferFailed(stage Stage, cause error) *TransferFailed {
	return &TransferFailed{Stage: stage, Cause: cause}
}
