package preferences

import (
	"time"
	"unicode/utf8"

	"renamebot/pkg/errors"
)

const (
	// MaxAffixLength bounds prefix and suffix (runes)
	MaxAffixLength = 64
	// MaxCaptionLength is Telegram's caption limit for media messages
	MaxCaptionLength = 1024
	// MaxMetadataValueLength bounds author and title (runes)
	MaxMetadataValueLength = 256
)

// Preferences are the per-user rename settings. Empty strings mean unset.
type Preferences struct {
	UserID          int64      `db:"user_id" json:"user_id"`
	Prefix          string     `db:"prefix" json:"prefix"`
	Suffix          string     `db:"suffix" json:"suffix"`
	CaptionTemplate string     `db:"caption_template" json:"caption_template"`
	ThumbnailRef    string     `db:"thumbnail_ref" json:"thumbnail_ref"` // Telegram file id of the stored photo
	Metadata        Metadata   `db:"metadata" json:"metadata"`           // JSONB
	FilesRenamed    int64      `db:"files_renamed" json:"files_renamed"`
	LastUsedAt      *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Metadata controls container metadata embedding
type Metadata struct {
	Enabled bool   `json:"enabled"`
	Author  string `json:"author"`
	Title   string `json:"title"`
}

// Active reports whether there is anything to embed
func (m Metadata) Active() bool {
	return m.Enabled && (m.Author != "" || m.Title != "")
}

// Default returns empty preferences for a user that never configured anything
func Default(userID int64) *Preferences {
	now := time.Now().UTC()
	return &Preferences{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasThumbnail reports whether a thumbnail is stored
func (p *Preferences) HasThumbnail() bool {
	return p.ThumbnailRef != ""
}

// HasCaption reports whether a caption template is stored
func (p *Preferences) HasCaption() bool {
	return p.CaptionTemplate != ""
}

// Totals aggregates usage across all users (/stats)
type Totals struct {
	Users        int64 `db:"users"`
	ActiveUsers  int64 `db:"active_users"` // renamed at least once
	FilesRenamed int64 `db:"files_renamed"`
}

// ValidateAffix checks a prefix or suffix value
func ValidateAffix(field, value string) error {
	if value == "" {
		return errors.NewValidationError(field, "must not be empty", value)
	}
	if utf8.RuneCountInString(value) > MaxAffixLength {
		return errors.NewValidationError(field, "too long", utf8.RuneCountInString(value))
	}
	return nil
}

// ValidateCaption checks a caption template
func ValidateCaption(template string) error {
	if template == "" {
		return errors.NewValidationError("caption_template", "must not be empty", template)
	}
	if n := utf8.RuneCountInString(template); n > MaxCaptionLength {
		return errors.NewValidationError("caption_template", "too long", n)
	}
	return nil
}
