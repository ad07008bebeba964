package preferences

import (
	"strings"
	"unicode/utf8"

	"renamebot/pkg/errors"
)

const (
	flagAuthor = "--change-author"
	flagTitle  = "--change-title"
)

// MetadataUpdate is a parsed /metadata command. Nil fields are left unchanged.
type MetadataUpdate struct {
	Enabled *bool
	Author  *string
	Title   *string
	Reset   bool
}

// Empty reports whether the command carried no arguments (show current settings)
func (u MetadataUpdate) Empty() bool {
	return u.Enabled == nil && u.Author == nil && u.Title == nil && !u.Reset
}

// Apply returns m with the update applied
func (u MetadataUpdate) Apply(m Metadata) Metadata {
	if u.Reset {
		return Metadata{}
	}
	if u.Enabled != nil {
		m.Enabled = *u.Enabled
	}
	if u.Author != nil {
		m.Author = *u.Author
	}
	if u.Title != nil {
		m.Title = *u.Title
	}
	return m
}

// ParseMetadataArgs parses the /metadata argument text.
//
// Grammar: [on|off|reset] {--change-author <value> | --change-title <value>}
// A value runs until the next flag; inner whitespace is collapsed. Unknown
// flags, repeated flags, empty values and stray words are rejected.
func ParseMetadataArgs(args string) (MetadataUpdate, error) {
	var upd MetadataUpdate

	tokens := strings.Fields(args)
	if len(tokens) == 0 {
		return upd, nil
	}

	switch strings.ToLower(tokens[0]) {
	case "on":
		v := true
		upd.Enabled = &v
		tokens = tokens[1:]
	case "off":
		v := false
		upd.Enabled = &v
		tokens = tokens[1:]
	case "reset":
		if len(tokens) > 1 {
			return MetadataUpdate{}, errors.NewValidationError("metadata", "reset takes no further arguments", strings.Join(tokens[1:], " "))
		}
		upd.Reset = true
		return upd, nil
	}

	for len(tokens) > 0 {
		flag := tokens[0]
		if !strings.HasPrefix(flag, "--") {
			return MetadataUpdate{}, errors.NewValidationError("metadata", "unexpected argument", flag)
		}

		end := 1
		for end < len(tokens) && !strings.HasPrefix(tokens[end], "--") {
			end++
		}
		value := strings.Join(tokens[1:end], " ")
		tokens = tokens[end:]

		var target **string
		switch flag {
		case flagAuthor:
			target = &upd.Author
		case flagTitle:
			target = &upd.Title
		default:
			return MetadataUpdate{}, errors.NewValidationError("metadata", "unknown flag", flag)
		}

		if *target != nil {
			return MetadataUpdate{}, errors.NewValidationError("metadata", "flag given more than once", flag)
		}
		if value == "" {
			return MetadataUpdate{}, errors.NewValidationError("metadata", "flag needs a value", flag)
		}
		if utf8.RuneCountInString(value) > MaxMetadataValueLength {
			return MetadataUpdate{}, errors.NewValidationError("metadata", "value too long", flag)
		}
		*target = &value
	}

	return upd, nil
}
