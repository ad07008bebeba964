package rename

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxFilenameLength is the limit in characters for both the user reply
	// and the final filename
	MaxFilenameLength = 255

	maxExtensionLength = 16
)

var illegalFilenameChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_",
	"/", "_", "\\", "_", "|", "_", "?", "_", "*", "_",
)

// DefaultExtension is appended when neither the reply nor the original
// file has an extension
func DefaultExtension(kind Kind) string {
	switch kind {
	case KindVideo:
		return ".mp4"
	case KindAudio:
		return ".mp3"
	default:
		return ".file"
	}
}

// SanitizeFilename replaces characters that are illegal in filenames and
// control characters with underscores, and collapses whitespace runs into
// single spaces.
func SanitizeFilename(name string) string {
	name = illegalFilenameChars.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
	return strings.Join(strings.Fields(name), " ")
}

// SplitExtension splits name into base and extension (with the dot). A
// trailing ".xyz" counts as an extension only when it is not the leading
// character, is at most 16 characters and is alphanumeric with at least one
// letter, so "v2.5" or "draft. final" keep their dots in the base.
func SplitExtension(name string) (base, ext string) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return name, ""
	}

	candidate := name[dot+1:]
	if utf8.RuneCountInString(candidate) > maxExtensionLength {
		return name, ""
	}

	hasLetter := false
	for _, r := range candidate {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLetter = true
		case r < unicode.MaxASCII && unicode.IsDigit(r):
		default:
			return name, ""
		}
	}
	if !hasLetter {
		return name, ""
	}

	return name[:dot], name[dot:]
}

// ValidateCandidate checks a raw reply and returns it sanitized
func ValidateCandidate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &FilenameError{Reason: "filename is empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxFilenameLength {
		return "", &FilenameError{Reason: "filename is longer than 255 characters"}
	}

	clean := strings.TrimRight(SanitizeFilename(trimmed), ". ")
	if !hasVisibleRune(clean) {
		return "", &FilenameError{Reason: "filename has no usable characters"}
	}
	return clean, nil
}

// hasVisibleRune reports whether name has a printable character other than
// dots and spaces. Zero-width and other format characters do not count.
func hasVisibleRune(name string) bool {
	for _, r := range name {
		if r != '.' && unicode.IsGraphic(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

// EnsureExtension appends the original file's extension, or the kind default,
// when candidate has none
func EnsureExtension(candidate string, original FileRef) string {
	if _, ext := SplitExtension(candidate); ext != "" {
		return candidate
	}
	if _, ext := SplitExtension(SanitizeFilename(original.Name)); ext != "" {
		return candidate + ext
	}
	return candidate + DefaultExtension(original.Kind())
}

// ApplyAffixes joins prefix and suffix to the base name with single spaces,
// keeping the extension last. Re-applying compounds.
func ApplyAffixes(filename, prefix, suffix string) string {
	base, ext := SplitExtension(filename)

	if p := strings.TrimRightFunc(prefix, unicode.IsSpace); strings.TrimSpace(p) != "" {
		base = p + " " + base
	}
	if s := strings.TrimLeftFunc(suffix, unicode.IsSpace); strings.TrimSpace(s) != "" {
		base = base + " " + s
	}

	return base + ext
}

// FitLength truncates the base name so that the whole filename is at most
// MaxFilenameLength characters
func FitLength(filename string) string {
	if utf8.RuneCountInString(filename) <= MaxFilenameLength {
		return filename
	}

	base, ext := SplitExtension(filename)
	keep := MaxFilenameLength - utf8.RuneCountInString(ext)
	runes := []rune(base)
	if keep < len(runes) {
		runes = runes[:keep]
	}
	return strings.TrimRightFunc(string(runes), unicode.IsSpace) + ext
}

// ResolveFilename turns a user reply into the final upload filename:
// validate, add a missing extension, apply prefix and suffix, sanitize and
// fit the length limit.
func ResolveFilename(reply string, original FileRef, prefix, suffix string) (string, error) {
	candidate, err := ValidateCandidate(reply)
	if err != nil {
		return "", err
	}

	candidate = EnsureExtension(candidate, original)
	return finalize(ApplyAffixes(candidate, prefix, suffix)), nil
}

// KeepOriginalFilename resolves the filename used when the user keeps the
// original name. Affixes are not applied.
func KeepOriginalFilename(original FileRef) string {
	name := SanitizeFilename(original.Name)
	if !hasVisibleRune(name) {
		name = "file"
	}
	return finalize(EnsureExtension(name, original))
}

func finalize(name string) string {
	return FitLength(SanitizeFilename(name))
}
