package rename

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"renamebot/pkg/errors"
)

// CaptionVariables lists the placeholders a caption template may use
var CaptionVariables = []string{"filename", "filesize", "duration", "filetype", "width", "height", "resolution"}

// CaptionValues resolves every placeholder for a file renamed to filename
func CaptionValues(filename string, attrs Attributes) map[string]string {
	values := map[string]string{
		"filename":   filename,
		"filesize":   humanize.IBytes(uint64(max(attrs.FileSize, 0))),
		"duration":   FormatDuration(attrs.Duration),
		"filetype":   FileTypeLabel(attrs.MimeType, attrs.Kind),
		"width":      strconv.Itoa(attrs.Width),
		"height":     strconv.Itoa(attrs.Height),
		"resolution": "N/A",
	}
	if attrs.Width > 0 && attrs.Height > 0 {
		values["resolution"] = fmt.Sprintf("%dx%d", attrs.Width, attrs.Height)
	}
	return values
}

// FormatCaption substitutes {name} placeholders in template. "{{" and "}}"
// produce literal braces. When a placeholder is unknown or a brace is
// unbalanced the raw template is returned together with an error wrapping
// ErrCaptionPlaceholder; callers treat that error as non-fatal.
func FormatCaption(template string, values map[string]string) (string, error) {
	var (
		out     strings.Builder
		unknown []string
	)

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				out.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return template, errors.Wrap(ErrCaptionPlaceholder, "unclosed '{'")
			}
			name := template[i+1 : i+1+end]
			value, ok := values[strings.TrimSpace(name)]
			if !ok {
				unknown = append(unknown, name)
			}
			out.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				out.WriteByte('}')
				i++
				continue
			}
			return template, errors.Wrap(ErrCaptionPlaceholder, "unmatched '}'")
		default:
			out.WriteByte(c)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return template, errors.Wrapf(ErrCaptionPlaceholder, "unknown placeholders %s", strings.Join(unknown, ", "))
	}
	return out.String(), nil
}

// FormatDuration renders media duration as "45s", "3m 7s" or "1h 2m";
// zero renders as N/A
func FormatDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	switch {
	case seconds <= 0:
		return "N/A"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// FileTypeLabel returns a human readable type for captions and prompts
func FileTypeLabel(mime string, kind Kind) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "video/"):
		return "Video"
	case strings.HasPrefix(mime, "audio/"):
		return "Audio"
	case strings.HasPrefix(mime, "image/"):
		return "Image"
	case mime == "application/pdf":
		return "PDF"
	case strings.Contains(mime, "zip"), strings.Contains(mime, "rar"), strings.Contains(mime, "7z"):
		return "Archive"
	case strings.HasPrefix(mime, "text/"):
		return "Text"
	}

	switch kind {
	case KindVideo:
		return "Video"
	case KindAudio:
		return "Audio"
	}
	return "Document"
}
