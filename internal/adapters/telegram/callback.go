package telegram

import (
	"strings"

	"github.com/google/uuid"

	"renamebot/internal/domain/rename"
	"renamebot/pkg/errors"
)

const callbackPrefix = "rn"

// Callback actions besides the upload formats
const (
	ActionKeep   = "keep"
	ActionCancel = "cancel"
)

// Callback is a decoded inline button: rn:<action>:<session id>, where the
// action is keep, cancel or an upload format
type Callback struct {
	Action    string
	SessionID uuid.UUID
}

// Format returns the upload format named by the action, if any
func (c Callback) Format() (rename.Format, bool) {
	return rename.ParseFormat(c.Action)
}

// EncodeCallback builds the callback data for a session button
func EncodeCallback(action string, sessionID uuid.UUID) string {
	return callbackPrefix + ":" + action + ":" + sessionID.String()
}

// DecodeCallback parses callback data produced by EncodeCallback
func DecodeCallback(data string) (Callback, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return Callback{}, errors.Wrapf(errors.ErrInvalidInput, "callback data %q", data)
	}

	id, err := uuid.Parse(parts[2])
	if err != nil {
		return Callback{}, errors.Wrapf(errors.ErrInvalidInput, "callback session id %q", parts[2])
	}

	action := parts[1]
	switch action {
	case ActionKeep, ActionCancel:
	default:
		if _, ok := rename.ParseFormat(action); !ok {
			return Callback{}, errors.Wrapf(errors.ErrInvalidInput, "callback action %q", action)
		}
	}

	return Callback{Action: action, SessionID: id}, nil
}
