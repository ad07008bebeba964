package noop

import (
	"context"

	"renamebot/pkg/errors"
)

// Tracker discards every event. Used when SENTRY_DSN is not configured and
// in tests
type Tracker struct{}

func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) CaptureError(context.Context, error, map[string]string) error {
	return nil
}

func (t *Tracker) CaptureMessage(context.Context, string, errors.Level, map[string]string) error {
	return nil
}

func (t *Tracker) SetUser(context.Context, string, string) {}

func (t *Tracker) AddBreadcrumb(context.Context, string, string, errors.Level, map[string]interface{}) {
}

func (t *Tracker) Flush(context.Context) error {
	return nil
}

var _ errors.Tracker = (*Tracker)(nil)
