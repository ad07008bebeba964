package rename

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"renamebot/internal/domain/preferences"
	"renamebot/internal/domain/rename"
	"renamebot/internal/metrics"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
	"renamebot/pkg/progress"
)

// Config tunes the orchestrator
type Config struct {
	TempDir          string        // parent of per-transfer workspaces; "" means os.TempDir()
	SizeLimit        int64         // effective inbound size limit in bytes
	ProgressInterval time.Duration // minimum spacing of progress edits
	StepTimeout      time.Duration // wall-clock cap per transfer step; 0 disables
}

// EffectiveSizeLimit picks the elevated limit when the bot talks to a local
// Bot API server
func EffectiveSizeLimit(base, elevated int64, highCapacity bool) int64 {
	if highCapacity && elevated > base {
		return elevated
	}
	return base
}

// Deps are the collaborators of the orchestrator. Transform and Sinks are optional.
type Deps struct {
	Registry    *Registry
	Notifier    Notifier
	Transport   Transport
	Preferences PreferencesProvider
	Transform   MediaTransform
	Sinks       []OutcomeSink
}

// Result describes a finished transfer
type Result struct {
	Session Snapshot
	Outcome rename.Outcome
}

// Orchestrator drives rename sessions from file receipt to upload
type Orchestrator struct {
	cfg         Config
	registry    *Registry
	notifier    Notifier
	transport   Transport
	preferences PreferencesProvider
	transform   MediaTransform
	sinks       []OutcomeSink
	now         func() time.Time
	log         *logger.Logger
}

// NewOrchestrator wires an orchestrator
func NewOrchestrator(cfg Config, deps Deps, log *logger.Logger) *Orchestrator {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = progress.DefaultInterval
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Orchestrator{
		cfg:         cfg,
		registry:    registry,
		notifier:    deps.Notifier,
		transport:   deps.Transport,
		preferences: deps.Preferences,
		transform:   deps.Transform,
		sinks:       deps.Sinks,
		now:         time.Now,
		log:         log.With("component", "rename_orchestrator"),
	}
}

// Registry exposes the session registry (metrics, sweeper)
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// SizeLimit returns the effective inbound size limit
func (o *Orchestrator) SizeLimit() int64 {
	return o.cfg.SizeLimit
}

// HandleFile starts a session for an inbound file and sends the name prompt.
// Files above the size limit are rejected without creating a session.
func (o *Orchestrator) HandleFile(ctx context.Context, ev FileEvent) (*Session, error) {
	switch ev.File.Kind() {
	case rename.KindDocument, rename.KindVideo, rename.KindAudio:
	default:
		return nil, rename.ErrUnsupportedMedia
	}
	if ev.File.FileID == "" {
		return nil, errors.Wrap(rename.ErrUnsupportedMedia, "file has no id")
	}

	if o.cfg.SizeLimit > 0 && ev.File.Size > o.cfg.SizeLimit {
		metrics.RenameSessions.WithLabelValues("rejected").Inc()
		o.log.Infow("File above size limit",
			"chat_id", ev.ChatID,
			"user_id", ev.UserID,
			"size", humanize.IBytes(uint64(ev.File.Size)),
			"limit", humanize.IBytes(uint64(o.cfg.SizeLimit)),
		)
		return nil, &rename.SizeLimitError{Size: ev.File.Size, Limit: o.cfg.SizeLimit}
	}

	s := o.registry.Create(ev.Key(), ev.File, ev.MessageID)

	prompt, err := o.notifier.SendNamePrompt(ctx, s.Snapshot(), o.cfg.SizeLimit)
	if err != nil {
		o.registry.Release(s)
		s.markExpired()
		return nil, errors.Wrap(err, "send name prompt")
	}
	s.setPrompt(prompt.CorrelationID, prompt.MessageIDs)

	o.log.Infow("Rename session started",
		"session_id", s.ID,
		"chat_id", ev.ChatID,
		"user_id", ev.UserID,
		"kind", ev.File.Kind(),
		"file_name", ev.File.Name,
		"size", ev.File.Size,
	)
	return s, nil
}

// HandleNameReply accepts a reply to the name prompt. Invalid names leave
// the session waiting for another reply.
func (o *Orchestrator) HandleNameReply(ctx context.Context, reply NameReply) (*Session, error) {
	s, err := o.registry.Get(reply.Key())
	if err != nil {
		return nil, err
	}
	if reply.ReplyToMessageID == 0 || reply.ReplyToMessageID != s.correlation() {
		return nil, rename.ErrSessionNotFound
	}
	if s.State() != rename.StateAwaitingName {
		return nil, rename.ErrInvalidState
	}

	prefs := o.loadPreferences(ctx, reply.UserID)

	name, err := rename.ResolveFilename(reply.Text, s.File, prefs.Prefix, prefs.Suffix)
	if err != nil {
		return s, err
	}

	if err := o.chooseName(ctx, s, name); err != nil {
		return nil, err
	}
	return s, nil
}

// KeepOriginal uses the original filename, without affixes
func (o *Orchestrator) KeepOriginal(ctx context.Context, action Action) (*Session, error) {
	s, err := o.lookup(action)
	if err != nil {
		return nil, err
	}
	if s.State() != rename.StateAwaitingName {
		return nil, rename.ErrInvalidState
	}

	if err := o.chooseName(ctx, s, rename.KeepOriginalFilename(s.File)); err != nil {
		return nil, err
	}
	return s, nil
}

func (o *Orchestrator) chooseName(ctx context.Context, s *Session, name string) error {
	if err := s.chooseName(o.now(), name); err != nil {
		return err
	}

	snap := s.Snapshot()
	if len(snap.PromptMessageIDs) > 0 {
		if err := o.notifier.DeleteMessages(ctx, snap.Key.ChatID, snap.PromptMessageIDs...); err != nil {
			o.log.Debugw("Failed to delete name prompt", "session_id", s.ID, "error", err)
		}
	}

	statusID, err := o.notifier.SendFormatPrompt(ctx, snap, rename.AllowedFormats(s.File))
	if err != nil {
		o.registry.Release(s)
		s.markExpired()
		return errors.Wrap(err, "send format prompt")
	}
	s.setStatusMessage(statusID)

	o.log.Debugw("Filename chosen", "session_id", s.ID, "file_name", name)
	return nil
}

// HandleFormatChoice validates the format and runs the transfer pipeline in
// the caller's goroutine. The session is released when it returns.
func (o *Orchestrator) HandleFormatChoice(ctx context.Context, choice FormatChoice) (*Result, error) {
	s, err := o.lookup(choice.Action)
	if err != nil {
		return nil, err
	}
	if s.State() != rename.StateAwaitingFormat {
		return nil, rename.ErrInvalidState
	}
	if err := rename.CheckFormat(s.File, choice.Format); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.beginTransfer(o.now(), choice.Format, cancel); err != nil {
		return nil, err
	}

	return o.runPipeline(pctx, s)
}

// Cancel ends the session named by the action. A running transfer is
// stopped at its next progress report.
func (o *Orchestrator) Cancel(ctx context.Context, action Action) error {
	s, err := o.lookup(action)
	if err != nil {
		return err
	}
	return o.cancel(ctx, s)
}

// CancelActive cancels whatever session the user has in the chat (/cancel)
func (o *Orchestrator) CancelActive(ctx context.Context, key rename.Key) error {
	s, err := o.registry.Get(key)
	if err != nil {
		return err
	}
	return o.cancel(ctx, s)
}

func (o *Orchestrator) cancel(ctx context.Context, s *Session) error {
	prev, err := s.requestCancel()
	if err != nil {
		return err
	}
	metrics.RenameSessions.WithLabelValues("cancelled").Inc()

	o.log.Infow("Rename session cancelled", "session_id", s.ID, "state", prev)

	if prev == rename.StateTransferring {
		return nil
	}

	o.registry.Release(s)

	snap := s.Snapshot()
	if len(snap.PromptMessageIDs) > 0 {
		if err := o.notifier.DeleteMessages(ctx, snap.Key.ChatID, snap.PromptMessageIDs...); err != nil {
			o.log.Debugw("Failed to delete name prompt", "session_id", s.ID, "error", err)
		}
	}
	if err := o.notifier.SendCancelled(ctx, snap); err != nil {
		o.log.Warnw("Failed to send cancel confirmation", "session_id", s.ID, "error", err)
	}
	return nil
}

// lookup resolves an action to its session. Buttons of replaced sessions
// and presses by other users resolve to ErrSessionNotFound.
func (o *Orchestrator) lookup(action Action) (*Session, error) {
	s, err := o.registry.Get(action.Key())
	if err != nil {
		return nil, err
	}
	if s.ID != action.SessionID {
		return nil, rename.ErrSessionNotFound
	}
	return s, nil
}

// loadPreferences never fails: lookup errors degrade to empty preferences
func (o *Orchestrator) loadPreferences(ctx context.Context, userID int64) *preferences.Preferences {
	if o.preferences == nil {
		return preferences.Default(userID)
	}

	prefs, err := o.preferences.GetPreferences(ctx, userID)
	if err != nil || prefs == nil {
		o.log.Warnw("Using default preferences",
			"user_id", userID,
			"error", errors.Join(rename.ErrPreferenceLookupFailed, err),
		)
		return preferences.Default(userID)
	}
	return prefs
}
