package rename

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"renamebot/internal/domain/rename"
)

// Session is one rename conversation for a (chat, user) pair. Identity
// fields are immutable; everything else is guarded by mu and only changed
// by the Orchestrator.
type Session struct {
	ID        uuid.UUID
	Key       rename.Key
	File      rename.FileRef
	MessageID int // the user's file message
	CreatedAt time.Time

	ttl time.Duration

	mu               sync.Mutex
	state            rename.State
	expiresAt        time.Time
	chosenFilename   string
	format           rename.Format
	correlationID    int
	promptMessageIDs []int
	statusMessageID  int
	failure          error
	cancel           context.CancelFunc
}

// Snapshot is an immutable copy of a session, safe to hand to renderers
type Snapshot struct {
	ID               uuid.UUID
	Key              rename.Key
	File             rename.FileRef
	MessageID        int
	State            rename.State
	ChosenFilename   string
	Format           rename.Format
	CorrelationID    int
	PromptMessageIDs []int
	StatusMessageID  int
	ExpiresAt        time.Time
	Failure          error
}

func newSession(key rename.Key, file rename.FileRef, messageID int, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.New(),
		Key:       key,
		File:      file,
		MessageID: messageID,
		CreatedAt: now,
		ttl:       ttl,
		state:     rename.StateAwaitingName,
		expiresAt: now.Add(ttl),
	}
}

// State returns the current state
func (s *Session) State() rename.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the mutable fields
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:               s.ID,
		Key:              s.Key,
		File:             s.File,
		MessageID:        s.MessageID,
		State:            s.state,
		ChosenFilename:   s.chosenFilename,
		Format:           s.format,
		CorrelationID:    s.correlationID,
		PromptMessageIDs: append([]int(nil), s.promptMessageIDs...),
		StatusMessageID:  s.statusMessageID,
		ExpiresAt:        s.expiresAt,
		Failure:          s.failure,
	}
}

// expired reports whether the idle window has passed. Terminal sessions
// are always treated as gone.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Terminal() || !now.Before(s.expiresAt)
}

// touchLocked extends the idle window
func (s *Session) touchLocked(now time.Time) {
	s.expiresAt = now.Add(s.ttl)
}

// Touch extends the idle window; used on progress reports
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.touchLocked(now)
	s.mu.Unlock()
}

// markExpired ends a session that was replaced or timed out. A running
// transfer is cancelled.
func (s *Session) markExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	s.state = rename.StateExpired
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) setPrompt(correlationID int, messageIDs []int) {
	s.mu.Lock()
	s.correlationID = correlationID
	s.promptMessageIDs = append([]int(nil), messageIDs...)
	s.mu.Unlock()
}

func (s *Session) correlation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correlationID
}

// chooseName records the filename and moves awaiting_name -> awaiting_format.
// Only the first of several racing replies wins.
func (s *Session) chooseName(now time.Time, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != rename.StateAwaitingName {
		return rename.ErrInvalidState
	}
	s.chosenFilename = name
	s.state = rename.StateAwaitingFormat
	s.touchLocked(now)
	return nil
}

func (s *Session) setStatusMessage(id int) {
	s.mu.Lock()
	s.statusMessageID = id
	s.mu.Unlock()
}

// beginTransfer moves awaiting_format -> transferring and installs the
// cancel func of the pipeline context
func (s *Session) beginTransfer(now time.Time, format rename.Format, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != rename.StateAwaitingFormat {
		return rename.ErrInvalidState
	}
	s.state = rename.StateTransferring
	s.format = format
	s.cancel = cancel
	s.touchLocked(now)
	return nil
}

// requestCancel records a user cancel. It returns the state the session
// was in; for a running transfer the pipeline context is cancelled and the
// pipeline finishes the transition itself.
func (s *Session) requestCancel() (rename.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if !prev.Cancellable() {
		return prev, rename.ErrInvalidState
	}
	s.state = rename.StateCancelled
	if s.cancel != nil {
		s.cancel()
	}
	return prev, nil
}

// checkActive is the cooperative cancellation check run before every
// progress report
func (s *Session) checkActive(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case rename.StateTransferring:
		s.touchLocked(now)
		return nil
	case rename.StateCancelled:
		return rename.ErrTransferCancelled
	default:
		return rename.ErrSessionNotFound
	}
}

// finish records the pipeline result. A session cancelled or expired
// during a transfer that then failed keeps that state; one whose upload
// completed before the request was observed is done.
func (s *Session) finish(failure error) rename.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel = nil
	if s.state == rename.StateTransferring || failure == nil {
		s.state = rename.StateDone
		s.failure = failure
	}
	return s.state
}
