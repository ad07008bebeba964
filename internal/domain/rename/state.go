package rename

// State of a rename session
type State string

const (
	StateAwaitingName   State = "awaiting_name"
	StateAwaitingFormat State = "awaiting_format"
	StateTransferring   State = "transferring"
	StateDone           State = "done"
	StateCancelled      State = "cancelled"
	StateExpired        State = "expired"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateCancelled, StateExpired:
		return true
	}
	return false
}

// Cancellable reports whether a user cancel applies in this state
func (s State) Cancellable() bool {
	switch s {
	case StateAwaitingName, StateAwaitingFormat, StateTransferring:
		return true
	}
	return false
}

// Key identifies the single active session of a user in a chat
type Key struct {
	ChatID int64
	UserID int64
}
