package session

import (
	"fmt"
	"sync"
	"time"
)

// State is a point in a session's lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateActive
	StateExpired
	StateClosed
)

var stateNames = map[State]string{
	StateUnauthenticated: "unauthenticated",
	StateAuthenticating:  "authenticating",
	StateAuthenticated:   "authenticated",
	StateActive:          "active",
	StateExpired:         "expired",
	StateClosed:          "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// allowed lists the legal successors of each state. Closed has none.
var allowed = map[State][]State{
	StateUnauthenticated: {StateAuthenticating, StateClosed},
	StateAuthenticating:  {StateAuthenticated, StateClosed},
	StateAuthenticated:   {StateActive, StateExpired, StateClosed},
	StateActive:          {StateExpired, StateClosed},
	StateExpired:         {StateAuthenticating, StateClosed},
}

// Transition records one state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

func (t Transition) String() string {
	return t.From.String() + "->" + t.To.String()
}

// Machine tracks a session's state and the history of its changes.
// It is safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []Transition
	now     func() time.Time
}

// NewMachine returns a machine in StateUnauthenticated.
func NewMachine() *Machine {
	return &Machine{state: StateUnauthenticated, now: time.Now}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To moves the machine to next, or returns ErrInvalidTransition.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range allowed[m.state] {
		if s == next {
			m.record(next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// Activate marks the session as serving calls. It is a no-op when the
// session is already active.
func (m *Machine) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateActive:
		return nil
	case StateAuthenticated:
		m.record(StateActive)
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, StateActive)
	}
}

// Close moves the machine to StateClosed from any state. Closing twice
// is a no-op.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateClosed {
		m.record(StateClosed)
	}
}

// Ready reports whether fetch and send calls may proceed, returning
// ErrClosed or ErrNotAuthenticated otherwise. Expired sessions are ready
// only after the caller refreshes them.
func (m *Machine) Ready() error {
	switch m.State() {
	case StateAuthenticated, StateActive:
		return nil
	case StateClosed:
		return ErrClosed
	case StateExpired:
		return ErrExpired
	default:
		return ErrNotAuthenticated
	}
}

// History returns a copy of the recorded transitions, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Machine) record(next State) {
	m.history = append(m.history, Transition{From: m.state, To: next, At: m.now()})
	m.state = next
}
