package session

import (
	"errors"
	"testing"
)

func TestMachine_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		next    State
		wantErr bool
	}{
		{name: "start authenticating", next: StateAuthenticating},
		{name: "skip authenticating", next: StateAuthenticated, wantErr: true},
		{name: "login succeeds", path: []State{StateAuthenticating}, next: StateAuthenticated},
		{name: "login fails", path: []State{StateAuthenticating}, next: StateClosed},
		{name: "expire from authenticated", path: []State{StateAuthenticating, StateAuthenticated}, next: StateExpired},
		{name: "expire from active", path: []State{StateAuthenticating, StateAuthenticated, StateActive}, next: StateExpired},
		{name: "refresh after expiry", path: []State{StateAuthenticating, StateAuthenticated, StateExpired}, next: StateAuthenticating},
		{name: "expired cannot serve", path: []State{StateAuthenticating, StateAuthenticated, StateExpired}, next: StateActive, wantErr: true},
		{name: "closed is terminal", path: []State{StateClosed}, next: StateAuthenticating, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for _, s := range tt.path {
				if err := m.To(s); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}

			err := m.To(tt.next)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.State() != tt.next {
				t.Errorf("state = %s, want %s", m.State(), tt.next)
			}
		})
	}
}

func TestMachine_ActivateAndHistory(t *testing.T) {
	m := NewMachine()
	if err := m.Activate(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("activate before login: got %v", err)
	}

	_ = m.To(StateAuthenticating)
	_ = m.To(StateAuthenticated)
	if err := m.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := m.Activate(); err != nil {
		t.Fatalf("second activate should be a no-op: %v", err)
	}
	m.Close()
	m.Close()

	got := m.History()
	want := []string{
		"unauthenticated->authenticating",
		"authenticating->authenticated",
		"authenticated->active",
		"active->closed",
	}
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// The returned slice is a copy.
	got[0].To = StateClosed
	if m.History()[0].To != StateAuthenticating {
		t.Error("History leaked internal state")
	}
}

func TestMachine_Ready(t *testing.T) {
	m := NewMachine()
	if err := m.Ready(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("fresh machine: got %v", err)
	}

	_ = m.To(StateAuthenticating)
	_ = m.To(StateAuthenticated)
	if err := m.Ready(); err != nil {
		t.Errorf("authenticated: got %v", err)
	}

	_ = m.To(StateExpired)
	if err := m.Ready(); !errors.Is(err, ErrExpired) {
		t.Errorf("expired: got %v", err)
	}

	m.Close()
	if err := m.Ready(); !errors.Is(err, ErrClosed) {
		t.Errorf("closed: got %v", err)
	}
}
