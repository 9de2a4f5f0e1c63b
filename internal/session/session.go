// Package session defines the mail session capability shared by the
// app-password (IMAP/SMTP) and OAuth (Gmail API) login methods.
package session

import (
	"context"
	"sort"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/model"
)

// Session is the contract both login methods implement. A session owns
// exactly one set of credentials from Authenticate until Close.
type Session interface {
	// Method returns the login method this session serves.
	Method() credential.Method

	// State returns the current lifecycle state.
	State() State

	// Account returns the authenticated account address.
	Account() string

	// Authenticate verifies creds against the provider. On failure the
	// session is closed and an *AuthError is returned.
	Authenticate(ctx context.Context, creds credential.Credentials) error

	// Reauthenticate renews the session with the credentials it already
	// holds (an OAuth token refresh, or a fresh IMAP login).
	Reauthenticate(ctx context.Context) error

	// ListRecent returns at most limit inbox messages, newest first.
	// Messages that cannot be read are skipped.
	ListRecent(ctx context.Context, limit int) ([]model.MessageSummary, error)

	// Send transmits out once. Failures are returned as *SendError.
	Send(ctx context.Context, out model.OutboundMessage) error

	// Close ends the session and wipes its credentials.
	Close() error

	// History returns the state transitions recorded so far.
	History() []Transition
}

// NewestFirst sorts items by descending timestamp, keeping messages
// without a timestamp at the end, and caps the result to limit.
func NewestFirst(items []model.MessageSummary, limit int) []model.MessageSummary {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].Timestamp, items[j].Timestamp
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		return ti.After(tj)
	})
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
