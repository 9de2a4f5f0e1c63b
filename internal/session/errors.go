package session

import (
	"errors"
	"fmt"

	"github.com/nhle/webmail/internal/credential"
)

var (
	// ErrExpired is returned when the provider rejected a call because
	// the access token lapsed. The session is left in StateExpired.
	ErrExpired = errors.New("session expired")

	// ErrNotAuthenticated is returned by fetch and send calls made before
	// a successful Authenticate.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrClosed is returned by any call on a closed session.
	ErrClosed = errors.New("session closed")

	// ErrInvalidTransition is returned when a state change is not allowed
	// from the current state.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrWrongCredentials is returned when a session is handed credentials
	// meant for the other login method.
	ErrWrongCredentials = errors.New("credentials do not match session method")
)

// AuthKind classifies an authentication failure.
type AuthKind int

const (
	AuthInvalidCredentials AuthKind = iota + 1
	AuthConnectionFailure
	AuthOAuthExchangeFailed
)

func (k AuthKind) String() string {
	switch k {
	case AuthInvalidCredentials:
		return "invalid credentials"
	case AuthConnectionFailure:
		return "connection failure"
	case AuthOAuthExchangeFailed:
		return "oauth exchange failed"
	default:
		return fmt.Sprintf("auth kind %d", int(k))
	}
}

// AuthError indicates that authentication failed for a session.
type AuthError struct {
	Kind   AuthKind
	Method credential.Method

	// Message is a short explanation suitable for showing to the user.
	Message string

	// Payload is the provider's error body for OAuth failures.
	Payload string

	Err error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("auth error (%s, %s): %s", e.Method, e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// AuthKindOf returns the kind of the first AuthError in err's chain.
func AuthKindOf(err error) (AuthKind, bool) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return 0, false
	}
	return authErr.Kind, true
}

// FetchKind classifies a failure while listing messages.
type FetchKind int

const (
	FetchConnectionLost FetchKind = iota + 1

	// FetchParseFailure affects a single message, which is skipped.
	FetchParseFailure
)

func (k FetchKind) String() string {
	switch k {
	case FetchConnectionLost:
		return "connection lost"
	case FetchParseFailure:
		return "parse failure"
	default:
		return fmt.Sprintf("fetch kind %d", int(k))
	}
}

// FetchError indicates that messages could not be listed.
type FetchError struct {
	Kind FetchKind

	// ID names the message that failed, for parse failures.
	ID string

	Err error
}

func (e *FetchError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("fetch error (%s) on message %s: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("fetch error (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err (or any error in its chain) is a FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// SendKind classifies a failure while sending a message.
type SendKind int

const (
	SendInvalidRecipient SendKind = iota + 1
	SendAuthorizationRejected
	SendTransportFailure
)

func (k SendKind) String() string {
	switch k {
	case SendInvalidRecipient:
		return "invalid recipient"
	case SendAuthorizationRejected:
		return "authorization rejected"
	case SendTransportFailure:
		return "transport failure"
	default:
		return fmt.Sprintf("send kind %d", int(k))
	}
}

// SendError indicates that an outbound message was not accepted.
type SendError struct {
	Kind SendKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SendKindOf returns the kind of the first SendError in err's chain.
func SendKindOf(err error) (SendKind, bool) {
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		return 0, false
	}
	return sendErr.Kind, true
}

// NewSendError wraps err as a SendError of the given kind.
func NewSendError(kind SendKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}
