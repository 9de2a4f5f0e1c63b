// Package password implements the app-password login: IMAP for reading
// the inbox and authenticated SMTP submission for sending.
package password

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/message"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/session"
)

// invalidCredentialsMessage is shown when the server rejects the login.
const invalidCredentialsMessage = "Authentication failed: please use an App Password, not your regular account password."

// Session is a password-authenticated mail session. Every operation opens
// its own short connection, so no socket stays open between calls.
type Session struct {
	cfg     Config
	machine *session.Machine
	now     func() time.Time

	mu      sync.Mutex
	creds   *credential.AppPassword
	account string
}

var _ session.Session = (*Session)(nil)

// New creates an unauthenticated session for the given servers.
func New(cfg Config) *Session {
	return &Session{
		cfg:     cfg,
		machine: session.NewMachine(),
		now:     time.Now,
	}
}

// Method implements session.Session.
func (s *Session) Method() credential.Method { return credential.MethodAppPassword }

// State implements session.Session.
func (s *Session) State() session.State { return s.machine.State() }

// History implements session.Session.
func (s *Session) History() []session.Transition { return s.machine.History() }

// Account implements session.Session.
func (s *Session) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Authenticate logs in to IMAP once to verify creds, which must be
// *credential.AppPassword. The session takes ownership of creds and wipes
// them on Close.
func (s *Session) Authenticate(ctx context.Context, creds credential.Credentials) error {
	ap, ok := creds.(*credential.AppPassword)
	if !ok {
		return fmt.Errorf("password session: %w", session.ErrWrongCredentials)
	}
	if err := s.machine.To(session.StateAuthenticating); err != nil {
		return err
	}

	if !ap.Complete() {
		s.machine.Close()
		return &session.AuthError{
			Kind:    session.AuthInvalidCredentials,
			Method:  credential.MethodAppPassword,
			Message: "email and app password are required",
		}
	}

	if err := s.verify(ctx, ap); err != nil {
		s.machine.Close()
		return err
	}

	s.mu.Lock()
	s.creds = ap
	s.account = ap.Email
	s.mu.Unlock()

	return s.machine.To(session.StateAuthenticated)
}

// Reauthenticate logs in again with the held credentials. A rejected
// login closes the session.
func (s *Session) Reauthenticate(ctx context.Context) error {
	if err := s.machine.Ready(); err != nil {
		return err
	}

	creds, err := s.credentials()
	if err != nil {
		return err
	}
	if err := s.verify(ctx, creds); err != nil {
		if kind, _ := session.AuthKindOf(err); kind == session.AuthInvalidCredentials {
			_ = s.Close()
		}
		return err
	}
	return nil
}

func (s *Session) verify(ctx context.Context, creds *credential.AppPassword) error {
	client := s.imapClient(creds)
	_, done, err := client.connect(ctx)
	if err != nil {
		return loginError(err)
	}
	done()
	return nil
}

func loginError(err error) *session.AuthError {
	if errors.Is(err, errLoginRejected) {
		return &session.AuthError{
			Kind:    session.AuthInvalidCredentials,
			Method:  credential.MethodAppPassword,
			Message: invalidCredentialsMessage,
			Err:     err,
		}
	}
	return &session.AuthError{
		Kind:    session.AuthConnectionFailure,
		Method:  credential.MethodAppPassword,
		Message: "could not reach the mail server",
		Err:     err,
	}
}

// ListRecent implements session.Session.
func (s *Session) ListRecent(ctx context.Context, limit int) ([]model.MessageSummary, error) {
	if err := s.machine.Ready(); err != nil {
		return nil, err
	}
	if limit < 1 {
		return []model.MessageSummary{}, nil
	}

	creds, err := s.credentials()
	if err != nil {
		return nil, err
	}

	items, err := s.imapClient(creds).fetchRecent(ctx, limit)
	if err != nil {
		if errors.Is(err, errLoginRejected) {
			_ = s.Close()
			return nil, loginError(err)
		}
		return nil, &session.FetchError{Kind: session.FetchConnectionLost, Err: err}
	}

	if err := s.machine.Activate(); err != nil {
		return nil, err
	}
	return session.NewestFirst(items, limit), nil
}

// Send implements session.Session. The recipient list is validated
// before any connection is made.
func (s *Session) Send(ctx context.Context, out model.OutboundMessage) error {
	rcpts, err := message.ParseRecipients(out.To)
	if err != nil {
		return session.NewSendError(session.SendInvalidRecipient, err)
	}
	if err := s.machine.Ready(); err != nil {
		return err
	}

	creds, err := s.credentials()
	if err != nil {
		return err
	}

	raw, err := message.Build(creds.Email, rcpts, out, s.now())
	if err != nil {
		return session.NewSendError(session.SendTransportFailure, err)
	}

	sender := &smtpSender{cfg: s.cfg, username: creds.Email, password: creds.Password}
	if err := sender.send(ctx, creds.Email, message.Addresses(rcpts), raw); err != nil {
		return err
	}

	return s.machine.Activate()
}

// Close implements session.Session.
func (s *Session) Close() error {
	s.machine.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds != nil {
		s.creds.Wipe()
		s.creds = nil
	}
	return nil
}

func (s *Session) credentials() (*credential.AppPassword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, session.ErrNotAuthenticated
	}
	// Copy so a concurrent Close cannot blank the values mid-call.
	c := *s.creds
	return &c, nil
}

func (s *Session) imapClient(creds *credential.AppPassword) *imapClient {
	return &imapClient{cfg: s.cfg, username: creds.Email, password: creds.Password}
}
