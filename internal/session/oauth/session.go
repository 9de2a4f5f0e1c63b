// Package oauth implements the Google OAuth login: tokens from the
// authorization-code flow, mail through the Gmail REST API.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/message"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/session"
)

// unknownAccount is shown when the userinfo lookup fails.
const unknownAccount = "Unknown"

// Config holds the OAuth endpoints a session talks to.
type Config struct {
	RedirectURL string

	// Endpoint overrides the authorization and token URLs. The zero value
	// means Google.
	Endpoint oauth2.Endpoint

	// APIEndpoint overrides the base URL of the Gmail and userinfo APIs.
	APIEndpoint string

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// Session is an OAuth-authenticated Gmail session. Token refresh is an
// explicit state change: an unusable token moves the session through
// Expired and Authenticating before the call proceeds.
type Session struct {
	cfg     Config
	machine *session.Machine
	now     func() time.Time

	// newAPI is replaced in tests.
	newAPI func(ctx context.Context, tok *oauth2.Token) (mailAPI, error)

	mu      sync.Mutex
	creds   *credential.OAuth
	account string
}

var _ session.Session = (*Session)(nil)

// New creates an unauthenticated session.
func New(cfg Config) *Session {
	s := &Session{
		cfg:     cfg,
		machine: session.NewMachine(),
		now:     time.Now,
	}
	s.newAPI = func(ctx context.Context, tok *oauth2.Token) (mailAPI, error) {
		return newGoogleClient(ctx, tok, cfg.APIEndpoint, cfg.timeout())
	}
	return s
}

// Method implements session.Session.
func (s *Session) Method() credential.Method { return credential.MethodOAuth }

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

// Authenticate obtains a usable access token from creds, which must be
// *credential.OAuth: an authorization code is exchanged, a still-valid
// access token is used as is, otherwise the refresh token is redeemed.
func (s *Session) Authenticate(ctx context.Context, creds credential.Credentials) error {
	o, ok := creds.(*credential.OAuth)
	if !ok {
		return fmt.Errorf("oauth session: %w", session.ErrWrongCredentials)
	}
	if err := s.machine.To(session.StateAuthenticating); err != nil {
		return err
	}

	flow := s.flow(o)
	var (
		tok *oauth2.Token
		err error
	)
	switch {
	case o.AuthCode != "":
		tok, err = flow.Exchange(ctx, o.AuthCode)
	case o.Token().Valid():
		tok = o.Token()
	case o.RefreshToken != "":
		tok, err = flow.Refresh(ctx, o.RefreshToken)
	default:
		err = &session.AuthError{
			Kind:    session.AuthInvalidCredentials,
			Method:  credential.MethodOAuth,
			Message: "no authorization code or token provided",
		}
	}
	if err != nil {
		s.machine.Close()
		return err
	}

	o.SetToken(tok)
	s.mu.Lock()
	s.creds = o
	s.mu.Unlock()

	s.lookupAccount(ctx, tok)
	return s.machine.To(session.StateAuthenticated)
}

func (s *Session) lookupAccount(ctx context.Context, tok *oauth2.Token) {
	account := unknownAccount
	api, err := s.newAPI(ctx, tok)
	if err == nil {
		var email string
		if email, err = api.Email(ctx); err == nil && email != "" {
			account = email
		}
	}
	if err != nil {
		s.cfg.logger().Warn("looking up account email", "error", err)
	}

	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

// Reauthenticate redeems the refresh token for a new access token.
func (s *Session) Reauthenticate(ctx context.Context) error {
	switch s.machine.State() {
	case session.StateAuthenticated, session.StateActive:
		if err := s.machine.To(session.StateExpired); err != nil {
			return err
		}
	case session.StateExpired:
	case session.StateClosed:
		return session.ErrClosed
	default:
		return session.ErrNotAuthenticated
	}
	_, err := s.refresh(ctx)
	return err
}

// token returns an access token fit for the next call, refreshing it
// first when it has lapsed or the session is Expired.
func (s *Session) token(ctx context.Context) (*oauth2.Token, error) {
	if err := s.machine.Ready(); err != nil && !errors.Is(err, session.ErrExpired) {
		return nil, err
	}

	creds, err := s.credentials()
	if err != nil {
		return nil, err
	}

	tok := creds.Token()
	if s.machine.State() != session.StateExpired {
		if tok.Valid() {
			return tok, nil
		}
		if err := s.machine.To(session.StateExpired); err != nil {
			return nil, err
		}
	}
	return s.refresh(ctx)
}

// refresh moves an Expired session through Authenticating. Failure is
// unrecoverable and closes the session.
func (s *Session) refresh(ctx context.Context) (*oauth2.Token, error) {
	if err := s.machine.To(session.StateAuthenticating); err != nil {
		return nil, err
	}

	creds, err := s.credentials()
	if err != nil {
		s.machine.Close()
		return nil, err
	}

	tok, err := s.flow(creds).Refresh(ctx, creds.RefreshToken)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.mu.Lock()
	if s.creds != nil {
		s.creds.SetToken(tok)
	}
	s.mu.Unlock()

	if err := s.machine.To(session.StateAuthenticated); err != nil {
		return nil, err
	}
	return tok, nil
}

// expire records a token rejection by the API.
func (s *Session) expire(err error) error {
	_ = s.machine.To(session.StateExpired)
	return fmt.Errorf("%w: %w", session.ErrExpired, err)
}

// ListRecent implements session.Session. A message whose details cannot
// be fetched is logged and skipped.
func (s *Session) ListRecent(ctx context.Context, limit int) ([]model.MessageSummary, error) {
	if limit < 1 {
		if err := s.machine.Ready(); err != nil && !errors.Is(err, session.ErrExpired) {
			return nil, err
		}
		return []model.MessageSummary{}, nil
	}

	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	api, err := s.newAPI(ctx, tok)
	if err != nil {
		return nil, &session.FetchError{Kind: session.FetchConnectionLost, Err: err}
	}

	ids, err := api.ListInbox(ctx, limit)
	if err != nil {
		if apiStatus(err) == http.StatusUnauthorized {
			err = s.expire(err)
		}
		return nil, &session.FetchError{Kind: session.FetchConnectionLost, Err: err}
	}

	logger := s.cfg.logger()
	summaries := make([]model.MessageSummary, 0, len(ids))
	for _, id := range ids {
		m, err := api.GetMetadata(ctx, id)
		if err != nil {
			if apiStatus(err) == http.StatusUnauthorized {
				return nil, &session.FetchError{Kind: session.FetchConnectionLost, Err: s.expire(err)}
			}
			if ctx.Err() != nil {
				return nil, &session.FetchError{Kind: session.FetchConnectionLost, Err: ctx.Err()}
			}
			logger.Warn("skipping unreadable message", "id", id, "error", err)
			continue
		}

		summary, err := summaryFromMessage(m)
		if err != nil {
			logger.Warn("skipping unparsable message", "id", id, "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}

	if err := s.machine.Activate(); err != nil {
		return nil, err
	}
	return session.NewestFirst(summaries, limit), nil
}

// Send implements session.Session. The recipient list is validated
// before any request is made.
func (s *Session) Send(ctx context.Context, out model.OutboundMessage) error {
	rcpts, err := message.ParseRecipients(out.To)
	if err != nil {
		return session.NewSendError(session.SendInvalidRecipient, err)
	}

	tok, err := s.token(ctx)
	if err != nil {
		if session.IsAuthError(err) {
			return session.NewSendError(session.SendAuthorizationRejected, err)
		}
		return err
	}

	from := s.Account()
	if from == unknownAccount {
		from = ""
	}
	raw, err := message.Build(from, rcpts, out, s.now())
	if err != nil {
		return session.NewSendError(session.SendTransportFailure, err)
	}

	api, err := s.newAPI(ctx, tok)
	if err != nil {
		return session.NewSendError(session.SendTransportFailure, err)
	}
	if err := api.SendRaw(ctx, raw); err != nil {
		switch apiStatus(err) {
		case http.StatusUnauthorized:
			return session.NewSendError(session.SendAuthorizationRejected, s.expire(err))
		case http.StatusForbidden:
			return session.NewSendError(session.SendAuthorizationRejected, err)
		case http.StatusBadRequest:
			return session.NewSendError(session.SendInvalidRecipient, err)
		default:
			return session.NewSendError(session.SendTransportFailure, err)
		}
	}

	return s.machine.Activate()
}

// Close implements session.Session. A refresh token already stored
// elsewhere is not revoked.
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

func (s *Session) credentials() (*credential.OAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, session.ErrNotAuthenticated
	}
	c := *s.creds
	return &c, nil
}

func (s *Session) flow(o *credential.OAuth) *Flow {
	client := credential.OAuthClient{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RedirectURL:  s.cfg.RedirectURL,
	}
	return NewFlow(client, s.cfg.Endpoint, s.cfg.timeout())
}
