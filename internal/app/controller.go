// Package app coordinates one user's interaction with their mail session:
// login by either method, the inbox listing, compose, and logout.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/message"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/session"
	"github.com/nhle/webmail/internal/session/oauth"
)

var (
	// ErrNotLoggedIn is returned by mail operations when no session is held.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrOAuthDisabled is returned when Google sign-in is requested but no
	// OAuth client is configured.
	ErrOAuthDisabled = errors.New("google sign-in is not configured")

	// ErrStateMismatch is returned when the OAuth callback state does not
	// match the one issued by BeginOAuth.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrMessageNotFound is returned for a message id outside the current
	// listing.
	ErrMessageNotFound = errors.New("message not found")
)

// SessionFactory creates an unauthenticated session for method.
type SessionFactory func(method credential.Method) (session.Session, error)

// Options configures a Controller.
type Options struct {
	// FetchLimit is how many recent messages RefreshInbox loads.
	FetchLimit int

	// OAuth is the Google client registration; used only when
	// OAuthEnabled is set.
	OAuth        credential.OAuthClient
	OAuthEnabled bool

	// OAuthEndpoint overrides Google's authorization and token URLs.
	OAuthEndpoint oauth2.Endpoint

	// IdleTimeout and MaxControllers bound a Registry built from these
	// options. Zero selects the defaults.
	IdleTimeout    time.Duration
	MaxControllers int

	NewSession SessionFactory
	Logger     *slog.Logger
}

// Controller holds the single active session of one interaction context.
// Calls are serialized; each one blocks until its network work finishes.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	sess       session.Session
	listing    []model.MessageSummary
	listed     bool
	oauthState string
}

// NewController creates a controller with no session.
func NewController(opts Options) *Controller {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{opts: opts, logger: logger}
}

// OAuthEnabled reports whether Google sign-in is offered.
func (c *Controller) OAuthEnabled() bool { return c.opts.OAuthEnabled }

// LoggedIn reports whether a usable session is held.
func (c *Controller) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropIfClosed()
	return c.sess != nil
}

// Account returns the address of the logged-in account, or "".
func (c *Controller) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.Account()
}

// Method returns the login method of the current session, or "".
func (c *Controller) Method() credential.Method {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.Method()
}

// Session returns the current session, or nil.
func (c *Controller) Session() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Login tears down any current session and authenticates a new one of the
// kind creds calls for. Incomplete app-password credentials are rejected
// before any network call.
func (c *Controller) Login(ctx context.Context, creds credential.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx, creds)
}

func (c *Controller) login(ctx context.Context, creds credential.Credentials) error {
	c.teardown()

	if ap, ok := creds.(*credential.AppPassword); ok && !ap.Complete() {
		return &session.AuthError{
			Kind:    session.AuthInvalidCredentials,
			Method:  credential.MethodAppPassword,
			Message: "Please enter both your email address and App Password.",
		}
	}

	sess, err := c.opts.NewSession(creds.Method())
	if err != nil {
		return fmt.Errorf("creating %s session: %w", creds.Method(), err)
	}
	if err := sess.Authenticate(ctx, creds); err != nil {
		_ = sess.Close()
		c.logger.Info("login failed", "method", creds.Method(), "error", err)
		return err
	}

	c.sess = sess
	c.logger.Info("logged in", "method", sess.Method(), "account", sess.Account())
	return nil
}

// BeginOAuth issues a fresh state value and returns the consent URL the
// user is sent to.
func (c *Controller) BeginOAuth() (string, error) {
	if !c.opts.OAuthEnabled {
		return "", ErrOAuthDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.oauthState = oauth.NewState()
	return c.flow().AuthCodeURL(c.oauthState), nil
}

// CompleteOAuth checks state against the one issued by BeginOAuth and logs
// in with the authorization code. A state value is accepted once.
func (c *Controller) CompleteOAuth(ctx context.Context, state, code string) error {
	if !c.opts.OAuthEnabled {
		return ErrOAuthDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expected := c.oauthState
	c.oauthState = ""
	if expected == "" || state != expected {
		return ErrStateMismatch
	}
	if code == "" {
		return &session.AuthError{
			Kind:    session.AuthOAuthExchangeFailed,
			Method:  credential.MethodOAuth,
			Message: "Google did not return an authorization code.",
		}
	}
	return c.login(ctx, c.opts.OAuth.Credentials(code))
}

// RefreshInbox fetches the recent messages and keeps them as the current
// listing. An expired session is re-authenticated once before failing.
func (c *Controller) RefreshInbox(ctx context.Context) ([]model.MessageSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) ([]model.MessageSummary, error) {
	c.dropIfClosed()
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}

	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}
	items, err := c.sess.ListRecent(ctx, c.opts.FetchLimit)
	if err != nil && c.sess.State() == session.StateExpired {
		c.logger.Info("session expired, re-authenticating")
		if rerr := c.sess.Reauthenticate(ctx); rerr != nil {
			c.dropIfClosed()
			return nil, rerr
		}
		items, err = c.sess.ListRecent(ctx, c.opts.FetchLimit)
	}
	if err != nil {
		c.dropIfClosed()
		return nil, err
	}

	c.listing = items
	c.listed = true
	return copyListing(items), nil
}

// Inbox returns the current listing, fetching it when none is held.
func (c *Controller) Inbox(ctx context.Context) ([]model.MessageSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listed && c.sess != nil {
		return copyListing(c.listing), nil
	}
	return c.refresh(ctx)
}

// Message returns the summary with id from the current listing.
func (c *Controller) Message(id string) (model.MessageSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.listing {
		if m.ID == id {
			return m, nil
		}
	}
	return model.MessageSummary{}, fmt.Errorf("message %q: %w", id, ErrMessageNotFound)
}

// ReplyDraft returns a prefilled reply to message id.
func (c *Controller) ReplyDraft(id string) (model.OutboundMessage, error) {
	m, err := c.Message(id)
	if err != nil {
		return model.OutboundMessage{}, err
	}
	return message.Reply(m), nil
}

// ForwardDraft returns a prefilled forward of message id.
func (c *Controller) ForwardDraft(id string) (model.OutboundMessage, error) {
	m, err := c.Message(id)
	if err != nil {
		return model.OutboundMessage{}, err
	}
	return message.Forward(m), nil
}

// ComposeAndSend sends out once. The recipient field is checked before
// anything else; a failed send leaves the session open so the user can
// try again.
func (c *Controller) ComposeAndSend(ctx context.Context, out model.OutboundMessage) error {
	if _, err := message.ParseRecipients(out.To); err != nil {
		return session.NewSendError(session.SendInvalidRecipient, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropIfClosed()
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	if err := c.ensureFresh(ctx); err != nil {
		return err
	}

	if err := c.sess.Send(ctx, out); err != nil {
		c.logger.Warn("send failed", "error", err)
		c.dropIfClosed()
		return err
	}
	c.logger.Info("message sent", "account", c.sess.Account())
	return nil
}

// Logout closes the session and discards the listing. The controller can
// log in again afterwards.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
	c.oauthState = ""
}

// ensureFresh re-authenticates a session already known to be Expired.
func (c *Controller) ensureFresh(ctx context.Context) error {
	if c.sess.State() != session.StateExpired {
		return nil
	}
	if err := c.sess.Reauthenticate(ctx); err != nil {
		c.dropIfClosed()
		return err
	}
	return nil
}

// dropIfClosed forgets a session that reached Closed on its own, after an
// unrecoverable authentication failure.
func (c *Controller) dropIfClosed() {
	if c.sess != nil && c.sess.State() == session.StateClosed {
		c.sess = nil
		c.listing = nil
		c.listed = false
	}
}

func (c *Controller) teardown() {
	if c.sess != nil {
		if err := c.sess.Close(); err != nil {
			c.logger.Warn("closing session", "error", err)
		}
	}
	c.sess = nil
	c.listing = nil
	c.listed = false
}

func (c *Controller) flow() *oauth.Flow {
	return oauth.NewFlow(c.opts.OAuth, c.opts.OAuthEndpoint, 0)
}

func copyListing(items []model.MessageSummary) []model.MessageSummary {
	out := make([]model.MessageSummary, len(items))
	copy(out, items)
	return out
}
