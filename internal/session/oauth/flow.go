package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/session"
)

// Scopes are the permissions requested at consent: read mail, send mail,
// the account address and OpenID identity.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.OpenIDScope,
}

// Flow runs the OAuth 2.0 authorization-code flow against one client.
type Flow struct {
	conf    *oauth2.Config
	timeout time.Duration
}

// NewFlow returns a flow for client. A zero endpoint means Google's.
func NewFlow(client credential.OAuthClient, endpoint oauth2.Endpoint, timeout time.Duration) *Flow {
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Flow{
		conf: &oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		timeout: timeout,
	}
}

// NewState returns a fresh value for the OAuth state parameter.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the consent page URL. Offline access with forced
// consent makes Google issue a refresh token every time.
func (f *Flow) AuthCodeURL(state string) string {
	return f.conf.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for tokens.
func (f *Flow) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := f.bounded(ctx)
	defer cancel()

	tok, err := f.conf.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError("exchanging authorization code", err)
	}
	return tok, nil
}

// Refresh obtains a new access token from refreshToken.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, &session.AuthError{
			Kind:    session.AuthOAuthExchangeFailed,
			Method:  credential.MethodOAuth,
			Message: "no refresh token; sign in with Google again",
		}
	}

	ctx, cancel := f.bounded(ctx)
	defer cancel()

	tok, err := f.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, exchangeError("refreshing access token", err)
	}
	return tok, nil
}

// bounded applies the flow timeout to token endpoint calls.
func (f *Flow) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: f.timeout})
	return context.WithTimeout(ctx, f.timeout)
}

// exchangeError wraps a token endpoint failure, attaching the provider's
// error body when there is one.
func exchangeError(action string, err error) *session.AuthError {
	authErr := &session.AuthError{
		Kind:    session.AuthOAuthExchangeFailed,
		Method:  credential.MethodOAuth,
		Message: "Google sign-in failed",
		Err:     fmt.Errorf("%s: %w", action, err),
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		authErr.Payload = string(retrieveErr.Body)
		if retrieveErr.ErrorCode != "" {
			authErr.Message = "Google sign-in failed: " + retrieveErr.ErrorCode
			if retrieveErr.ErrorDescription != "" {
				authErr.Message += " (" + retrieveErr.ErrorDescription + ")"
			}
		}
	}
	return authErr
}
