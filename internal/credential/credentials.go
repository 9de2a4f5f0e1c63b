// Package credential holds the secrets a mail session authenticates with:
// an app password pair or an OAuth client plus its tokens.
package credential

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nhle/webmail/internal/model"
)

// Method identifies which login variant a set of credentials belongs to.
type Method string

const (
	MethodAppPassword Method = "app_password"
	MethodOAuth       Method = "oauth"
)

// Credentials is one of *AppPassword or *OAuth.
type Credentials interface {
	// Method returns the login variant these credentials are for.
	Method() Method

	// Wipe clears every secret held in memory.
	Wipe()
}

// AppPassword is an account address plus a provider-generated app password.
type AppPassword struct {
	Email    string
	Password string
}

// Method implements Credentials.
func (a *AppPassword) Method() Method { return MethodAppPassword }

// Wipe implements Credentials.
func (a *AppPassword) Wipe() {
	a.Email = ""
	a.Password = ""
}

// Complete reports whether both fields are non-blank.
func (a *AppPassword) Complete() bool {
	return strings.TrimSpace(a.Email) != "" && a.Password != ""
}

// OAuth carries the client registration plus either an authorization code
// (first login) or previously issued tokens.
type OAuth struct {
	ClientID     string
	ClientSecret string

	// AuthCode is the one-time code returned to the redirect URL.
	AuthCode string

	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Method implements Credentials.
func (o *OAuth) Method() Method { return MethodOAuth }

// Wipe implements Credentials.
func (o *OAuth) Wipe() {
	o.ClientSecret = ""
	o.AuthCode = ""
	o.AccessToken = ""
	o.RefreshToken = ""
	o.Expiry = time.Time{}
}

// Token returns the held tokens in oauth2 form.
func (o *OAuth) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  o.AccessToken,
		RefreshToken: o.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       o.Expiry,
	}
}

// SetToken stores tok, keeping the current refresh token when the
// provider did not issue a new one.
func (o *OAuth) SetToken(tok *oauth2.Token) {
	o.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		o.RefreshToken = tok.RefreshToken
	}
	o.Expiry = tok.Expiry
	o.AuthCode = ""
}

// OAuthClient is the client registration loaded from configuration.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Credentials returns OAuth credentials for an authorization code.
func (c OAuthClient) Credentials(code string) *OAuth {
	return &OAuth{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		AuthCode:     code,
	}
}

// SecretSource supplies the OAuth client secret kept outside the config
// file. *SecretStore satisfies it.
type SecretSource interface {
	ClientSecret() (string, error)
}

// ResolveOAuthClient builds the OAuth client from configuration, taking
// the secret from secrets when the config leaves it empty. ok is false
// when no usable client is configured, in which case only app-password
// login is offered.
func ResolveOAuthClient(cfg model.OAuthConfig, secrets SecretSource) (OAuthClient, bool, error) {
	if !cfg.HasClientID() {
		return OAuthClient{}, false, nil
	}

	secret := strings.TrimSpace(cfg.ClientSecret)
	if secret == "" && secrets != nil {
		stored, err := secrets.ClientSecret()
		if err != nil && !errors.Is(err, ErrNotFound) {
			return OAuthClient{}, false, err
		}
		secret = strings.TrimSpace(stored)
	}
	if secret == "" {
		return OAuthClient{}, false, nil
	}

	return OAuthClient{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: secret,
		RedirectURL:  cfg.RedirectURL,
	}, true, nil
}
