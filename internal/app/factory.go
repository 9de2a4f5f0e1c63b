package app

import (
	"fmt"
	"log/slog"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/session"
	"github.com/nhle/webmail/internal/session/oauth"
	"github.com/nhle/webmail/internal/session/password"
)

// NewSessionFactory returns the factory that builds real sessions from
// cfg: IMAP/SMTP for app passwords, the Gmail API for OAuth.
func NewSessionFactory(cfg *model.AppConfig, logger *slog.Logger) (SessionFactory, error) {
	pwCfg, err := password.ConfigFromMail(cfg.Mail, logger)
	if err != nil {
		return nil, fmt.Errorf("mail config: %w", err)
	}
	oaCfg := oauth.Config{
		RedirectURL: cfg.OAuth.RedirectURL,
		Timeout:     cfg.Mail.Timeout(),
		Logger:      logger,
	}

	return func(method credential.Method) (session.Session, error) {
		switch method {
		case credential.MethodAppPassword:
			return password.New(pwCfg), nil
		case credential.MethodOAuth:
			return oauth.New(oaCfg), nil
		default:
			return nil, fmt.Errorf("unknown login method %q", method)
		}
	}, nil
}
