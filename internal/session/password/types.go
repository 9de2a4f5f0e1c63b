package password

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nhle/webmail/internal/model"
)

// Security selects how a mail connection is encrypted.
type Security string

const (
	// SecurityTLS encrypts from the first byte (IMAP 993, SMTP 465).
	SecurityTLS Security = "tls"

	// SecuritySTARTTLS upgrades a plaintext connection (SMTP 587).
	SecuritySTARTTLS Security = "starttls"

	// SecurityNone leaves the connection in plaintext. Local test servers only.
	SecurityNone Security = "none"
)

// ParseSecurity validates a configured security mode.
func ParseSecurity(s string) (Security, error) {
	switch sec := Security(strings.ToLower(strings.TrimSpace(s))); sec {
	case SecurityTLS, SecuritySTARTTLS, SecurityNone:
		return sec, nil
	case "":
		return SecurityTLS, nil
	default:
		return "", fmt.Errorf("unknown security mode %q (want tls, starttls or none)", s)
	}
}

// Endpoint is a mail server address plus its security mode.
type Endpoint struct {
	Host     string
	Port     string
	Security Security
}

// Config holds the IMAP and SMTP endpoints a password session talks to.
type Config struct {
	IMAP Endpoint
	SMTP Endpoint

	// Timeout bounds each connection from dial to logout.
	Timeout time.Duration

	// TLSConfig overrides the client TLS settings; ServerName is filled
	// in per endpoint when empty.
	TLSConfig *tls.Config

	Logger *slog.Logger
}

// ConfigFromMail builds a Config from the application mail settings.
func ConfigFromMail(m model.MailConfig, logger *slog.Logger) (Config, error) {
	imapSec, err := ParseSecurity(m.IMAPSecurity)
	if err != nil {
		return Config{}, fmt.Errorf("imap: %w", err)
	}
	smtpSec, err := ParseSecurity(m.SMTPSecurity)
	if err != nil {
		return Config{}, fmt.Errorf("smtp: %w", err)
	}

	return Config{
		IMAP:    Endpoint{Host: m.IMAPHost, Port: m.IMAPPort, Security: imapSec},
		SMTP:    Endpoint{Host: m.SMTPHost, Port: m.SMTPPort, Security: smtpSec},
		Timeout: m.Timeout(),
		Logger:  logger,
	}, nil
}

func (c Config) tlsConfig(host string) *tls.Config {
	cfg := &tls.Config{}
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
