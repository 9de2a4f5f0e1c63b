package testutil

import (
	"crypto/tls"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Delivery is one message accepted by the mock SMTP server.
type Delivery struct {
	From string
	To   []string
	Data []byte
	// TLS reports whether the transaction ran over an encrypted channel.
	TLS bool
}

// SMTPServer is a listening mock submission server.
type SMTPServer struct {
	*Server

	backend *smtpBackend
}

// Deliveries returns the messages accepted so far.
func (s *SMTPServer) Deliveries() []Delivery {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	out := make([]Delivery, len(s.backend.deliveries))
	copy(out, s.backend.deliveries)
	return out
}

// Connections returns how many clients have connected.
func (s *SMTPServer) Connections() int {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.backend.connections
}

// NewSMTPServer starts a plaintext SMTP server on 127.0.0.1 that accepts
// AUTH PLAIN for one account. RCPT is refused with 550 for any address in
// reject.
func NewSMTPServer(t testing.TB, username, password string, reject ...string) *SMTPServer {
	t.Helper()
	return newSMTPServer(t, username, password, nil, reject)
}

// NewSMTPServerSTARTTLS is NewSMTPServer offering STARTTLS with cfg, as on
// port 587. AUTH is refused until the client has upgraded.
func NewSMTPServerSTARTTLS(t testing.TB, username, password string, cfg *tls.Config, reject ...string) *SMTPServer {
	t.Helper()
	return newSMTPServer(t, username, password, cfg, reject)
}

func newSMTPServer(t testing.TB, username, password string, tlsCfg *tls.Config, reject []string) *SMTPServer {
	t.Helper()

	be := &smtpBackend{
		username: username,
		password: password,
		reject:   make(map[string]bool),
	}
	for _, addr := range reject {
		be.reject[strings.ToLower(addr)] = true
	}

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = tlsCfg == nil
	srv.TLSConfig = tlsCfg

	return &SMTPServer{
		Server:  serve(t, "SMTP", nil, srv.Serve, srv.Close),
		backend: be,
	}
}

type smtpBackend struct {
	username string
	password string
	reject   map[string]bool

	mu          sync.Mutex
	connections int
	deliveries  []Delivery
}

func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.mu.Lock()
	b.connections++
	b.mu.Unlock()
	return &smtpSession{backend: b, conn: c}, nil
}

type smtpSession struct {
	backend *smtpBackend
	conn    *smtp.Conn
	authed  bool
	from    string
	to      []string
}

var errAuthRequired = &smtp.SMTPError{
	Code:         530,
	EnhancedCode: smtp.EnhancedCode{5, 7, 0},
	Message:      "Authentication required",
}

func (s *smtpSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *smtpSession) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, smtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return smtp.ErrAuthFailed
		}
		s.authed = true
		return nil
	}), nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if !s.authed {
		return errAuthRequired
	}
	if s.backend.reject[strings.ToLower(to)] {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "No such user",
		}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	if len(s.to) == 0 {
		return errors.New("no valid recipients")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	_, isTLS := s.conn.TLSConnectionState()

	s.backend.mu.Lock()
	s.backend.deliveries = append(s.backend.deliveries, Delivery{
		From: s.from,
		To:   append([]string(nil), s.to...),
		Data: data,
		TLS:  isTLS,
	})
	s.backend.mu.Unlock()
	return nil
}

func (s *smtpSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *smtpSession) Logout() error {
	return nil
}
