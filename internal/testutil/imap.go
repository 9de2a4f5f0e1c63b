// Package testutil provides in-process mail servers for tests.
package testutil

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
)

// Message is one message seeded into a mock INBOX.
type Message struct {
	Raw  []byte
	Date time.Time
	Seen bool
}

// TextMessage returns a plain-text RFC 5322 message dated date.
func TextMessage(from, subject, body string, date time.Time) Message {
	id := fmt.Sprintf("%d.%s", date.UnixNano(), localPart(from))
	raw := strings.Join([]string{
		"From: " + from,
		"To: user@example.com",
		"Subject: " + subject,
		"Date: " + date.Format(time.RFC1123Z),
		"Message-Id: <" + id + "@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	return Message{Raw: []byte(raw), Date: date}
}

// localPart returns the mailbox name of from, reduced to characters that
// are safe inside a msg-id.
func localPart(from string) string {
	addr := from
	if a, err := mail.ParseAddress(from); err == nil {
		addr = a.Address
	}
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[:i]
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return -1
	}, addr)
	if safe == "" {
		return "msg"
	}
	return safe
}

// Server is a listening mock server.
type Server struct {
	Host string
	Port string
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// NewIMAPServer starts an in-memory IMAP server on 127.0.0.1 with one
// account whose INBOX holds msgs in the given order. The server accepts
// plaintext LOGIN and is shut down when the test completes.
func NewIMAPServer(t testing.TB, username, password string, msgs []Message) *Server {
	t.Helper()
	return newIMAPServer(t, username, password, msgs, nil)
}

// NewIMAPServerTLS is NewIMAPServer speaking implicit TLS with cfg from
// the first byte, as on port 993.
func NewIMAPServerTLS(t testing.TB, username, password string, msgs []Message, cfg *tls.Config) *Server {
	t.Helper()
	return newIMAPServer(t, username, password, msgs, cfg)
}

func newIMAPServer(t testing.TB, username, password string, msgs []Message, tlsCfg *tls.Config) *Server {
	t.Helper()

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(username, password)
	// INBOX may already exist for a new user.
	_ = user.Create("INBOX", nil)
	for i, m := range msgs {
		opts := &imap.AppendOptions{Time: m.Date}
		if m.Seen {
			opts.Flags = []imap.Flag{imap.FlagSeen}
		}
		if _, err := user.Append("INBOX", bytes.NewReader(m.Raw), opts); err != nil {
			t.Fatalf("appending message %d: %v", i, err)
		}
	}
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
		},
		InsecureAuth: true,
	})

	return serve(t, "IMAP", tlsCfg, srv.Serve, srv.Close)
}

// serve runs a server on a fresh local port. A non-nil tlsCfg wraps the
// listener so every accepted connection is TLS.
func serve(t testing.TB, name string, tlsCfg *tls.Config, run func(net.Listener) error, stop func() error) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening for %s: %v", name, err)
	}
	addr := ln.Addr().String()
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = run(ln)
	}()

	t.Cleanup(func() {
		_ = stop()
		_ = ln.Close()
		<-done
	})

	host, port, _ := net.SplitHostPort(addr)
	return &Server{Host: host, Port: port}
}

// ClosedPort returns a local address nothing is listening on.
func ClosedPort(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	_ = ln.Close()
	return &Server{Host: host, Port: port}
}
