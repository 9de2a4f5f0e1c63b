package message

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/webmail/internal/model"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		name    string
		to      string
		want    []string
		wantErr error
	}{
		{name: "empty", to: "", wantErr: ErrNoRecipients},
		{name: "blank", to: "   ", wantErr: ErrNoRecipients},
		{name: "single", to: "a@example.com", want: []string{"a@example.com"}},
		{name: "named list", to: "A <a@example.com>, b@example.com", want: []string{"a@example.com", "b@example.com"}},
		{name: "garbage", to: "not an address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addrs, err := ParseRecipients(tt.to)
			if tt.want == nil {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := Addresses(addrs)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("addresses = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	to, err := ParseRecipients("Bob <bob@example.com>")
	if err != nil {
		t.Fatalf("parsing recipients: %v", err)
	}
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	out := model.OutboundMessage{
		To:        "Bob <bob@example.com>",
		Subject:   "Grüße",
		Body:      "Viele Grüße aus Köln",
		InReplyTo: "<orig@example.com>",
	}

	raw, err := Build("alice@example.com", to, out, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("reading built message: %v", err)
	}
	defer mr.Close()

	if subject, _ := mr.Header.Subject(); subject != out.Subject {
		t.Errorf("subject = %q, want %q", subject, out.Subject)
	}
	if date, _ := mr.Header.Date(); !date.Equal(now) {
		t.Errorf("date = %v, want %v", date, now)
	}
	from, _ := mr.Header.AddressList("From")
	if len(from) != 1 || from[0].Address != "alice@example.com" {
		t.Errorf("from = %v", from)
	}
	rcpt, _ := mr.Header.AddressList("To")
	if len(rcpt) != 1 || rcpt[0].Address != "bob@example.com" {
		t.Errorf("to = %v", rcpt)
	}
	if ids, _ := mr.Header.MsgIDList("In-Reply-To"); len(ids) != 1 || ids[0] != "orig@example.com" {
		t.Errorf("in-reply-to = %v", ids)
	}
	if id, _ := mr.Header.MessageID(); id == "" {
		t.Error("expected a generated Message-Id")
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading body part: %v", err)
	}
	body, _ := io.ReadAll(part.Body)
	if string(body) != out.Body {
		t.Errorf("body = %q, want %q", body, out.Body)
	}
}

func TestBodyText(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "plain",
			raw: crlf(
				"From: a@example.com",
				"Subject: hi",
				"Content-Type: text/plain; charset=utf-8",
				"",
				"  hello there  ",
			),
			want: "hello there",
		},
		{
			name: "latin1",
			raw: append(crlf(
				"Content-Type: text/plain; charset=iso-8859-1",
				"",
				"caf",
			), 0xe9),
			want: "café",
		},
		{
			name: "html fallback skips attachments",
			raw: crlf(
				"Content-Type: multipart/mixed; boundary=XYZ",
				"",
				"--XYZ",
				"Content-Type: text/html; charset=utf-8",
				"",
				"<p>Hello &amp; welcome</p><br>bye",
				"--XYZ",
				"Content-Type: text/plain",
				"Content-Disposition: attachment; filename=notes.txt",
				"",
				"attachment text",
				"--XYZ--",
				"",
			),
			want: "Hello & welcome\n\nbye",
		},
		{
			name: "plain preferred over html",
			raw: crlf(
				"Content-Type: multipart/alternative; boundary=ALT",
				"",
				"--ALT",
				"Content-Type: text/html",
				"",
				"<b>rich</b>",
				"--ALT",
				"Content-Type: text/plain",
				"",
				"plain",
				"--ALT--",
				"",
			),
			want: "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BodyText(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("BodyText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	short := "short body"
	if got := Snippet(short); got != short {
		t.Errorf("Snippet(short) = %q", got)
	}

	exact := strings.Repeat("a", SnippetLen)
	if got := Snippet(exact); got != exact {
		t.Error("a body of exactly SnippetLen characters must not be truncated")
	}

	long := strings.Repeat("é", SnippetLen+10)
	got := Snippet(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got suffix %q", got[len(got)-5:])
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != SnippetLen {
		t.Errorf("kept %d runes, want %d", n, SnippetLen)
	}
}

func TestFormatSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "bob@example.com", want: "bob@example.com"},
		{in: `"Bob Smith" <bob@example.com>`, want: "Bob Smith <bob@example.com>"},
		{in: "=?UTF-8?Q?J=C3=BCrgen?= <j@example.com>", want: "Jürgen <j@example.com>"},
	}
	for _, tt := range tests {
		if got := FormatSender(tt.in); got != tt.want {
			t.Errorf("FormatSender(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	for _, in := range []string{
		"Tue, 02 Jan 2024 15:04:05 +0000",
		"2024-01-02T15:04:05Z",
	} {
		if got := ParseDate(in); !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v", in, got)
		}
	}
	if got := ParseDate("yesterday"); !got.IsZero() {
		t.Errorf("unparsable date should be zero, got %v", got)
	}
}

func TestDrafts(t *testing.T) {
	m := model.MessageSummary{
		Sender:    "Bob <bob@example.com>",
		Subject:   "Lunch",
		Snippet:   "Noon?\nAt the usual place",
		Timestamp: time.Date(2024, 2, 3, 12, 0, 0, 0, time.UTC),
		MessageID: "lunch@example.com",
	}

	reply := Reply(m)
	if reply.To != m.Sender || reply.Subject != "Re: Lunch" || reply.InReplyTo != m.MessageID {
		t.Errorf("reply = %+v", reply)
	}
	if !strings.Contains(reply.Body, "> Noon?\n> At the usual place") {
		t.Errorf("reply body does not quote the original: %q", reply.Body)
	}
	if again := ReplySubject(reply.Subject); again != "Re: Lunch" {
		t.Errorf("double prefix: %q", again)
	}

	fwd := Forward(m)
	if fwd.To != "" || fwd.Subject != "Fwd: Lunch" || fwd.InReplyTo != "" {
		t.Errorf("forward = %+v", fwd)
	}
	if !strings.Contains(fwd.Body, "Forwarded message") || !strings.Contains(fwd.Body, "From: Bob <bob@example.com>") {
		t.Errorf("forward body = %q", fwd.Body)
	}
	if ForwardSubject("FW: x") != "FW: x" {
		t.Error("existing forward prefix should be kept")
	}
}

func TestSubjectOrDefault(t *testing.T) {
	if got := SubjectOrDefault("  "); got != "No Subject" {
		t.Errorf("blank subject = %q", got)
	}
	if got := SubjectOrDefault("=?UTF-8?Q?Caf=C3=A9?="); got != "Café" {
		t.Errorf("encoded subject = %q", got)
	}
}
