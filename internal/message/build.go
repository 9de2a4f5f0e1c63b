package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/webmail/internal/model"
)

// ErrNoRecipients is returned when the To field holds no address.
var ErrNoRecipients = errors.New("no recipients")

// ParseRecipients parses an RFC 5322 address list such as
// "a@example.com, B <b@example.com>".
func ParseRecipients(to string) ([]*mail.Address, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, ErrNoRecipients
	}

	addrs, err := mail.ParseAddressList(to)
	if err != nil {
		return nil, fmt.Errorf("parsing recipients %q: %w", to, err)
	}
	if len(addrs) == 0 {
		return nil, ErrNoRecipients
	}
	return addrs, nil
}

// Build renders out as a single-part text/plain message from the given
// sender. The From header is omitted when from is empty. The body is
// quoted-printable encoded.
func Build(
	from string,
	to []*mail.Address,
	out model.OutboundMessage,
	now time.Time,
) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	if from != "" {
		h.SetAddressList("From", []*mail.Address{{Address: from}})
	}
	h.SetAddressList("To", to)
	h.SetSubject(out.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	if id := strings.Trim(out.InReplyTo, "<> "); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, out.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}

	return buf.Bytes(), nil
}

// Addresses returns the bare addresses of addrs, for SMTP RCPT commands.
func Addresses(addrs []*mail.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
