// Package message builds and inspects the RFC 5322 messages exchanged
// with the mail provider by both login methods.
package message

import (
	"io"
	"mime"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

func init() {
	gomessage.CharsetReader = CharsetReader
}

// CharsetReader converts input in the named charset to UTF-8. Unknown
// charsets are passed through unchanged.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	if charset == "" {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// WordDecoder decodes RFC 2047 encoded-words in any charset CharsetReader
// knows about.
var WordDecoder = &mime.WordDecoder{CharsetReader: CharsetReader}

// DecodeHeader decodes encoded-words in a raw header value, returning the
// value unchanged when it is not valid RFC 2047.
func DecodeHeader(value string) string {
	dec, err := WordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return dec
}

// FormatAddress renders a mailbox as "Name <addr>", or the bare address
// when there is no display name.
func FormatAddress(name, addr string) string {
	name = strings.TrimSpace(DecodeHeader(name))
	switch {
	case addr == "":
		return name
	case name == "" || name == addr:
		return addr
	default:
		return name + " <" + addr + ">"
	}
}

// FormatSender renders the first address of a From header value.
func FormatSender(from string) string {
	if from == "" {
		return ""
	}
	addrs, err := mail.ParseAddressList(from)
	if err != nil || len(addrs) == 0 {
		return DecodeHeader(from)
	}
	return FormatAddress(addrs[0].Name, addrs[0].Address)
}

// ParseDate parses a Date header, trying common non-conforming layouts
// after RFC 5322. It returns the zero time when nothing matches.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	var h mail.Header
	h.Set("Date", value)
	if t, err := h.Date(); err == nil && !t.IsZero() {
		return t
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SubjectOrDefault returns the decoded subject, or "No Subject" when blank.
func SubjectOrDefault(subject string) string {
	subject = strings.TrimSpace(DecodeHeader(subject))
	if subject == "" {
		return "No Subject"
	}
	return subject
}
