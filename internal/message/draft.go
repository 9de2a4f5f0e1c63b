package message

import (
	"strings"

	"github.com/nhle/webmail/internal/model"
)

const dateLayout = "Mon, 02 Jan 2006 15:04"

// ReplySubject prefixes subject with "Re: " unless it already has it.
func ReplySubject(subject string) string {
	if hasPrefixFold(subject, "re:") {
		return subject
	}
	return "Re: " + subject
}

// ForwardSubject prefixes subject with "Fwd: " unless it already carries
// a forward prefix.
func ForwardSubject(subject string) string {
	if hasPrefixFold(subject, "fwd:") || hasPrefixFold(subject, "fw:") {
		return subject
	}
	return "Fwd: " + subject
}

// Reply returns a draft answering m.
func Reply(m model.MessageSummary) model.OutboundMessage {
	var b strings.Builder
	b.WriteString("\n\n")
	if !m.Timestamp.IsZero() {
		b.WriteString("On " + m.Timestamp.Format(dateLayout) + ", ")
	}
	b.WriteString(m.Sender + " wrote:\n")
	for _, line := range strings.Split(m.Snippet, "\n") {
		b.WriteString("> " + line + "\n")
	}

	return model.OutboundMessage{
		To:        m.Sender,
		Subject:   ReplySubject(m.Subject),
		Body:      b.String(),
		InReplyTo: m.MessageID,
	}
}

// Forward returns a draft forwarding m to a recipient the user picks.
func Forward(m model.MessageSummary) model.OutboundMessage {
	var b strings.Builder
	b.WriteString("\n\n---------- Forwarded message ---------\n")
	b.WriteString("From: " + m.Sender + "\n")
	if !m.Timestamp.IsZero() {
		b.WriteString("Date: " + m.Timestamp.Format(dateLayout) + "\n")
	}
	b.WriteString("Subject: " + m.Subject + "\n\n")
	b.WriteString(m.Snippet + "\n")

	return model.OutboundMessage{
		Subject: ForwardSubject(m.Subject),
		Body:    b.String(),
	}
}

func hasPrefixFold(s, prefix string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
