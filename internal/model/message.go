package model

import "time"

// MessageSummary is the read-only view of one inbox message, as produced
// by either login method. Summaries are never written back to the server.
type MessageSummary struct {
	// ID is the message identifier within its session (an IMAP UID or a
	// Gmail message id).
	ID string `json:"id"`

	// Sender is the display form of the From header ("Name <addr>").
	Sender string `json:"sender"`

	// Subject is the decoded subject line.
	Subject string `json:"subject"`

	// Snippet is a short plain-text preview of the body.
	Snippet string `json:"snippet"`

	// Timestamp is when the message was sent (or received, when the
	// Date header is missing).
	Timestamp time.Time `json:"timestamp"`

	// Read reports whether the message has been seen.
	Read bool `json:"read"`

	// MessageID is the RFC 5322 Message-ID, used for In-Reply-To.
	MessageID string `json:"message_id,omitempty"`
}

// OutboundMessage is a message composed by the user. It is consumed by a
// single send attempt and carries no retry state.
type OutboundMessage struct {
	// To is an RFC 5322 address list ("a@example.com, B <b@example.com>").
	To string `json:"to"`

	Subject string `json:"subject"`

	Body string `json:"body"`

	// InReplyTo is the Message-ID being answered, if any.
	InReplyTo string `json:"in_reply_to,omitempty"`
}
