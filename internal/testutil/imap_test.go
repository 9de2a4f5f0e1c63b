package testutil

import (
	"bytes"
	"net/mail"
	"testing"
	"time"
)

func TestTextMessage_MessageID(t *testing.T) {
	date := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		from string
		want string
	}{
		{"Sender <sender@example.com>", "<1711962000000000000.sender@example.com>"},
		{"bob@example.com", "<1711962000000000000.bob@example.com>"},
		{"\"Name, With Comma\" <a+b@example.com>", "<1711962000000000000.ab@example.com>"},
		{"not an address", "<1711962000000000000.notanaddress@example.com>"},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			msg, err := mail.ReadMessage(bytes.NewReader(TextMessage(tt.from, "s", "b", date).Raw))
			if err != nil {
				t.Fatalf("reading message: %v", err)
			}
			if got := msg.Header.Get("Message-Id"); got != tt.want {
				t.Errorf("Message-Id = %q, want %q", got, tt.want)
			}
		})
	}
}
