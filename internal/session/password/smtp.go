package password

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/nhle/webmail/internal/session"
)

// smtpSender submits messages for one account.
type smtpSender struct {
	cfg      Config
	username string
	password string
}

// send delivers raw to every recipient in one SMTP transaction.
func (s *smtpSender) send(ctx context.Context, from string, to []string, raw []byte) error {
	ep := s.cfg.SMTP
	conn, release, err := dial(ctx, ep, s.cfg)
	if err != nil {
		return session.NewSendError(session.SendTransportFailure, err)
	}
	defer release()

	var client *smtp.Client
	if ep.Security == SecuritySTARTTLS {
		client, err = smtp.NewClientStartTLS(conn, s.cfg.tlsConfig(ep.Host))
		if err != nil {
			return session.NewSendError(session.SendTransportFailure, fmt.Errorf("SMTP STARTTLS: %w", err))
		}
	} else {
		client = smtp.NewClient(conn)
	}
	defer client.Close()

	if err := client.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
		return classifySMTP(fmt.Errorf("SMTP auth: %w", err), false)
	}

	if err := client.Mail(from, nil); err != nil {
		return classifySMTP(fmt.Errorf("SMTP MAIL FROM: %w", err), false)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return classifySMTP(fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err), true)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return classifySMTP(fmt.Errorf("SMTP DATA: %w", err), false)
	}
	if _, err := writer.Write(raw); err != nil {
		return classifySMTP(fmt.Errorf("writing message: %w", err), false)
	}
	if err := writer.Close(); err != nil {
		return classifySMTP(fmt.Errorf("closing message: %w", err), false)
	}

	// The message is accepted once DATA completes.
	_ = client.Quit()
	return nil
}

// classifySMTP maps a server reply to a SendError kind. Permanent
// failures on RCPT mean the recipient was refused.
func classifySMTP(err error, rcpt bool) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch {
		case smtpErr.Code == 535 || smtpErr.Code == 530:
			return session.NewSendError(session.SendAuthorizationRejected, err)
		case rcpt && smtpErr.Code >= 500 && smtpErr.Code < 600:
			return session.NewSendError(session.SendInvalidRecipient, err)
		}
	}
	return session.NewSendError(session.SendTransportFailure, err)
}
