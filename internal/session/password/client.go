package password

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/webmail/internal/message"
	"github.com/nhle/webmail/internal/model"
)

// errLoginRejected marks a LOGIN the server answered with NO.
var errLoginRejected = errors.New("login rejected")

// imapClient runs short IMAP conversations for one account.
type imapClient struct {
	cfg      Config
	username string
	password string
}

// connect dials the IMAP server and logs in. The returned func logs out
// and closes the connection.
func (c *imapClient) connect(ctx context.Context) (*imapclient.Client, func(), error) {
	ep := c.cfg.IMAP
	conn, release, err := dial(ctx, ep, c.cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := &imapclient.Options{
		TLSConfig:   c.cfg.tlsConfig(ep.Host),
		WordDecoder: message.WordDecoder,
	}

	var client *imapclient.Client
	if ep.Security == SecuritySTARTTLS {
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("IMAP STARTTLS: %w", err)
		}
	} else {
		client = imapclient.New(conn, opts)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		release()
		if isLoginRejection(err) {
			return nil, nil, fmt.Errorf("%w for %s: %v", errLoginRejected, c.username, err)
		}
		return nil, nil, fmt.Errorf("IMAP login: %w", err)
	}

	done := func() {
		_ = client.Logout().Wait()
		_ = client.Close()
		release()
	}
	return client, done, nil
}

func isLoginRejection(err error) bool {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return false
	}
	return imapErr.Type == imap.StatusResponseTypeNo ||
		imapErr.Code == imap.ResponseCodeAuthenticationFailed
}

// fetchRecent selects INBOX read-only and fetches the last limit messages
// by sequence number. Messages that cannot be parsed are skipped.
func (c *imapClient) fetchRecent(ctx context.Context, limit int) ([]model.MessageSummary, error) {
	client, done, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	sel, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}
	if sel.NumMessages == 0 {
		return nil, nil
	}

	start := uint32(1)
	if sel.NumMessages > uint32(limit) {
		start = sel.NumMessages - uint32(limit) + 1
	}
	var seqSet imap.SeqSet
	seqSet.AddRange(start, sel.NumMessages)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(seqSet, fetchOpts)
	defer fetchCmd.Close()

	logger := c.cfg.logger()
	summaries := make([]model.MessageSummary, 0, sel.NumMessages-start+1)
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			logger.Warn("skipping unreadable message", "seq", msg.SeqNum, "error", err)
			continue
		}

		summary, err := summaryFromBuffer(buf, bodySection)
		if err != nil {
			logger.Warn("skipping unparsable message", "seq", buf.SeqNum, "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	return summaries, nil
}

// summaryFromBuffer builds a MessageSummary from a fetched message.
func summaryFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
) (model.MessageSummary, error) {
	env := buf.Envelope
	if env == nil {
		return model.MessageSummary{}, errors.New("missing envelope")
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return model.MessageSummary{}, errors.New("missing body")
	}
	body, err := message.BodyText(raw)
	if err != nil {
		return model.MessageSummary{}, err
	}

	id := strconv.FormatUint(uint64(buf.UID), 10)
	if buf.UID == 0 {
		id = strconv.FormatUint(uint64(buf.SeqNum), 10)
	}

	summary := model.MessageSummary{
		ID:        id,
		Subject:   message.SubjectOrDefault(env.Subject),
		Snippet:   message.Snippet(body),
		Timestamp: env.Date,
		MessageID: env.MessageID,
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = buf.InternalDate
	}
	if len(env.From) > 0 {
		from := env.From[0]
		summary.Sender = message.FormatAddress(from.Name, from.Addr())
	}
	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			summary.Read = true
		}
	}

	return summary, nil
}
