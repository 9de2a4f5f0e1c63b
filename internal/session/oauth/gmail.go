package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/nhle/webmail/internal/message"
	"github.com/nhle/webmail/internal/model"
)

// metadataHeaders are the headers requested for each listed message.
var metadataHeaders = []string{"From", "Subject", "Date", "Message-ID"}

// mailAPI is the narrow Gmail surface the session needs.
type mailAPI interface {
	ListInbox(ctx context.Context, max int) ([]string, error)
	GetMetadata(ctx context.Context, id string) (*gmail.Message, error)
	SendRaw(ctx context.Context, raw []byte) error
	Email(ctx context.Context) (string, error)
}

// googleClient adapts the generated Gmail and userinfo services.
type googleClient struct {
	gmail    *gmail.Service
	userinfo *oauth2api.Service
}

// newGoogleClient authorizes every request with tok. Refresh is handled
// by the session, so the token source never renews on its own.
func newGoogleClient(ctx context.Context, tok *oauth2.Token, endpoint string, timeout time.Duration) (*googleClient, error) {
	hc := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(tok)},
		Timeout:   timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}

	gsvc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	usvc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo service: %w", err)
	}
	return &googleClient{gmail: gsvc, userinfo: usvc}, nil
}

func (g *googleClient) ListInbox(ctx context.Context, max int) ([]string, error) {
	res, err := g.gmail.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (g *googleClient) GetMetadata(ctx context.Context, id string) (*gmail.Message, error) {
	return g.gmail.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
}

func (g *googleClient) SendRaw(ctx context.Context, raw []byte) error {
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	_, err := g.gmail.Users.Messages.Send("me", msg).Context(ctx).Do()
	return err
}

func (g *googleClient) Email(ctx context.Context) (string, error) {
	info, err := g.userinfo.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return info.Email, nil
}

// apiStatus returns the HTTP status of a Gmail API error, or 0.
func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// summaryFromMessage builds a MessageSummary from a metadata-format message.
func summaryFromMessage(m *gmail.Message) (model.MessageSummary, error) {
	if m == nil || m.Payload == nil {
		return model.MessageSummary{}, errors.New("missing payload")
	}

	headers := make(map[string]string, len(m.Payload.Headers))
	for _, h := range m.Payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}

	summary := model.MessageSummary{
		ID:        m.Id,
		Sender:    message.FormatSender(headers["from"]),
		Subject:   message.SubjectOrDefault(headers["subject"]),
		Snippet:   message.Snippet(html.UnescapeString(m.Snippet)),
		MessageID: strings.Trim(headers["message-id"], "<> "),
		Read:      true,
	}
	if m.InternalDate > 0 {
		summary.Timestamp = time.UnixMilli(m.InternalDate).UTC()
	} else {
		summary.Timestamp = message.ParseDate(headers["date"])
	}
	for _, label := range m.LabelIds {
		if label == "UNREAD" {
			summary.Read = false
		}
	}

	return summary, nil
}
