package message

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// SnippetLen is the number of characters kept in a body preview.
const SnippetLen = 500

// BodyText extracts the readable body of a raw RFC 5322 message: the
// first inline text/plain part, or the tag-stripped text/html part when
// no plain text exists. Attachments are ignored.
func BodyText(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return "", fmt.Errorf("parsing message: %w", err)
	}
	defer mr.Close()

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if textBody == "" && htmlBody == "" {
				return "", fmt.Errorf("reading message part: %w", err)
			}
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case contentType == "" || strings.HasPrefix(contentType, "text/plain"):
			if textBody == "" {
				textBody = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if htmlBody == "" {
				htmlBody = string(body)
			}
		}
	}

	if textBody == "" && htmlBody != "" {
		return StripHTML(htmlBody), nil
	}
	return strings.TrimSpace(textBody), nil
}

// Snippet truncates text to SnippetLen characters, appending "..." when
// anything was cut.
func Snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= SnippetLen {
		return text
	}
	return string(runes[:SnippetLen]) + "..."
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

var blockEnds = strings.NewReplacer(
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"</p>", "\n", "</div>", "\n", "</li>", "\n", "</tr>", "\n",
)

// StripHTML removes tags and decodes entities, giving a basic plain-text
// rendering of an HTML body.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}

	result := blockEnds.Replace(s)
	result = htmlTagPattern.ReplaceAllString(result, "")
	result = html.UnescapeString(result)
	result = strings.ReplaceAll(result, "\u00a0", " ")

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
