package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/nhle/webmail/internal/app"
	"github.com/nhle/webmail/internal/model"
	"github.com/nhle/webmail/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const dateLayout = "Jan 2, 2006 15:04"

var funcs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format(dateLayout)
	},
	"prev": func(n int) int { return n - 1 },
	"next": func(n int) int { return n + 1 },
}

// pages holds one template set per page, each sharing the layout.
type pages map[string]*template.Template

func loadPages() (pages, error) {
	out := make(pages)
	for _, name := range []string{"login", "inbox", "compose"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// viewData is what every page renders from.
type viewData struct {
	Title   string
	Account string
	Error   string
	Errors  []string
	Notice  string

	// login
	OAuthEnabled bool
	Email        string

	// inbox
	Page      app.Page
	PageSizes []int

	// compose
	Draft model.OutboundMessage
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data viewData) {
	t, ok := s.pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("rendering page", "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// notices are the fixed messages a redirect may ask a page to show.
var notices = map[string]string{
	"sent":       "Message sent.",
	"logged_out": "You have been logged out.",
}

// userMessage turns an operation error into the text shown to the user.
func userMessage(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}

	var sendErr *session.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Kind {
		case session.SendInvalidRecipient:
			return "Could not send: invalid recipient. " + err.Error()
		case session.SendAuthorizationRejected:
			return "Could not send: the server refused authorization. " + err.Error()
		default:
			return "Could not send: " + err.Error()
		}
	}

	switch {
	case errors.Is(err, app.ErrStateMismatch):
		return "Google sign-in could not be verified. Please try again."
	case errors.Is(err, app.ErrOAuthDisabled):
		return "Google sign-in is not configured. Use an App Password instead."
	case errors.Is(err, app.ErrMessageNotFound):
		return "That message is no longer in the inbox listing."
	case session.IsFetchError(err):
		return "Could not load messages: " + err.Error()
	}
	return err.Error()
}
