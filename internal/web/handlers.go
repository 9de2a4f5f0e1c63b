package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/nhle/webmail/internal/app"
	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/model"
)

// controller returns the visitor's controller, issuing a cookie on the
// first visit.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) *app.Controller {
	var id string
	if c, err := r.Cookie(cookieName); err == nil {
		id = c.Value
	}

	newID, ctrl := s.registry.GetOrCreate(id)
	if newID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return ctrl
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.controller(w, r).LoggedIn() {
		http.Redirect(w, r, "/inbox", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) loginView(c *app.Controller) viewData {
	return viewData{Title: "Log in", OAuthEnabled: c.OAuthEnabled()}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if c.LoggedIn() {
		http.Redirect(w, r, "/inbox", http.StatusSeeOther)
		return
	}
	data := s.loginView(c)
	data.Notice = notices[r.URL.Query().Get("notice")]
	s.render(w, http.StatusOK, "login", data)
}

func (s *Server) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if err := r.ParseForm(); err != nil {
		data := s.loginView(c)
		data.Error = "Could not read the login form."
		s.render(w, http.StatusBadRequest, "login", data)
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("email"))
	creds := &credential.AppPassword{
		Email:    email,
		Password: strings.ReplaceAll(r.PostForm.Get("password"), " ", ""),
	}
	if err := c.Login(r.Context(), creds); err != nil {
		data := s.loginView(c)
		data.Error = userMessage(err)
		data.Email = email
		s.render(w, http.StatusUnauthorized, "login", data)
		return
	}
	http.Redirect(w, r, "/inbox", http.StatusSeeOther)
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	authURL, err := c.BeginOAuth()
	if err != nil {
		data := s.loginView(c)
		data.Error = userMessage(err)
		s.render(w, http.StatusNotFound, "login", data)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	q := r.URL.Query()

	if denied := q.Get("error"); denied != "" {
		data := s.loginView(c)
		data.Error = "Google sign-in was cancelled: " + denied
		s.render(w, http.StatusUnauthorized, "login", data)
		return
	}

	if err := c.CompleteOAuth(r.Context(), q.Get("state"), q.Get("code")); err != nil {
		data := s.loginView(c)
		data.Error = userMessage(err)
		s.render(w, http.StatusUnauthorized, "login", data)
		return
	}
	http.Redirect(w, r, "/inbox", http.StatusSeeOther)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if !c.LoggedIn() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	items, err := c.Inbox(r.Context())
	if err != nil {
		s.renderInboxError(w, c, err)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	s.render(w, http.StatusOK, "inbox", viewData{
		Title:     "Inbox",
		Account:   c.Account(),
		Notice:    notices[q.Get("notice")],
		Page:      app.Paginate(items, page, perPage, s.cfg.Display.PageSize),
		PageSizes: model.PageSizes,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if !c.LoggedIn() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if _, err := c.RefreshInbox(r.Context()); err != nil {
		s.renderInboxError(w, c, err)
		return
	}

	target := "/inbox"
	if per := r.FormValue("per_page"); per != "" {
		target += "?per_page=" + strconv.Itoa(atoi(per))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// renderInboxError shows a failed listing. A session that closed on the
// way is sent back to the login page.
func (s *Server) renderInboxError(w http.ResponseWriter, c *app.Controller, err error) {
	if !c.LoggedIn() {
		data := s.loginView(c)
		data.Error = userMessage(err)
		s.render(w, http.StatusUnauthorized, "login", data)
		return
	}
	s.render(w, http.StatusBadGateway, "inbox", viewData{
		Title:     "Inbox",
		Account:   c.Account(),
		Error:     userMessage(err),
		Page:      app.Paginate(nil, 1, s.cfg.Display.PageSize, s.cfg.Display.PageSize),
		PageSizes: model.PageSizes,
	})
}

func (s *Server) handleComposePage(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if !c.LoggedIn() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data := viewData{Title: "Compose", Account: c.Account()}
	q := r.URL.Query()

	var err error
	switch {
	case q.Get("reply") != "":
		data.Title = "Reply"
		data.Draft, err = c.ReplyDraft(q.Get("reply"))
	case q.Get("forward") != "":
		data.Title = "Forward"
		data.Draft, err = c.ForwardDraft(q.Get("forward"))
	}
	if err != nil {
		data.Error = userMessage(err)
	}
	s.render(w, http.StatusOK, "compose", data)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	c := s.controller(w, r)
	if !c.LoggedIn() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "compose", viewData{
			Title:   "Compose",
			Account: c.Account(),
			Error:   "Could not read the compose form.",
		})
		return
	}

	out := model.OutboundMessage{
		To:        strings.TrimSpace(r.PostForm.Get("to")),
		Subject:   strings.TrimSpace(r.PostForm.Get("subject")),
		Body:      r.PostForm.Get("body"),
		InReplyTo: r.PostForm.Get("in_reply_to"),
	}
	data := viewData{Title: "Compose", Account: c.Account(), Draft: out}

	if problems := missingFields(out); len(problems) > 0 {
		data.Errors = problems
		s.render(w, http.StatusUnprocessableEntity, "compose", data)
		return
	}

	if err := c.ComposeAndSend(r.Context(), out); err != nil {
		if !c.LoggedIn() {
			login := s.loginView(c)
			login.Error = userMessage(err)
			s.render(w, http.StatusUnauthorized, "login", login)
			return
		}
		data.Error = userMessage(err)
		s.render(w, http.StatusBadGateway, "compose", data)
		return
	}
	http.Redirect(w, r, "/inbox?notice=sent", http.StatusSeeOther)
}

// missingFields lists the compose fields left blank.
func missingFields(out model.OutboundMessage) []string {
	var problems []string
	if out.To == "" {
		problems = append(problems, "Please enter at least one recipient.")
	}
	if out.Subject == "" {
		problems = append(problems, "Please enter a subject.")
	}
	if strings.TrimSpace(out.Body) == "" {
		problems = append(problems, "Please enter a message.")
	}
	return problems
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil {
		s.registry.Remove(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login?notice=logged_out", http.StatusSeeOther)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
