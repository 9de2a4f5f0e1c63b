// Package web serves the browser interface: login, inbox, compose.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nhle/webmail/internal/app"
	"github.com/nhle/webmail/internal/model"
)

const (
	cookieName      = "webmail_sid"
	readTimeout     = 60 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Options configures a Server.
type Options struct {
	Config   *model.AppConfig
	Registry *app.Registry
	Logger   *slog.Logger
}

// Server binds browser requests to per-visitor controllers.
type Server struct {
	cfg      *model.AppConfig
	registry *app.Registry
	logger   *slog.Logger
	pages    pages
	router   chi.Router
	secure   bool
}

// New builds a server and its routes.
func New(opts Options) (*Server, error) {
	pg, err := loadPages()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      opts.Config,
		registry: opts.Registry,
		logger:   logger,
		pages:    pg,
		secure:   strings.HasPrefix(opts.Config.Server.BaseURL, "https://"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLog(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleRoot)

	r.Get("/login", s.handleLoginPage)
	r.Post("/login/password", s.handlePasswordLogin)
	r.Get("/login/google", s.handleGoogleLogin)
	r.Get("/oauth/callback", s.handleOAuthCallback)

	r.Get("/inbox", s.handleInbox)
	r.Post("/inbox/refresh", s.handleRefresh)

	r.Get("/compose", s.handleComposePage)
	r.Post("/compose", s.handleSend)

	r.Post("/logout", s.handleLogout)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
// and logs out every visitor.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.registry.CloseAll()
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// requestLog logs one line per request once the handler returns.
func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
