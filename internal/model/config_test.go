package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Mail.IMAPHost != "imap.gmail.com" || cfg.Mail.IMAPPort != "993" {
		t.Errorf("imap = %s:%s, want imap.gmail.com:993", cfg.Mail.IMAPHost, cfg.Mail.IMAPPort)
	}
	if cfg.Mail.SMTPHost != "smtp.gmail.com" || cfg.Mail.SMTPPort != "587" {
		t.Errorf("smtp = %s:%s, want smtp.gmail.com:587", cfg.Mail.SMTPHost, cfg.Mail.SMTPPort)
	}
	if cfg.Mail.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.Mail.Timeout())
	}
	if cfg.Mail.FetchLimit != 100 {
		t.Errorf("fetch limit = %d, want 100", cfg.Mail.FetchLimit)
	}
	if cfg.Display.PageSize != 25 {
		t.Errorf("page size = %d, want 25", cfg.Display.PageSize)
	}
	if cfg.Server.IdleTimeout() != 30*time.Minute || cfg.Server.MaxVisitors != 10000 {
		t.Errorf("visitor limits = %v/%d, want 30m/10000", cfg.Server.IdleTimeout(), cfg.Server.MaxVisitors)
	}
	if cfg.OAuth.RedirectURL != "http://localhost:8501/oauth/callback" {
		t.Errorf("redirect url = %q", cfg.OAuth.RedirectURL)
	}
	if cfg.OAuth.HasClientID() {
		t.Error("default config should not carry an OAuth client")
	}
}

func TestLoadConfig_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  addr: ":9000"
  base_url: "https://mail.example.com/"
  idle_minutes: 5
  max_visitors: -1
mail:
  imap_host: imap.example.com
  fetch_limit: 40
display:
  page_size: 13
google_oauth:
  client_id: "1234.apps.googleusercontent.com"
  client_secret: "s3cret"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.IdleTimeout() != 5*time.Minute {
		t.Errorf("idle timeout = %v, want 5m", cfg.Server.IdleTimeout())
	}
	if cfg.Server.MaxVisitors != 10000 {
		t.Errorf("invalid max visitors should fall back to 10000, got %d", cfg.Server.MaxVisitors)
	}
	if cfg.Mail.IMAPHost != "imap.example.com" {
		t.Errorf("imap host = %q", cfg.Mail.IMAPHost)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Mail.SMTPHost != "smtp.gmail.com" {
		t.Errorf("smtp host = %q", cfg.Mail.SMTPHost)
	}
	if cfg.Mail.FetchLimit != 40 {
		t.Errorf("fetch limit = %d, want 40", cfg.Mail.FetchLimit)
	}
	if cfg.Display.PageSize != 25 {
		t.Errorf("invalid page size should fall back to 25, got %d", cfg.Display.PageSize)
	}
	if cfg.OAuth.RedirectURL != "https://mail.example.com/oauth/callback" {
		t.Errorf("redirect url = %q", cfg.OAuth.RedirectURL)
	}
	if !cfg.OAuth.HasClientID() {
		t.Error("expected a configured OAuth client id")
	}
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	t.Setenv("WEBMAIL_GOOGLE_OAUTH_CLIENT_ID", "env-client")
	t.Setenv("WEBMAIL_MAIL_IMAP_PORT", "1993")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OAuth.ClientID != "env-client" {
		t.Errorf("client id = %q, want env-client", cfg.OAuth.ClientID)
	}
	if cfg.Mail.IMAPPort != "1993" {
		t.Errorf("imap port = %q, want 1993", cfg.Mail.IMAPPort)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestOAuthConfig_HasClientID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "empty", id: "", want: false},
		{name: "blank", id: "   ", want: false},
		{name: "placeholder", id: "YOUR_CLIENT_ID.apps.googleusercontent.com", want: false},
		{name: "real", id: "42-abc.apps.googleusercontent.com", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (OAuthConfig{ClientID: tt.id}).HasClientID(); got != tt.want {
				t.Errorf("HasClientID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
