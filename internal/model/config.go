package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// oauthPlaceholderID is the client id shipped in sample configs. A config
// still carrying it is treated as having no OAuth client at all.
const oauthPlaceholderID = "YOUR_CLIENT_ID"

// PageSizes lists the inbox page sizes a user may choose from.
var PageSizes = []int{10, 25, 50, 100}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address (e.g., ":8501").
	Addr string `mapstructure:"addr" yaml:"addr"`

	// BaseURL is the externally visible root URL, used to derive the
	// OAuth redirect URL when none is configured.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// IdleMinutes is how long a visitor may stay inactive before their
	// session is logged out and forgotten.
	IdleMinutes int `mapstructure:"idle_minutes" yaml:"idle_minutes"`

	// MaxVisitors caps the number of visitors held at once. The least
	// recently seen one is dropped to make room.
	MaxVisitors int `mapstructure:"max_visitors" yaml:"max_visitors"`
}

// IdleTimeout returns IdleMinutes as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleMinutes) * time.Minute
}

// MailConfig holds the IMAP/SMTP endpoints for the app-password login
// and the fetch limits shared by both login methods.
type MailConfig struct {
	IMAPHost     string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort     string `mapstructure:"imap_port" yaml:"imap_port"`
	IMAPSecurity string `mapstructure:"imap_security" yaml:"imap_security"`

	SMTPHost     string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPSecurity string `mapstructure:"smtp_security" yaml:"smtp_security"`

	// TimeoutSec bounds every network call made on behalf of a user.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// FetchLimit is how many recent messages the inbox loads.
	FetchLimit int `mapstructure:"fetch_limit" yaml:"fetch_limit"`
}

// Timeout returns TimeoutSec as a duration.
func (m MailConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSec) * time.Second
}

// OAuthConfig holds the Google OAuth client registration.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// HasClientID reports whether a real (non-placeholder) client id is set.
func (o OAuthConfig) HasClientID() bool {
	id := strings.TrimSpace(o.ClientID)
	return id != "" && !strings.Contains(id, oauthPlaceholderID)
}

// DisplayConfig holds inbox rendering preferences.
type DisplayConfig struct {
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	OAuth   OAuthConfig   `mapstructure:"google_oauth" yaml:"google_oauth"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/webmail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "webmail", "config.yaml")
}

// defaultAppConfig returns the Gmail-oriented default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:        ":8501",
			BaseURL:     "http://localhost:8501",
			IdleMinutes: 30,
			MaxVisitors: 10000,
		},
		Mail: MailConfig{
			IMAPHost:     "imap.gmail.com",
			IMAPPort:     "993",
			IMAPSecurity: "tls",
			SMTPHost:     "smtp.gmail.com",
			SMTPPort:     "587",
			SMTPSecurity: "starttls",
			TimeoutSec:   30,
			FetchLimit:   100,
		},
		Display: DisplayConfig{
			PageSize: 25,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.idle_minutes", d.Server.IdleMinutes)
	v.SetDefault("server.max_visitors", d.Server.MaxVisitors)
	v.SetDefault("mail.imap_host", d.Mail.IMAPHost)
	v.SetDefault("mail.imap_port", d.Mail.IMAPPort)
	v.SetDefault("mail.imap_security", d.Mail.IMAPSecurity)
	v.SetDefault("mail.smtp_host", d.Mail.SMTPHost)
	v.SetDefault("mail.smtp_port", d.Mail.SMTPPort)
	v.SetDefault("mail.smtp_security", d.Mail.SMTPSecurity)
	v.SetDefault("mail.timeout_sec", d.Mail.TimeoutSec)
	v.SetDefault("mail.fetch_limit", d.Mail.FetchLimit)
	v.SetDefault("display.page_size", d.Display.PageSize)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	// Registered so AutomaticEnv can resolve them during Unmarshal.
	v.SetDefault("google_oauth.client_id", "")
	v.SetDefault("google_oauth.client_secret", "")
	v.SetDefault("google_oauth.redirect_url", "")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values can be overridden with WEBMAIL_* environment variables. If the
// file does not exist, defaults (plus environment overrides) are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WEBMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize fills derived values and repairs out-of-range settings.
func (c *AppConfig) normalize() {
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.OAuth.RedirectURL == "" {
		c.OAuth.RedirectURL = c.Server.BaseURL + "/oauth/callback"
	}
	if c.Server.IdleMinutes <= 0 {
		c.Server.IdleMinutes = 30
	}
	if c.Server.MaxVisitors <= 0 {
		c.Server.MaxVisitors = 10000
	}
	if c.Mail.TimeoutSec <= 0 {
		c.Mail.TimeoutSec = 30
	}
	if c.Mail.FetchLimit <= 0 {
		c.Mail.FetchLimit = 100
	}
	if !ValidPageSize(c.Display.PageSize) {
		c.Display.PageSize = 25
	}
}

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	for _, s := range PageSizes {
		if s == n {
			return true
		}
	}
	return false
}
