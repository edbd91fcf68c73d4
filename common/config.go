package common

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config contains the client's runtime configuration loaded from environment variables.
type Config struct {
	BaseURL    string
	RefreshURL string
	UserAgent  string
	LogLevel   string

	HTTPTimeout    time.Duration
	RefreshTimeout time.Duration

	// AuthScheme prefixes the access credential in the Authorization header.
	AuthScheme string
	// ExpiryLeeway treats access credentials as expired this long before exp.
	ExpiryLeeway time.Duration
	// If true, expired access credentials are refreshed before sending
	// instead of waiting for the server's 401.
	ProactiveRefresh bool

	// Empty RedisAddr keeps credentials in process memory.
	RedisAddr  string
	StorageKey string

	// When OAuth2ClientID is set, RefreshURL is used as an OAuth2 token URL.
	OAuth2ClientID     string
	OAuth2ClientSecret string

	// Seed pair, normally produced by the login flow.
	AccessToken  string
	RefreshToken string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		BaseURL:    EnvString("AUTHPIPE_BASE_URL", ""),
		RefreshURL: EnvString("AUTHPIPE_REFRESH_URL", ""),
		UserAgent:  EnvString("AUTHPIPE_USER_AGENT", "authpipe/1.0"),
		LogLevel:   EnvString("AUTHPIPE_LOG_LEVEL", "info"),

		HTTPTimeout:    EnvDuration("AUTHPIPE_HTTP_TIMEOUT", 10*time.Second),
		RefreshTimeout: EnvDuration("AUTHPIPE_REFRESH_TIMEOUT", 10*time.Second),

		AuthScheme:       EnvString("AUTHPIPE_AUTH_SCHEME", "Bearer"),
		ExpiryLeeway:     EnvDuration("AUTHPIPE_EXPIRY_LEEWAY", 0),
		ProactiveRefresh: EnvBool("AUTHPIPE_PROACTIVE_REFRESH", false),

		RedisAddr:  EnvString("AUTHPIPE_REDIS_ADDR", ""),
		StorageKey: EnvString("AUTHPIPE_STORAGE_KEY", "authpipe:credentials"),

		OAuth2ClientID:     EnvString("AUTHPIPE_OAUTH2_CLIENT_ID", ""),
		OAuth2ClientSecret: EnvString("AUTHPIPE_OAUTH2_CLIENT_SECRET", ""),

		AccessToken:  EnvString("AUTHPIPE_ACCESS_TOKEN", ""),
		RefreshToken: EnvString("AUTHPIPE_REFRESH_TOKEN", ""),
	}
}

// Validate checks the fields every client needs.
func (c Config) Validate() error {
	if c.RefreshURL == "" {
		return errors.New("refresh URL is required")
	}
	if err := validateURL(c.RefreshURL); err != nil {
		return fmt.Errorf("invalid refresh URL: %w", err)
	}
	if c.BaseURL != "" {
		if err := validateURL(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}
