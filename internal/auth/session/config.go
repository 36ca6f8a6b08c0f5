package session

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gatehouse/security/token"
)

// TransmitMode selects how session tokens travel between server and client.
type TransmitMode string

const (
	// TransmitCookie sends the token in a Set-Cookie header and reads it
	// back from the request cookie. Browsers replay it automatically, so
	// the origin guard applies.
	TransmitCookie TransmitMode = "cookie"

	// TransmitHeader returns the token in the response body; clients replay
	// it via Authorization: Bearer. No automatic replay, no origin guard.
	TransmitHeader TransmitMode = "header"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls session lifetime, expiration policy, signing keys (with
// rotation), transmission mode, cookie attributes, and the cross-origin
// allow-list. It is intentionally explicit and environment-driven so
// production deployments can tune security parameters without code changes.
type Config struct {
	// SessionTTL is the lifetime of a newly issued session.
	SessionTTL time.Duration

	// SlidingExpiration extends the session window on each successful
	// verification instead of keeping the expiry fixed from creation.
	SlidingExpiration bool

	// OneTimeTokenTTL is the default lifetime of purpose-scoped
	// authorization tokens (password reset, email verification).
	OneTimeTokenTTL time.Duration

	// SigningKeyHex is the hex-encoded current HMAC key (>= 32 bytes).
	SigningKeyHex string

	// PreviousSigningKeysHex is a comma-separated list of hex-encoded
	// retired keys still accepted for verification until their tokens
	// naturally expire.
	PreviousSigningKeysHex string

	// TransmitMode is "cookie" or "header".
	TransmitMode TransmitMode

	// Cookie attributes (cookie mode only).
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// AllowedOrigins is the exact-match origin allow-list for cookie mode.
	// "*" allows everything and is only legal in header mode.
	AllowedOrigins []string
}

// DefaultConfig returns a secure default configuration suitable for
// same-origin deployments.
func DefaultConfig() Config {
	return Config{
		SessionTTL:        24 * time.Hour,
		SlidingExpiration: false,
		OneTimeTokenTTL:   15 * time.Minute,
		TransmitMode:      TransmitCookie,
		CookieName:        "__session",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteStrictMode,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - GATEHOUSE_SIGNING_KEY_HEX
//
// Optional:
//   - GATEHOUSE_SIGNING_KEYS_PREVIOUS_HEX (comma-separated)
//   - GATEHOUSE_SESSION_TTL
//   - GATEHOUSE_SESSION_SLIDING
//   - GATEHOUSE_ONE_TIME_TOKEN_TTL
//   - GATEHOUSE_SESSION_TRANSMIT (cookie|header)
//   - GATEHOUSE_SESSION_COOKIE_NAME
//   - GATEHOUSE_SESSION_COOKIE_PATH
//   - GATEHOUSE_SESSION_COOKIE_DOMAIN
//   - GATEHOUSE_SESSION_COOKIE_SECURE
//   - GATEHOUSE_SESSION_COOKIE_SAMESITE (strict|lax|none)
//   - GATEHOUSE_ALLOWED_ORIGINS (comma-separated)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("GATEHOUSE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SessionTTL = d
	}

	if v := os.Getenv("GATEHOUSE_SESSION_SLIDING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.SlidingExpiration = b
	}

	if v := os.Getenv("GATEHOUSE_ONE_TIME_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.OneTimeTokenTTL = d
	}

	if v := strings.TrimSpace(os.Getenv("GATEHOUSE_SESSION_TRANSMIT")); v != "" {
		switch TransmitMode(strings.ToLower(v)) {
		case TransmitCookie:
			cfg.TransmitMode = TransmitCookie
		case TransmitHeader:
			cfg.TransmitMode = TransmitHeader
		default:
			return Config{}, ErrConfig
		}
	}

	if v := strings.TrimSpace(os.Getenv("GATEHOUSE_SESSION_COOKIE_NAME")); v != "" {
		cfg.CookieName = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEHOUSE_SESSION_COOKIE_PATH")); v != "" {
		cfg.CookiePath = v
	}
	cfg.CookieDomain = strings.TrimSpace(os.Getenv("GATEHOUSE_SESSION_COOKIE_DOMAIN"))

	if v := os.Getenv("GATEHOUSE_SESSION_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CookieSecure = b
	}

	if v := strings.TrimSpace(os.Getenv("GATEHOUSE_SESSION_COOKIE_SAMESITE")); v != "" {
		switch strings.ToLower(v) {
		case "strict":
			cfg.CookieSameSite = http.SameSiteStrictMode
		case "lax":
			cfg.CookieSameSite = http.SameSiteLaxMode
		case "none":
			cfg.CookieSameSite = http.SameSiteNoneMode
		default:
			return Config{}, ErrConfig
		}
	}

	if v := os.Getenv("GATEHOUSE_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	cfg.SigningKeyHex = strings.TrimSpace(os.Getenv("GATEHOUSE_SIGNING_KEY_HEX"))
	if cfg.SigningKeyHex == "" {
		return Config{}, ErrConfig
	}
	cfg.PreviousSigningKeysHex = strings.TrimSpace(os.Getenv("GATEHOUSE_SIGNING_KEYS_PREVIOUS_HEX"))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	// A wildcard allow-list must never be combined with credentialed
	// (cookie) transmission.
	for _, o := range c.AllowedOrigins {
		if o == "*" && c.TransmitMode == TransmitCookie {
			return ErrConfig
		}
	}

	// SameSite=None is a cross-origin deployment: it requires an explicit
	// allow-list, not wildcard and not empty.
	if c.TransmitMode == TransmitCookie && c.CookieSameSite == http.SameSiteNoneMode {
		if len(c.AllowedOrigins) == 0 {
			return ErrConfig
		}
	}

	if c.TransmitMode == TransmitCookie && c.CookieName == "" {
		return ErrConfig
	}
	return nil
}

// Keyring constructs the signing keyring from the configured key material.
func (c Config) Keyring() (*token.Keyring, error) {
	return token.NewKeyringFromHex(c.SigningKeyHex, c.PreviousSigningKeysHex)
}
