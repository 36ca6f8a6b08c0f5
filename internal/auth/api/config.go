package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls HTTP-level behavior of the auth endpoints.
type Config struct {
	// MaxBodyBytes bounds request body size for JSON endpoints.
	MaxBodyBytes int64

	// TrustProxy enables X-Forwarded-For / X-Real-IP for audit logging.
	TrustProxy bool

	// RevealResetOutcome, when false (the default), makes the
	// password-reset request endpoint answer 202 regardless of whether the
	// address is registered, so it cannot be used to enumerate accounts.
	RevealResetOutcome bool

	// LoginFailureMax is the number of failed logins per client IP within
	// LoginFailureWindow before further attempts are throttled. Zero
	// disables the throttle.
	LoginFailureMax    int
	LoginFailureWindow time.Duration
}

// LoadConfigFromEnv loads API config from environment variables with safe
// defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		MaxBodyBytes:       envInt64("GATEHOUSE_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		TrustProxy:         envBool("GATEHOUSE_AUTH_TRUST_PROXY", false),
		RevealResetOutcome: envBool("GATEHOUSE_AUTH_REVEAL_RESET_OUTCOME", false),
		LoginFailureMax:    int(envInt64("GATEHOUSE_AUTH_LOGIN_FAILURE_MAX", 10)),
		LoginFailureWindow: envDuration("GATEHOUSE_AUTH_LOGIN_FAILURE_WINDOW", 10*time.Minute),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LoginFailureWindow <= 0 {
		cfg.LoginFailureWindow = 10 * time.Minute
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
