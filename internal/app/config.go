package app

import "time"

// Session backend selection values for Config.SessionBackend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// SessionBackend picks where sessions live. Empty means auto: postgres
	// when DatabaseURL is set, else redis when RedisAddr is set, else bolt
	// when BoltPath is set, else memory.
	SessionBackend string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	// DBMigrate applies the embedded goose migrations at startup.
	DBMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BoltPath string

	// If true, /readyz returns 503 unless the session backend is durable
	// and reachable.
	ReadinessRequireStore bool

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("GATEHOUSE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("GATEHOUSE_LOG_LEVEL", "info"),
		LogFormat: EnvString("GATEHOUSE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("GATEHOUSE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GATEHOUSE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GATEHOUSE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GATEHOUSE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GATEHOUSE_HTTP_MAX_HEADER_BYTES", 1<<20),

		SessionBackend: EnvString("GATEHOUSE_SESSION_BACKEND", ""),

		DatabaseURL: EnvString("GATEHOUSE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("GATEHOUSE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("GATEHOUSE_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("GATEHOUSE_DB_MIGRATE", true),

		RedisAddr:     EnvString("GATEHOUSE_REDIS_ADDR", ""),
		RedisPassword: EnvString("GATEHOUSE_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("GATEHOUSE_REDIS_DB", 0),

		BoltPath: EnvString("GATEHOUSE_BOLT_PATH", ""),

		ReadinessRequireStore: EnvBool("GATEHOUSE_READINESS_REQUIRE_STORE", false),

		MetricsEnabled: EnvBool("GATEHOUSE_METRICS_ENABLED", true),
	}
}

// Backend resolves the effective session backend.
func (c Config) Backend() string {
	if c.SessionBackend != "" {
		return c.SessionBackend
	}
	switch {
	case c.DatabaseURL != "":
		return BackendPostgres
	case c.RedisAddr != "":
		return BackendRedis
	case c.BoltPath != "":
		return BackendBolt
	default:
		return BackendMemory
	}
}
