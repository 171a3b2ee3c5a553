package config

import (
	"strings"
	"time"

	"github.com/heartmarshall/ledger-backend/internal/ratelimit"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Authorization,Content-Type,X-Request-Id"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// Origins splits AllowedOrigins on commas.
func (c CORSConfig) Origins() []string { return splitList(c.AllowedOrigins) }

// Methods splits AllowedMethods on commas.
func (c CORSConfig) Methods() []string { return splitList(c.AllowedMethods) }

// Headers splits AllowedHeaders on commas.
func (c CORSConfig) Headers() []string { return splitList(c.AllowedHeaders) }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	TrustProxy      bool          `yaml:"trust_proxy"      env:"SERVER_TRUST_PROXY"      env-default:"false"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN runs
// the ledgers in memory only.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DATABASE_AUTO_MIGRATE"       env-default:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// Enabled reports whether persistence is configured.
func (c DatabaseConfig) Enabled() bool { return c.DSN != "" }

// AuthConfig holds access-token and checkpoint signing settings.
type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"        env:"AUTH_JWT_SECRET"        env-required:"true"`
	JWTIssuer        string        `yaml:"jwt_issuer"        env:"AUTH_JWT_ISSUER"        env-default:"ledger"`
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl"  env:"AUTH_ACCESS_TOKEN_TTL"  env-default:"15m"`
	CheckpointSecret string        `yaml:"checkpoint_secret" env:"AUTH_CHECKPOINT_SECRET"`
}

// CheckpointKey returns the checkpoint signing secret, falling back to the
// JWT secret when none is set.
func (c AuthConfig) CheckpointKey() string {
	if c.CheckpointSecret != "" {
		return c.CheckpointSecret
	}
	return c.JWTSecret
}

// LedgerConfig holds hash-chain settings shared by every ledger.
type LedgerConfig struct {
	Digest               string        `yaml:"digest"                 env:"LEDGER_DIGEST"                 env-default:"sha256"`
	MaxEntries           int           `yaml:"max_entries"            env:"LEDGER_MAX_ENTRIES"            env-default:"0"`
	PersistBatchSize     int           `yaml:"persist_batch_size"     env:"LEDGER_PERSIST_BATCH_SIZE"     env-default:"500"`
	PersistRetryInterval time.Duration `yaml:"persist_retry_interval" env:"LEDGER_PERSIST_RETRY_INTERVAL" env-default:"5s"`
	VerifyInterval       time.Duration `yaml:"verify_interval"        env:"LEDGER_VERIFY_INTERVAL"        env-default:"5m"`
	VerifyTimeout        time.Duration `yaml:"verify_timeout"         env:"LEDGER_VERIFY_TIMEOUT"         env-default:"1m"`
}

// RateLimitConfig holds the fixed-window presets.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"        env:"RATE_LIMIT_ENABLED"        env-default:"true"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL" env-default:"1m"`

	AuthRequests    int           `yaml:"auth_requests"    env:"RATE_LIMIT_AUTH_REQUESTS"    env-default:"5"`
	AuthWindow      time.Duration `yaml:"auth_window"      env:"RATE_LIMIT_AUTH_WINDOW"      env-default:"15m"`
	AdminRequests   int           `yaml:"admin_requests"   env:"RATE_LIMIT_ADMIN_REQUESTS"   env-default:"30"`
	AdminWindow     time.Duration `yaml:"admin_window"     env:"RATE_LIMIT_ADMIN_WINDOW"     env-default:"1m"`
	APIRequests     int           `yaml:"api_requests"     env:"RATE_LIMIT_API_REQUESTS"     env-default:"100"`
	APIWindow       time.Duration `yaml:"api_window"       env:"RATE_LIMIT_API_WINDOW"       env-default:"1m"`
	IngestRequests  int           `yaml:"ingest_requests"  env:"RATE_LIMIT_INGEST_REQUESTS"  env-default:"600"`
	IngestWindow    time.Duration `yaml:"ingest_window"    env:"RATE_LIMIT_INGEST_WINDOW"    env-default:"1m"`
	ConsentRequests int           `yaml:"consent_requests" env:"RATE_LIMIT_CONSENT_REQUESTS" env-default:"60"`
	ConsentWindow   time.Duration `yaml:"consent_window"   env:"RATE_LIMIT_CONSENT_WINDOW"   env-default:"1m"`
}

// Presets returns the limiter presets keyed by name.
func (c RateLimitConfig) Presets() ratelimit.Presets {
	return ratelimit.Presets{
		ratelimit.PresetAuth:    {Requests: c.AuthRequests, Window: c.AuthWindow},
		ratelimit.PresetAdmin:   {Requests: c.AdminRequests, Window: c.AdminWindow},
		ratelimit.PresetAPI:     {Requests: c.APIRequests, Window: c.APIWindow},
		ratelimit.PresetIngest:  {Requests: c.IngestRequests, Window: c.IngestWindow},
		ratelimit.PresetConsent: {Requests: c.ConsentRequests, Window: c.ConsentWindow},
	}
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
