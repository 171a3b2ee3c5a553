package config

import (
	"fmt"
	"time"

	"github.com/heartmarshall/ledger-backend/internal/ledger"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if c.Auth.CheckpointSecret != "" && len(c.Auth.CheckpointSecret) < 32 {
		return fmt.Errorf("auth.checkpoint_secret must be at least 32 characters (got %d)", len(c.Auth.CheckpointSecret))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0 (got %s)", c.Auth.AccessTokenTTL)
	}

	if err := c.Ledger.validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	if c.RateLimit.Enabled {
		if err := c.RateLimit.validate(); err != nil {
			return fmt.Errorf("rate_limit: %w", err)
		}
	}

	return nil
}

func (l *LedgerConfig) validate() error {
	if !ledger.Digest(l.Digest).IsValid() {
		return fmt.Errorf("digest must be %q or %q (got %q)", ledger.DigestSHA256, ledger.DigestBLAKE2b256, l.Digest)
	}
	if l.MaxEntries < 0 {
		return fmt.Errorf("max_entries must be >= 0 (got %d)", l.MaxEntries)
	}
	if l.PersistBatchSize <= 0 {
		return fmt.Errorf("persist_batch_size must be > 0 (got %d)", l.PersistBatchSize)
	}
	if l.PersistRetryInterval <= 0 {
		return fmt.Errorf("persist_retry_interval must be > 0 (got %s)", l.PersistRetryInterval)
	}
	if l.VerifyInterval < 0 {
		return fmt.Errorf("verify_interval must be >= 0 (got %s)", l.VerifyInterval)
	}
	if l.VerifyTimeout <= 0 {
		return fmt.Errorf("verify_timeout must be > 0 (got %s)", l.VerifyTimeout)
	}
	return nil
}

func (r *RateLimitConfig) validate() error {
	if r.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be > 0 (got %s)", r.SweepInterval)
	}
	for name, p := range r.Presets() {
		if p.Requests <= 0 {
			return fmt.Errorf("%s_requests must be > 0 (got %d)", name, p.Requests)
		}
		if p.Window < time.Second {
			return fmt.Errorf("%s_window must be >= 1s (got %s)", name, p.Window)
		}
	}
	return nil
}
