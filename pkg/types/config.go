package types

import (
	"errors"
	"time"
)

// Config validation errors.
var (
	ErrDataDirEmpty         = errors.New("data directory must not be empty")
	ErrServerURLEmpty       = errors.New("server URL must not be empty")
	ErrTimeoutInvalid       = errors.New("request timeout must be positive")
	ErrMaxAttemptsInvalid   = errors.New("max attempts must be positive")
	ErrBackoffInvalid       = errors.New("backoff bounds must be positive and min <= max")
	ErrProbeIntervalInvalid = errors.New("probe interval must be positive")
)

// Config holds the parameters for the local store, the remote client, and
// the sync engine's retry policy.
type Config struct {
	// DataDir is the directory holding the SQLite database file.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ServerURL is the base URL of the remote CRUD API.
	ServerURL string `json:"server_url" yaml:"server_url"`

	// RequestTimeout bounds each remote call made during a drain pass.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// ProbeInterval is how often the connectivity monitor probes the
	// remote when polling.
	ProbeInterval time.Duration `json:"probe_interval" yaml:"probe_interval"`

	// MaxAttempts is the number of consecutive replay failures after
	// which a queue entry is parked as poison.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BackoffMin and BackoffMax bound the per-entry exponential backoff
	// between replay attempts.
	BackoffMin time.Duration `json:"backoff_min" yaml:"backoff_min"`
	BackoffMax time.Duration `json:"backoff_max" yaml:"backoff_max"`
}

// DefaultConfig returns a Config with the retry and timing defaults
// filled in. DataDir and ServerURL must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 15 * time.Second,
		ProbeInterval:  30 * time.Second,
		MaxAttempts:    8,
		BackoffMin:     time.Second,
		BackoffMax:     5 * time.Minute,
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	if c.ServerURL == "" {
		return ErrServerURLEmpty
	}
	if c.RequestTimeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.ProbeInterval <= 0 {
		return ErrProbeIntervalInvalid
	}
	if c.MaxAttempts <= 0 {
		return ErrMaxAttemptsInvalid
	}
	if c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin {
		return ErrBackoffInvalid
	}
	return nil
}
