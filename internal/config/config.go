package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the TerraField sync client.
//
// Units: all intervals and timeouts are time.Duration values.
type Config struct {
	// APIBaseURL is the base URL of the TerraFusion backend, e.g.
	// https://api.terrafusion.example.
	APIBaseURL string

	// PushURL is the websocket endpoint fragments are pushed from. Empty
	// disables the push listener; the client then converges through the
	// periodic drain alone.
	PushURL string

	// DatabasePath is the SQLite file holding queue snapshots and state.
	DatabasePath string

	// TokenFilePath is the encrypted file session tokens are kept in.
	TokenFilePath string

	// DrainInterval is the cadence of the periodic queue drain while online.
	DrainInterval time.Duration

	// OnlineCheckInterval is how often server reachability is probed.
	OnlineCheckInterval time.Duration

	// RequestTimeout bounds each individual HTTP request.
	RequestTimeout time.Duration

	// MaxRetries is how many redeliveries a queued item gets before it is
	// dropped.
	MaxRetries int

	// UnregisteredFragments selects what happens to pushed fragments for
	// documents nobody has opened: "discard" or "buffer".
	UnregisteredFragments string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	dataDir := defaultDataDir()
	c.APIBaseURL = "http://127.0.0.1:8080"
	c.PushURL = ""
	c.DatabasePath = filepath.Join(dataDir, "terrafield.db")
	c.TokenFilePath = filepath.Join(dataDir, "session.bin")
	c.DrainInterval = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.MaxRetries = 3
	c.UnregisteredFragments = "discard"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "terrafield")
	}
	return "."
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
