// Package config loads and freezes Bot configuration from a .env file and
// the process environment, following the documented environment variable
// contract. Load expands to a frozen Config snapshot; updates after
// startup go through Update (and, transitively, UpdateEnv in env.go),
// never through direct field mutation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// searchPathsFunc is overridden in tests to avoid touching the real CWD.
var searchPathsFunc = defaultDotenvPath

func defaultDotenvPath() string { return ".env" }

// Config holds all process-wide settings, parsed once at startup from
// .env + the process environment. Fields are read-only after Load; call
// Update to apply a live edit (see env.go).
type Config struct {
	mu sync.RWMutex

	// Auth
	Cookies Cookies

	// Behaviour
	LogLevel              string
	EnableE2EE            bool
	AutoReconnect         bool
	MaxConcurrentHandlers int
	HandlerTimeoutMs      int
	SendRatePerSec        int
	IdempotencyCacheSize  int
	MetricsPort           int
	DeviceDataPath        string
	DBPath                string
	GeminiEnabled         bool
	GeminiAPIKey          string
	GeminiModel           string
	AutoRestartMinutes    int

	// TransportURL is the dial target for the native transport
	// collaborator (spec.md §1: out of scope). Not part of the
	// dashboard-editable set; changing transports is a restart-time
	// decision, not a live edit.
	TransportURL string
}

// editableKeys is the set of env keys the dashboard may read and write.
// Auth cookies are intentionally excluded (spec.md §6: "Auth cookies are
// not editable via the dashboard").
var editableKeys = []string{
	"LOG_LEVEL",
	"ENABLE_E2EE",
	"AUTO_RECONNECT",
	"MAX_CONCURRENT_HANDLERS",
	"HANDLER_TIMEOUT_MS",
	"SEND_RATE_PER_SEC",
	"IDEMPOTENCY_CACHE_SIZE",
	"METRICS_PORT",
	"DEVICE_DATA_PATH",
	"DB_PATH",
	"GEMINI_ENABLED",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"AUTO_RESTART_MINUTES",
}

// secretKeys are masked (not returned verbatim) by GetEditableEnv.
var secretKeys = map[string]bool{
	"GEMINI_API_KEY": true,
}

// Load reads .env from the current working directory (a missing file is
// not an error — the process environment may supply everything), then
// parses the documented keys into a frozen Config. Process environment
// variables take precedence over .env values, per spec.md §6's load
// order: ".env at CWD → process environment takes precedence".
func Load() (*Config, error) {
	path := searchPathsFunc()
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := cfg.parseEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) parseEnv() error {
	cookies, err := loadCookiesFromEnv()
	if err != nil {
		return err
	}
	c.Cookies = cookies

	c.LogLevel = getString("LOG_LEVEL", "info")
	c.EnableE2EE = getBool("ENABLE_E2EE", true)
	c.AutoReconnect = getBool("AUTO_RECONNECT", true)
	c.MaxConcurrentHandlers = getInt("MAX_CONCURRENT_HANDLERS", 10)
	c.HandlerTimeoutMs = getInt("HANDLER_TIMEOUT_MS", 30000)
	c.SendRatePerSec = getInt("SEND_RATE_PER_SEC", 5)
	c.IdempotencyCacheSize = getInt("IDEMPOTENCY_CACHE_SIZE", 1000)
	c.MetricsPort = getInt("METRICS_PORT", 9090)
	c.DeviceDataPath = getString("DEVICE_DATA_PATH", "./device.json")
	c.DBPath = getString("DB_PATH", "./bot.db")
	c.GeminiEnabled = getBool("GEMINI_ENABLED", false)
	c.GeminiAPIKey = getString("GEMINI_API_KEY", "")
	c.GeminiModel = getString("GEMINI_MODEL", "gemini-1.5-flash")
	c.AutoRestartMinutes = getInt("AUTO_RESTART_MINUTES", 0)
	c.TransportURL = getString("TRANSPORT_URL", "ws://127.0.0.1:8787")
	return nil
}

// Validate checks that the configuration is internally consistent.
// Missing required auth values are the only startup-fatal case named in
// spec.md §6.
func (c *Config) Validate() error {
	if !c.Cookies.HasAuth() {
		return fmt.Errorf("missing auth: set FB_COOKIES, or FB_C_USER and FB_XS")
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port %d out of range (1-65535)", c.MetricsPort)
	}
	if c.SendRatePerSec < 1 {
		return fmt.Errorf("send rate per second must be positive, got %d", c.SendRatePerSec)
	}
	if c.MaxConcurrentHandlers < 1 {
		return fmt.Errorf("max concurrent handlers must be positive, got %d", c.MaxConcurrentHandlers)
	}
	return nil
}

// Snapshot is an immutable copy of Config safe to hand to readers
// (dashboard, metrics) without exposing the live struct for mutation.
type Snapshot struct {
	LogLevel              string
	EnableE2EE            bool
	AutoReconnect         bool
	MaxConcurrentHandlers int
	HandlerTimeoutMs      int
	SendRatePerSec        int
	IdempotencyCacheSize  int
	MetricsPort           int
	DeviceDataPath        string
	DBPath                string
	GeminiEnabled         bool
	GeminiModel           string
	AutoRestartMinutes    int
}

// Snapshot returns a read-only copy of the current configuration.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		LogLevel:              c.LogLevel,
		EnableE2EE:            c.EnableE2EE,
		AutoReconnect:         c.AutoReconnect,
		MaxConcurrentHandlers: c.MaxConcurrentHandlers,
		HandlerTimeoutMs:      c.HandlerTimeoutMs,
		SendRatePerSec:        c.SendRatePerSec,
		IdempotencyCacheSize:  c.IdempotencyCacheSize,
		MetricsPort:           c.MetricsPort,
		DeviceDataPath:        c.DeviceDataPath,
		DBPath:                c.DBPath,
		GeminiEnabled:         c.GeminiEnabled,
		GeminiModel:           c.GeminiModel,
		AutoRestartMinutes:    c.AutoRestartMinutes,
	}
}

// Update applies one already-validated key/value pair (a key from
// editableKeys) to the in-memory Config and to the live process
// environment. Callers should route dashboard edits through
// UpdateEnv (env.go), which also persists to .env; Update is the
// low-level primitive it builds on.
func (c *Config) Update(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	os.Setenv(key, value)
	switch key {
	case "LOG_LEVEL":
		c.LogLevel = value
	case "ENABLE_E2EE":
		c.EnableE2EE = parseBool(value, c.EnableE2EE)
	case "AUTO_RECONNECT":
		c.AutoReconnect = parseBool(value, c.AutoReconnect)
	case "MAX_CONCURRENT_HANDLERS":
		c.MaxConcurrentHandlers = parseInt(value, c.MaxConcurrentHandlers)
	case "HANDLER_TIMEOUT_MS":
		c.HandlerTimeoutMs = parseInt(value, c.HandlerTimeoutMs)
	case "SEND_RATE_PER_SEC":
		c.SendRatePerSec = parseInt(value, c.SendRatePerSec)
	case "IDEMPOTENCY_CACHE_SIZE":
		c.IdempotencyCacheSize = parseInt(value, c.IdempotencyCacheSize)
	case "METRICS_PORT":
		c.MetricsPort = parseInt(value, c.MetricsPort)
	case "DEVICE_DATA_PATH":
		c.DeviceDataPath = value
	case "DB_PATH":
		c.DBPath = value
	case "GEMINI_ENABLED":
		c.GeminiEnabled = parseBool(value, c.GeminiEnabled)
	case "GEMINI_API_KEY":
		c.GeminiAPIKey = value
	case "GEMINI_MODEL":
		c.GeminiModel = value
	case "AUTO_RESTART_MINUTES":
		c.AutoRestartMinutes = parseInt(value, c.AutoRestartMinutes)
	}
}

// IsEditable reports whether key is in the dashboard-editable set.
func IsEditable(key string) bool {
	for _, k := range editableKeys {
		if k == key {
			return true
		}
	}
	return false
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return parseBool(v, def)
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		return parseInt(v, def)
	}
	return def
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
