// Package config loads gateway settings from the environment, an optional
// .env file and an optional TOML file named by HYPHAE_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	hyphae "github.com/PeterFile/hyphae-platform"
)

// Provider holds per-upstream settings.
type Provider struct {
	Enabled bool
	BaseURL string
	APIKey  string
}

// Config holds all configuration for the gateway.
type Config struct {
	Port string
	Env  string

	AdapterTimeout time.Duration
	ProbeTimeout   time.Duration
	InvokeTimeout  time.Duration

	ProbeConcurrency int
	ProbeOnSearch    bool

	MaxBodyBytes     int64
	MaxResponseBytes int64

	CacheTTL  time.Duration
	CacheSize int

	Coinbase Provider
	Thirdweb Provider
	PayAI    Provider
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:             "8080",
		Env:              "development",
		AdapterTimeout:   hyphae.DefaultTimeouts.AdapterTimeout,
		ProbeTimeout:     hyphae.DefaultTimeouts.ProbeTimeout,
		InvokeTimeout:    hyphae.DefaultTimeouts.InvokeTimeout,
		ProbeConcurrency: 5,
		MaxBodyBytes:     64 << 10,
		MaxResponseBytes: 2 << 20,
		CacheTTL:         30 * time.Second,
		CacheSize:        256,
		Coinbase:         Provider{Enabled: true},
		Thirdweb:         Provider{Enabled: true},
		PayAI:            Provider{Enabled: true},
	}
}

// Load reads .env if present, then the environment, then the TOML file named
// by HYPHAE_CONFIG. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if path := os.Getenv("HYPHAE_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the TOML file at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return c.Decode(data)
}

// Decode overlays TOML data. Durations are strings such as "5s".
func (c *Config) Decode(data []byte) error {
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return f.apply(c)
}

// Validate checks ranges.
func (c *Config) Validate() error {
	if err := c.Timeouts().Validate(); err != nil {
		return err
	}
	if c.ProbeConcurrency < 1 {
		return fmt.Errorf("probe concurrency must be positive, got %d", c.ProbeConcurrency)
	}
	if c.MaxBodyBytes < 1 || c.MaxResponseBytes < 1 {
		return fmt.Errorf("body limits must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", c.CacheTTL)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// Timeouts returns the timeout settings.
func (c *Config) Timeouts() hyphae.TimeoutConfig {
	return hyphae.TimeoutConfig{
		AdapterTimeout: c.AdapterTimeout,
		ProbeTimeout:   c.ProbeTimeout,
		InvokeTimeout:  c.InvokeTimeout,
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("ENV", &c.Env)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ADAPTER_TIMEOUT", &c.AdapterTimeout},
		{"PROBE_TIMEOUT", &c.ProbeTimeout},
		{"INVOKE_TIMEOUT", &c.InvokeTimeout},
		{"CACHE_TTL", &c.CacheTTL},
	}
	for _, d := range durations {
		if v := getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int64
	}{
		{"MAX_BODY_BYTES", &c.MaxBodyBytes},
		{"MAX_RESPONSE_BYTES", &c.MaxResponseBytes},
	}
	for _, n := range ints {
		if v := getenv(n.key); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}
	if v := getenv("PROBE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROBE_CONCURRENCY: %w", err)
		}
		c.ProbeConcurrency = n
	}
	if v := getenv("CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CACHE_SIZE: %w", err)
		}
		c.CacheSize = n
	}
	if v := getenv("PROBE_ON_SEARCH"); v != "" {
		c.ProbeOnSearch = v == "true"
	}

	for prefix, p := range map[string]*Provider{
		"COINBASE": &c.Coinbase,
		"THIRDWEB": &c.Thirdweb,
		"PAYAI":    &c.PayAI,
	} {
		if v := getenv(prefix + "_ENABLED"); v != "" {
			p.Enabled = v == "true"
		}
		str(prefix+"_BASE_URL", &p.BaseURL)
		str(prefix+"_API_KEY", &p.APIKey)
	}
	return nil
}

// fileConfig mirrors Config with optional fields so that absent keys do not
// reset values loaded earlier.
type fileConfig struct {
	Port             *string `toml:"port"`
	Env              *string `toml:"env"`
	AdapterTimeout   *string `toml:"adapter_timeout"`
	ProbeTimeout     *string `toml:"probe_timeout"`
	InvokeTimeout    *string `toml:"invoke_timeout"`
	ProbeConcurrency *int    `toml:"probe_concurrency"`
	ProbeOnSearch    *bool   `toml:"probe_on_search"`
	MaxBodyBytes     *int64  `toml:"max_body_bytes"`
	MaxResponseBytes *int64  `toml:"max_response_bytes"`
	CacheTTL         *string `toml:"cache_ttl"`
	CacheSize        *int    `toml:"cache_size"`

	Providers map[string]fileProvider `toml:"providers"`
}

type fileProvider struct {
	Enabled *bool   `toml:"enabled"`
	BaseURL *string `toml:"base_url"`
	APIKey  *string `toml:"api_key"`
}

func (f fileConfig) apply(c *Config) error {
	setString(&c.Port, f.Port)
	setString(&c.Env, f.Env)
	for _, d := range []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"adapter_timeout", f.AdapterTimeout, &c.AdapterTimeout},
		{"probe_timeout", f.ProbeTimeout, &c.ProbeTimeout},
		{"invoke_timeout", f.InvokeTimeout, &c.InvokeTimeout},
		{"cache_ttl", f.CacheTTL, &c.CacheTTL},
	} {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if f.ProbeConcurrency != nil {
		c.ProbeConcurrency = *f.ProbeConcurrency
	}
	if f.ProbeOnSearch != nil {
		c.ProbeOnSearch = *f.ProbeOnSearch
	}
	if f.MaxBodyBytes != nil {
		c.MaxBodyBytes = *f.MaxBodyBytes
	}
	if f.MaxResponseBytes != nil {
		c.MaxResponseBytes = *f.MaxResponseBytes
	}
	if f.CacheSize != nil {
		c.CacheSize = *f.CacheSize
	}

	for name, fp := range f.Providers {
		var p *Provider
		switch strings.ToLower(name) {
		case "coinbase":
			p = &c.Coinbase
		case "thirdweb":
			p = &c.Thirdweb
		case "payai":
			p = &c.PayAI
		default:
			return fmt.Errorf("unknown provider %q in config", name)
		}
		if fp.Enabled != nil {
			p.Enabled = *fp.Enabled
		}
		setString(&p.BaseURL, fp.BaseURL)
		setString(&p.APIKey, fp.APIKey)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
