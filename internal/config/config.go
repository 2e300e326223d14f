// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/nookipedia-gateway/config.toml",
	"configs/config.toml",
}

// reservedRoutes are fixed routes the mount and metrics path must not shadow.
var reservedRoutes = []string{"/healthz", "/proxy/status", "/proxy/journal"}

const (
	// DefaultBaseURL is the Nookipedia API origin.
	DefaultBaseURL = "https://api.nookipedia.com"
	// DefaultAcceptVersion is the Nookipedia API version the gateway asks for.
	DefaultAcceptVersion = "1.7.0"
	// DefaultAPIKeyEnv is the environment variable read for the key on every request.
	DefaultAPIKeyEnv = "NOOKIPEDIA_API_KEY"
	// DefaultMount is the path prefix the gateway is served under.
	DefaultMount = "/nookipedia"

	placeholderAPIKey = "YOUR_API_KEY_HERE"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	APIKey   string `kong:"help='Static Nookipedia API key, used when the key environment variable is unset.'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Nookipedia NookipediaConfig `toml:"nookipedia"`
	Upstream   UpstreamConfig   `toml:"upstream"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Journal    JournalConfig    `toml:"journal"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes  int64  `toml:"body_max_bytes"`
	ProxyProtocol bool   `toml:"proxy_protocol"`
}

// NookipediaConfig holds upstream credentials and the public mount point.
type NookipediaConfig struct {
	APIKey        string `toml:"api_key"`
	APIKeyEnv     string `toml:"api_key_env"`
	AcceptVersion string `toml:"accept_version"`
	Mount         string `toml:"mount"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
	MaxResponseSize string `toml:"max_response_size"` // human size, e.g. "32 MiB"

	maxResponseBytes uint64
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// JournalConfig controls the SQLite relay journal.
type JournalConfig struct {
	Enabled     bool   `toml:"enabled"`
	Path        string `toml:"path"`
	RecentLimit int    `toml:"recent_limit"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/nookipedia-gateway/config.toml then configs/config.toml. Finding no file
// is not an error: the gateway runs on defaults with the key taken from the
// environment.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.APIKey != "" {
		c.Nookipedia.APIKey = cli.APIKey
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// validate reports every problem at once rather than stopping at the first.
func (c *Config) validate() error {
	var errs error

	if strings.TrimSpace(c.Nookipedia.APIKey) == placeholderAPIKey {
		errs = multierr.Append(errs, errors.New("nookipedia.api_key contains placeholder value; set a real key or leave it empty and use the environment"))
	}
	if env := c.Nookipedia.APIKeyEnv; strings.ContainsAny(env, " =") {
		errs = multierr.Append(errs, fmt.Errorf("nookipedia.api_key_env is not a valid variable name: %q", env))
	}

	mount := c.Nookipedia.Mount
	switch {
	case mount[0] != '/':
		errs = multierr.Append(errs, fmt.Errorf("nookipedia.mount must start with '/'; got %q", mount))
	case mount == "/" || strings.HasSuffix(mount, "/"):
		errs = multierr.Append(errs, fmt.Errorf("nookipedia.mount must not end with '/'; got %q", mount))
	case strings.ContainsAny(mount, "*:?"):
		errs = multierr.Append(errs, fmt.Errorf("nookipedia.mount must be a literal path; got %q", mount))
	default:
		for _, reserved := range reservedRoutes {
			if overlaps(mount, reserved) {
				errs = multierr.Append(errs, fmt.Errorf("nookipedia.mount %q conflicts with reserved route %q", mount, reserved))
			}
		}
	}

	// Upstream URL must be HTTPS; the key travels in a header.
	if u, err := url.Parse(c.Upstream.BaseURL); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("upstream.base_url is not a valid URL: %w", err))
	} else if u.Scheme != "https" || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("upstream.base_url must be an absolute HTTPS URL; got %q", c.Upstream.BaseURL))
	} else if u.RawQuery != "" || u.Fragment != "" {
		errs = multierr.Append(errs, fmt.Errorf("upstream.base_url must not carry a query or fragment; got %q", c.Upstream.BaseURL))
	}

	if n, err := humanize.ParseBytes(c.Upstream.MaxResponseSize); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("upstream.max_response_size %q: %w", c.Upstream.MaxResponseSize, err))
	} else if n == 0 {
		errs = multierr.Append(errs, errors.New("upstream.max_response_size must be greater than zero"))
	} else {
		c.Upstream.maxResponseBytes = n
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port))
	}
	if c.Server.BodyMaxBytes < 0 {
		errs = multierr.Append(errs, fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes))
	}
	if c.Upstream.TimeoutSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds))
	}
	if c.Upstream.IdleConnections < 0 {
		errs = multierr.Append(errs, fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections))
	}
	if c.Journal.RecentLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("journal.recent_limit must be non-negative; got %d", c.Journal.RecentLimit))
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format))
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			errs = multierr.Append(errs, fmt.Errorf("metrics.path must start with '/'; got %q", p))
		} else {
			for _, reserved := range append([]string{mount}, reservedRoutes...) {
				if overlaps(p, reserved) {
					errs = multierr.Append(errs, fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved))
				}
			}
		}
	}

	return errs
}

// overlaps reports whether p equals route or lives beneath it.
func overlaps(p, route string) bool {
	return p == route || strings.HasPrefix(p, route+"/")
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB; only GET is relayed
	}
	if c.Nookipedia.APIKeyEnv == "" {
		c.Nookipedia.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Nookipedia.AcceptVersion == "" {
		c.Nookipedia.AcceptVersion = DefaultAcceptVersion
	}
	if c.Nookipedia.Mount == "" {
		c.Nookipedia.Mount = DefaultMount
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxResponseSize == "" {
		c.Upstream.MaxResponseSize = "32 MiB"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = ":memory:"
	}
	if c.Journal.RecentLimit == 0 {
		c.Journal.RecentLimit = 100
	}
}

// MaxResponseBytes returns the parsed upstream.max_response_size.
func (c *UpstreamConfig) MaxResponseBytes() uint64 {
	if c.maxResponseBytes == 0 {
		if n, err := humanize.ParseBytes(c.MaxResponseSize); err == nil {
			return n
		}
	}
	return c.maxResponseBytes
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
