package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port. Defaults to 3000.
	Port int `envconfig:"PORT" default:"3000"`

	// Host is the interface the server binds to. Defaults to localhost.
	Host string `envconfig:"TRADEDEV_HOST" default:"localhost"`

	// DataDir is the root data directory. Defaults to ~/.tradedev.
	DataDir string `envconfig:"TRADEDEV_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DistDir is the build output directory served for requests no proxy rule matches.
	DistDir string `envconfig:"TRADEDEV_DIST_DIR" default:"dist"`

	// FrontendURL, when set, replaces DistDir: unmatched requests are proxied to
	// a running frontend dev server instead.
	FrontendURL string `envconfig:"TRADEDEV_FRONTEND_URL"`

	// RulesFile is an optional YAML file replacing the built-in proxy rules.
	RulesFile string `envconfig:"TRADEDEV_RULES_FILE"`

	// UpstreamTimeout bounds each proxied exchange. Zero disables the limit.
	UpstreamTimeout time.Duration `envconfig:"TRADEDEV_UPSTREAM_TIMEOUT" default:"30s"`

	// OpenBrowser opens the app in the default browser on startup.
	OpenBrowser bool `envconfig:"TRADEDEV_OPEN_BROWSER" default:"true"`

	// CORSOrigins lists the origins allowed to call the server cross-origin.
	CORSOrigins []string `envconfig:"TRADEDEV_CORS_ORIGINS" default:"*"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.tradedev if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".tradedev")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the fields envconfig cannot check on its own.
func (c *AppConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ValidationError{Field: "PORT", Message: fmt.Sprintf("%d is out of range", c.Port)}
	}
	if c.UpstreamTimeout < 0 {
		return &ValidationError{Field: "TRADEDEV_UPSTREAM_TIMEOUT", Message: "must not be negative"}
	}
	if c.FrontendURL != "" {
		u, err := url.Parse(c.FrontendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "TRADEDEV_FRONTEND_URL", Message: fmt.Sprintf("%q is not an http(s) URL", c.FrontendURL)}
		}
	}
	return nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr returns the listen address.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the address a browser should open.
func (c *AppConfig) URL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// LogDir returns the path to the log directory (~/.tradedev/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}
