// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when SPOTIFY_CLIENT_ID or
// SPOTIFY_CLIENT_SECRET is not set.
var ErrMissingCredentials = errors.New("missing SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET environment variable")

// Config holds every setting the server reads from its environment.
type Config struct {
	Port        int    `env:"PORT" envDefault:"3000"`
	Host        string `env:"HOST"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	SpotifyRedirectURI  string `env:"SPOTIFY_REDIRECT_URI"`
	SpotifyAuthURL      string `env:"SPOTIFY_AUTH_URL"`
	SpotifyTokenURL     string `env:"SPOTIFY_TOKEN_URL"`
	SpotifyAPIURL       string `env:"SPOTIFY_API_URL"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"file"`
	StorePath   string `env:"STORE_PATH" envDefault:"./users.json"`
	DatabaseURL string `env:"DATABASE_URL"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	UpstreamRPS     float64       `env:"UPSTREAM_RPS" envDefault:"0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file from the working directory and then
// parses the environment. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	return parse(nil)
}

// parse reads environ, or the process environment when environ is nil.
func parse(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	if cfg.SpotifyRedirectURI == "" {
		cfg.SpotifyRedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", cfg.Port)
	}
	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, errors.New("STORE_DRIVER=postgres requires DATABASE_URL")
	}

	return &cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StoreDSN is the path or connection string for the configured driver.
func (c *Config) StoreDSN() string {
	if c.StoreDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.StorePath
}

// Origins returns the CORS allow-list: CORS_ALLOWED_ORIGINS when set,
// otherwise the frontend plus the local dev server.
func (c *Config) Origins() []string {
	var origins []string
	if len(c.AllowedOrigins) > 0 {
		for _, o := range c.AllowedOrigins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				origins = append(origins, o)
			}
		}
		return origins
	}

	origins = append(origins, c.FrontendURL)
	for _, dev := range []string{"http://localhost:5173", "http://127.0.0.1:5173"} {
		if dev != c.FrontendURL {
			origins = append(origins, dev)
		}
	}
	return origins
}
