// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/park285/crowdchess/internal/platform/reddit"
	"github.com/park285/crowdchess/internal/schedule"
)

const (
	AuthEnv   = "env"
	AuthToken = "token"
)

var ErrInvalid = errors.New("config: invalid")

type AppConfig struct {
	IntervalSeconds int    `env:"CROWDCHESS_INTERVAL_SECONDS"`
	PostsPerDay     int    `env:"CROWDCHESS_POSTS_PER_DAY"`
	Database        string `env:"CROWDCHESS_DATABASE" envDefault:"communitychess.db"`
	Reset           bool   `env:"CROWDCHESS_RESET"`
	Subreddit       string `env:"CROWDCHESS_SUBREDDIT"`
	AuthMethod      string `env:"CROWDCHESS_AUTH_METHOD" envDefault:"env"`

	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RefreshToken string `env:"REFRESH_TOKEN"`
	AccessToken  string `env:"ACCESS_TOKEN"`
	UserAgent    string `env:"USER_AGENT" envDefault:"crowdchess/1.0"`

	RedisURL string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"legacy"`
	LogFile   string `env:"LOG_FILE"`

	PollInterval time.Duration `env:"CROWDCHESS_POLL_INTERVAL" envDefault:"5s"`
	MessagesDir  string        `env:"CROWDCHESS_MESSAGES_DIR"`
	PiecesDir    string        `env:"CROWDCHESS_PIECES_DIR"`
	DryRun       bool          `env:"CROWDCHESS_DRY_RUN"`
}

// Load reads envFile when it exists and then parses the environment.
// Variables already set win over the file.
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.Subreddit = strings.TrimPrefix(strings.TrimSpace(c.Subreddit), "r/")
	c.AuthMethod = strings.ToLower(strings.TrimSpace(c.AuthMethod))
	c.Database = strings.TrimSpace(c.Database)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
}

// Validate checks everything the server needs before it touches the network.
func (c *AppConfig) Validate() error {
	if _, err := c.Cadence(); err != nil {
		return err
	}
	if c.Database == "" {
		return fmt.Errorf("%w: database location required", ErrInvalid)
	}
	return c.ValidatePlatform()
}

// ValidatePlatform checks only the settings the platform client needs.
func (c *AppConfig) ValidatePlatform() error {
	if c.Subreddit == "" {
		return fmt.Errorf("%w: subreddit required", ErrInvalid)
	}
	if c.DryRun {
		return nil
	}
	switch c.AuthMethod {
	case AuthEnv:
		if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
			return fmt.Errorf("%w: auth method env needs CLIENT_ID, CLIENT_SECRET and REFRESH_TOKEN", ErrInvalid)
		}
	case AuthToken:
		if c.AccessToken == "" {
			return fmt.Errorf("%w: auth method token needs ACCESS_TOKEN", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown auth method %q", ErrInvalid, c.AuthMethod)
	}
	return nil
}

// Cadence builds the configured posting schedule.
func (c *AppConfig) Cadence() (schedule.Cadence, error) {
	cad, err := schedule.New(c.IntervalSeconds, c.PostsPerDay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cad, nil
}

// Credentials returns the platform credentials for the configured auth mode.
func (c *AppConfig) Credentials() reddit.Credentials {
	creds := reddit.Credentials{UserAgent: c.UserAgent}
	if c.AuthMethod == AuthToken {
		creds.AccessToken = c.AccessToken
		return creds
	}
	creds.ClientID = c.ClientID
	creds.ClientSecret = c.ClientSecret
	creds.RefreshToken = c.RefreshToken
	return creds
}
