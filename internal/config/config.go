// Package config loads the portal's configuration.
//
// Values are resolved in this order, later ones winning:
//
//  1. Built-in defaults (Default)
//  2. The YAML config file, if it exists
//  3. Environment variables (PRECINCT_*)
//  4. Command line flags
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/sakif/precinct/internal/idgen"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Discord DiscordConfig `yaml:"discord"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address, e.g. ":8080".
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects and locates the record store.
type StorageConfig struct {
	Driver     string `yaml:"driver"`      // jsonfile or sqlite
	DataDir    string `yaml:"data_dir"`    // jsonfile documents live here
	SQLitePath string `yaml:"sqlite_path"` // defaults to <data_dir>/precinct.db
	RecordIDs  string `yaml:"record_ids"`  // token or numeric
}

// DatabasePath returns the sqlite file, falling back to one inside DataDir.
func (s StorageConfig) DatabasePath() string {
	if s.SQLitePath != "" {
		return s.SQLitePath
	}
	return filepath.Join(s.DataDir, "precinct.db")
}

// AuthConfig holds session and account rules.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	SecureCookies      bool          `yaml:"secure_cookies"`
	ProtectedUsernames []string      `yaml:"protected_usernames"`
}

// DiscordConfig covers both the notification bot and the OAuth link step.
// An empty BotToken disables notifications; an empty ClientID disables the
// OAuth link step and with it the verified-Discord requirement on signup.
type DiscordConfig struct {
	BotToken          string        `yaml:"bot_token"`
	CitationChannelID string        `yaml:"citation_channel_id"`
	ArrestChannelID   string        `yaml:"arrest_channel_id"`
	Timeout           time.Duration `yaml:"timeout"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

func (d DiscordConfig) NotificationsEnabled() bool { return d.BotToken != "" }

func (d DiscordConfig) OAuthEnabled() bool { return d.ClientID != "" && d.ClientSecret != "" }

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:    "jsonfile",
			DataDir:   filepath.Join(xdg.DataHome, "precinct"),
			RecordIDs: "token",
		},
		Auth: AuthConfig{
			TokenTTL:           24 * time.Hour,
			ProtectedUsernames: []string{"admin"},
		},
		Discord: DiscordConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the file at path (skipped if
// it does not exist), the environment and flags. flags may be nil.
func Load(path string, flags *Flags) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if flags != nil {
		flags.apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Server overrides
	if port := os.Getenv("PRECINCT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	envString("PRECINCT_SERVER_HOST", &c.Server.Host)

	// Storage overrides
	envString("PRECINCT_STORAGE_DRIVER", &c.Storage.Driver)
	envString("PRECINCT_DATA_DIR", &c.Storage.DataDir)
	envString("PRECINCT_SQLITE_PATH", &c.Storage.SQLitePath)

	// Auth overrides
	envString("PRECINCT_JWT_SECRET", &c.Auth.JWTSecret)
	if names := os.Getenv("PRECINCT_PROTECTED_USERNAMES"); names != "" {
		c.Auth.ProtectedUsernames = splitList(names)
	}

	// Discord overrides
	envString("PRECINCT_DISCORD_BOT_TOKEN", &c.Discord.BotToken)
	envString("PRECINCT_DISCORD_CITATION_CHANNEL", &c.Discord.CitationChannelID)
	envString("PRECINCT_DISCORD_ARREST_CHANNEL", &c.Discord.ArrestChannelID)
	envString("PRECINCT_DISCORD_CLIENT_ID", &c.Discord.ClientID)
	envString("PRECINCT_DISCORD_CLIENT_SECRET", &c.Discord.ClientSecret)
	envString("PRECINCT_DISCORD_REDIRECT_URL", &c.Discord.RedirectURL)

	// Logging overrides
	envString("PRECINCT_LOG_LEVEL", &c.Logging.Level)
	envString("PRECINCT_LOG_FORMAT", &c.Logging.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case "jsonfile":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage data_dir not specified")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" && c.Storage.DataDir == "" {
			return fmt.Errorf("storage sqlite_path or data_dir must be specified")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be 'jsonfile' or 'sqlite')", c.Storage.Driver)
	}
	if _, err := idgen.ByName(c.Storage.RecordIDs); err != nil {
		return err
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token_ttl must be positive")
	}

	if c.Discord.Timeout <= 0 {
		return fmt.Errorf("discord timeout must be positive")
	}
	if c.Discord.NotificationsEnabled() && c.Discord.CitationChannelID == "" && c.Discord.ArrestChannelID == "" {
		return fmt.Errorf("discord bot_token set but no channel configured")
	}
	if c.Discord.OAuthEnabled() && c.Discord.RedirectURL == "" {
		return fmt.Errorf("discord redirect_url required when client_id is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", c.Logging.Format)
	}

	return nil
}

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(l.Level))

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
