package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PRECINCT_JWT_SECRET", testSecret)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "jsonfile", cfg.Storage.Driver)
	assert.Equal(t, "token", cfg.Storage.RecordIDs)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"admin"}, cfg.Auth.ProtectedUsernames)
	assert.Equal(t, 10*time.Second, cfg.Discord.Timeout)
	assert.False(t, cfg.Discord.NotificationsEnabled())
	assert.False(t, cfg.Discord.OAuthEnabled())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: sqlite
  data_dir: /var/lib/precinct
  record_ids: numeric
auth:
  jwt_secret: "`+testSecret+`"
  token_ttl: 2h
  protected_usernames: [admin, chief]
discord:
  bot_token: bot
  citation_channel_id: "111"
  arrest_channel_id: "222"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/precinct/precinct.db", cfg.Storage.DatabasePath())
	assert.Equal(t, "numeric", cfg.Storage.RecordIDs)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"admin", "chief"}, cfg.Auth.ProtectedUsernames)
	assert.True(t, cfg.Discord.NotificationsEnabled())
	assert.Equal(t, "222", cfg.Discord.ArrestChannelID)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: 127.0.0.1
auth:
  jwt_secret: "`+testSecret+`"
logging:
  level: warn
`)
	t.Setenv("PRECINCT_SERVER_PORT", "9191")
	t.Setenv("PRECINCT_LOG_LEVEL", "error")
	t.Setenv("PRECINCT_PROTECTED_USERNAMES", "admin, chief ,")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := NewFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log.level=debug"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "file beats default")
	assert.Equal(t, 9191, cfg.Server.Port, "env beats file")
	assert.Equal(t, "debug", cfg.Logging.Level, "flag beats env")
	assert.Equal(t, []string{"admin", "chief"}, cfg.Auth.ProtectedUsernames)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	t.Setenv("PRECINCT_JWT_SECRET", testSecret)
	t.Setenv("PRECINCT_SERVER_PORT", "7000")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := NewFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not, a, map")

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, "invalid storage driver"},
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }, "data_dir"},
		{"bad record ids", func(c *Config) { c.Storage.RecordIDs = "uuid" }, "uuid"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "token_ttl"},
		{"bot without channels", func(c *Config) { c.Discord.BotToken = "bot" }, "no channel"},
		{"oauth without redirect", func(c *Config) {
			c.Discord.ClientID = "id"
			c.Discord.ClientSecret = "secret"
		}, "redirect_url"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
