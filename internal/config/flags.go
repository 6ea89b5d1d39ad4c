package config

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

// Flags holds the command line flag values of the server binary.
type Flags struct {
	fs *flag.FlagSet

	ConfigFile string
	Version    bool

	serverPort   int
	serverHost   string
	storageDrv   string
	dataDir      string
	sqlitePath   string
	recordIDs    string
	jwtSecret    string
	tokenTTL     time.Duration
	secureCookie bool
	logLevel     string
	logFormat    string
}

// NewFlags defines the server flags on fs.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}

	fs.StringVarP(&f.ConfigFile, "config", "c", "config.yaml", "Path to configuration file")
	fs.BoolVarP(&f.Version, "version", "v", false, "Print version and exit")

	fs.IntVar(&f.serverPort, "server.port", 0, "HTTP server port")
	fs.StringVar(&f.serverHost, "server.host", "", "HTTP server bind address")

	fs.StringVar(&f.storageDrv, "storage.driver", "", "Record store driver (jsonfile or sqlite)")
	fs.StringVar(&f.dataDir, "storage.data-dir", "", "Directory holding the JSON data files")
	fs.StringVar(&f.sqlitePath, "storage.sqlite-path", "", "SQLite database file path")
	fs.StringVar(&f.recordIDs, "storage.record-ids", "", "Record id strategy (token or numeric)")

	fs.StringVar(&f.jwtSecret, "auth.jwt-secret", "", "JWT signing secret")
	fs.DurationVar(&f.tokenTTL, "auth.token-ttl", 0, "Session token lifetime (e.g., 24h)")
	fs.BoolVar(&f.secureCookie, "auth.secure-cookies", false, "Mark session cookies Secure")

	fs.StringVarP(&f.logLevel, "log.level", "l", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log.format", "", "Log format (text or json)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "precinct - records portal for citations and arrest reports\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration priority (highest to lowest):\n")
		fmt.Fprintf(os.Stderr, "  1. Command line flags\n")
		fmt.Fprintf(os.Stderr, "  2. Environment variables (PRECINCT_*)\n")
		fmt.Fprintf(os.Stderr, "  3. Configuration file (default: config.yaml)\n")
	}
	return f
}

// ParseFlags defines the server flags on the global flag set and parses os.Args.
func ParseFlags() *Flags {
	f := NewFlags(flag.CommandLine)
	flag.Parse()
	return f
}

// apply copies every flag the user actually set onto cfg.
func (f *Flags) apply(cfg *Config) {
	set := func(name string) bool { return f.fs.Changed(name) }

	if set("server.port") {
		cfg.Server.Port = f.serverPort
	}
	if set("server.host") {
		cfg.Server.Host = f.serverHost
	}
	if set("storage.driver") {
		cfg.Storage.Driver = f.storageDrv
	}
	if set("storage.data-dir") {
		cfg.Storage.DataDir = f.dataDir
	}
	if set("storage.sqlite-path") {
		cfg.Storage.SQLitePath = f.sqlitePath
	}
	if set("storage.record-ids") {
		cfg.Storage.RecordIDs = f.recordIDs
	}
	if set("auth.jwt-secret") {
		cfg.Auth.JWTSecret = f.jwtSecret
	}
	if set("auth.token-ttl") {
		cfg.Auth.TokenTTL = f.tokenTTL
	}
	if set("auth.secure-cookies") {
		cfg.Auth.SecureCookies = f.secureCookie
	}
	if set("log.level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("log.format") {
		cfg.Logging.Format = f.logFormat
	}
}
