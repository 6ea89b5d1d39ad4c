// Command server runs the precinct records portal.
//
// main only reads configuration, builds the logger and hands both to
// internal/server. Everything else lives in internal/.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/precinct/internal/config"
	"github.com/sakif/precinct/internal/server"
)

// version is set at build time: -ldflags "-X main.version=1.2.0"
var version = "dev"

func main() {
	flags := config.ParseFlags()
	if flags.Version {
		fmt.Printf("precinct %s\n", version)
		return
	}

	cfg, err := config.Load(flags.ConfigFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "precinct: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM and closes the store on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
