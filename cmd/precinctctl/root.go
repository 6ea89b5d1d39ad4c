package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/precinct/internal/auth"
	"github.com/sakif/precinct/internal/config"
	"github.com/sakif/precinct/internal/repository"
	"github.com/sakif/precinct/internal/repository/jsonfile"
	"github.com/sakif/precinct/internal/service"
	"github.com/sakif/precinct/internal/storage"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "precinctctl",
		Short:         "precinctctl - operator tool for the precinct records portal",
		Long:          "precinctctl manages users and records in a precinct data directory.\nStop the server before using it; the data directory is locked while it runs.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// same flags, env vars and config file as the server
	flags := config.NewFlags(cmd.PersistentFlags())

	cmd.AddCommand(newUsersCmd(flags))
	cmd.AddCommand(newRecordsCmd(flags))
	return cmd
}

// env is an opened data directory plus the configuration it came from.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  repository.Store
}

func openEnv(cmd *cobra.Command, flags *config.Flags) (*env, error) {
	cfg, err := config.Load(flags.ConfigFile, flags)
	if err != nil {
		return nil, err
	}
	// store housekeeping logs are noise on a terminal
	if !cmd.Flags().Changed("log.level") {
		cfg.Logging.Level = "warn"
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	store, err := storage.Open(cfg.Storage, logger)
	if errors.Is(err, jsonfile.ErrLocked) {
		return nil, fmt.Errorf("%w: stop the server first", err)
	}
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, store: store}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

func (e *env) users() (*service.UserService, error) {
	tokens, err := auth.NewTokenService(e.cfg.Auth.JWTSecret, e.cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	return service.NewUserService(e.store, tokens, auth.NewPasswordService(), service.UserServiceConfig{
		ProtectedUsernames: e.cfg.Auth.ProtectedUsernames,
	}, e.logger), nil
}
