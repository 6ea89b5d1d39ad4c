// Package server wires configuration, the record store, the notification
// sink, services and handlers into one HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → storage.Open      (repository.Store: jsonfile or sqlite)
//	  → notify.FromConfig (notify.Sink: Discord or Nop, bounded by a timeout)
//	  → services          (users, citations, arrests, stats)
//	  → handlers → routes
//
// This is the composition root. Nothing below it constructs its own
// dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/precinct/internal/auth"
	"github.com/sakif/precinct/internal/config"
	"github.com/sakif/precinct/internal/handler"
	"github.com/sakif/precinct/internal/middleware"
	"github.com/sakif/precinct/internal/notify"
	"github.com/sakif/precinct/internal/repository"
	"github.com/sakif/precinct/internal/service"
	"github.com/sakif/precinct/internal/storage"
)

// Server owns the router and the store. The store is flushed and closed when
// Start returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens the configured store and sink and builds the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	sink, err := notify.FromConfig(cfg.Discord, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	s, err := newServer(cfg, store, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// newServer builds services, handlers and routes around an open store.
func newServer(cfg *config.Config, store repository.Store, sink notify.Sink, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	var discord *auth.DiscordProvider
	if cfg.Discord.OAuthEnabled() {
		discord = auth.NewDiscordProvider(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.RedirectURL)
	} else {
		logger.Warn("discord oauth not configured, signup does not require a linked account")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.setupRoutes(store, sink, tokens, discord)
	return s, nil
}

// setupRoutes registers middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz
//	     /auth/*          signup, login, logout, Discord link (public)
//	     /api/*           RequireAuth → RequireActive
//	     /api/admin/*     ... → RequireAdmin
//
// Middleware order: RequestID, RealIP, RequestLogger, Recoverer. The logger
// sits outside Recoverer so a recovered panic is logged as a 500.
func (s *Server) setupRoutes(store repository.Store, sink notify.Sink, tokens *auth.TokenService, discord *auth.DiscordProvider) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === SERVICES ===
	users := service.NewUserService(store, tokens, auth.NewPasswordService(), service.UserServiceConfig{
		ProtectedUsernames: s.config.Auth.ProtectedUsernames,
		RequireDiscord:     discord != nil,
	}, s.logger)
	citations := service.NewCitationService(store.Citations(), sink, s.logger)
	arrests := service.NewArrestService(store.Arrests(), sink, s.logger)
	stats := service.NewStatsService(store)

	// === HANDLERS ===
	authHandler := handler.NewAuthHandler(users, tokens, discord, s.config.Auth.SecureCookies, s.logger)
	userHandler := handler.NewUserHandler(users)
	citationHandler := handler.NewCitationHandler(citations, users)
	arrestHandler := handler.NewArrestHandler(arrests, users)
	statsHandler := handler.NewStatsHandler(stats)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/discord/login", authHandler.HandleDiscordLogin)
		r.Get("/discord/callback", authHandler.HandleDiscordCallback)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Use(auth.RequireActive(users.CheckActive))

		r.Get("/me", userHandler.HandleMe)
		r.Patch("/me", userHandler.HandleUpdateMe)

		r.Get("/citations", citationHandler.HandleList)
		r.Post("/citations", citationHandler.HandleCreate)
		r.Get("/citations/{id}", citationHandler.HandleGet)

		r.Get("/arrests", arrestHandler.HandleList)
		r.Post("/arrests", arrestHandler.HandleCreate)
		r.Get("/arrests/{id}", arrestHandler.HandleGet)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin(users.IsAdmin))

			r.Get("/users", userHandler.HandleList)
			r.Delete("/users/{id}", userHandler.HandleDelete)
			r.Put("/users/{id}/admin", userHandler.HandleSetAdmin)
			r.Put("/users/{id}/rank", userHandler.HandleSetRank)
			r.Post("/users/{id}/terminate", userHandler.HandleTerminate)

			r.Get("/blocked", userHandler.HandleListBlocked)
			r.Post("/blocked", userHandler.HandleBlock)
			r.Delete("/blocked/{username}", userHandler.HandleUnblock)
			r.Get("/terminated", userHandler.HandleListTerminated)
			r.Delete("/terminated/{username}", userHandler.HandleUnterminate)

			r.Delete("/citations", citationHandler.HandleDeleteAll)
			r.Delete("/citations/{id}", citationHandler.HandleDelete)
			r.Post("/citations/{id}/repost", citationHandler.HandleRepost)

			r.Delete("/arrests", arrestHandler.HandleDeleteAll)
			r.Delete("/arrests/{id}", arrestHandler.HandleDelete)
			r.Patch("/arrests/{id}", arrestHandler.HandleAdjust)
			r.Post("/arrests/{id}/repost", arrestHandler.HandleRepost)

			r.Get("/stats", statsHandler.HandleStats)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close flushes and closes the store.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// SHUTDOWN ORDER:
//  1. Stop accepting connections and wait for in-flight requests
//  2. Flush and close the store (writes any raised tally, releases the lock)
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing record store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("storage", s.config.Storage.Driver),
			slog.Bool("discordNotifications", s.config.Discord.NotificationsEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
