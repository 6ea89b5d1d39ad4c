package notify

import (
	"log/slog"

	"github.com/sakif/precinct/internal/config"
)

// FromConfig returns the Discord sink when a bot token is configured and
// Nop otherwise. Every Discord call is bounded by cfg.Timeout.
func FromConfig(cfg config.DiscordConfig, logger *slog.Logger) (Sink, error) {
	if !cfg.NotificationsEnabled() {
		logger.Warn("discord bot token not set, notifications are disabled")
		return Nop{}, nil
	}
	d, err := NewDiscord(cfg.BotToken,
		Channels{Citation: cfg.CitationChannelID, Arrest: cfg.ArrestChannelID},
		WithDiscordLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return WithTimeout(d, cfg.Timeout), nil
}
