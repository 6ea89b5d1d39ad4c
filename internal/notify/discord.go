package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/sakif/precinct/internal/model"
)

// Channels maps each record kind to the Discord channel it is posted in.
type Channels struct {
	Citation string
	Arrest   string
}

func (c Channels) forKind(k model.Kind) string {
	switch k {
	case model.KindCitation:
		return c.Citation
	case model.KindArrest:
		return c.Arrest
	}
	return ""
}

// Discord posts records as embeds through a bot account. It only uses the
// REST API; no gateway connection is opened.
type Discord struct {
	session  *discordgo.Session
	channels Channels
	logger   *slog.Logger
}

var _ Sink = (*Discord)(nil)

// DiscordOption configures a Discord sink.
type DiscordOption func(*Discord)

// WithHTTPClient replaces the client used for REST calls.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *Discord) { d.session.Client = c }
}

func WithDiscordLogger(l *slog.Logger) DiscordOption {
	return func(d *Discord) { d.logger = l }
}

// NewDiscord creates a sink for the bot with the given token.
func NewDiscord(botToken string, channels Channels, opts ...DiscordOption) (*Discord, error) {
	if botToken == "" {
		return nil, errors.New("notify: discord bot token is empty")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: creating discord session: %w", err)
	}
	// A request that fails is reported, not retried: the caller's deadline
	// is short and the record is saved either way.
	session.MaxRestRetries = 0
	session.ShouldRetryOnRateLimit = false

	d := &Discord{session: session, channels: channels, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Post sends the notice to the channel for its kind and returns the message id.
func (d *Discord) Post(ctx context.Context, n Notice) (string, error) {
	channel := d.channels.forKind(n.Kind)
	if channel == "" {
		return "", fmt.Errorf("%w: %s", ErrNoChannel, n.Kind)
	}

	msg, err := buildMessage(n, d.logger)
	if err != nil {
		return "", err
	}

	sent, err := d.session.ChannelMessageSendComplex(channel, msg, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("notify: posting %s: %w", n.Kind, err)
	}
	return sent.ID, nil
}

// Retract deletes a posted message. A message that is already gone counts
// as deleted.
func (d *Discord) Retract(ctx context.Context, kind model.Kind, ref string) error {
	if ref == "" {
		return nil
	}
	channel := d.channels.forKind(kind)
	if channel == "" {
		return fmt.Errorf("%w: %s", ErrNoChannel, kind)
	}

	err := d.session.ChannelMessageDelete(channel, ref, discordgo.WithContext(ctx))
	if err == nil || isGone(err) {
		return nil
	}
	return fmt.Errorf("notify: retracting %s message %s: %w", kind, ref, err)
}

// isGone reports whether Discord says the message does not exist.
func isGone(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
