package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/xid"
	"golang.org/x/oauth2"
)

// Discord endpoints. https://discord.com/developers/docs/topics/oauth2
var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const discordUserURL = "https://discord.com/api/users/@me"

// DiscordUser is the part of GET /users/@me we use.
type DiscordUser struct {
	ID       string `json:"id"` // snowflake, stable for the life of the account
	Username string `json:"username"`
}

// DiscordProvider runs the OAuth authorization code flow against Discord.
// The portal only needs to know which Discord account the officer owns, so
// it asks for the "identify" scope and nothing else.
type DiscordProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewDiscordProvider creates a provider. redirectURL must match one of the
// redirects registered for the application exactly, e.g.
// "http://localhost:8080/auth/discord/callback".
func NewDiscordProvider(clientID, clientSecret, redirectURL string, opts ...ProviderOption) *DiscordProvider {
	p := &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify"},
			Endpoint:     discordEndpoint,
		},
		userURL: discordUserURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProviderOption adjusts a DiscordProvider.
type ProviderOption func(*DiscordProvider)

// WithBaseURL sends the OAuth and user calls to base instead of Discord.
// base must serve /oauth2/authorize, /api/oauth2/token and /api/users/@me.
func WithBaseURL(base string) ProviderOption {
	return func(p *DiscordProvider) {
		p.config.Endpoint = oauth2.Endpoint{
			AuthURL:   base + "/oauth2/authorize",
			TokenURL:  base + "/api/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
		p.userURL = base + "/api/users/@me"
	}
}

// NewState returns an unguessable value for the OAuth state parameter.
func NewState() string {
	return xid.New().String()
}

// AuthURL returns the URL to send the browser to.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the Discord account behind it.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.userURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Discord /users/@me: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Discord /users/@me returned status %d", resp.StatusCode)
	}

	var user DiscordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decoding Discord user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("auth: Discord returned a user without an id")
	}
	return &user, nil
}
