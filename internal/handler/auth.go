package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/precinct/internal/auth"
	"github.com/sakif/precinct/internal/service"
)

// AuthHandler manages signup, login and the Discord link step.
//
// DEPENDENCY CHAIN:
//   - users   *service.UserService   → account rules, issues session tokens
//   - tokens  *auth.TokenService     → signs the discord_verified cookie
//   - discord *auth.DiscordProvider  → OAuth code exchange (nil when disabled)
type AuthHandler struct {
	users   *service.UserService
	tokens  *auth.TokenService
	discord *auth.DiscordProvider
	secure  bool
	logger  *slog.Logger
}

func NewAuthHandler(
	users *service.UserService,
	tokens *auth.TokenService,
	discord *auth.DiscordProvider,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		discord: discord,
		secure:  secureCookies,
		logger:  logger,
	}
}

type signupRequest struct {
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	BadgeNumber string  `json:"badgeNumber"`
	RPName      *string `json:"rpName"`
	Rank        *string `json:"rank"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleSignup registers an officer and logs them in.
//
// HTTP: POST /auth/signup
// The Discord id comes from the discord_verified cookie set by the callback.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := service.SignupInput{
		Username:    req.Username,
		Password:    req.Password,
		BadgeNumber: req.BadgeNumber,
		RPName:      req.RPName,
		Rank:        req.Rank,
	}
	if c, err := r.Cookie(auth.DiscordVerifiedCookie); err == nil {
		if discordID, err := h.tokens.ParseDiscordVerified(c.Value); err == nil {
			in.DiscordID = discordID
		} else {
			h.logger.Info("ignoring invalid discord_verified cookie", slog.String("error", err.Error()))
		}
	}

	res, err := h.users.Signup(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.ClearCookie(w, auth.DiscordVerifiedCookie, h.secure)
	auth.SetCookie(w, auth.SessionCookie, res.Token, h.tokens.SessionTTL(), h.secure)
	writeJSON(w, http.StatusCreated, res.User.View())
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetCookie(w, auth.SessionCookie, res.Token, h.tokens.SessionTTL(), h.secure)
	writeJSON(w, http.StatusOK, res.User.View())
}

// HandleLogout clears the session cookie. The token itself stays valid until
// it expires, but without the cookie the browser can't send it.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, auth.SessionCookie, h.secure)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleDiscordLogin redirects the browser to Discord.
//
// HTTP: GET /auth/discord/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived cookie and into the redirect. The
// callback only proceeds if the two match.
func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	if h.discord == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "discord login is not configured"})
		return
	}
	state := auth.NewState()
	auth.SetCookie(w, auth.OAuthStateCookie, state, auth.DiscordVerifiedTTL, h.secure)
	http.Redirect(w, r, h.discord.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback completes the link step.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Discord account id
//  3. If an officer already owns that Discord account, log them in
//  4. Otherwise set the discord_verified cookie and send them to signup
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	if h.discord == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "discord login is not configured"})
		return
	}

	stateCookie, err := r.Cookie(auth.OAuthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("discord callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}
	auth.ClearCookie(w, auth.OAuthStateCookie, h.secure)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("discord callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?discord=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	du, err := h.discord.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("discord callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "unavailable", Message: "discord verification failed"})
		return
	}

	if res, err := h.users.LoginWithDiscord(r.Context(), du.ID); err == nil {
		auth.SetCookie(w, auth.SessionCookie, res.Token, h.tokens.SessionTTL(), h.secure)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	verified, err := h.tokens.IssueDiscordVerified(du.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	auth.SetCookie(w, auth.DiscordVerifiedCookie, verified, auth.DiscordVerifiedTTL, h.secure)
	h.logger.Info("discord account verified", slog.String("discordID", du.ID), slog.String("discordUser", du.Username))
	http.Redirect(w, r, "/signup", http.StatusSeeOther)
}

