// Package auth issues and checks the portal's signed cookies, hashes
// passwords and runs the Discord account link step.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. A new officer visits /auth/discord/login and is redirected to Discord
//  2. Discord calls back /auth/discord/callback with a code
//  3. The server exchanges the code for the Discord user id and stores it in a
//     short-lived "discord_verified" cookie
//  4. POST /auth/signup reads that cookie, creates the user, and issues a
//     session token in the "token" HttpOnly cookie
//  5. On later API calls, middleware validates the session token and puts the
//     user id in the request context
//
// Both cookies are HS256 JWTs signed with the same secret. A "pur" claim
// keeps one kind from being accepted as the other.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "precinct"

// Token purposes.
const (
	purposeSession = "session"
	purposeDiscord = "discord"
)

// DiscordVerifiedTTL is how long a verified Discord link is good for signup.
const DiscordVerifiedTTL = 10 * time.Minute

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService whose session tokens live for ttl.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// SessionTTL is the lifetime of tokens from IssueSession.
func (s *TokenService) SessionTTL() time.Duration { return s.ttl }

// claims is the JWT payload. "sub" holds the user id or Discord id.
type claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"pur"`
}

// IssueSession signs a session token for the user.
func (s *TokenService) IssueSession(userID int64) (string, error) {
	return s.issue(strconv.FormatInt(userID, 10), purposeSession, s.ttl)
}

// ParseSession returns the user id inside a valid session token.
func (s *TokenService) ParseSession(token string) (int64, error) {
	sub, err := s.parse(token, purposeSession)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("auth: token subject %q is not a user id", sub)
	}
	return id, nil
}

// IssueDiscordVerified signs proof that the browser completed the Discord
// link step for discordID.
func (s *TokenService) IssueDiscordVerified(discordID string) (string, error) {
	return s.issue(discordID, purposeDiscord, DiscordVerifiedTTL)
}

// ParseDiscordVerified returns the Discord id inside a valid link token.
func (s *TokenService) ParseDiscordVerified(token string) (string, error) {
	return s.parse(token, purposeDiscord)
}

func (s *TokenService) issue(subject, purpose string, d time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// parse verifies signature, expiry, issuer and algorithm, then checks that
// the token was issued for purpose.
func (s *TokenService) parse(tokenStr, purpose string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Purpose != purpose {
		return "", fmt.Errorf("auth: token is for %q, not %q", c.Purpose, purpose)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
