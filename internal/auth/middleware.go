package auth

import (
	"context"
	"net/http"
	"time"
)

// Cookie names.
const (
	SessionCookie         = "token"
	DiscordVerifiedCookie = "discord_verified"
	OAuthStateCookie      = "oauth_state"
)

// contextKey is unexported so only this package can set or read the user id.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth rejects requests without a valid session cookie and puts the
// user id in the context of the rest.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				deny(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			userID, err := tokens.ParseSession(cookie.Value)
			if err != nil {
				deny(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// ActiveCheck returns an error if the user may no longer use their session.
type ActiveCheck func(ctx context.Context, userID int64) error

// RequireActive must be mounted after RequireAuth. It rejects valid tokens
// whose account has since been deleted or terminated.
func RequireActive(check ActiveCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			if err := check(r.Context(), userID); err != nil {
				deny(w, http.StatusUnauthorized, "unauthorized", "session is no longer valid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminLookup reports whether the user is currently an admin. It is asked on
// every request, so revoking admin takes effect without a new login.
type AdminLookup func(ctx context.Context, userID int64) (bool, error)

// RequireAdmin must be mounted after RequireAuth.
func RequireAdmin(isAdmin AdminLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			admin, err := isAdmin(r.Context(), userID)
			if err != nil || !admin {
				deny(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a context carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns (0, false) on routes without RequireAuth.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

func deny(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}`))
}

// SetCookie writes an HttpOnly cookie that expires after ttl.
// SameSite=Lax keeps it off cross-site POSTs.
func SetCookie(w http.ResponseWriter, name, value string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie tells the browser to drop the cookie immediately.
func ClearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
