package model

import (
	"strings"
	"time"
)

// UsernameEntry is one row of the blocked or terminated username lists.
//
// Blocked usernames cannot register. Terminated usernames can neither
// register nor log in. Both lists store the username lowercased; see
// NormalizeUsername.
type UsernameEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeUsername is the single comparison rule for usernames:
// surrounding whitespace is dropped and the result is lowercased.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
