// Package model defines officer accounts and the reports they file.
package model

import "time"

// User represents a registered officer account.
//
// WHY int64 IDs?
// Users get sequential integer IDs (1, 2, 3, ...) assigned by the store, never
// reused after a delete. Records (citations, arrests) use random string tokens
// instead. The difference is intentional: officer IDs show up on badges and in
// the admin panel, record IDs show up in shareable URLs.
//
// WHY *string for RPName/Rank/DiscordID?
// These are optional and can be explicitly cleared by an admin. A nil pointer
// means "not set", which serializes to JSON null, while "" would be a real
// (empty) value.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	BadgeNumber  string    `json:"badgeNumber"`
	IsAdmin      bool      `json:"isAdmin"`
	RPName       *string   `json:"rpName"`
	Rank         *string   `json:"rank"`
	DiscordID    *string   `json:"discordId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserPatch lists the fields an update may touch. Unset fields are left alone.
type UserPatch struct {
	PasswordHash Nullable[string] `json:"-"`
	BadgeNumber  Nullable[string] `json:"badgeNumber"`
	IsAdmin      Nullable[bool]   `json:"isAdmin"`
	RPName       Nullable[string] `json:"rpName"`
	Rank         Nullable[string] `json:"rank"`
	DiscordID    Nullable[string] `json:"discordId"`
}

// Apply copies the present fields of p onto u.
// Non-nullable fields (password, badge, admin flag) ignore an explicit null.
func (p UserPatch) Apply(u *User) {
	if p.PasswordHash.Set && p.PasswordHash.Value != nil {
		u.PasswordHash = *p.PasswordHash.Value
	}
	if p.BadgeNumber.Set && p.BadgeNumber.Value != nil {
		u.BadgeNumber = *p.BadgeNumber.Value
	}
	if p.IsAdmin.Set && p.IsAdmin.Value != nil {
		u.IsAdmin = *p.IsAdmin.Value
	}
	p.RPName.ApplyTo(&u.RPName)
	p.Rank.ApplyTo(&u.Rank)
	p.DiscordID.ApplyTo(&u.DiscordID)
}

// UserView is the public shape of a User. The password hash never leaves the server.
type UserView struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	BadgeNumber string    `json:"badgeNumber"`
	IsAdmin     bool      `json:"isAdmin"`
	RPName      *string   `json:"rpName"`
	Rank        *string   `json:"rank"`
	DiscordID   *string   `json:"discordId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// View returns the public representation of u.
func (u User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		BadgeNumber: u.BadgeNumber,
		IsAdmin:     u.IsAdmin,
		RPName:      u.RPName,
		Rank:        u.Rank,
		DiscordID:   u.DiscordID,
		CreatedAt:   u.CreatedAt,
	}
}
