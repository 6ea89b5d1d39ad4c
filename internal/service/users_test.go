package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/notify"
)

func signup(t *testing.T, svc *UserService, username string) *model.User {
	t.Helper()
	res, err := svc.Signup(context.Background(), SignupInput{
		Username:    username,
		Password:    "hunter22",
		BadgeNumber: "101",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	return res.User
}

func makeAdmin(t *testing.T, svc *UserService, id int64) {
	t.Helper()
	_, err := svc.users.Update(context.Background(), id, model.UserPatch{IsAdmin: model.Some(true)})
	require.NoError(t, err)
}

// =========================================================================
// SIGNUP / LOGIN
// =========================================================================

func TestSignup(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{})

	u := signup(t, svc, "Ada")
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "Ada", u.Username)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.False(t, u.IsAdmin)
}

func TestSignup_Rejections(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestUserService(t, store, UserServiceConfig{})
	signup(t, svc, "ada")

	_, err := store.Blocked().Add(ctx, "mallory")
	require.NoError(t, err)
	_, err = store.Terminated().Add(ctx, "trudy")
	require.NoError(t, err)
	gone := signup(t, svc, "eve")
	_, err = store.Users().Delete(ctx, gone.ID)
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		target   error
	}{
		{"duplicate ignoring case", "ADA", "hunter22", apperror.ErrConflict},
		{"blocked", "Mallory", "hunter22", apperror.ErrForbidden},
		{"terminated", "TRUDY", "hunter22", apperror.ErrForbidden},
		{"previously deleted", "Eve", "hunter22", apperror.ErrForbidden},
		{"bad username", "a b", "hunter22", apperror.ErrValidation},
		{"short password", "grace", "123", apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, SignupInput{Username: tt.username, Password: tt.password, BadgeNumber: "7"})
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestSignup_RequiresDiscordWhenConfigured(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{RequireDiscord: true})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Username: "ada", Password: "hunter22", BadgeNumber: "1"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	res, err := svc.Signup(ctx, SignupInput{Username: "ada", Password: "hunter22", BadgeNumber: "1", DiscordID: "555"})
	require.NoError(t, err)
	require.NotNil(t, res.User.DiscordID)
	assert.Equal(t, "555", *res.User.DiscordID)

	// one portal account per Discord account
	_, err = svc.Signup(ctx, SignupInput{Username: "grace", Password: "hunter22", BadgeNumber: "2", DiscordID: "555"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestLogin(t *testing.T) {
	store := newTestStore(t)
	svc := newTestUserService(t, store, UserServiceConfig{})
	ctx := context.Background()
	u := signup(t, svc, "Ada")

	res, err := svc.Login(ctx, "ada", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)

	_, err = svc.Login(ctx, "ada", "wrong-password")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	_, err = svc.Login(ctx, "nobody", "hunter22")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	_, err = store.Terminated().Add(ctx, "ADA")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ada", "hunter22")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestLoginWithDiscord(t *testing.T) {
	store := newTestStore(t)
	svc := newTestUserService(t, store, UserServiceConfig{})
	ctx := context.Background()

	_, err := svc.LoginWithDiscord(ctx, "555")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	created, err := svc.Signup(ctx, SignupInput{Username: "ada", Password: "hunter22", BadgeNumber: "1", DiscordID: "555"})
	require.NoError(t, err)

	res, err := svc.LoginWithDiscord(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, res.User.ID)

	_, err = store.Terminated().Add(ctx, "ada")
	require.NoError(t, err)
	_, err = svc.LoginWithDiscord(ctx, "555")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestCheckActive(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{})
	ctx := context.Background()
	actor := signup(t, svc, "chief")
	makeAdmin(t, svc, actor.ID)
	u := signup(t, svc, "ada")

	assert.NoError(t, svc.CheckActive(ctx, u.ID))

	_, err := svc.Terminate(ctx, actor.ID, u.ID)
	require.NoError(t, err)
	assert.Error(t, svc.CheckActive(ctx, u.ID))

	require.NoError(t, svc.Unterminate(ctx, "ada"))
	assert.NoError(t, svc.CheckActive(ctx, u.ID))

	require.NoError(t, svc.Delete(ctx, actor.ID, u.ID))
	assert.True(t, errors.Is(svc.CheckActive(ctx, u.ID), apperror.ErrUnauthorized))
}

// =========================================================================
// PROFILE
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{})
	ctx := context.Background()
	u := signup(t, svc, "ada")

	got, err := svc.UpdateProfile(ctx, u.ID, ProfileUpdate{
		RPName:   model.Some("Ada Lovelace"),
		Rank:     model.Some("Corporal"),
		Password: model.Some("new-password"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", *got.RPName)
	assert.Equal(t, "101", got.BadgeNumber)

	_, err = svc.Login(ctx, "ada", "new-password")
	assert.NoError(t, err)

	got, err = svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Rank: model.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, got.Rank)
	assert.NotNil(t, got.RPName)

	_, err = svc.UpdateProfile(ctx, u.ID, ProfileUpdate{BadgeNumber: model.Some("  ")})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

// =========================================================================
// PROTECTED ACCOUNTS
// =========================================================================

func TestProtectedAccounts(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{ProtectedUsernames: []string{"Admin"}})
	ctx := context.Background()

	owner := signup(t, svc, "admin")
	makeAdmin(t, svc, owner.ID)
	deputy := signup(t, svc, "deputy")
	makeAdmin(t, svc, deputy.ID)

	ops := map[string]func(actor, target int64) error{
		"delete": func(actor, target int64) error { return svc.Delete(ctx, actor, target) },
		"demote": func(actor, target int64) error {
			_, err := svc.SetAdmin(ctx, actor, target, false)
			return err
		},
		"terminate": func(actor, target int64) error {
			_, err := svc.Terminate(ctx, actor, target)
			return err
		},
		"set rank": func(actor, target int64) error {
			_, err := svc.SetRank(ctx, actor, target, model.Some("Cadet"))
			return err
		},
		"clear rank": func(actor, target int64) error {
			_, err := svc.SetRank(ctx, actor, target, model.Null[string]())
			return err
		},
	}

	for name, op := range ops {
		t.Run(name+" protected by another admin", func(t *testing.T) {
			assert.True(t, errors.Is(op(deputy.ID, owner.ID), apperror.ErrForbidden))
		})
		t.Run(name+" protected by itself", func(t *testing.T) {
			assert.True(t, errors.Is(op(owner.ID, owner.ID), apperror.ErrForbidden))
		})
		t.Run(name+" own account", func(t *testing.T) {
			assert.True(t, errors.Is(op(deputy.ID, deputy.ID), apperror.ErrForbidden))
		})
	}

	// still there, still admin
	u, err := svc.Get(ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.Nil(t, u.Rank)
	assert.NoError(t, svc.CheckActive(ctx, owner.ID))

	_, err = svc.Block(ctx, "ADMIN")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestAdminOps_OnOrdinaryUser(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{ProtectedUsernames: []string{"admin"}})
	ctx := context.Background()
	actor := signup(t, svc, "admin")
	makeAdmin(t, svc, actor.ID)
	u := signup(t, svc, "ada")

	got, err := svc.SetAdmin(ctx, actor.ID, u.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)

	got, err = svc.SetAdmin(ctx, actor.ID, u.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsAdmin)

	got, err = svc.SetRank(ctx, actor.ID, u.ID, model.Some("Lieutenant"))
	require.NoError(t, err)
	assert.Equal(t, "Lieutenant", *got.Rank)

	_, err = svc.SetRank(ctx, actor.ID, u.ID, model.Nullable[string]{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	require.NoError(t, svc.Delete(ctx, actor.ID, u.ID))
	_, err = svc.Get(ctx, u.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = svc.Signup(ctx, SignupInput{Username: "ada", Password: "hunter22", BadgeNumber: "1"})
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "deleted names stay taken")
}

func TestUsernameListAdmin(t *testing.T) {
	svc := newTestUserService(t, newTestStore(t), UserServiceConfig{})
	ctx := context.Background()

	entry, err := svc.Block(ctx, " Mallory ")
	require.NoError(t, err)
	assert.Equal(t, "mallory", entry.Username)

	list, err := svc.ListBlocked(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Signup(ctx, SignupInput{Username: "MALLORY", Password: "hunter22", BadgeNumber: "1"})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	require.NoError(t, svc.Unblock(ctx, "mallory"))
	_, err = svc.Signup(ctx, SignupInput{Username: "MALLORY", Password: "hunter22", BadgeNumber: "1"})
	assert.NoError(t, err)

	assert.True(t, errors.Is(svc.Unblock(ctx, "mallory"), apperror.ErrNotFound))
	_, err = svc.Block(ctx, "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	terminated, err := svc.ListTerminated(ctx)
	require.NoError(t, err)
	assert.Empty(t, terminated)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	users := newTestUserService(t, store, UserServiceConfig{})
	citations := NewCitationService(store.Citations(), notify.Nop{}, quietLogger())
	ctx := context.Background()

	signup(t, users, "ada")
	signup(t, users, "grace")
	c, err := citations.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	_, err = citations.Create(ctx, officer, citationDraft())
	require.NoError(t, err)
	require.NoError(t, citations.Delete(ctx, c.ID))

	stats, err := NewStatsService(store).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{CitationCount: 2, ArrestCount: 0, Users: 2}, stats)
}
