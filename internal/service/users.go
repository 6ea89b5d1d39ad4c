package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/auth"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// UserService handles accounts: signup and login, profiles, and the admin
// operations on users and the username lists.
//
// PROTECTED ACCOUNTS:
// Usernames in the protected set can never be deleted, demoted or
// terminated, and no admin can do any of those to their own account. Both
// rules hold no matter who is asking.
type UserService struct {
	users      repository.UserRepository
	blocked    repository.UsernameListRepository
	terminated repository.UsernameListRepository
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	logger     *slog.Logger

	protected      map[string]bool
	requireDiscord bool
}

// UserServiceConfig carries the account rules from configuration.
type UserServiceConfig struct {
	ProtectedUsernames []string
	// RequireDiscord makes signup demand a verified Discord id.
	RequireDiscord bool
}

func NewUserService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	cfg UserServiceConfig,
	logger *slog.Logger,
) *UserService {
	protected := make(map[string]bool, len(cfg.ProtectedUsernames))
	for _, name := range cfg.ProtectedUsernames {
		protected[model.NormalizeUsername(name)] = true
	}
	return &UserService{
		users:          store.Users(),
		blocked:        store.Blocked(),
		terminated:     store.Terminated(),
		tokens:         tokens,
		passwords:      passwords,
		logger:         logger,
		protected:      protected,
		requireDiscord: cfg.RequireDiscord,
	}
}

// AuthResult bundles the user and a fresh session token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignupInput is what a new officer submits. DiscordID comes from the
// verified Discord cookie, never from the request body.
type SignupInput struct {
	Username    string
	Password    string
	BadgeNumber string
	RPName      *string
	Rank        *string
	DiscordID   string
}

// =========================================================================
// SIGNUP / LOGIN
// =========================================================================

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			"username must be 3-32 characters of letters, digits, '.', '_' or '-'")
	}
	if err := requireText("badgeNumber", in.BadgeNumber); err != nil {
		return nil, err
	}
	if s.requireDiscord && in.DiscordID == "" {
		return nil, apperror.Unauthorized("link your Discord account before signing up")
	}

	if err := s.checkRegistrable(ctx, username); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Username:     username,
		PasswordHash: hash,
		BadgeNumber:  strings.TrimSpace(in.BadgeNumber),
		RPName:       in.RPName,
		Rank:         in.Rank,
	}
	if in.DiscordID != "" {
		u.DiscordID = &in.DiscordID
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("service/users: creating %q: %w", username, err)
	}

	s.logger.Info("user signed up", slog.Int64("userID", u.ID), slog.String("username", u.Username))
	return s.session(u)
}

// checkRegistrable applies the three "never register" lists.
func (s *UserService) checkRegistrable(ctx context.Context, username string) error {
	terminated, err := s.terminated.Contains(ctx, username)
	if err != nil {
		return err
	}
	if terminated {
		return apperror.Forbidden("this username has been terminated")
	}

	blocked, err := s.blocked.Contains(ctx, username)
	if err != nil {
		return err
	}
	if blocked {
		return apperror.Forbidden("this username is blocked from registering")
	}

	deleted, err := s.users.IsDeletedUsername(ctx, username)
	if err != nil {
		return err
	}
	if deleted {
		return apperror.Forbidden("this username can no longer be registered")
	}
	return nil
}

// Login checks the credentials and issues a session token. Terminated
// usernames are refused even if the account still exists.
func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	badCredentials := apperror.Unauthorized("invalid username or password")

	terminated, err := s.terminated.Contains(ctx, username)
	if err != nil {
		return nil, err
	}
	if terminated {
		return nil, apperror.Forbidden("this account has been terminated")
	}

	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, badCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.passwords.Verify(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Info("failed login", slog.String("username", u.Username))
			return nil, badCredentials
		}
		return nil, err
	}
	return s.session(u)
}

// LoginWithDiscord logs in the officer linked to a verified Discord account.
func (s *UserService) LoginWithDiscord(ctx context.Context, discordID string) (*AuthResult, error) {
	u, err := s.users.GetByDiscordID(ctx, discordID)
	if err != nil {
		return nil, err
	}
	terminated, err := s.terminated.Contains(ctx, u.Username)
	if err != nil {
		return nil, err
	}
	if terminated {
		return nil, apperror.Forbidden("this account has been terminated")
	}
	return s.session(u)
}

func (s *UserService) session(u *model.User) (*AuthResult, error) {
	token, err := s.tokens.IssueSession(u.ID)
	if err != nil {
		return nil, fmt.Errorf("service/users: issuing token for user %d: %w", u.ID, err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

// =========================================================================
// PROFILE
// =========================================================================

func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// CheckActive fails for sessions whose account was deleted or terminated
// after the token was issued.
func (s *UserService) CheckActive(ctx context.Context, id int64) error {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.Unauthorized("account no longer exists")
	}
	if err != nil {
		return err
	}
	terminated, err := s.terminated.Contains(ctx, u.Username)
	if err != nil {
		return err
	}
	if terminated {
		return apperror.Forbidden("this account has been terminated")
	}
	return nil
}

// IsAdmin backs the admin route guard.
func (s *UserService) IsAdmin(ctx context.Context, id int64) (bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// Viewer resolves the caller for the record services.
func (s *UserService) Viewer(ctx context.Context, id int64) (Viewer, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return Viewer{}, err
	}
	return Viewer{UserID: u.ID, IsAdmin: u.IsAdmin}, nil
}

// ProfileUpdate is what an officer may change about themselves.
type ProfileUpdate struct {
	RPName      model.Nullable[string] `json:"rpName"`
	Rank        model.Nullable[string] `json:"rank"`
	BadgeNumber model.Nullable[string] `json:"badgeNumber"`
	Password    model.Nullable[string] `json:"password"`
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, in ProfileUpdate) (*model.User, error) {
	patch := model.UserPatch{RPName: in.RPName, Rank: in.Rank}

	if in.BadgeNumber.Set {
		if in.BadgeNumber.Value == nil || strings.TrimSpace(*in.BadgeNumber.Value) == "" {
			return nil, apperror.ValidationFailed("badgeNumber", "badgeNumber cannot be empty")
		}
		patch.BadgeNumber = model.Some(strings.TrimSpace(*in.BadgeNumber.Value))
	}
	if in.Password.Set {
		if in.Password.Value == nil {
			return nil, apperror.ValidationFailed("password", "password cannot be null")
		}
		hash, err := s.passwords.Hash(*in.Password.Value)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = model.Some(hash)
	}

	u, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", slog.Int64("userID", id), slog.Bool("passwordChanged", in.Password.Set))
	return u, nil
}

// =========================================================================
// ADMIN: USERS
// =========================================================================

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) IsProtected(username string) bool {
	return s.protected[model.NormalizeUsername(username)]
}

// guard enforces the protected-account and not-yourself rules for an
// operation that takes something away from target.
func (s *UserService) guard(actorID int64, target *model.User, action string) error {
	if target.ID == actorID {
		return apperror.Forbidden("you cannot " + action + " your own account")
	}
	if s.IsProtected(target.Username) {
		return apperror.Forbidden(fmt.Sprintf("%s is a protected account and cannot be %s", target.Username, pastTense(action)))
	}
	return nil
}

func pastTense(action string) string {
	switch action {
	case "delete":
		return "deleted"
	case "demote":
		return "demoted"
	case "terminate":
		return "terminated"
	}
	return action + "ed"
}

// SetAdmin grants or revokes admin. Revoking is a demotion and is guarded.
func (s *UserService) SetAdmin(ctx context.Context, actorID, targetID int64, isAdmin bool) (*model.User, error) {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		if err := s.guard(actorID, target, "demote"); err != nil {
			return nil, err
		}
	}

	u, err := s.users.Update(ctx, targetID, model.UserPatch{IsAdmin: model.Some(isAdmin)})
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin flag changed",
		slog.Int64("actor", actorID), slog.Int64("userID", targetID), slog.Bool("isAdmin", isAdmin))
	return u, nil
}

// SetRank sets or clears a user's rank. A rank change can demote, so it is
// guarded like revoking admin.
func (s *UserService) SetRank(ctx context.Context, actorID, targetID int64, rank model.Nullable[string]) (*model.User, error) {
	if !rank.Set {
		return nil, apperror.ValidationFailed("rank", "rank is required (use null to clear it)")
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(actorID, target, "demote"); err != nil {
		return nil, err
	}
	u, err := s.users.Update(ctx, targetID, model.UserPatch{Rank: rank})
	if err != nil {
		return nil, err
	}
	s.logger.Info("rank changed", slog.Int64("actor", actorID), slog.Int64("userID", targetID))
	return u, nil
}

// Delete removes an account. The username can never be registered again.
func (s *UserService) Delete(ctx context.Context, actorID, targetID int64) error {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guard(actorID, target, "delete"); err != nil {
		return err
	}
	if _, err := s.users.Delete(ctx, targetID); err != nil {
		return err
	}
	s.logger.Info("user deleted",
		slog.Int64("actor", actorID), slog.Int64("userID", targetID), slog.String("username", target.Username))
	return nil
}

// Terminate puts the user's name on the terminated list. The account stays
// but can no longer log in, and existing sessions stop working.
func (s *UserService) Terminate(ctx context.Context, actorID, targetID int64) (*model.UsernameEntry, error) {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(actorID, target, "terminate"); err != nil {
		return nil, err
	}

	entry, err := s.terminated.Add(ctx, target.Username)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user terminated",
		slog.Int64("actor", actorID), slog.Int64("userID", targetID), slog.String("username", target.Username))
	return entry, nil
}

// =========================================================================
// ADMIN: USERNAME LISTS
// =========================================================================

// Block stops a username from registering. Protected names cannot be blocked.
func (s *UserService) Block(ctx context.Context, username string) (*model.UsernameEntry, error) {
	if strings.TrimSpace(username) == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if s.IsProtected(username) {
		return nil, apperror.Forbidden(username + " is a protected account and cannot be blocked")
	}
	return s.blocked.Add(ctx, username)
}

func (s *UserService) Unblock(ctx context.Context, username string) error {
	return s.blocked.Remove(ctx, username)
}

func (s *UserService) ListBlocked(ctx context.Context) ([]model.UsernameEntry, error) {
	return s.blocked.List(ctx)
}

// Unterminate lets the account log in again.
func (s *UserService) Unterminate(ctx context.Context, username string) error {
	return s.terminated.Remove(ctx, username)
}

func (s *UserService) ListTerminated(ctx context.Context) ([]model.UsernameEntry, error) {
	return s.terminated.List(ctx)
}
