package jsonfile

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

type userRepo struct {
	s *Store
}

var _ repository.UserRepository = (*userRepo)(nil)

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	var created model.User
	err := r.s.withWrite(ctx, []fileID{fileUsers}, func(st *state) error {
		if findUser(st.users, byUsername(u.Username)) >= 0 {
			return apperror.Conflict("user", u.Username)
		}
		if u.DiscordID != nil && findUser(st.users, byDiscordID(*u.DiscordID)) >= 0 {
			return apperror.Conflict("discord account", *u.DiscordID)
		}

		created = *u
		now := r.s.now()
		created.ID = st.nextUserID.Next()
		created.CreatedAt = now
		created.UpdatedAt = now
		st.users = append(st.users, created)
		return nil
	})
	if err != nil {
		return err
	}
	*u = created
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.find(byID(id), strconv.FormatInt(id, 10))
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.find(byUsername(username), username)
}

func (r *userRepo) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	return r.find(byDiscordID(discordID), discordID)
}

func (r *userRepo) find(match func(model.User) bool, key string) (*model.User, error) {
	var out *model.User
	err := r.s.withRead(func(st *state) error {
		i := findUser(st.users, match)
		if i < 0 {
			return apperror.NotFound("user", key)
		}
		u := st.users[i]
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := r.s.withRead(func(st *state) error {
		out = slices.Clone(st.users)
		return nil
	})
	return out, err
}

func (r *userRepo) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	var out *model.User
	err := r.s.withWrite(ctx, []fileID{fileUsers}, func(st *state) error {
		i := findUser(st.users, byID(id))
		if i < 0 {
			return apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		if d := patch.DiscordID; d.Set && d.Value != nil {
			if j := findUser(st.users, byDiscordID(*d.Value)); j >= 0 && j != i {
				return apperror.Conflict("discord account", *d.Value)
			}
		}
		patch.Apply(&st.users[i])
		st.users[i].UpdatedAt = r.s.now()
		u := st.users[i]
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) Delete(ctx context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := r.s.withWrite(ctx, []fileID{fileUsers}, func(st *state) error {
		i := findUser(st.users, byID(id))
		if i < 0 {
			return apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		u := st.users[i]
		out = &u
		st.users = slices.Delete(st.users, i, i+1)

		name := model.NormalizeUsername(u.Username)
		if !slices.Contains(st.deletedUsernames, name) {
			st.deletedUsernames = append(st.deletedUsernames, name)
		}
		return nil
	})
	return out, err
}

func (r *userRepo) IsDeletedUsername(ctx context.Context, username string) (bool, error) {
	var found bool
	err := r.s.withRead(func(st *state) error {
		found = slices.Contains(st.deletedUsernames, model.NormalizeUsername(username))
		return nil
	})
	return found, err
}

// MATCHERS

func findUser(users []model.User, match func(model.User) bool) int {
	return slices.IndexFunc(users, match)
}

func byID(id int64) func(model.User) bool {
	return func(u model.User) bool { return u.ID == id }
}

func byUsername(name string) func(model.User) bool {
	name = strings.TrimSpace(name)
	return func(u model.User) bool { return strings.EqualFold(u.Username, name) }
}

func byDiscordID(discordID string) func(model.User) bool {
	return func(u model.User) bool { return u.DiscordID != nil && *u.DiscordID == discordID }
}
