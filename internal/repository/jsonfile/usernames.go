package jsonfile

import (
	"context"
	"slices"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

// usernameList backs both the blocked and the terminated lists.
type usernameList struct {
	s       *Store
	name    string
	file    fileID
	entries func(*state) *usernameEntries
}

var _ repository.UsernameListRepository = (*usernameList)(nil)

func (l *usernameList) Add(ctx context.Context, username string) (*model.UsernameEntry, error) {
	name := model.NormalizeUsername(username)
	if name == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	var out *model.UsernameEntry
	err := l.s.withWrite(ctx, []fileID{l.file}, func(st *state) error {
		entries := l.entries(st)
		if i := indexOfName(*entries, name); i >= 0 {
			e := (*entries)[i]
			out = &e
			return nil
		}

		var nextID int64 = 1
		for _, e := range *entries {
			nextID = max(nextID, e.ID+1)
		}
		e := model.UsernameEntry{ID: nextID, Username: name, Timestamp: l.s.now()}
		*entries = append(*entries, e)
		out = &e
		return nil
	})
	return out, err
}

func (l *usernameList) Contains(ctx context.Context, username string) (bool, error) {
	name := model.NormalizeUsername(username)
	var found bool
	err := l.s.withRead(func(st *state) error {
		found = indexOfName(*l.entries(st), name) >= 0
		return nil
	})
	return found, err
}

func (l *usernameList) Remove(ctx context.Context, username string) error {
	name := model.NormalizeUsername(username)
	return l.s.withWrite(ctx, []fileID{l.file}, func(st *state) error {
		entries := l.entries(st)
		i := indexOfName(*entries, name)
		if i < 0 {
			return apperror.NotFound(l.name, name)
		}
		*entries = slices.Delete(*entries, i, i+1)
		return nil
	})
}

func (l *usernameList) List(ctx context.Context) ([]model.UsernameEntry, error) {
	var out []model.UsernameEntry
	err := l.s.withRead(func(st *state) error {
		out = slices.Clone(*l.entries(st))
		return nil
	})
	return out, err
}

// indexOfName compares normalized names, so entries written by an older
// version with mixed case still match.
func indexOfName(entries []model.UsernameEntry, name string) int {
	return slices.IndexFunc(entries, func(e model.UsernameEntry) bool {
		return model.NormalizeUsername(e.Username) == name
	})
}
