// Package repository defines the storage contracts the services depend on.
//
// Two backends implement them: jsonfile (whole-collection JSON documents, the
// default) and sqlite. Services only ever see these interfaces, so the
// backend is chosen once in the storage package and nowhere else.
//
// ERROR CONTRACT:
//   - A missing id is reported as an apperror.NotFound error (errors.Is(err,
//     apperror.ErrNotFound)), never as an I/O failure.
//   - A duplicate username is an apperror.Conflict.
//   - Anything else is an unexpected storage error, wrapped with the backend
//     name. The HTTP layer maps those to 500.
package repository

import (
	"context"

	"github.com/sakif/precinct/internal/model"
)

// UserRepository stores officer accounts.
type UserRepository interface {
	// Create assigns the next user id and the timestamps, then persists u.
	// Usernames are unique ignoring case.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername matches ignoring case.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByDiscordID(ctx context.Context, discordID string) (*model.User, error)
	// List returns every user ordered by id.
	List(ctx context.Context) ([]model.User, error)
	// Update applies the present patch fields and bumps UpdatedAt.
	Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)
	// Delete removes the user and remembers the username so it can never be
	// registered again. The removed user is returned.
	Delete(ctx context.Context, id int64) (*model.User, error)
	IsDeletedUsername(ctx context.Context, username string) (bool, error)
}

// RecordRepository is the contract shared by the citation and arrest
// collections. R is the record type, P its patch type.
type RecordRepository[R any, P any] interface {
	// Create assigns the record id and timestamps, raises the collection's
	// tally, then persists rec.
	Create(ctx context.Context, rec *R) error
	GetByID(ctx context.Context, id string) (*R, error)
	// List returns all records. Ordering is left to the caller.
	List(ctx context.Context) ([]R, error)
	Update(ctx context.Context, id string, patch P) (*R, error)
	// Delete removes one record and returns it. The tally is not lowered.
	Delete(ctx context.Context, id string) (*R, error)
	// DeleteAll empties the collection, resets the tally to zero and returns
	// the removed records so the caller can retract their notifications.
	DeleteAll(ctx context.Context) ([]R, error)
	// Count returns the "ever issued" tally, floored at the live size.
	Count(ctx context.Context) (int64, error)
}

type CitationRepository = RecordRepository[model.Citation, model.CitationPatch]

type ArrestRepository = RecordRepository[model.Arrest, model.ArrestPatch]

// UsernameListRepository stores the blocked and terminated username lists.
// Usernames are normalized with model.NormalizeUsername on the way in.
type UsernameListRepository interface {
	// Add is idempotent: adding a username already on the list returns the
	// existing entry.
	Add(ctx context.Context, username string) (*model.UsernameEntry, error)
	Contains(ctx context.Context, username string) (bool, error)
	Remove(ctx context.Context, username string) error
	List(ctx context.Context) ([]model.UsernameEntry, error)
}

// Store bundles the five collections of one data directory.
type Store interface {
	Users() UserRepository
	Citations() CitationRepository
	Arrests() ArrestRepository
	Blocked() UsernameListRepository
	Terminated() UsernameListRepository

	// Flush writes any in-memory state (such as a raised tally) to disk.
	Flush(ctx context.Context) error
	// Close flushes and releases the store. It is safe to call twice.
	Close() error
}
