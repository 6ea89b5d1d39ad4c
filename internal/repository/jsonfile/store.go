// Package jsonfile is the default Record Store: every collection lives in its
// own JSON document inside one data directory.
//
// HOW WRITES WORK:
// A mutation never edits the live state. withWrite clones the state, lets the
// caller mutate the clone, writes the touched documents from the clone, and
// only then swaps the clone in. If any write fails the clone is dropped, so
// what is in memory always matches what is on disk.
//
// Each document is replaced atomically (temp file, fsync, rename), so a crash
// leaves either the old or the new version of a file, never half of one.
// When a mutation touches several documents the record document is written
// before users.json, which holds the tallies. A crash in between leaves the
// tally behind the collection, and the counter's live-size floor covers that.
//
// ONE WRITER:
// An RWMutex serializes mutations inside the process and an exclusive lock
// on <dir>/.lock keeps a second process (the CLI, another server) out.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"

	"github.com/sakif/precinct/internal/idgen"
	"github.com/sakif/precinct/internal/repository"
)

// ErrLocked is returned by Open when another process holds the data directory.
var ErrLocked = errors.New("jsonfile: data directory is locked by another process")

var _ repository.Store = (*Store)(nil)

// Store is a repository.Store backed by JSON documents.
type Store struct {
	mu     sync.RWMutex
	st     *state
	dir    string
	lock   *flock.Flock
	closed bool

	logger    *slog.Logger
	recordID  idgen.RecordFunc
	now       func() time.Time
	writeFile func(name string, data []byte, perm os.FileMode) error

	users      *userRepo
	citations  *citationRepo
	arrests    *arrestRepo
	blocked    *usernameList
	terminated *usernameList
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRecordIDs sets the id strategy for citations and arrests.
func WithRecordIDs(fn idgen.RecordFunc) Option {
	return func(s *Store) { s.recordID = fn }
}

// WithClock overrides time.Now. Tests use it to get stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open locks dir, creating it if needed, and loads every document in it.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		logger:    slog.Default(),
		recordID:  idgen.Token,
		now:       time.Now,
		writeFile: atomicwriter.WriteFile,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: creating data directory: %w", err)
	}

	s.lock = flock.New(filepath.Join(dir, ".lock"))
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("jsonfile: locking data directory: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	st, err := s.load()
	if err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	s.st = st

	s.users = &userRepo{s: s}
	s.citations = newCitationRepo(s)
	s.arrests = newArrestRepo(s)
	s.blocked = &usernameList{s: s, name: "blocked username", file: fileBlocked,
		entries: func(st *state) *usernameEntries { return &st.blocked }}
	s.terminated = &usernameList{s: s, name: "terminated username", file: fileTerminated,
		entries: func(st *state) *usernameEntries { return &st.terminated }}

	s.logger.Info("record store opened",
		slog.String("dir", dir),
		slog.Int("users", len(st.users)),
		slog.Int("citations", len(st.citations)),
		slog.Int("arrests", len(st.arrests)),
	)
	return s, nil
}

func (s *Store) Users() repository.UserRepository { return s.users }
func (s *Store) Citations() repository.CitationRepository { return s.citations }
func (s *Store) Arrests() repository.ArrestRepository { return s.arrests }
func (s *Store) Blocked() repository.UsernameListRepository { return s.blocked }
func (s *Store) Terminated() repository.UsernameListRepository { return s.terminated }

// Dir returns the data directory the store was opened on.
func (s *Store) Dir() string { return s.dir }

// Flush rewrites every document from the current state.
func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return s.writeLocked(s.st, allFiles...)
}

// Close flushes, then releases the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.writeLocked(s.st, allFiles...)
	unlockErr := s.lock.Unlock()
	return errors.Join(flushErr, unlockErr)
}

var errClosed = errors.New("jsonfile: store is closed")

// withWrite runs fn against a copy of the state and persists the listed
// documents. The copy replaces the live state only if every write succeeds.
func (s *Store) withWrite(ctx context.Context, files []fileID, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	next := s.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.writeLocked(next, files...); err != nil {
		s.logger.Error("record store write failed, changes rolled back",
			slog.String("error", err.Error()))
		return err
	}
	s.st = next
	return nil
}

func (s *Store) withRead(fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return fn(s.st)
}

// withTally is for reads that may raise a tally. The raised value stays in
// memory and reaches disk with the next write or Flush.
func (s *Store) withTally(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return fn(s.st)
}
