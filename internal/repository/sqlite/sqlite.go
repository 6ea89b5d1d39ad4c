// Package sqlite implements the repository interfaces on an embedded SQLite
// database. It is the alternative to the jsonfile store, selected with
// storage.driver: sqlite.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code.
//
// SCHEMA:
// The schema lives in migrations/*.sql and is applied by golang-migrate when
// the database is opened. golang-migrate records the applied version in the
// schema_migrations table, so opening an up-to-date database is a no-op.
//
// TRANSACTIONS:
// Every mutation that also moves a tally (create, delete-all) runs in one
// transaction, so the tally and the collection always change together.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sakif/precinct/internal/idgen"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
	"github.com/sakif/precinct/internal/repository/sqlite/migrations"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the repositories.
type DB struct {
	conn     *sql.DB
	recordID idgen.RecordFunc
	now      func() time.Time

	citations *citationTable
	arrests   *arrestTable
}

// Option configures a DB.
type Option func(*DB)

// WithRecordIDs sets the id strategy for citations and arrests.
func WithRecordIDs(fn idgen.RecordFunc) Option {
	return func(db *DB) { db.recordID = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New opens the database at dbPath and brings its schema up to date.
//
// dbPath examples:
//   - "data/precinct.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests; lost on close)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// ONE CONNECTION:
	// SQLite allows a single writer anyway, and an in-memory database exists
	// per connection, so a pool of one keeps every query on the same data.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, recordID: idgen.Token, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	db.citations = &citationTable{db: db, kind: model.KindCitation}
	db.arrests = &arrestTable{db: db, kind: model.KindArrest}
	return db, nil
}

// migrateUp applies every embedded migration that has not run yet.
//
// The migrator is deliberately not closed: closing it closes the database
// driver, and with it our connection pool.
func migrateUp(conn *sql.DB) error {
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: initialising migrate driver: %w", err)
	}

	source, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("sqlite: loading embedded migrations: %w", err)
	}
	defer source.Close()

	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sqlite: creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: applying migrations: %w", err)
	}
	return nil
}

func (db *DB) Users() repository.UserRepository { return &userTable{db: db} }

func (db *DB) Citations() repository.CitationRepository { return db.citations }

func (db *DB) Arrests() repository.ArrestRepository { return db.arrests }

func (db *DB) Blocked() repository.UsernameListRepository {
	return &usernameList{db: db, list: "blocked", name: "blocked username"}
}

func (db *DB) Terminated() repository.UsernameListRepository {
	return &usernameList{db: db, list: "terminated", name: "terminated username"}
}

// Flush is a no-op: every statement is committed when it returns.
func (db *DB) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// inTx runs fn inside a transaction, committing on success.
//
// With a pool of one, fn must only use tx. Calling db.conn inside fn would
// wait forever for the connection the transaction holds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %w)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint on the
// given column ("users.username"). An empty column matches any.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readCounter(ctx context.Context, q queryer, name string) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading counter %s: %w", name, err)
	}
	return v, nil
}

func writeCounter(ctx context.Context, q queryer, name string, v int64) error {
	if _, err := q.ExecContext(ctx, `UPDATE counters SET value = ? WHERE name = ?`, v, name); err != nil {
		return fmt.Errorf("sqlite: writing counter %s: %w", name, err)
	}
	return nil
}
