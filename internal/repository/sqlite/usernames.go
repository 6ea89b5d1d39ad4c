package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

// usernameList is one named list in the username_lists table.
type usernameList struct {
	db   *DB
	list string
	name string
}

var _ repository.UsernameListRepository = (*usernameList)(nil)

func (l *usernameList) Add(ctx context.Context, username string) (*model.UsernameEntry, error) {
	name := model.NormalizeUsername(username)
	if name == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	_, err := l.db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO username_lists (list, username, created_at) VALUES (?, ?, ?)`,
		l.list, name, l.db.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: adding %s %s: %w", l.name, name, err)
	}

	var e model.UsernameEntry
	err = l.db.conn.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM username_lists WHERE list = ? AND username = ?`,
		l.list, name,
	).Scan(&e.ID, &e.Username, &e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading %s %s: %w", l.name, name, err)
	}
	return &e, nil
}

func (l *usernameList) Contains(ctx context.Context, username string) (bool, error) {
	var id int64
	err := l.db.conn.QueryRowContext(ctx,
		`SELECT id FROM username_lists WHERE list = ? AND username = ?`,
		l.list, model.NormalizeUsername(username),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking %s: %w", l.name, err)
	}
	return true, nil
}

func (l *usernameList) Remove(ctx context.Context, username string) error {
	name := model.NormalizeUsername(username)
	res, err := l.db.conn.ExecContext(ctx,
		`DELETE FROM username_lists WHERE list = ? AND username = ?`, l.list, name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s %s: %w", l.name, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(l.name, name)
	}
	return nil
}

func (l *usernameList) List(ctx context.Context) ([]model.UsernameEntry, error) {
	rows, err := l.db.conn.QueryContext(ctx,
		`SELECT id, username, created_at FROM username_lists WHERE list = ? ORDER BY id`, l.list,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s entries: %w", l.name, err)
	}
	defer rows.Close()

	var out []model.UsernameEntry
	for rows.Next() {
		var e model.UsernameEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s: %w", l.name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
