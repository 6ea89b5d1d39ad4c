package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

// userTable implements repository.UserRepository on the users table.
type userTable struct {
	db *DB
}

// compile-time check that *userTable implements repository.UserRepository
var _ repository.UserRepository = (*userTable)(nil)

const userColumns = `id, username, password_hash, badge_number, is_admin, rp_name, rank, discord_id, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row. Nullable columns come back as sql.NullString
// and are turned into the model's *string fields.
func scanUser(row scanner) (*model.User, error) {
	var (
		u                       model.User
		rpName, rank, discordID sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.BadgeNumber,
		&u.IsAdmin,
		&rpName,
		&rank,
		&discordID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.RPName = fromNull(rpName)
	u.Rank = fromNull(rank)
	u.DiscordID = fromNull(discordID)
	return &u, nil
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create inserts a new user. The id comes from SQLite's AUTOINCREMENT.
func (t *userTable) Create(ctx context.Context, u *model.User) error {
	now := t.db.now()
	res, err := t.db.conn.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, badge_number, is_admin, rp_name, rank, discord_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(u.Username),
		u.PasswordHash,
		u.BadgeNumber,
		u.IsAdmin,
		toNull(u.RPName),
		toNull(u.Rank),
		toNull(u.DiscordID),
		now,
		now,
	)
	switch {
	case isUniqueViolation(err, "users.username"):
		return apperror.Conflict("user", u.Username)
	case isUniqueViolation(err, "users.discord_id"):
		return apperror.Conflict("discord account", *u.DiscordID)
	case err != nil:
		return fmt.Errorf("sqlite: inserting user %s: %w", u.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}
	u.ID = id
	u.Username = strings.TrimSpace(u.Username)
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (t *userTable) getWhere(ctx context.Context, q queryer, where, key string, arg any) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", key, err)
	}
	return u, nil
}

func (t *userTable) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return t.getWhere(ctx, t.db.conn, "id = ?", strconv.FormatInt(id, 10), id)
}

// GetByUsername relies on the column's COLLATE NOCASE for case-insensitive matching.
func (t *userTable) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	return t.getWhere(ctx, t.db.conn, "username = ?", username, username)
}

func (t *userTable) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	return t.getWhere(ctx, t.db.conn, "discord_id = ?", discordID, discordID)
}

func (t *userTable) List(ctx context.Context) ([]model.User, error) {
	rows, err := t.db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// Update reads the row, applies the patch in Go and writes every column back,
// all in one transaction.
func (t *userTable) Update(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	var out *model.User
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		u, err := t.getWhere(ctx, tx, "id = ?", strconv.FormatInt(id, 10), id)
		if err != nil {
			return err
		}
		patch.Apply(u)
		u.UpdatedAt = t.db.now()

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, badge_number = ?, is_admin = ?,
			        rp_name = ?, rank = ?, discord_id = ?, updated_at = ?
			 WHERE id = ?`,
			u.PasswordHash,
			u.BadgeNumber,
			u.IsAdmin,
			toNull(u.RPName),
			toNull(u.Rank),
			toNull(u.DiscordID),
			u.UpdatedAt,
			id,
		)
		if isUniqueViolation(err, "users.discord_id") {
			return apperror.Conflict("discord account", *u.DiscordID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: updating user %d: %w", id, err)
		}
		out = u
		return nil
	})
	return out, err
}

// Delete removes the user and records the username as never re-registrable.
func (t *userTable) Delete(ctx context.Context, id int64) (*model.User, error) {
	var out *model.User
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		u, err := t.getWhere(ctx, tx, "id = ?", strconv.FormatInt(id, 10), id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO deleted_usernames (username) VALUES (?)`,
			model.NormalizeUsername(u.Username),
		)
		if err != nil {
			return fmt.Errorf("sqlite: recording deleted username: %w", err)
		}
		out = u
		return nil
	})
	return out, err
}

func (t *userTable) IsDeletedUsername(ctx context.Context, username string) (bool, error) {
	var n int
	err := t.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deleted_usernames WHERE username = ?`, model.NormalizeUsername(username),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking deleted username: %w", err)
	}
	return n > 0, nil
}
