package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/counter"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/repository"
)

type recordPtr[R any] interface {
	*R
	Meta() *model.RecordMeta
}

type patcher[R any] interface {
	Apply(*R)
}

// recordTable stores one kind of record in the shared records table.
type recordTable[R any, PR recordPtr[R], P patcher[R]] struct {
	db   *DB
	kind model.Kind
}

type (
	citationTable = recordTable[model.Citation, *model.Citation, model.CitationPatch]
	arrestTable   = recordTable[model.Arrest, *model.Arrest, model.ArrestPatch]
)

var (
	_ repository.CitationRepository = (*citationTable)(nil)
	_ repository.ArrestRepository   = (*arrestTable)(nil)
)

const maxIDAttempts = 5

func (t *recordTable[R, PR, P]) countName() string { return string(t.kind) + "_count" }
func (t *recordTable[R, PR, P]) seqName() string { return string(t.kind) + "_seq" }

// Create inserts the record and raises the tally in one transaction.
func (t *recordTable[R, PR, P]) Create(ctx context.Context, rec *R) error {
	var created R
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		id, err := t.newID(ctx, tx)
		if err != nil {
			return err
		}

		created = *rec
		meta := PR(&created).Meta()
		now := t.db.now()
		meta.ID = id
		meta.CreatedAt = now
		meta.UpdatedAt = now

		data, err := json.Marshal(created)
		if err != nil {
			return fmt.Errorf("sqlite: encoding %s: %w", t.kind, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (kind, id, data, created_at) VALUES (?, ?, ?, ?)`,
			string(t.kind), id, string(data), now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting %s: %w", t.kind, err)
		}

		size, err := t.size(ctx, tx)
		if err != nil {
			return err
		}
		n, err := readCounter(ctx, tx, t.countName())
		if err != nil {
			return err
		}
		tally := counter.New(n)
		tally.OnCreate(size)
		return writeCounter(ctx, tx, t.countName(), tally.Value())
	})
	if err != nil {
		return err
	}
	*rec = created
	return nil
}

func (t *recordTable[R, PR, P]) newID(ctx context.Context, tx *sql.Tx) (string, error) {
	seq, err := readCounter(ctx, tx, t.seqName())
	if err != nil {
		return "", err
	}
	for range maxIDAttempts {
		seq++
		id, err := t.db.recordID(seq)
		if err != nil {
			return "", err
		}
		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM records WHERE kind = ? AND id = ?`, string(t.kind), id,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("sqlite: checking %s id: %w", t.kind, err)
		}
		if exists == 0 {
			return id, writeCounter(ctx, tx, t.seqName(), seq)
		}
	}
	return "", fmt.Errorf("sqlite: no free %s id after %d attempts", t.kind, maxIDAttempts)
}

func (t *recordTable[R, PR, P]) size(ctx context.Context, q queryer) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, string(t.kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting %s records: %w", t.kind, err)
	}
	return n, nil
}

func (t *recordTable[R, PR, P]) get(ctx context.Context, q queryer, id string) (*R, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM records WHERE kind = ? AND id = ?`, string(t.kind), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound(string(t.kind), id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %s %s: %w", t.kind, id, err)
	}
	var rec R
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("sqlite: decoding %s %s: %w", t.kind, id, err)
	}
	return &rec, nil
}

func (t *recordTable[R, PR, P]) GetByID(ctx context.Context, id string) (*R, error) {
	return t.get(ctx, t.db.conn, id)
}

func (t *recordTable[R, PR, P]) List(ctx context.Context) ([]R, error) {
	return t.list(ctx, t.db.conn)
}

func (t *recordTable[R, PR, P]) list(ctx context.Context, q queryer) ([]R, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT data FROM records WHERE kind = ? ORDER BY created_at, rowid`, string(t.kind),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s records: %w", t.kind, err)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s: %w", t.kind, err)
		}
		var rec R
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("sqlite: decoding %s: %w", t.kind, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s records: %w", t.kind, err)
	}
	return out, nil
}

func (t *recordTable[R, PR, P]) Update(ctx context.Context, id string, patch P) (*R, error) {
	var out *R
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		rec, err := t.get(ctx, tx, id)
		if err != nil {
			return err
		}
		patch.Apply(rec)
		PR(rec).Meta().UpdatedAt = t.db.now()

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("sqlite: encoding %s: %w", t.kind, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE records SET data = ? WHERE kind = ? AND id = ?`, string(data), string(t.kind), id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating %s %s: %w", t.kind, id, err)
		}
		out = rec
		return nil
	})
	return out, err
}

func (t *recordTable[R, PR, P]) Delete(ctx context.Context, id string) (*R, error) {
	var out *R
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		rec, err := t.get(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, string(t.kind), id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting %s %s: %w", t.kind, id, err)
		}
		out = rec
		return nil
	})
	return out, err
}

func (t *recordTable[R, PR, P]) DeleteAll(ctx context.Context) ([]R, error) {
	var removed []R
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = t.list(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ?`, string(t.kind)); err != nil {
			return fmt.Errorf("sqlite: deleting all %s records: %w", t.kind, err)
		}
		return writeCounter(ctx, tx, t.countName(), 0)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Count returns the tally floored at the live size, storing the raised
// value when the floor applied.
func (t *recordTable[R, PR, P]) Count(ctx context.Context) (int64, error) {
	var v int64
	err := t.db.inTx(ctx, func(tx *sql.Tx) error {
		n, err := readCounter(ctx, tx, t.countName())
		if err != nil {
			return err
		}
		size, err := t.size(ctx, tx)
		if err != nil {
			return err
		}
		tally := counter.New(n)
		v = tally.Get(size)
		if v != n {
			return writeCounter(ctx, tx, t.countName(), v)
		}
		return nil
	})
	return v, err
}
