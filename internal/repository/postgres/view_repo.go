package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/socialkeeper/internal/errs"
)

// ViewRepo implements ViewRepository using PostgreSQL.
type ViewRepo struct{ db *DB }

// NewViewRepo constructs a view catalog repository.
func NewViewRepo(db *DB) *ViewRepo { return &ViewRepo{db: db} }

// Names lists every view name.
func (r *ViewRepo) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT name FROM views ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Exists reports whether a view with the name exists.
func (r *ViewRepo) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM views WHERE name=$1)`, name).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Get returns the encoded definition of the oldest view with the name.
func (r *ViewRepo) Get(ctx context.Context, name string) (string, error) {
	const q = `SELECT definition FROM views WHERE name=$1 ORDER BY id LIMIT 1`
	var def string
	if err := r.db.Pool.QueryRow(ctx, q, name).Scan(&def); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	return def, nil
}

// Upsert overwrites the definition of an existing view or inserts a new one.
// Names are unique by convention only, so the conflict check is an UPDATE probe.
func (r *ViewRepo) Upsert(ctx context.Context, name, definition string) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const upd = `UPDATE views SET definition=$2 WHERE name=$1`
	const ins = `INSERT INTO views (name, definition) VALUES ($1, $2)`

	tag, err := tx.Exec(ctx, upd, name, definition)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = tx.Exec(ctx, ins, name, definition)
	return err
}

// Delete removes the view; deleting a missing view succeeds.
func (r *ViewRepo) Delete(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM views WHERE name=$1`, name)
	return err
}
