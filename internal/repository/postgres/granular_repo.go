package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// GranularRepo implements GranularRepository over the granular_data table.
type GranularRepo struct{ db *DB }

// NewGranularRepo constructs a granular event repository.
func NewGranularRepo(db *DB) *GranularRepo { return &GranularRepo{db: db} }

// LastTimestamp returns the newest event timestamp for (uuid, method).
func (r *GranularRepo) LastTimestamp(ctx context.Context, uuid, method string) (int64, error) {
	const q = `
SELECT timestamp FROM granular_data
WHERE uuid=$1 AND method=$2
ORDER BY timestamp DESC LIMIT 1`
	var ts int64
	if err := r.db.Pool.QueryRow(ctx, q, uuid, method).Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return ts, nil
}

// Insert writes one event unconditionally.
func (r *GranularRepo) Insert(ctx context.Context, d model.GranularDatum) error {
	const q = `
INSERT INTO granular_data (uuid, method, item_id, actor_id, timestamp)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, d.UUID, d.Method, d.ItemID, d.ActorID, d.Timestamp)
	return err
}

// Exists reports whether an event for (uuid, method, item_id) is stored.
func (r *GranularRepo) Exists(ctx context.Context, uuid, method, itemID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM granular_data WHERE uuid=$1 AND method=$2 AND item_id=$3)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, uuid, method, itemID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// TopActor returns the actor with the most events in [start, end], ties broken by the
// most recent event.
func (r *GranularRepo) TopActor(
	ctx context.Context, uuid, method string, start, end int64, exclude string,
) (model.TopActor, error) {
	const q = `
SELECT actor_id, COUNT(*) AS num, MAX(timestamp) AS latest
FROM granular_data
WHERE uuid=$1 AND method=$2 AND timestamp BETWEEN $3 AND $4 AND actor_id <> $5
GROUP BY actor_id
ORDER BY num DESC, latest DESC
LIMIT 1`
	var top model.TopActor
	if err := r.db.Pool.QueryRow(ctx, q, uuid, method, start, end, exclude).Scan(&top.ActorID, &top.Num, &top.Latest); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TopActor{}, errs.ErrNotFound
		}
		return model.TopActor{}, err
	}
	return top, nil
}

// DeleteByUUID removes every event of the UUID.
func (r *GranularRepo) DeleteByUUID(ctx context.Context, uuid string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM granular_data WHERE uuid=$1`, uuid)
	return err
}
