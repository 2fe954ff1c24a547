package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// PG is a PostgreSQL-backed limiter over the limits table.
type PG struct {
	pool   pgxQuerier
	minGap time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q pgxQuerier, minGap time.Duration) *PG {
	return &PG{pool: q, minGap: minGap}
}

// Last returns the stored call timestamp of the UUID.
func (l *PG) Last(ctx context.Context, uuid string) (model.Limit, error) {
	const q = `SELECT last_called_on FROM limits WHERE uuid=$1`
	lim := model.Limit{UUID: uuid}
	if err := l.pool.QueryRow(ctx, q, uuid).Scan(&lim.LastCalledOn); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Limit{}, errs.ErrNotFound
		}
		return model.Limit{}, err
	}
	return lim, nil
}

// Allow reports whether at least minGap has passed since the last recorded call.
func (l *PG) Allow(ctx context.Context, uuid string, now time.Time) (bool, time.Duration, error) {
	lim, err := l.Last(ctx, uuid)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	next := time.Unix(lim.LastCalledOn, 0).Add(l.minGap)
	if next.After(now) {
		return false, next.Sub(now), nil
	}
	return true, 0, nil
}

// Touch upserts the call timestamp of the UUID.
func (l *PG) Touch(ctx context.Context, uuid string, now time.Time) error {
	const q = `
INSERT INTO limits (uuid, last_called_on)
VALUES ($1, $2)
ON CONFLICT (uuid)
DO UPDATE SET last_called_on=EXCLUDED.last_called_on`
	_, err := l.pool.Exec(ctx, q, uuid, now.Unix())
	return err
}
