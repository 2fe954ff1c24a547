package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
)

// InflightRepo implements InflightRepository using PostgreSQL.
type InflightRepo struct{ db *DB }

// NewInflightRepo constructs an inflight handshake repository.
func NewInflightRepo(db *DB) *InflightRepo { return &InflightRepo{db: db} }

// Store inserts one handshake row.
func (r *InflightRepo) Store(ctx context.Context, in model.InflightAuthorization) error {
	const q = `
INSERT INTO inflight_authorizations (service_name, request_token, secret, state)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, in.ServiceName, in.RequestToken, in.Secret, in.State)
	return err
}

// Take reads the first matching row, then deletes every matching row. The delete
// runs even when nothing was read.
func (r *InflightRepo) Take(ctx context.Context, where query.Fields) (*model.InflightAuthorization, error) {
	pred, args := query.Where(where, 1)
	if pred == "" {
		return nil, fmt.Errorf("%w: empty inflight filter", errs.ErrPrecondition)
	}
	sel := `
SELECT service_name, COALESCE(request_token,''), COALESCE(secret,''), COALESCE(state,'')
FROM inflight_authorizations WHERE ` + pred + ` ORDER BY id LIMIT 1`

	var in model.InflightAuthorization
	scanErr := r.db.Pool.QueryRow(ctx, sel, args...).Scan(&in.ServiceName, &in.RequestToken, &in.Secret, &in.State)
	if scanErr != nil && !errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, scanErr
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM inflight_authorizations WHERE `+pred, args...); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, errs.ErrNotFound
	}
	return &in, nil
}
