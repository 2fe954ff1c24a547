package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// SampleRepo implements SampleRepository over the user_data table.
type SampleRepo struct{ db *DB }

// NewSampleRepo constructs a time-series repository.
func NewSampleRepo(db *DB) *SampleRepo { return &SampleRepo{db: db} }

func (r *SampleRepo) one(ctx context.Context, q, uuid, method string, args ...any) (model.Sample, error) {
	s := model.Sample{UUID: uuid, Method: method}
	all := append([]any{uuid, method}, args...)
	if err := r.db.Pool.QueryRow(ctx, q, all...).Scan(&s.Timestamp, &s.Data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Sample{}, errs.ErrNotFound
		}
		return model.Sample{}, err
	}
	return s, nil
}

// Latest returns the most recent sample regardless of timestamp.
func (r *SampleRepo) Latest(ctx context.Context, uuid, method string) (model.Sample, error) {
	const q = `
SELECT timestamp, data FROM user_data
WHERE uuid=$1 AND method=$2
ORDER BY timestamp DESC LIMIT 1`
	return r.one(ctx, q, uuid, method)
}

// Before returns the most recent sample strictly older than ts.
func (r *SampleRepo) Before(ctx context.Context, uuid, method string, ts int64) (model.Sample, error) {
	const q = `
SELECT timestamp, data FROM user_data
WHERE uuid=$1 AND method=$2 AND timestamp < $3
ORDER BY timestamp DESC LIMIT 1`
	return r.one(ctx, q, uuid, method, ts)
}

// Between returns samples with start <= timestamp <= end.
func (r *SampleRepo) Between(ctx context.Context, uuid, method string, start, end int64, desc bool) ([]model.Sample, error) {
	const base = `
SELECT timestamp, data FROM user_data
WHERE uuid=$1 AND method=$2 AND timestamp BETWEEN $3 AND $4
ORDER BY timestamp `
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	rows, err := r.db.Pool.Query(ctx, base+dir, uuid, method, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		s := model.Sample{UUID: uuid, Method: method}
		if err = rows.Scan(&s.Timestamp, &s.Data); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Insert writes one sample; a duplicate (uuid, method, timestamp) yields ErrAlreadyExists.
func (r *SampleRepo) Insert(ctx context.Context, s model.Sample) error {
	const q = `INSERT INTO user_data (uuid, method, timestamp, data) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, s.UUID, s.Method, s.Timestamp, s.Data)
	if isUniqueViolation(err) {
		return fmt.Errorf("sample %s@%d: %w", s.Method, s.Timestamp, errs.ErrAlreadyExists)
	}
	return err
}

// DeleteByUUID removes every sample of the UUID.
func (r *SampleRepo) DeleteByUUID(ctx context.Context, uuid string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM user_data WHERE uuid=$1`, uuid)
	return err
}
