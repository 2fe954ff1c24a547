package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
)

// authzColumns normalizes nullable columns so every row scans into plain values.
const authzColumns = `uuid, client_name, service_name, user_id,
COALESCE(token,''), COALESCE(refresh_token,''), COALESCE(secret,''), COALESCE(redirect_uri,''),
COALESCE(expired_on_timestamp,0), COALESCE(account_created_timestamp,0)`

// AuthzRepo implements AuthorizationRepository using PostgreSQL.
type AuthzRepo struct{ db *DB }

// NewAuthzRepo constructs an authorization repository.
func NewAuthzRepo(db *DB) *AuthzRepo { return &AuthzRepo{db: db} }

func scanAuthz(row pgx.Row) (*model.Authorization, error) {
	var (
		a                  model.Authorization
		expired, createdOn int64
	)
	if err := row.Scan(&a.UUID, &a.ClientName, &a.ServiceName, &a.UserID,
		&a.Token, &a.RefreshToken, &a.Secret, &a.RedirectURI, &expired, &createdOn); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	a.ExpiredOn = int64Ptr(expired)
	a.CreatedOn = int64Ptr(createdOn)
	return &a, nil
}

// FindOne returns the first authorization matching the filter.
func (r *AuthzRepo) FindOne(ctx context.Context, where query.Fields) (*model.Authorization, error) {
	pred, args := query.Where(where, 1)
	if pred == "" {
		return nil, fmt.Errorf("%w: empty authorization filter", errs.ErrPrecondition)
	}
	q := `SELECT ` + authzColumns + ` FROM authorizations WHERE ` + pred + ` ORDER BY id LIMIT 1`
	return scanAuthz(r.db.Pool.QueryRow(ctx, q, args...))
}

// GetByUUID loads an authorization by UUID.
func (r *AuthzRepo) GetByUUID(ctx context.Context, uuid string) (*model.Authorization, error) {
	q := `SELECT ` + authzColumns + ` FROM authorizations WHERE uuid=$1`
	return scanAuthz(r.db.Pool.QueryRow(ctx, q, uuid))
}

// Create inserts a new authorization. If the insert does not hand the row back it is
// re-read by UUID.
func (r *AuthzRepo) Create(ctx context.Context, a *model.Authorization) (*model.Authorization, error) {
	q := `
INSERT INTO authorizations (uuid, client_name, service_name, user_id, token, refresh_token,
  secret, redirect_uri, expired_on_timestamp, account_created_timestamp)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING ` + authzColumns
	row := r.db.Pool.QueryRow(ctx, q,
		a.UUID, a.ClientName, a.ServiceName, a.UserID,
		nullIfEmpty(a.Token), nullIfEmpty(a.RefreshToken), nullIfEmpty(a.Secret), nullIfEmpty(a.RedirectURI),
		nullIfZero(a.ExpiredOn), nullIfZero(a.CreatedOn))
	out, err := scanAuthz(row)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, errs.ErrNotFound):
		return r.GetByUUID(ctx, a.UUID)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("authorization %s/%s/%s: %w", a.ClientName, a.ServiceName, a.UserID, errs.ErrAlreadyExists)
	default:
		return nil, err
	}
}

// UpdateCredentials overwrites token and/or secret.
func (r *AuthzRepo) UpdateCredentials(ctx context.Context, uuid string, upd model.CredentialUpdate) error {
	if upd.Empty() {
		return nil
	}
	args := []any{uuid}
	var sets []string
	if upd.Token != nil {
		args = append(args, *upd.Token)
		sets = append(sets, "token=$"+strconv.Itoa(len(args)))
	}
	if upd.Secret != nil {
		args = append(args, *upd.Secret)
		sets = append(sets, "secret=$"+strconv.Itoa(len(args)))
	}
	q := `UPDATE authorizations SET ` + strings.Join(sets, ", ") + ` WHERE uuid=$1`
	_, err := r.db.Pool.Exec(ctx, q, args...)
	return err
}

// Expire stamps the expiry timestamp; a missing row yields ErrNotFound.
func (r *AuthzRepo) Expire(ctx context.Context, uuid string, ts int64) error {
	const q = `UPDATE authorizations SET expired_on_timestamp=$2 WHERE uuid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, uuid, ts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes every authorization matching the filter. Dependent rows go with it
// through ON DELETE CASCADE.
func (r *AuthzRepo) Delete(ctx context.Context, where query.Fields) error {
	pred, args := query.Where(where, 1)
	if pred == "" {
		return fmt.Errorf("%w: empty authorization filter", errs.ErrPrecondition)
	}
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM authorizations WHERE `+pred, args...)
	return err
}
