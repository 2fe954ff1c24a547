package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
)

var authzCols = []string{"uuid", "client_name", "service_name", "user_id", "token", "refresh_token",
	"secret", "redirect_uri", "expired_on_timestamp", "account_created_timestamp"}

const testUUID = "6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b"

func authzRow(expired int64) *pgxmock.Rows {
	return pgxmock.NewRows(authzCols).
		AddRow(testUUID, "testing", "loopback", "a1234", "abcd", "", "", "", expired, int64(1700000000))
}

func TestAuthzRepo_FindOne(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`FROM authorizations WHERE client_name=\$1 AND service_name=\$2 ORDER BY id LIMIT 1`).
		WithArgs("testing", "loopback").
		WillReturnRows(authzRow(0))
	a, err := r.FindOne(ctx, query.Fields{
		{Column: "client_name", Value: "testing"},
		{Column: "service_name", Value: "loopback"},
		{Column: "user_id", Value: ""},
	})
	require.NoError(t, err)
	require.Equal(t, testUUID, a.UUID)
	require.Equal(t, "abcd", a.Token)
	require.Nil(t, a.ExpiredOn)
	require.Equal(t, int64(1700000000), *a.CreatedOn)

	mock.ExpectQuery(`FROM authorizations WHERE client_name=\$1 AND service_name=\$2 AND user_id=\$3`).
		WithArgs("testing", "loopback", "nobody").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.FindOne(ctx, query.Fields{
		{Column: "client_name", Value: "testing"},
		{Column: "service_name", Value: "loopback"},
		{Column: "user_id", Value: "nobody"},
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthzRepo_FindOne_EmptyFilter(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)

	_, err := r.FindOne(context.Background(), query.Fields{{Column: "uuid", Value: ""}})
	require.ErrorIs(t, err, errs.ErrPrecondition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthzRepo_GetByUUID_Expired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)

	mock.ExpectQuery(`FROM authorizations WHERE uuid=\$1`).
		WithArgs(testUUID).
		WillReturnRows(authzRow(1800000000))
	a, err := r.GetByUUID(context.Background(), testUUID)
	require.NoError(t, err)
	require.True(t, a.Expired())
	require.Equal(t, int64(1800000000), *a.ExpiredOn)
}

func TestAuthzRepo_GetByUUID_OtherErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)

	mock.ExpectQuery(`FROM authorizations WHERE uuid=\$1`).
		WithArgs(testUUID).
		WillReturnError(errors.New("conn reset"))
	_, err := r.GetByUUID(context.Background(), testUUID)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestAuthzRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	created := int64(1700000000)
	in := &model.Authorization{
		UUID: testUUID, ClientName: "testing", ServiceName: "loopback", UserID: "a1234",
		Token: "abcd", CreatedOn: &created,
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO authorizations (uuid, client_name, service_name, user_id, token, refresh_token, secret, redirect_uri, expired_on_timestamp, account_created_timestamp) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING`)).
		WithArgs(testUUID, "testing", "loopback", "a1234", "abcd", nil, nil, nil, nil, created).
		WillReturnRows(authzRow(0))
	out, err := r.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, testUUID, out.UUID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthzRepo_Create_NoReturningRereads(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	in := &model.Authorization{UUID: testUUID, ClientName: "testing", ServiceName: "loopback", UserID: "a1234"}

	mock.ExpectQuery(`INSERT INTO authorizations`).
		WithArgs(testUUID, "testing", "loopback", "a1234", nil, nil, nil, nil, nil, nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM authorizations WHERE uuid=\$1`).
		WithArgs(testUUID).
		WillReturnRows(authzRow(0))
	out, err := r.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "a1234", out.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthzRepo_Create_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	in := &model.Authorization{UUID: testUUID, ClientName: "testing", ServiceName: "loopback", UserID: "a1234"}

	mock.ExpectQuery(`INSERT INTO authorizations`).
		WithArgs(testUUID, "testing", "loopback", "a1234", nil, nil, nil, nil, nil, nil).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err := r.Create(context.Background(), in)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestAuthzRepo_UpdateCredentials(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	ctx := context.Background()
	tok, sec := "new-token", "new-secret"

	mock.ExpectExec(`UPDATE authorizations SET token=\$2, secret=\$3 WHERE uuid=\$1`).
		WithArgs(testUUID, tok, sec).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateCredentials(ctx, testUUID, model.CredentialUpdate{Token: &tok, Secret: &sec}))

	mock.ExpectExec(`UPDATE authorizations SET secret=\$2 WHERE uuid=\$1`).
		WithArgs(testUUID, sec).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateCredentials(ctx, testUUID, model.CredentialUpdate{Secret: &sec}))

	// nothing to change: no statement
	require.NoError(t, r.UpdateCredentials(ctx, testUUID, model.CredentialUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthzRepo_Expire(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE authorizations SET expired_on_timestamp=\$2 WHERE uuid=\$1`).
		WithArgs(testUUID, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Expire(ctx, testUUID, 42))

	mock.ExpectExec(`UPDATE authorizations SET expired_on_timestamp=\$2 WHERE uuid=\$1`).
		WithArgs(testUUID, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Expire(ctx, testUUID, 42), errs.ErrNotFound)
}

func TestAuthzRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthzRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM authorizations WHERE client_name=\$1 AND service_name=\$2 AND user_id=\$3`).
		WithArgs("testing", "loopback", "a1234").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, r.Delete(ctx, query.Fields{
		{Column: "client_name", Value: "testing"},
		{Column: "service_name", Value: "loopback"},
		{Column: "user_id", Value: "a1234"},
	}))

	require.ErrorIs(t, r.Delete(ctx, query.Fields{}), errs.ErrPrecondition)
	require.NoError(t, mock.ExpectationsWereMet())
}
