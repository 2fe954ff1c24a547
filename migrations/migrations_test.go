package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_ContainsSchema(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	b, err := fs.ReadFile(FS, "00001_init.sql")
	require.NoError(t, err)
	body := string(b)
	require.Contains(t, body, "-- +goose Up")
	require.Contains(t, body, "-- +goose Down")
	for _, table := range []string{"authorizations", "inflight_authorizations", "user_data", "granular_data", "stream_cache", "views", "limits"} {
		require.True(t, strings.Contains(body, "CREATE TABLE "+table+" "), table)
	}
	require.Equal(t, 4, strings.Count(body, "ON DELETE CASCADE"))
}
