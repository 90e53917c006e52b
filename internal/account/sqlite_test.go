package account

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteInfo(t *testing.T) *SQLiteInfo {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "account.db")

	s, err := OpenSQLiteInfo(context.Background(), dbPath, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func TestSQLiteInfo_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "account.db")

	s, err := OpenSQLiteInfo(context.Background(), dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetAuthData(testState()))
	s.CacheBucketID("my-bucket", "bucket-1")
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteInfo(context.Background(), dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()

	accountID, err := reopened.AccountID()
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	id, ok := reopened.LookupBucketID("my-bucket")
	require.True(t, ok)
	assert.Equal(t, "bucket-1", id)
}

func TestSQLiteInfo_SetAuthDataOverwrites(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteInfo(t)
	require.NoError(t, s.SetAuthData(testState()))

	second := testState()
	second.AuthToken = "tok-2"
	require.NoError(t, s.SetAuthData(second))

	token, err := s.AuthToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestSQLiteInfo_Clear(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteInfo(t)
	require.NoError(t, s.SetAuthData(testState()))
	require.NoError(t, s.Clear())

	_, err := s.AccountID()
	require.Error(t, err)
	assert.True(t, IsMissing(err))
}
