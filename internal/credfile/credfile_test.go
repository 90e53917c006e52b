package credfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsNil(t *testing.T) {
	t.Parallel()

	f, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "creds", "b2.json")

	want := File{KeyID: "0001key", ApplicationKey: "supersecret", Realm: "production"}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.KeyID, got.KeyID)
	assert.Equal(t, want.ApplicationKey, got.ApplicationKey)
	assert.Equal(t, want.Realm, got.Realm)
}

func TestLoad_MissingFieldsErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "b2.json")
	require.NoError(t, Save(path, File{Realm: "production"}))

	_, err := Load(path)
	require.Error(t, err)
}

func TestRemove_IgnoresNotFound(t *testing.T) {
	t.Parallel()

	require.NoError(t, Remove(filepath.Join(t.TempDir(), "missing.json")))
}
