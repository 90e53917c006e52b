package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() State {
	return State{
		AccountID:           "acct-1",
		AuthToken:           "tok-1",
		APIURL:              "https://api001.backblazeb2.com",
		DownloadURL:         "https://f001.backblazeb2.com",
		RecommendedPartSize: 100 * 1024 * 1024,
		MinPartSize:         5 * 1024 * 1024,
		Realm:               "production",
		Allowed: Allowed{
			Capabilities: []string{"listBuckets", "readFiles"},
			BucketID:     "bucket-1",
			BucketName:   "my-bucket",
		},
	}
}

func TestMemoryInfo_MissingBeforeSet(t *testing.T) {
	t.Parallel()

	m := NewMemoryInfo()

	_, err := m.AccountID()
	require.Error(t, err)
	assert.True(t, IsMissing(err))
}

func TestMemoryInfo_SetAndGet(t *testing.T) {
	t.Parallel()

	m := NewMemoryInfo()
	require.NoError(t, m.SetAuthData(testState()))

	accountID, err := m.AccountID()
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	allowed, err := m.AllowedInfo()
	require.NoError(t, err)
	assert.Equal(t, "bucket-1", allowed.BucketID)
}

func TestMemoryInfo_RejectsBucketNameWithoutID(t *testing.T) {
	t.Parallel()

	m := NewMemoryInfo()
	s := testState()
	s.Allowed.BucketID = ""

	err := m.SetAuthData(s)
	require.Error(t, err)
}

func TestMemoryInfo_LegacyStateGetsDefaultCapabilities(t *testing.T) {
	t.Parallel()

	m := NewMemoryInfo()
	s := testState()
	s.Allowed.Capabilities = nil
	s.Allowed.BucketID = ""
	s.Allowed.BucketName = ""

	require.NoError(t, m.SetAuthData(s))

	allowed, err := m.AllowedInfo()
	require.NoError(t, err)
	assert.NotEmpty(t, allowed.Capabilities)
}

func TestMemoryInfo_Clear(t *testing.T) {
	t.Parallel()

	m := NewMemoryInfo()
	require.NoError(t, m.SetAuthData(testState()))
	m.CacheBucketID("my-bucket", "bucket-1")

	require.NoError(t, m.Clear())

	_, err := m.AccountID()
	require.Error(t, err)

	_, ok := m.LookupBucketID("my-bucket")
	assert.False(t, ok)
}

func TestMemoryInfo_BucketCache(t *testing.T) {
	t.Parallel()

	m := NewMemoryInfo()
	m.CacheBucketID("my-bucket", "bucket-1")

	id, ok := m.LookupBucketID("my-bucket")
	require.True(t, ok)
	assert.Equal(t, "bucket-1", id)

	_, ok = m.LookupBucketID("other-bucket")
	assert.False(t, ok)
}
