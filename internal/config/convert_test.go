package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToEmergeConfig_MatchesDefaultSizes(t *testing.T) {
	ec := DefaultConfig().Transfers.ToEmergeConfig()

	assert.Equal(t, int64(5_000_000), ec.MinPartSize)
	assert.Equal(t, int64(100_000_000), ec.RecommendedPartSize)
	assert.Equal(t, int64(5_000_000_000), ec.MaxPartSize)
}

func TestToDownloadConfig_MatchesDefaultSizes(t *testing.T) {
	cfg := DefaultConfig()
	dc := cfg.Transfers.ToDownloadConfig(cfg.Safety)

	assert.Equal(t, int64(100_000_000), dc.MinPartSize)
	assert.Equal(t, cfg.Transfers.MaxStreams, dc.MaxStreams)
	assert.Equal(t, cfg.Transfers.ParallelDownloads, dc.ThreadPoolSize)
	assert.Equal(t, cfg.Safety.MaxPartRetries, dc.MaxPartRetries)
	assert.Equal(t, cfg.Safety.VerifyDownloadIntegrity, dc.VerifyIntegrity)
}

func TestToDataPolicy_MatchesDefaultBudget(t *testing.T) {
	policy := DefaultConfig().Safety.ToDataPolicy()

	assert.Equal(t, defaultDataMaxAttempts, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.Base)
	assert.Equal(t, 1.5, policy.Factor)
	assert.Equal(t, 64*time.Second, policy.Max)
	assert.Equal(t, 1.0, policy.Jitter)
}

func TestToMetadataPolicy_MatchesDefaultBudget(t *testing.T) {
	policy := DefaultConfig().Safety.ToMetadataPolicy()

	assert.Equal(t, defaultMetadataMaxAttempts, policy.MaxAttempts)
}

func TestNetworkTimeoutDurations_ParseDefaults(t *testing.T) {
	n := DefaultConfig().Network

	assert.Equal(t, 46*time.Second, n.ConnectTimeoutDuration())
	assert.Equal(t, 128*time.Second, n.ReadTimeoutDuration())
	assert.Equal(t, 1200*time.Second, n.CopyReadTimeoutDuration())
	assert.Equal(t, 128*time.Second, n.UploadTimeoutDuration())
}
