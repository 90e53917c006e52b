package config

import (
	"time"

	"github.com/cloudbin/b2sdk-go/internal/download"
	"github.com/cloudbin/b2sdk-go/internal/emerge"
	"github.com/cloudbin/b2sdk-go/internal/retry"
)

// ToEmergeConfig converts TransfersConfig's part-size strings into
// emerge.Config. An unparsable size becomes 0 (ParseSize errors are
// discarded here; Validate rejects such values before this is called).
func (t TransfersConfig) ToEmergeConfig() emerge.Config {
	minPart, _ := ParseSize(t.MinPartSize)
	recPart, _ := ParseSize(t.RecommendedPartSize)
	maxPart, _ := ParseSize(t.MaxPartSize)

	return emerge.Config{
		MinPartSize:         minPart,
		RecommendedPartSize: recPart,
		MaxPartSize:         maxPart,
	}
}

// ToDownloadConfig converts TransfersConfig and SafetyConfig into
// download.Config. The download manager's per-stream floor reuses
// RecommendedPartSize, so with the default "100MB" it is 100,000,000
// bytes, not download.DefaultConfig's 100 MiB; there is no separate
// download-specific floor setting.
func (t TransfersConfig) ToDownloadConfig(s SafetyConfig) download.Config {
	minPart, _ := ParseSize(t.RecommendedPartSize)
	minChunk, _ := ParseSize(t.MinChunkSize)
	maxChunk, _ := ParseSize(t.MaxChunkSize)
	align, _ := ParseSize(t.ChunkAlignFactor)
	forceChunk, _ := ParseSize(t.ForceChunkSize)

	return download.Config{
		MinPartSize:     minPart,
		MaxStreams:      t.MaxStreams,
		ThreadPoolSize:  t.ParallelDownloads,
		MinChunkSize:    minChunk,
		MaxChunkSize:    maxChunk,
		AlignFactor:     align,
		ForceChunkSize:  forceChunk,
		MaxPartRetries:  s.MaxPartRetries,
		VerifyIntegrity: s.VerifyDownloadIntegrity,
	}
}

// ToDataPolicy converts SafetyConfig into the retry.Policy governing
// upload/download data-plane calls (spec.md §4.3's N=20 budget).
func (s SafetyConfig) ToDataPolicy() retry.Policy {
	return s.toPolicy(s.DataMaxAttempts)
}

// ToMetadataPolicy converts SafetyConfig into the retry.Policy governing
// metadata/HEAD calls (spec.md §4.3's N=5 budget).
func (s SafetyConfig) ToMetadataPolicy() retry.Policy {
	return s.toPolicy(s.MetadataMaxAttempts)
}

func (s SafetyConfig) toPolicy(maxAttempts int) retry.Policy {
	base, _ := time.ParseDuration(s.RetryBase)
	max, _ := time.ParseDuration(s.RetryMax)

	return retry.Policy{
		MaxAttempts: maxAttempts,
		Base:        base,
		Factor:      s.RetryFactor,
		Max:         max,
		Jitter:      s.RetryJitterSeconds,
	}
}

// ConnectTimeout/ReadTimeout/CopyReadTimeout/UploadTimeout parse
// NetworkConfig's duration strings, returning 0 for an unparsable value
// (rejected by Validate before this is ever called in practice).
func (n NetworkConfig) ConnectTimeoutDuration() time.Duration  { return mustDuration(n.ConnectTimeout) }
func (n NetworkConfig) ReadTimeoutDuration() time.Duration     { return mustDuration(n.ReadTimeout) }
func (n NetworkConfig) CopyReadTimeoutDuration() time.Duration { return mustDuration(n.CopyReadTimeout) }
func (n NetworkConfig) UploadTimeoutDuration() time.Duration   { return mustDuration(n.UploadTimeout) }

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
