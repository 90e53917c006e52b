package config

// Default values for configuration options. The worker counts, chunk
// sizes and retry budgets match the engine's own package-level defaults
// (the emerge executor's 10 concurrent parts, download.DefaultConfig,
// retry.DataPolicy/MetadataPolicy). The download part-size floor does not:
// ToDownloadConfig takes it from recommended_part_size, whose default
// "100MB" is 100,000,000 bytes, while download.DefaultConfig uses 100 MiB.
const (
	defaultParallelUploads   = 10
	defaultParallelDownloads = 8
	defaultSyncWorkers       = 10

	defaultMinPartSize         = "5MB"
	defaultRecommendedPartSize = "100MB"
	defaultMaxPartSize         = "5GB"

	defaultMinChunkSize     = "8KiB"
	defaultMaxChunkSize     = "1MiB"
	defaultChunkAlignFactor = "4096"
	defaultMaxStreams       = 8

	defaultConnectTimeout  = "46s"
	defaultReadTimeout     = "128s"
	defaultCopyReadTimeout = "1200s"
	defaultUploadTimeout   = "128s"
	defaultUserAgent       = "b2sdk-go"

	defaultDataMaxAttempts     = 20
	defaultMetadataMaxAttempts = 5
	defaultRetryBase           = "1s"
	defaultRetryFactor         = 1.5
	defaultRetryMax            = "64s"
	defaultRetryJitterSeconds  = 1.0
	defaultMaxPartRetries      = 5

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// DefaultConfig returns a Config populated with every default value. Used
// both as the decode target (so unset TOML keys retain their default) and
// as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Transfers: defaultTransfersConfig(),
		Network:   defaultNetworkConfig(),
		Safety:    defaultSafetyConfig(),
		Logging:   defaultLoggingConfig(),
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ParallelUploads:      defaultParallelUploads,
		ParallelDownloads:    defaultParallelDownloads,
		SyncWorkers:          defaultSyncWorkers,
		MinPartSize:          defaultMinPartSize,
		RecommendedPartSize:  defaultRecommendedPartSize,
		MaxPartSize:          defaultMaxPartSize,
		MinChunkSize:         defaultMinChunkSize,
		MaxChunkSize:         defaultMaxChunkSize,
		ChunkAlignFactor:     defaultChunkAlignFactor,
		MaxStreams:           defaultMaxStreams,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout:  defaultConnectTimeout,
		ReadTimeout:     defaultReadTimeout,
		CopyReadTimeout: defaultCopyReadTimeout,
		UploadTimeout:   defaultUploadTimeout,
		UserAgent:       defaultUserAgent,
	}
}

func defaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		DataMaxAttempts:         defaultDataMaxAttempts,
		MetadataMaxAttempts:     defaultMetadataMaxAttempts,
		RetryBase:               defaultRetryBase,
		RetryFactor:             defaultRetryFactor,
		RetryMax:                defaultRetryMax,
		RetryJitterSeconds:      defaultRetryJitterSeconds,
		VerifyDownloadIntegrity: true,
		MaxPartRetries:          defaultMaxPartRetries,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
