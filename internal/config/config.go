// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the B2 transfer engine, per
// SPEC_FULL.md's ambient-stack configuration section: pool sizes, chunk
// sizes, timeouts, and retry budgets, all independently configurable once
// before work begins (spec.md §5).
package config

// Config is the top-level configuration structure, decoded from a single
// TOML file with no profile/drive sections: a B2 client addresses buckets
// at the API layer, not through config-file selectors.
type Config struct {
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Safety    SafetyConfig    `toml:"safety"`
	Logging   LoggingConfig   `toml:"logging"`
}

// TransfersConfig controls worker counts and the part/chunk sizes fed to
// internal/emerge's planner and internal/download's manager.
type TransfersConfig struct {
	ParallelUploads   int `toml:"parallel_uploads"`
	ParallelDownloads int `toml:"parallel_downloads"`
	SyncWorkers       int `toml:"sync_workers"`

	// MinPartSize/RecommendedPartSize/MaxPartSize feed emerge.Config's
	// part-grouping rule (spec.md §4.7).
	MinPartSize         string `toml:"min_part_size"`
	RecommendedPartSize string `toml:"recommended_part_size"`
	MaxPartSize         string `toml:"max_part_size"`

	// MinChunkSize/MaxChunkSize/ChunkAlignFactor/MaxStreams feed
	// download.Config's chunk-size clamping and stream-count formula
	// (spec.md §4.9).
	MinChunkSize     string `toml:"min_chunk_size"`
	MaxChunkSize     string `toml:"max_chunk_size"`
	ChunkAlignFactor string `toml:"chunk_align_factor"`
	MaxStreams       int    `toml:"max_streams"`
	ForceChunkSize   string `toml:"force_chunk_size"`
}

// NetworkConfig controls HTTP client timeouts and identification, per
// spec.md §4.3's connect/read timeout table.
type NetworkConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	ReadTimeout     string `toml:"read_timeout"`
	CopyReadTimeout string `toml:"copy_read_timeout"`
	UploadTimeout   string `toml:"upload_timeout"`
	UserAgent       string `toml:"user_agent"`
}

// SafetyConfig controls the retry budgets spec.md §4.3 names and the
// download integrity check spec.md §4.9 allows disabling.
type SafetyConfig struct {
	DataMaxAttempts     int     `toml:"data_max_attempts"`
	MetadataMaxAttempts int     `toml:"metadata_max_attempts"`
	RetryBase           string  `toml:"retry_base"`
	RetryFactor         float64 `toml:"retry_factor"`
	RetryMax            string  `toml:"retry_max"`
	RetryJitterSeconds  float64 `toml:"retry_jitter_seconds"`

	VerifyDownloadIntegrity bool `toml:"verify_download_integrity"`
	MaxPartRetries          int  `toml:"max_part_retries"`
}

// LoggingConfig controls log output, at a reduced scope (no file/rotation
// management: the core engine logs to whatever *slog.Logger its caller
// supplies).
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}
