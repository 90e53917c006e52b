package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minParallelWorkers = 1
	maxParallelWorkers = 64
	minSyncWorkers     = 1
	maxSyncWorkers     = 256
	minMaxAttempts     = 1
	minRetryFactor     = 1.0
)

// Validate checks every configuration value and returns all errors found,
// accumulating rather than stopping at the first so a user sees a complete
// report in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateSafety(&cfg.Safety)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	errs = append(errs, rangeCheck("parallel_uploads", t.ParallelUploads, minParallelWorkers, maxParallelWorkers)...)
	errs = append(errs, rangeCheck("parallel_downloads", t.ParallelDownloads, minParallelWorkers, maxParallelWorkers)...)
	errs = append(errs, rangeCheck("sync_workers", t.SyncWorkers, minSyncWorkers, maxSyncWorkers)...)

	minPart, err := sizeCheck("min_part_size", t.MinPartSize, &errs)
	recPart, rerr := sizeCheck("recommended_part_size", t.RecommendedPartSize, &errs)
	maxPart, merr := sizeCheck("max_part_size", t.MaxPartSize, &errs)

	if err == nil && rerr == nil && merr == nil && !(minPart <= recPart && recPart <= maxPart) {
		errs = append(errs, fmt.Errorf("part sizes: must satisfy min_part_size <= recommended_part_size <= max_part_size, got %d <= %d <= %d", minPart, recPart, maxPart))
	}

	sizeCheck("min_chunk_size", t.MinChunkSize, &errs)
	sizeCheck("max_chunk_size", t.MaxChunkSize, &errs)
	sizeCheck("chunk_align_factor", t.ChunkAlignFactor, &errs)

	if t.ForceChunkSize != "" {
		sizeCheck("force_chunk_size", t.ForceChunkSize, &errs)
	}

	if t.MaxStreams < 1 {
		errs = append(errs, fmt.Errorf("max_streams: must be >= 1, got %d", t.MaxStreams))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	durationCheck("connect_timeout", n.ConnectTimeout, &errs)
	durationCheck("read_timeout", n.ReadTimeout, &errs)
	durationCheck("copy_read_timeout", n.CopyReadTimeout, &errs)
	durationCheck("upload_timeout", n.UploadTimeout, &errs)

	if n.UserAgent == "" {
		errs = append(errs, errors.New("user_agent: must not be empty"))
	}

	return errs
}

func validateSafety(s *SafetyConfig) []error {
	var errs []error

	if s.DataMaxAttempts < minMaxAttempts {
		errs = append(errs, fmt.Errorf("data_max_attempts: must be >= %d, got %d", minMaxAttempts, s.DataMaxAttempts))
	}

	if s.MetadataMaxAttempts < minMaxAttempts {
		errs = append(errs, fmt.Errorf("metadata_max_attempts: must be >= %d, got %d", minMaxAttempts, s.MetadataMaxAttempts))
	}

	durationCheck("retry_base", s.RetryBase, &errs)
	durationCheck("retry_max", s.RetryMax, &errs)

	if s.RetryFactor < minRetryFactor {
		errs = append(errs, fmt.Errorf("retry_factor: must be >= %.1f, got %.2f", minRetryFactor, s.RetryFactor))
	}

	if s.RetryJitterSeconds < 0 {
		errs = append(errs, errors.New("retry_jitter_seconds: must be non-negative"))
	}

	if s.MaxPartRetries < 0 {
		errs = append(errs, errors.New("max_part_retries: must be non-negative"))
	}

	return errs
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func rangeCheck(name string, v, lo, hi int) []error {
	if v < lo || v > hi {
		return []error{fmt.Errorf("%s: must be between %d and %d, got %d", name, lo, hi, v)}
	}

	return nil
}

func sizeCheck(name, s string, errs *[]error) (int64, error) {
	n, err := ParseSize(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return 0, err
	}

	return n, nil
}

func durationCheck(name, s string, errs *[]error) {
	if _, err := time.ParseDuration(s); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
	}
}
