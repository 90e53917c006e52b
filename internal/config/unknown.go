package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when an unknown config key is detected.
const maxLevenshteinDistance = 3

// knownTableKeys maps each top-level table name to its set of valid leaf
// keys, mirroring TransfersConfig/NetworkConfig/SafetyConfig/LoggingConfig's
// toml tags. A config file is always table-structured (spec.md's
// `[transfers]`/`[network]`/`[safety]` convention) — there are no bare
// top-level keys.
var knownTableKeys = map[string]map[string]bool{
	"transfers": {
		"parallel_uploads": true, "parallel_downloads": true, "sync_workers": true,
		"min_part_size": true, "recommended_part_size": true, "max_part_size": true,
		"min_chunk_size": true, "max_chunk_size": true, "chunk_align_factor": true,
		"max_streams": true, "force_chunk_size": true,
	},
	"network": {
		"connect_timeout": true, "read_timeout": true, "copy_read_timeout": true,
		"upload_timeout": true, "user_agent": true,
	},
	"safety": {
		"data_max_attempts": true, "metadata_max_attempts": true, "retry_base": true,
		"retry_factor": true, "retry_max": true, "retry_jitter_seconds": true,
		"verify_download_integrity": true, "max_part_retries": true,
	},
	"logging": {
		"log_level": true, "log_format": true,
	},
}

var knownTableNames = func() []string {
	names := make([]string, 0, len(knownTableKeys))
	for name := range knownTableKeys {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}()

var knownTableKeyLists = func() map[string][]string {
	lists := make(map[string][]string, len(knownTableKeys))

	for table, keys := range knownTableKeys {
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}

		sort.Strings(list)
		lists[table] = list
	}

	return lists
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each unknown one.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		parts := key.String()
		if err := buildKeyError(parts); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func buildKeyError(dotted string) error {
	parts := strings.SplitN(dotted, ".", 2)
	table := parts[0]

	if len(parts) == 1 {
		if suggestion := closestMatch(table, knownTableNames); suggestion != "" {
			return fmt.Errorf("unknown config table %q — did you mean %q?", table, suggestion)
		}

		return fmt.Errorf("unknown config table %q", table)
	}

	leaf := parts[1]

	if knownTableKeys[table][leaf] {
		return nil
	}

	known, ok := knownTableKeyLists[table]
	if !ok {
		if suggestion := closestMatch(table, knownTableNames); suggestion != "" {
			return fmt.Errorf("unknown config table %q — did you mean %q?", table, suggestion)
		}

		return fmt.Errorf("unknown config table %q", table)
	}

	if suggestion := closestMatch(leaf, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s] — did you mean %q?", leaf, table, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", leaf, table)
}

// closestMatch finds the closest known key by Levenshtein distance. Returns
// the empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using the
// single-row optimization (no full matrix allocation).
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
