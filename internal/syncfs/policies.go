package syncfs

import (
	"fmt"
	"regexp"
	"time"
)

// PoliciesConfig configures a ScanPoliciesManager. Regex patterns are
// matched against the "/"-separated relative path (never the OS-native
// path), normalized to forward slashes before evaluating any pattern.
type PoliciesConfig struct {
	ExcludeDirRegexes  []string
	ExcludeFileRegexes []string
	// IncludeFileRegexes only has an effect alongside ExcludeFileRegexes: a
	// file matched by an exclude pattern is re-included if it also matches
	// one of these (spec.md §4.10).
	IncludeFileRegexes []string
	ExcludeSymlinks    bool
	// ExcludeModifiedBefore/ExcludeModifiedAfter bound the mtime window;
	// the zero time.Time on either end means "no bound".
	ExcludeModifiedBefore time.Time
	ExcludeModifiedAfter  time.Time
}

// ScanPoliciesManager is the compiled, immutable form of PoliciesConfig,
// shared by the local and remote scanners so both apply identical
// directory/file/symlink/mtime filtering (spec.md §4.10: "apply the same
// policy filters").
type ScanPoliciesManager struct {
	excludeDir     []*regexp.Regexp
	excludeFile    []*regexp.Regexp
	includeFile    []*regexp.Regexp
	excludeSymlink bool
	modBefore      time.Time
	modAfter       time.Time
}

// NewScanPoliciesManager compiles cfg's regex lists. A pattern that fails
// to compile is reported with its index for easier diagnosis.
func NewScanPoliciesManager(cfg PoliciesConfig) (*ScanPoliciesManager, error) {
	excludeDir, err := compileAll(cfg.ExcludeDirRegexes)
	if err != nil {
		return nil, fmt.Errorf("syncfs: compiling exclude_dir_regex: %w", err)
	}

	excludeFile, err := compileAll(cfg.ExcludeFileRegexes)
	if err != nil {
		return nil, fmt.Errorf("syncfs: compiling exclude_file_regex: %w", err)
	}

	includeFile, err := compileAll(cfg.IncludeFileRegexes)
	if err != nil {
		return nil, fmt.Errorf("syncfs: compiling include_file_regex: %w", err)
	}

	return &ScanPoliciesManager{
		excludeDir:     excludeDir,
		excludeFile:    excludeFile,
		includeFile:    includeFile,
		excludeSymlink: cfg.ExcludeSymlinks,
		modBefore:      cfg.ExcludeModifiedBefore,
		modAfter:       cfg.ExcludeModifiedAfter,
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))

	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %d (%q): %w", i, p, err)
		}

		compiled = append(compiled, re)
	}

	return compiled, nil
}

// ShouldExcludeDirectory reports whether relPath (a directory) matches any
// directory-exclude pattern, short-circuiting the walk from descending
// into it at all.
func (m *ScanPoliciesManager) ShouldExcludeDirectory(relPath string) bool {
	return matchesAny(m.excludeDir, relPath)
}

// ShouldExcludeFile applies the exclude/include override and the mtime
// window to a candidate file.
func (m *ScanPoliciesManager) ShouldExcludeFile(relPath string, modTime time.Time) bool {
	if matchesAny(m.excludeFile, relPath) && !matchesAny(m.includeFile, relPath) {
		return true
	}

	if !m.modBefore.IsZero() && modTime.Before(m.modBefore) {
		return true
	}

	if !m.modAfter.IsZero() && modTime.After(m.modAfter) {
		return true
	}

	return false
}

// ExcludeSymlinks reports whether symlinked entries should be skipped
// entirely rather than followed.
func (m *ScanPoliciesManager) ExcludeSymlinks() bool { return m.excludeSymlink }

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}

	return false
}
