package syncfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Reporter receives a relative path and the reason it was skipped —
// unreadable entries, broken symlinks, filtered-out paths — so a caller can
// surface them without the scan itself failing.
type Reporter func(relPath string, reason error)

// LocalScanner walks a local subtree in spec.md §4.10's modified
// lexicographic order: for ordering purposes only, directory names are
// treated as if trailing-slashed, so "a.txt" sorts before "a/b" sorts
// before "a0". Grounded on internal/sync/scanner.go's walkDir, generalized
// from a database-backed change detector to a pure path emitter.
type LocalScanner struct {
	root     string
	policies *ScanPoliciesManager
	reporter Reporter
	log      *slog.Logger
}

// NewLocalScanner builds a LocalScanner rooted at root. reporter may be
// nil (skips are logged only); log may be nil.
func NewLocalScanner(root string, policies *ScanPoliciesManager, reporter Reporter, log *slog.Logger) *LocalScanner {
	if log == nil {
		log = slog.Default()
	}

	if reporter == nil {
		reporter = func(string, error) {}
	}

	return &LocalScanner{root: root, policies: policies, reporter: reporter, log: log}
}

// Scan returns a lazily-produced, lexicographically-ordered PathIterator
// over every syncable file under the scanner's root.
func (s *LocalScanner) Scan(ctx context.Context) *PathIterator {
	return newPathIterator(ctx, func(ctx context.Context, out chan<- scanItem) {
		if err := s.walk(ctx, s.root, "", out); err != nil {
			select {
			case out <- scanItem{err: err}:
			case <-ctx.Done():
			}
		}
	})
}

// localEntry pairs a directory entry with the augmented name used only to
// order it relative to its siblings.
type localEntry struct {
	entry     os.DirEntry
	augmented string
}

func (s *LocalScanner) walk(ctx context.Context, fsRoot, relPath string, out chan<- scanItem) error {
	fullPath := filepath.Join(fsRoot, relPath)

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return fmt.Errorf("syncfs: reading directory %q: %w", fullPath, err)
	}

	entries := make([]localEntry, 0, len(dirEntries))

	for _, e := range dirEntries {
		name := norm.NFC.String(e.Name())
		augmented := name

		if e.IsDir() {
			augmented += "/"
		}

		entries = append(entries, localEntry{entry: e, augmented: augmented})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].augmented < entries[j].augmented })

	for _, le := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.processEntry(ctx, fsRoot, relPath, le, out); err != nil {
			return err
		}
	}

	return nil
}

func (s *LocalScanner) processEntry(ctx context.Context, fsRoot, relPath string, le localEntry, out chan<- scanItem) error {
	name := norm.NFC.String(le.entry.Name())

	if strings.Contains(name, "/") {
		s.reporter(joinRel(relPath, name), ErrUnsyncableFilename)
		return nil
	}

	entryRel := joinRel(relPath, name)

	info, err := s.resolveEntry(fsRoot, entryRel, le.entry)
	if err != nil {
		s.reporter(entryRel, err)
		return nil
	}

	if info == nil {
		return nil // symlinks skipped per policy
	}

	if info.IsDir() {
		if s.policies.ShouldExcludeDirectory(entryRel) {
			return nil
		}

		return s.walk(ctx, fsRoot, entryRel, out)
	}

	if s.policies.ShouldExcludeFile(entryRel, info.ModTime()) {
		return nil
	}

	item := scanItem{path: SyncPath{
		RelativePath: entryRel,
		IsDir:        false,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		Versions: []Version{{
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}},
	}}

	select {
	case out <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// resolveEntry stats the entry, following a symlink unless excluded by
// policy. Returns (nil, nil) when the entry should be silently skipped
// (a policy-excluded symlink); a broken symlink is returned as an error,
// which the caller reports.
func (s *LocalScanner) resolveEntry(fsRoot, relPath string, entry os.DirEntry) (os.FileInfo, error) {
	if entry.Type()&os.ModeSymlink == 0 {
		return entry.Info()
	}

	if s.policies.ExcludeSymlinks() {
		return nil, nil //nolint:nilnil // signals "skip, not an error"
	}

	target, err := os.Stat(filepath.Join(fsRoot, relPath))
	if err != nil {
		return nil, fmt.Errorf("broken symlink: %w", err)
	}

	return target, nil
}

func joinRel(parent, child string) string {
	if parent == "" {
		return child
	}

	return parent + "/" + child
}
