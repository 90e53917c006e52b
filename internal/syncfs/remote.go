package syncfs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// sessionLister is the subset of session.Operations the remote scanner
// calls: one paginated listing operation, narrowly declared at the
// consumer per spec.md §9.
type sessionLister interface {
	ListFileVersions(ctx context.Context, bucketID string, startFileName, startFileID *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileVersionsResponse, error)
}

const remoteListPageSize = 1000

// actionStart is the version Action value for an unfinished large file's
// placeholder entry; spec.md §4.10 says to ignore these during scanning.
const actionStart = "start"
const actionHide = "hide"

// RemoteScanner lists every version under a bucket prefix in the server's
// natural (lexicographic-by-name, newest-first-by-name) order, groups
// consecutive same-name entries into one SyncPath per spec.md §4.10, and
// applies the same ScanPoliciesManager the local scanner uses.
type RemoteScanner struct {
	s        sessionLister
	bucketID string
	prefix   string
	policies *ScanPoliciesManager
	reporter Reporter
}

// NewRemoteScanner builds a RemoteScanner over bucketID's objects under
// prefix. reporter may be nil.
func NewRemoteScanner(s sessionLister, bucketID, prefix string, policies *ScanPoliciesManager, reporter Reporter) *RemoteScanner {
	if reporter == nil {
		reporter = func(string, error) {}
	}

	return &RemoteScanner{s: s, bucketID: bucketID, prefix: prefix, policies: policies, reporter: reporter}
}

// Scan returns a lazily-produced PathIterator grouping each distinct
// remote file name's versions into one SyncPath, newest version first.
func (r *RemoteScanner) Scan(ctx context.Context) *PathIterator {
	return newPathIterator(ctx, func(ctx context.Context, out chan<- scanItem) {
		if err := r.run(ctx, out); err != nil {
			select {
			case out <- scanItem{err: err}:
			case <-ctx.Done():
			}
		}
	})
}

func (r *RemoteScanner) run(ctx context.Context, out chan<- scanItem) error {
	var (
		startName *string
		startID   *string

		currentName string
		current     []Version
		haveCurrent bool
	)

	flush := func() error {
		if !haveCurrent || len(current) == 0 {
			return nil
		}

		path := r.toSyncPath(currentName, current)
		if path == nil {
			return nil
		}

		select {
		case out <- scanItem{path: *path}:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := r.s.ListFileVersions(ctx, r.bucketID, startName, startID, remoteListPageSize, r.prefix, "")
		if err != nil {
			return fmt.Errorf("syncfs: listing file versions: %w", err)
		}

		for _, fv := range resp.Files {
			if fv.Action == actionStart {
				continue // unfinished large file placeholder, spec.md §4.10
			}

			if !haveCurrent || fv.FileName != currentName {
				if err := flush(); err != nil {
					return err
				}

				currentName = fv.FileName
				current = nil
				haveCurrent = true
			}

			current = append(current, Version{
				FileID:   fv.FileID,
				Action:   fv.Action,
				Size:     fv.ContentLength,
				ModTime:  time.UnixMilli(fv.UploadTimestamp),
				FileInfo: fv.FileInfo,
			})
		}

		if resp.NextFileName == nil {
			break
		}

		startName = resp.NextFileName
		startID = resp.NextFileID
	}

	return flush()
}

// toSyncPath validates name and applies policy filters, returning nil when
// the grouped versions should not be emitted at all.
func (r *RemoteScanner) toSyncPath(name string, versions []Version) *SyncPath {
	if !isSyncableRemoteName(name) {
		r.reporter(name, ErrUnsyncableRemoteName)
		return nil
	}

	relPath := strings.TrimPrefix(name, r.prefix)

	latest := versions[0]
	if r.policies.ShouldExcludeFile(relPath, latest.ModTime) {
		return nil
	}

	return &SyncPath{
		RelativePath: relPath,
		Size:         latest.Size,
		ModTime:      latest.ModTime,
		Versions:     versions,
	}
}

// isSyncableRemoteName rejects names spec.md §4.10 calls out explicitly:
// "..", ".", "//" segments, absolute paths, or a Windows drive letter.
func isSyncableRemoteName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}

	if strings.Contains(name, "//") {
		return false
	}

	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".", "..":
			return false
		}

		if len(seg) == 2 && seg[1] == ':' {
			return false // drive letter, e.g. "C:"
		}
	}

	return true
}
