// Package syncfs is the C14/C15 component: a folder scanner and
// synchronizer that diffs a local subtree against a bucket prefix and
// drives the resulting actions through a bounded worker pool. Mirrors the
// shape of a scanner/filter/worker trio generalized from a database-backed
// change detector to B2's stateless list-and-compare model (spec.md §4.10).
package syncfs

import (
	"errors"
	"time"
)

// ErrUnsyncableFilename is returned when a local path component itself
// contains a "/" (impossible to represent as a single relative_path
// segment) or the OS walk otherwise cannot produce a legal name.
var ErrUnsyncableFilename = errors.New("syncfs: path component is not representable as a single segment")

// ErrUnsyncableRemoteName is returned when a remote file name contains a
// segment forbidden by the target filesystem: "..", ".", "//", an absolute
// path, or a drive-letter segment such as "C:" (rejected on every platform).
var ErrUnsyncableRemoteName = errors.New("syncfs: remote file name is not representable as a local path")

// ErrDestFileNewer is raised by policy resolution under NewerModeRaiseError
// when the destination is newer than the source by more than the compare
// threshold (spec.md §4.10's MODTIME rule).
var ErrDestFileNewer = errors.New("syncfs: destination file is newer than source")

// CompareMode selects how a source/destination pair is compared to decide
// whether a transfer is needed.
type CompareMode int

const (
	// CompareNone transfers only when the destination is absent.
	CompareNone CompareMode = iota
	// CompareModTime transfers when |Δmtime| exceeds CompareThreshold and
	// the source is newer; an older source is handed to NewerMode.
	CompareModTime
	// CompareSize transfers when |Δsize| exceeds Policy.SizeThreshold
	// (bytes).
	CompareSize
)

// NewerMode selects what happens when the destination is newer than the
// source under CompareModTime.
type NewerMode int

const (
	// NewerModeSkip silently leaves the pair untransferred.
	NewerModeSkip NewerMode = iota
	// NewerModeReplace transfers anyway, overwriting the newer destination.
	NewerModeReplace
	// NewerModeRaiseError reports ErrDestFileNewer and emits no action for
	// the pair.
	NewerModeRaiseError
)

// KeepMode selects what happens to the versions of a destination path whose
// source is absent (ResolveDeletion). Versions left behind when a transfer
// writes over an existing destination are not deleted or hidden under any
// mode.
type KeepMode int

const (
	// KeepModeDelete deletes every version of the path immediately.
	KeepModeDelete KeepMode = iota
	// KeepModeKeepBeforeDelete hides the current version unless it is
	// already a hide marker, keeps each older version whose successor is
	// younger than KeepDays (it was still visible inside the window), and
	// deletes the rest (spec.md §4.10).
	KeepModeKeepBeforeDelete
	// KeepModeNoDelete never deletes or hides a prior version.
	KeepModeNoDelete
)

// SyncDirection is the supplemental directionality flag from
// original_source/b2sdk's sync/sync.py: the distilled spec always assumes
// local-to-remote, but the original supports mirroring either way.
type SyncDirection int

const (
	// DirectionLocalToRemote uploads/copies local changes to the bucket
	// (the only direction spec.md's distillation describes).
	DirectionLocalToRemote SyncDirection = iota
	// DirectionRemoteToLocal downloads bucket changes to the local
	// subtree. Policy resolution only changes the emitted transfer to
	// ActionDownload; which scan is the source is up to the caller.
	DirectionRemoteToLocal
)

// Policy bundles the per-pair comparison and retention rules spec.md §4.10
// names, plus the original's directionality and fuzz-window supplements.
type Policy struct {
	Compare   CompareMode
	Newer     NewerMode
	Keep      KeepMode
	KeepDays  float64
	Direction SyncDirection

	// CompareThreshold is the fuzz window under which a modification-time
	// delta is treated as noise rather than a real change —
	// original_source/b2sdk's compare_threshold, left implicit in the
	// distilled spec. Applies only to CompareModTime.
	CompareThreshold time.Duration

	// SizeThreshold is CompareSize's analogous fuzz window, in bytes.
	// Split into its own typed field rather than overloading
	// CompareThreshold with mixed units (time.Duration for one mode,
	// byte count for the other), which the single `compare_threshold`
	// name in spec.md/the original leaves ambiguous.
	SizeThreshold int64
}

// DefaultPolicy compares by modification time: it transfers a path whose
// destination is absent or older than the source, skips one whose
// destination is newer, never deletes or hides, and has no fuzz window.
func DefaultPolicy() Policy {
	return Policy{
		Compare:   CompareModTime,
		Newer:     NewerModeSkip,
		Keep:      KeepModeNoDelete,
		Direction: DirectionLocalToRemote,
	}
}

// SyncPath is one path's-worth of comparable state on either side of a
// sync: the grouped file (for remote, every retained version; for local, a
// single stat) plus enough metadata to run policy resolution.
type SyncPath struct {
	RelativePath string
	IsDir        bool
	Size         int64
	ModTime      time.Time

	// Versions holds every version present for this path, newest first.
	// Populated by the remote scanner (one entry per grouped FileVersion);
	// the local scanner always reports a single-entry slice.
	Versions []Version
}

// Latest returns the most recent version, or the zero value if none.
func (p SyncPath) Latest() Version {
	if len(p.Versions) == 0 {
		return Version{}
	}

	return p.Versions[0]
}

// Version describes one retained object version (remote) or the current
// on-disk state (local, always exactly one).
type Version struct {
	FileID   string
	Action   string // "upload" or "hide" — remote only; empty for local
	Size     int64
	ModTime  time.Time
	FileInfo map[string]string
}

// IsHideMarker reports whether this version is a B2 hide marker rather
// than a real uploaded object.
func (v Version) IsHideMarker() bool { return v.Action == "hide" }
