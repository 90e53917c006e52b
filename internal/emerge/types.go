// Package emerge implements the Emerge Planner, Upload Manager, Copy
// Manager, and Emerge Executor (spec.md §4.7/§4.8, components C8-C11): the
// part of this client that turns an ordered list of write intents — some
// backed by local bytes, some backed by an existing remote object — into
// either a single upload/copy call or a large-file session with resumable
// parts.
package emerge

import (
	"context"
	"crypto/sha1" //nolint:gosec // B2's own upload integrity protocol is SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Config bounds the Planner's part-size decisions. Min <= Recommended <=
// Max is required; these normally come straight from the authorized
// account's recommended_part_size/absolute_minimum_part_size (spec.md
// §4.1) plus a service-wide max_part_size ceiling.
type Config struct {
	MinPartSize         int64
	RecommendedPartSize int64
	MaxPartSize         int64
}

// UploadSource is a write intent's local-bytes side: an opener that returns
// a fresh reader over exactly Length bytes (re-opened on every upload
// attempt, since a part may be retried), plus an optional precomputed
// SHA-1 — when empty, the Upload Manager hashes while streaming.
type UploadSource struct {
	Open   func(ctx context.Context) (io.ReadCloser, error)
	Length int64
	SHA1   string
}

// CopySource is a write intent's remote-object side: an existing file id
// plus the half-open [Start, End) byte range to copy (End == Start means
// "rest of the source", resolved by the caller before planning — spec.md
// §4.6 forbids a non-zero offset with unknown length).
type CopySource struct {
	SourceFileID string
	Start        int64
	End          int64 // exclusive
}

func (c CopySource) length() int64 { return c.End - c.Start }

// WriteIntent is one fragment of the destination object, from either an
// UploadSource or a CopySource (exactly one must be non-nil).
type WriteIntent struct {
	DestinationOffset int64
	Length            int64
	Upload            *UploadSource
	Copy              *CopySource
}

func (w WriteIntent) end() int64 { return w.DestinationOffset + w.Length }

// ErrHoles is raised when write intents, once overlap-resolved, leave a gap
// in [0, total_length) — spec.md §4.7: "Cannot emerge file with holes".
var ErrHoles = errors.New("emerge: cannot emerge file with holes")

// ErrUnknownLength is raised by a caller-supplied intent whose length is not
// known up front; spec.md §4.7 requires every intent to declare a length
// before planning. This package has no helper that turns an unknown-length
// stream into intents of known length.
var ErrUnknownLength = errors.New("emerge: write intent has unknown length")

// UploadPart is a single-source emerge part backed entirely by local bytes.
type UploadPart struct {
	PartNumber int
	Source     UploadSource
}

// CopyPart is a single-source emerge part backed by a server-side range
// copy.
type CopyPart struct {
	PartNumber int
	Source     CopySource
	PartSHA1   string // known only when the source file's own sha1 covers exactly this range
}

// SubpartsPart is an emerge part assembled from more than one source (a
// mix of upload and copy fragments, or a small demoted copy alongside
// upload bytes) — uploaded as one ordinary part after concatenating its
// subparts locally.
type SubpartsPart struct {
	PartNumber int
	Subparts   []WriteIntent
}

// Part is the common interface satisfied by UploadPart, CopyPart, and
// SubpartsPart.
type Part interface {
	partNumber() int
}

func (p UploadPart) partNumber() int   { return p.PartNumber }
func (p CopyPart) partNumber() int     { return p.PartNumber }
func (p SubpartsPart) partNumber() int { return p.PartNumber }

// Plan is the Emerge Planner's output: either a single part (executed as a
// direct upload/copy with no large-file session) or multiple parts
// (executed as a large-file session by the Emerge Executor).
type Plan struct {
	TotalLength int64
	Parts       []Part

	// PlanID is a deterministic digest of the resolved parts, used to find
	// a matching in-progress large-file session on resume (spec.md §4.8's
	// plan-id resume tier). Only meaningful for multi-part plans.
	PlanID string
}

// IsSinglePart reports whether this plan executes as a direct upload/copy
// rather than a large-file session.
func (p Plan) IsSinglePart() bool { return len(p.Parts) <= 1 }

// computePlanID hashes each part's shape (kind, offset range, and source
// identity) in order, so the same logical plan always yields the same id
// regardless of which process computed it — required for plan-id resume
// to find a session started by an earlier, possibly crashed, attempt.
func computePlanID(parts []Part) string {
	h := sha1.New() //nolint:gosec

	for _, part := range parts {
		switch p := part.(type) {
		case UploadPart:
			fmt.Fprintf(h, "U|%d|%d\n", p.PartNumber, p.Source.Length)
		case CopyPart:
			fmt.Fprintf(h, "C|%d|%s|%d|%d\n", p.PartNumber, p.Source.SourceFileID, p.Source.Start, p.Source.End)
		case SubpartsPart:
			fmt.Fprintf(h, "S|%d|%d\n", p.PartNumber, len(p.Subparts))
			for _, sp := range p.Subparts {
				if sp.Upload != nil {
					fmt.Fprintf(h, " u|%d|%d\n", sp.DestinationOffset, sp.Length)
				} else {
					fmt.Fprintf(h, " c|%s|%d|%d\n", sp.Copy.SourceFileID, sp.Copy.Start, sp.Copy.End)
				}
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// MaxRetriesExceeded is raised when an upload or part upload exhausts its
// retry budget. Causes holds one error per failed attempt in order;
// Unwrap lets errors.Is/errors.As see through to any of them.
type MaxRetriesExceeded struct {
	Attempts int
	Causes   []error
}

func (e *MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("emerge: exceeded %d attempts, last error: %v", e.Attempts, e.Causes[len(e.Causes)-1])
}

func (e *MaxRetriesExceeded) Unwrap() []error { return e.Causes }

// AlreadyFailed is returned for a part whose large-file session has
// already recorded a sibling part's failure — spec.md §4.5: "abort with
// AlreadyFailed (no further network I/O)".
type AlreadyFailed struct {
	LargeFileID string
	PartNumber  int
}

func (e *AlreadyFailed) Error() string {
	return fmt.Sprintf("emerge: large file %s already failed, skipping part %d", e.LargeFileID, e.PartNumber)
}
