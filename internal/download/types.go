// Package download implements the Download Manager and Parallel Downloader
// (spec.md §4.9, components C12/C13): strategy selection between a
// sequential and a range-sharded parallel downloader, chunked streaming
// through a single-writer fan-in, and final length/SHA-1 validation.
package download

import (
	"context"
	"errors"
	"io"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// Config bounds the Download Manager's strategy and chunking decisions,
// mirroring spec.md §4.9's defaults.
type Config struct {
	// MinPartSize is the per-stream floor used both to decide whether
	// parallel download is worthwhile and to size each stream's range.
	// Default 100 MiB.
	MinPartSize int64

	// MaxStreams caps the computed stream count. Default 8.
	MaxStreams int

	// ThreadPoolSize further caps the stream count by the caller's worker
	// budget (spec.md §5: default 8 download workers).
	ThreadPoolSize int

	// MinChunkSize/MaxChunkSize/AlignFactor bound the per-read chunk size
	// computed from content_length. Defaults 8192, 1 MiB, 4096.
	MinChunkSize int64
	MaxChunkSize int64
	AlignFactor  int64

	// ForceChunkSize, if non-zero, overrides the computed chunk size.
	ForceChunkSize int64

	// MaxPartRetries bounds per-part truncation-recovery attempts. Default 5.
	MaxPartRetries int

	// VerifyIntegrity disables the final SHA-1 comparison when false.
	// Defaults to true; spec.md §4.9 still skips the check whenever the
	// server reports "none".
	VerifyIntegrity bool
}

// DefaultConfig returns spec.md §4.9's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinPartSize:     100 * 1024 * 1024,
		MaxStreams:      8,
		ThreadPoolSize:  8,
		MinChunkSize:    8192,
		MaxChunkSize:    1024 * 1024,
		AlignFactor:     4096,
		MaxPartRetries:  5,
		VerifyIntegrity: true,
	}
}

// sha1None is the server's sentinel content_sha1 value for objects that
// have no stored checksum (e.g. large files assembled without one).
const sha1None = "none"

// ErrInvalidRange is raised when a caller-requested range's width doesn't
// match the server's reported content length.
var ErrInvalidRange = errors.New("download: server content length does not match requested range width")

// ErrTruncatedOutput is raised when fewer bytes were read than the
// download's declared length, after exhausting per-part retries.
var ErrTruncatedOutput = errors.New("download: truncated output")

// ErrChecksumMismatch is raised when the computed SHA-1 does not match the
// server-reported content_sha1 (only checked for non-ranged downloads).
var ErrChecksumMismatch = errors.New("download: checksum mismatch")

// sessionDownloader is the subset of session.Operations the Download
// Manager calls, declared at the consumer per spec.md §9.
type sessionDownloader interface {
	DownloadFileByID(ctx context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error)
	DownloadFileByName(ctx context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error)
}

// RandomAccessDestination is the capability a destination must offer for
// the parallel downloader to use it: concurrent positioned writes, plus
// positioned reads so the final hash catch-up pass can read back bytes
// written by other workers (spec.md §4.9: "the hasher is advanced over the
// rest of the file on disk").
type RandomAccessDestination interface {
	io.WriterAt
	io.ReaderAt
}

// Request identifies the object (and optional byte range) to download.
// Exactly one of FileID or (BucketName, FileName) should be set.
type Request struct {
	FileID     string
	BucketName string
	FileName   string

	// Range, if non-nil, requests a sub-range [Start, End] (inclusive),
	// per b2api.CopyRange's Range-header semantics.
	Range *b2api.CopyRange
}

func (r Request) isRanged() bool { return r.Range != nil }

func (r Request) fetch(ctx context.Context, s sessionDownloader) (io.ReadCloser, *b2api.DownloadInfo, error) {
	if r.FileID != "" {
		return s.DownloadFileByID(ctx, r.FileID, r.Range)
	}

	return s.DownloadFileByName(ctx, r.BucketName, r.FileName, r.Range)
}

func (r Request) fetchRange(ctx context.Context, s sessionDownloader, rng b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	if r.FileID != "" {
		return s.DownloadFileByID(ctx, r.FileID, &rng)
	}

	return s.DownloadFileByName(ctx, r.BucketName, r.FileName, &rng)
}

// Result summarizes a completed download.
type Result struct {
	BytesWritten int64
	Info         *b2api.DownloadInfo
	SHA1         string // computed digest; empty when not verified
}
