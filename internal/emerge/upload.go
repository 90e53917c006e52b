package emerge

import (
	"context"
	"crypto/sha1" //nolint:gosec // B2's own upload integrity protocol is SHA-1
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// hashAtEndSentinel is the Content-Sha1 header value meaning "the SHA-1 is
// appended as 40 hex bytes at the end of the body", per spec.md §4.5.
const hashAtEndSentinel = "hex_digits_at_end"

const maxUploadAttempts = 5

// sessionUploader is the subset of session.Operations the Upload Manager
// calls; declared here, at the consumer, per spec.md §9's "accept
// interfaces, return structs" guidance. *session.RealSession and
// *session.SimOperations both satisfy it structurally, so this package
// never imports internal/session.
type sessionUploader interface {
	UploadFile(ctx context.Context, bucketID, fileName, contentType string, size int64, sha1Hex string, fileInfo map[string]string, r io.Reader) (*b2api.FileVersion, error)
	UploadPart(ctx context.Context, largeFileID string, partNumber int, size int64, sha1Hex string, r io.Reader) (*b2api.Part, error)
}

// UploadManager is the C9 component: uploads a single small file, or a
// single large-file part, hashing-while-streaming via the hash-at-end
// protocol, retrying up to maxUploadAttempts times (refreshing the upload
// URL per attempt is the session layer's job — see
// internal/session.uploadWithPooledURL — this manager just calls Operations
// again on each attempt).
type UploadManager struct {
	log *slog.Logger
}

// NewUploadManager builds an UploadManager. log may be nil.
func NewUploadManager(log *slog.Logger) *UploadManager {
	if log == nil {
		log = slog.Default()
	}

	return &UploadManager{log: log}
}

// hashingReader wraps an io.Reader, feeding every byte read into a running
// SHA-1, and appends the 40 hex digest bytes once the wrapped reader is
// exhausted — the "hash at end" wire protocol B2 uses so the server can
// verify integrity without buffering the whole body.
type hashingReader struct {
	r      io.Reader
	hasher hash.Hash
	tail   []byte
	digest string
	done   bool
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, hasher: sha1.New()} //nolint:gosec
}

func (h *hashingReader) Read(p []byte) (int, error) {
	if h.done {
		if len(h.tail) == 0 {
			return 0, io.EOF
		}

		n := copy(p, h.tail)
		h.tail = h.tail[n:]

		return n, nil
	}

	n, err := h.r.Read(p)
	if n > 0 {
		_, _ = h.hasher.Write(p[:n])
	}

	if err == io.EOF {
		h.digest = hex.EncodeToString(h.hasher.Sum(nil))
		h.tail = []byte(h.digest)
		h.done = true

		if n == 0 {
			return h.Read(p)
		}

		return n, nil
	}

	return n, err
}

// UploadSmallFile implements spec.md §4.5's small-file upload: wrap the
// source in a hashing reader, declare size+40 bytes, call UploadFile,
// assert the server's returned sha1 equals the locally computed one, and
// retry up to maxUploadAttempts on a retryable error.
func (m *UploadManager) UploadSmallFile(ctx context.Context, s sessionUploader, bucketID, fileName, contentType string, fileInfo map[string]string, src UploadSource, isRetryable func(error) bool) (*b2api.FileVersion, error) {
	var causes []error

	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		fv, err := m.attemptSmallFile(ctx, s, bucketID, fileName, contentType, fileInfo, src)
		if err == nil {
			return fv, nil
		}

		causes = append(causes, err)

		if !isRetryable(err) {
			return nil, err
		}

		m.log.Warn("upload attempt failed, retrying", slog.Int("attempt", attempt), slog.String("error", err.Error()))
	}

	return nil, &MaxRetriesExceeded{Attempts: maxUploadAttempts, Causes: causes}
}

func (m *UploadManager) attemptSmallFile(ctx context.Context, s sessionUploader, bucketID, fileName, contentType string, fileInfo map[string]string, src UploadSource) (*b2api.FileVersion, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("emerge: opening upload source: %w", err)
	}
	defer rc.Close()

	hr := newHashingReader(rc)

	fv, err := s.UploadFile(ctx, bucketID, fileName, contentType, src.Length+40, hashAtEndSentinel, fileInfo, hr)
	if err != nil {
		return nil, err
	}

	if fv.ContentSha1 != "" && fv.ContentSha1 != hr.digest {
		return nil, fmt.Errorf("emerge: uploaded file sha1 mismatch: server=%s local=%s", fv.ContentSha1, hr.digest)
	}

	return fv, nil
}

// SharedLargeFileState lets sibling part uploads observe an earlier part's
// terminal failure and short-circuit without further network I/O, per
// spec.md §4.5.
type SharedLargeFileState struct {
	largeFileID string
	failed      chan struct{}
}

// NewSharedLargeFileState builds the per-large-file failure signal shared
// by every part upload belonging to one session.
func NewSharedLargeFileState(largeFileID string) *SharedLargeFileState {
	return &SharedLargeFileState{largeFileID: largeFileID, failed: make(chan struct{})}
}

func (s *SharedLargeFileState) markFailed() {
	select {
	case <-s.failed:
	default:
		close(s.failed)
	}
}

func (s *SharedLargeFileState) hasFailed() bool {
	select {
	case <-s.failed:
		return true
	default:
		return false
	}
}

// UploadPartOf uploads one large-file part, aborting immediately with
// AlreadyFailed if a sibling part already failed terminally.
func (m *UploadManager) UploadPartOf(ctx context.Context, s sessionUploader, shared *SharedLargeFileState, partNumber int, src UploadSource, isRetryable func(error) bool) (*b2api.Part, error) {
	if shared.hasFailed() {
		return nil, &AlreadyFailed{LargeFileID: shared.largeFileID, PartNumber: partNumber}
	}

	var causes []error

	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		if shared.hasFailed() {
			return nil, &AlreadyFailed{LargeFileID: shared.largeFileID, PartNumber: partNumber}
		}

		p, err := m.attemptPart(ctx, s, shared.largeFileID, partNumber, src)
		if err == nil {
			return p, nil
		}

		causes = append(causes, err)

		if !isRetryable(err) {
			shared.markFailed()
			return nil, err
		}

		m.log.Warn("part upload attempt failed, retrying",
			slog.Int("part_number", partNumber), slog.Int("attempt", attempt), slog.String("error", err.Error()))
	}

	shared.markFailed()

	return nil, &MaxRetriesExceeded{Attempts: maxUploadAttempts, Causes: causes}
}

func (m *UploadManager) attemptPart(ctx context.Context, s sessionUploader, largeFileID string, partNumber int, src UploadSource) (*b2api.Part, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("emerge: opening part source: %w", err)
	}
	defer rc.Close()

	hr := newHashingReader(rc)

	p, err := s.UploadPart(ctx, largeFileID, partNumber, src.Length+40, hashAtEndSentinel, hr)
	if err != nil {
		return nil, err
	}

	if p.ContentSha1 != "" && p.ContentSha1 != hr.digest {
		return nil, fmt.Errorf("emerge: uploaded part sha1 mismatch: server=%s local=%s", p.ContentSha1, hr.digest)
	}

	return p, nil
}
