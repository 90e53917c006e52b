package download

import (
	"context"
	"crypto/sha1" //nolint:gosec // B2's content_sha1 is SHA-1
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// Manager is the C12 component: chooses between the parallel and simple
// downloader strategies and validates the result, per spec.md §4.9.
type Manager struct {
	log *slog.Logger
	cfg Config
}

// NewManager builds a Manager. log may be nil; cfg is used as given (call
// DefaultConfig() for spec.md's stated defaults).
func NewManager(log *slog.Logger, cfg Config) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{log: log, cfg: cfg}
}

// DownloadToWriter resolves req and streams it to w, choosing the parallel
// strategy when w is a RandomAccessDestination and the object is large
// enough to benefit, else streaming sequentially.
func (m *Manager) DownloadToWriter(ctx context.Context, s sessionDownloader, req Request, w io.Writer) (*Result, error) {
	body, info, err := req.fetch(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("download: initial request: %w", err)
	}
	defer body.Close()

	if req.isRanged() {
		wantWidth := req.Range.End - req.Range.Start + 1
		if info.ContentLength != wantWidth {
			return nil, fmt.Errorf("%w: requested %d, got %d", ErrInvalidRange, wantWidth, info.ContentLength)
		}
	}

	dest, ok := w.(RandomAccessDestination)
	streams := m.chooseStreamCount(info.ContentLength)

	if ok && !req.isRanged() && info.ContentLength >= 2*m.cfg.MinPartSize && streams >= 2 {
		m.log.Debug("download: using parallel strategy", slog.Int("streams", streams), slog.Int64("content_length", info.ContentLength))

		pd := NewParallelDownloader(m.log, m.cfg)

		return pd.Download(ctx, s, req, dest, info, body, streams)
	}

	m.log.Debug("download: using simple strategy", slog.Int64("content_length", info.ContentLength))

	return m.downloadSimple(req, info, body, w)
}

// chooseStreamCount implements spec.md §4.9's
// min(content_length/min_part_size, max_streams, thread_pool_size).
func (m *Manager) chooseStreamCount(contentLength int64) int {
	byLength := int(contentLength / m.cfg.MinPartSize)

	streams := byLength
	if m.cfg.MaxStreams > 0 && m.cfg.MaxStreams < streams {
		streams = m.cfg.MaxStreams
	}

	if m.cfg.ThreadPoolSize > 0 && m.cfg.ThreadPoolSize < streams {
		streams = m.cfg.ThreadPoolSize
	}

	return streams
}

// chunkSize implements spec.md §4.9's clamp(content_length/1000,
// min_chunk_size, max_chunk_size) aligned down to align_factor.
func (m *Manager) chunkSize(contentLength int64) int64 {
	if m.cfg.ForceChunkSize > 0 {
		return m.cfg.ForceChunkSize
	}

	size := contentLength / 1000
	if size < m.cfg.MinChunkSize {
		size = m.cfg.MinChunkSize
	}

	if size > m.cfg.MaxChunkSize {
		size = m.cfg.MaxChunkSize
	}

	if m.cfg.AlignFactor > 1 {
		size -= size % m.cfg.AlignFactor
		if size <= 0 {
			size = m.cfg.AlignFactor
		}
	}

	return size
}

// downloadSimple streams body to w sequentially, hashing as it goes, and
// applies spec.md §4.9's final-validation rules.
func (m *Manager) downloadSimple(req Request, info *b2api.DownloadInfo, body io.ReadCloser, w io.Writer) (*Result, error) {
	hasher := sha1.New() //nolint:gosec

	var dst io.Writer = w
	if m.cfg.VerifyIntegrity && info.ContentSha1 != sha1None {
		dst = io.MultiWriter(w, hasher)
	}

	n, err := io.Copy(dst, body)
	if err != nil {
		return nil, fmt.Errorf("download: streaming body: %w", err)
	}

	if err := validateFinal(req, info, n); err != nil {
		return nil, err
	}

	digest := ""
	if m.cfg.VerifyIntegrity && info.ContentSha1 != sha1None {
		digest = hex.EncodeToString(hasher.Sum(nil))
		if !req.isRanged() && digest != info.ContentSha1 {
			return nil, fmt.Errorf("%w: server=%s local=%s", ErrChecksumMismatch, info.ContentSha1, digest)
		}
	}

	return &Result{BytesWritten: n, Info: info, SHA1: digest}, nil
}

// validateFinal implements spec.md §4.9's final-validation rules: a
// non-ranged request's byte count must equal content_length; a ranged
// request's must equal the requested range's width. SHA-1 is checked by
// the caller, and only for non-ranged requests.
func validateFinal(req Request, info *b2api.DownloadInfo, bytesRead int64) error {
	var want int64
	if req.isRanged() {
		want = req.Range.End - req.Range.Start + 1
	} else {
		want = info.ContentLength
	}

	if bytesRead != want {
		return fmt.Errorf("%w: wanted %d, got %d", ErrTruncatedOutput, want, bytesRead)
	}

	return nil
}
