package download

import (
	"context"
	"crypto/sha1" //nolint:gosec // B2's content_sha1 is SHA-1
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// ParallelDownloader is the C13 component: range-shards a download across
// bounded workers feeding a single Writer goroutine, per spec.md §4.9.
type ParallelDownloader struct {
	log *slog.Logger
	cfg Config
}

// NewParallelDownloader builds a ParallelDownloader. log may be nil.
func NewParallelDownloader(log *slog.Logger, cfg Config) *ParallelDownloader {
	if log == nil {
		log = slog.Default()
	}

	return &ParallelDownloader{log: log, cfg: cfg}
}

// part describes one worker's contiguous byte range of the destination
// object, in both cloud and local coordinates (identical here: downloads
// are never offset within the destination the way emerge copies are).
type part struct {
	index int
	start int64 // inclusive
	end   int64 // inclusive
}

func (p part) length() int64 { return p.end - p.start + 1 }

// writeChunk is one (offset, bytes) tuple enqueued by a worker for the
// Writer goroutine to place at the right position.
type writeChunk struct {
	offset int64
	data   []byte
}

// Download partitions [0, info.ContentLength) into streams contiguous
// parts, reusing firstBody (the Manager's already-open initial GET) as
// part 0's source, and dispatches the rest through bounded workers writing
// through a single Writer goroutine and a depth-2N queue.
func (d *ParallelDownloader) Download(ctx context.Context, s sessionDownloader, req Request, dest RandomAccessDestination, info *b2api.DownloadInfo, firstBody io.ReadCloser, streams int) (*Result, error) {
	parts := partition(info.ContentLength, streams, d.cfg.MinPartSize)

	queue := make(chan writeChunk, 2*len(parts))

	var written int64

	writerDone := make(chan error, 1)

	go func() {
		var total int64

		for chunk := range queue {
			if _, err := dest.WriteAt(chunk.data, chunk.offset); err != nil {
				writerDone <- fmt.Errorf("download: writing at offset %d: %w", chunk.offset, err)
				// Drain the rest of the queue so producers don't block
				// forever on a full channel after the writer has given up.
				for range queue {
				}

				return
			}

			total += int64(len(chunk.data))
		}

		written = total
		writerDone <- nil
	}()

	hasher := sha1.New() //nolint:gosec
	checkHash := d.cfg.VerifyIntegrity && info.ContentSha1 != sha1None && !req.isRanged()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(streams)

	for _, p := range parts {
		p := p

		group.Go(func() error {
			var body io.ReadCloser
			if p.index == 0 {
				body = firstBody
			}

			var hashInto hashFeeder
			if p.index == 0 && checkHash {
				hashInto = hasher
			}

			return d.downloadPart(groupCtx, s, req, p, body, queue, hashInto, info.ContentLength)
		})
	}

	workErr := group.Wait()
	close(queue)
	writeErr := <-writerDone

	if workErr != nil {
		return nil, workErr
	}

	if writeErr != nil {
		return nil, writeErr
	}

	if err := validateFinal(req, info, written); err != nil {
		return nil, err
	}

	digest := ""

	if checkHash {
		if err := advanceHashOverRest(dest, hasher, parts[0].length(), info.ContentLength); err != nil {
			return nil, err
		}

		digest = hex.EncodeToString(hasher.Sum(nil))
		if digest != info.ContentSha1 {
			return nil, fmt.Errorf("%w: server=%s local=%s", ErrChecksumMismatch, info.ContentSha1, digest)
		}
	}

	return &Result{BytesWritten: written, Info: info, SHA1: digest}, nil
}

// hashFeeder is the subset of hash.Hash the first-part worker writes into;
// named narrowly here since only Write is ever called mid-stream.
type hashFeeder interface {
	Write(p []byte) (int, error)
}

// partition splits [0, total) into n contiguous, (almost) equal parts, each
// at least minSize bytes where total allows it.
func partition(total int64, n int, minSize int64) []part {
	if n < 1 {
		n = 1
	}

	if minSize > 0 {
		if byMin := int(total / minSize); byMin < n {
			n = byMin
		}
	}

	if n < 1 {
		n = 1
	}

	base := total / int64(n)
	remainder := total % int64(n)

	parts := make([]part, n)

	var offset int64

	for i := 0; i < n; i++ {
		size := base
		if int64(i) < remainder {
			size++
		}

		parts[i] = part{index: i, start: offset, end: offset + size - 1}
		offset += size
	}

	return parts
}

// downloadPart streams one part's bytes into the write queue. body, when
// non-nil, is an already-open reader positioned at the part's start (the
// Manager's initial GET, reused for part 0); otherwise a fresh ranged GET
// is issued. On a short read (connection closed early), the remainder is
// re-requested as a new ranged GET, up to cfg.MaxPartRetries times.
func (d *ParallelDownloader) downloadPart(ctx context.Context, s sessionDownloader, req Request, p part, body io.ReadCloser, queue chan<- writeChunk, hashInto hashFeeder, contentLength int64) error {
	chunkSize := clampChunkSize(contentLength, d.cfg)

	cursor := p.start
	end := p.end

	attempts := 0

	for cursor <= end {
		if body == nil {
			var err error

			body, _, err = req.fetchRange(ctx, s, b2api.CopyRange{Start: cursor, End: end})
			if err != nil {
				return fmt.Errorf("download: part %d ranged GET at %d-%d: %w", p.index, cursor, end, err)
			}
		}

		n, readErr := d.streamPart(ctx, body, cursor, end, chunkSize, queue, hashInto)
		body.Close()
		body = nil
		cursor += n

		if readErr == nil {
			break
		}

		attempts++
		if attempts > d.cfg.MaxPartRetries {
			return fmt.Errorf("download: part %d truncated after %d retries at offset %d: %w: %w", p.index, d.cfg.MaxPartRetries, cursor, ErrTruncatedOutput, readErr)
		}

		d.log.Warn("download part truncated, retrying remainder", slog.Int("part", p.index), slog.Int64("offset", cursor), slog.Int("attempt", attempts))
	}

	return nil
}

// streamPart reads body in chunkSize increments, enqueuing each as a
// writeChunk at its absolute destination offset, until [start, end] is
// fully consumed or body returns an error other than io.EOF at the
// expected end. Returns bytes read and, on an early EOF, a non-nil error
// signaling truncation so the caller can issue a follow-up ranged GET.
func (d *ParallelDownloader) streamPart(ctx context.Context, body io.Reader, start, end int64, chunkSize int64, queue chan<- writeChunk, hashInto hashFeeder) (int64, error) {
	buf := make([]byte, chunkSize)

	var read int64

	want := end - start + 1

	for read < want {
		toRead := chunkSize
		if remaining := want - read; remaining < toRead {
			toRead = remaining
		}

		n, err := io.ReadFull(body, buf[:toRead])
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			if hashInto != nil {
				_, _ = hashInto.Write(data)
			}

			select {
			case queue <- writeChunk{offset: start + read, data: data}:
			case <-ctx.Done():
				return read, ctx.Err()
			}

			read += int64(n)
		}

		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if read < want {
					return read, fmt.Errorf("download: connection closed early: %w", err)
				}

				return read, nil
			}

			return read, err
		}
	}

	return read, nil
}

// clampChunkSize applies spec.md §4.9's chunk-size formula — chunk_size =
// clamp(content_length / 1000, min, max) — against the whole object's
// content length, independent of how many streams later divide the work;
// every part shares the same chunk size regardless of its own length.
func clampChunkSize(contentLength int64, cfg Config) int64 {
	if cfg.ForceChunkSize > 0 {
		return cfg.ForceChunkSize
	}

	size := contentLength / 1000
	if size < cfg.MinChunkSize {
		size = cfg.MinChunkSize
	}

	if size > cfg.MaxChunkSize {
		size = cfg.MaxChunkSize
	}

	if cfg.AlignFactor > 1 {
		size -= size % cfg.AlignFactor
		if size <= 0 {
			size = cfg.AlignFactor
		}
	}

	if size > contentLength {
		size = contentLength
	}

	return size
}

// advanceHashOverRest reads back [alreadyHashed, total) from dest in order
// and feeds it to hasher, completing the digest after every worker has
// finished writing — spec.md §4.9: "the hasher is advanced over the rest
// of the file on disk".
func advanceHashOverRest(dest RandomAccessDestination, hasher hashFeeder, alreadyHashed, total int64) error {
	const readBuf = 1 << 20

	buf := make([]byte, readBuf)

	offset := alreadyHashed
	for offset < total {
		want := int64(len(buf))
		if remaining := total - offset; remaining < want {
			want = remaining
		}

		n, err := dest.ReadAt(buf[:want], offset)
		if n > 0 {
			_, _ = hasher.Write(buf[:n])
			offset += int64(n)
		}

		if err != nil && err != io.EOF {
			return fmt.Errorf("download: hashing back from disk at offset %d: %w", offset, err)
		}

		if n == 0 && err == nil {
			return fmt.Errorf("download: hashing back from disk at offset %d: no progress", offset)
		}
	}

	return nil
}
