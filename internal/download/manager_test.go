package download

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// fakeDownloader is a local, no-reflection sessionDownloader double: it
// serves ranged GETs out of an in-memory buffer, optionally truncating the
// Nth call to a given starting offset so tests can exercise the parallel
// downloader's per-part retry path.
type fakeDownloader struct {
	data []byte
	sha1 string

	mu            sync.Mutex
	truncateFirst map[int64]int // offset -> bytes to serve before cutting off, once
	calls         int
}

func (f *fakeDownloader) DownloadFileByID(_ context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	return f.serve(rng)
}

func (f *fakeDownloader) DownloadFileByName(_ context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	return f.serve(rng)
}

func (f *fakeDownloader) serve(rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	start, end := int64(0), int64(len(f.data))-1
	if rng != nil {
		start, end = rng.Start, rng.End
		if end > int64(len(f.data))-1 {
			end = int64(len(f.data)) - 1
		}
	}

	body := f.data[start : end+1]

	f.mu.Lock()
	if n, ok := f.truncateFirst[start]; ok {
		delete(f.truncateFirst, start)
		body = body[:n]
	}
	f.mu.Unlock()

	info := &b2api.DownloadInfo{ContentLength: end - start + 1, ContentSha1: f.sha1, FileID: "f1"}
	if rng != nil {
		info.ContentLength = int64(len(body))
	}

	return io.NopCloser(bytes.NewReader(body)), info, nil
}

// randomAccessBuffer is a fixed-size, concurrency-safe RandomAccessDestination
// backed by a byte slice, standing in for an *os.File in tests.
type randomAccessBuffer struct {
	mu   sync.Mutex
	data []byte
}

func newRandomAccessBuffer(size int64) *randomAccessBuffer {
	return &randomAccessBuffer{data: make([]byte, size)}
}

func (b *randomAccessBuffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	copy(b.data[off:], p)

	return len(p), nil
}

func (b *randomAccessBuffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func TestDownloadToWriter_SmallFile_UsesSimpleStrategy(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 500)
	fake := &fakeDownloader{data: data, sha1: sha1Hex(data)}
	m := NewManager(nil, DefaultConfig())

	var buf bytes.Buffer

	result, err := m.DownloadToWriter(context.Background(), fake, Request{FileID: "f1"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.BytesWritten)
	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, fake.sha1, result.SHA1)
}

func TestDownloadToWriter_ChecksumMismatch_Rejected(t *testing.T) {
	data := []byte("hello world")
	fake := &fakeDownloader{data: data, sha1: "0000000000000000000000000000000000dead"}
	m := NewManager(nil, DefaultConfig())

	var buf bytes.Buffer

	_, err := m.DownloadToWriter(context.Background(), fake, Request{FileID: "f1"}, &buf)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDownloadToWriter_SHA1None_SkipsChecksumCheck(t *testing.T) {
	data := []byte("hello world")
	fake := &fakeDownloader{data: data, sha1: sha1None}
	m := NewManager(nil, DefaultConfig())

	var buf bytes.Buffer

	result, err := m.DownloadToWriter(context.Background(), fake, Request{FileID: "f1"}, &buf)
	require.NoError(t, err)
	assert.Empty(t, result.SHA1)
}

func TestDownloadToWriter_RangedRequest_WidthMismatchRejected(t *testing.T) {
	data := bytes.Repeat([]byte("b"), 100)
	fake := &fakeDownloader{data: data, sha1: sha1Hex(data)}
	m := NewManager(nil, DefaultConfig())

	var buf bytes.Buffer

	// Ask for [0,200] (201 bytes) of a 100-byte object: the fake clamps the
	// range to the object's end and reports 100 bytes, so the width check
	// sees a mismatch.
	_, err := m.DownloadToWriter(context.Background(), fake, Request{FileID: "f1", Range: &b2api.CopyRange{Start: 0, End: 200}}, &buf)
	require.Error(t, err)
}

func TestDownloadToWriter_LargeFile_UsesParallelStrategyAndMatchesSHA1(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 50) // 500 bytes
	fake := &fakeDownloader{data: data, sha1: sha1Hex(data)}

	cfg := Config{
		MinPartSize: 50, MaxStreams: 4, ThreadPoolSize: 4,
		MinChunkSize: 4, MaxChunkSize: 32, AlignFactor: 1,
		MaxPartRetries: 5, VerifyIntegrity: true,
	}
	m := NewManager(nil, cfg)

	dest := newRandomAccessBuffer(int64(len(data)))

	result, err := m.DownloadToWriter(context.Background(), fake, Request{FileID: "f1"}, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.BytesWritten)
	assert.Equal(t, fake.sha1, result.SHA1)
	assert.Equal(t, data, dest.data)
	assert.Greater(t, fake.calls, 1, "expected more than one ranged GET for a parallel download")
}

func TestDownloadToWriter_LargeFile_RecoversFromTruncatedPart(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 400)
	fake := &fakeDownloader{
		data:          data,
		sha1:          sha1Hex(data),
		truncateFirst: map[int64]int{200: 10}, // part 2 of 2 (offsets 0,200) gets cut short once
	}

	cfg := Config{
		MinPartSize: 50, MaxStreams: 2, ThreadPoolSize: 2,
		MinChunkSize: 8, MaxChunkSize: 32, AlignFactor: 1,
		MaxPartRetries: 5, VerifyIntegrity: true,
	}
	m := NewManager(nil, cfg)

	dest := newRandomAccessBuffer(int64(len(data)))

	result, err := m.DownloadToWriter(context.Background(), fake, Request{FileID: "f1"}, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.BytesWritten)
	assert.Equal(t, data, dest.data)
}

func TestChooseStreamCount_ClampedByMaxStreamsAndThreadPool(t *testing.T) {
	m := NewManager(nil, Config{MinPartSize: 10, MaxStreams: 3, ThreadPoolSize: 2})
	assert.Equal(t, 2, m.chooseStreamCount(1000))
}

func TestChunkSize_ClampedAndAligned(t *testing.T) {
	m := NewManager(nil, Config{MinChunkSize: 100, MaxChunkSize: 1000, AlignFactor: 64})

	size := m.chunkSize(500_000)
	assert.LessOrEqual(t, size, int64(1000))
	assert.Equal(t, int64(0), size%64)
}

func TestClampChunkSize_UsesWholeObjectLengthNotPartLength(t *testing.T) {
	// spec.md §4.9's formula is content_length/1000, a whole-object
	// quantity independent of how many streams later divide the work. A
	// 4-stream download of a 100_000-byte object splits into 25_000-byte
	// parts, but the chunk size must still be derived from 100_000, not
	// 25_000 — otherwise more streams would silently shrink the chunk
	// size the formula intends to be stream-count-independent.
	cfg := Config{MinChunkSize: 1, MaxChunkSize: 1_000_000, AlignFactor: 1}

	const contentLength = 100_000

	partChunkSize := clampChunkSize(contentLength, cfg)
	assert.Equal(t, int64(100), partChunkSize, "must equal content_length/1000, ignoring part size")
}

func TestChunkSize_ForceChunkSizeOverrides(t *testing.T) {
	m := NewManager(nil, Config{ForceChunkSize: 777, MinChunkSize: 8, MaxChunkSize: 1000, AlignFactor: 64})
	assert.Equal(t, int64(777), m.chunkSize(500_000))
}

func TestFetchRange_ReturnsRequestedSlice(t *testing.T) {
	data := []byte("abcdefghij")
	fake := &fakeDownloader{data: data, sha1: sha1Hex(data)}

	body, err := FetchRange(context.Background(), fake, Request{FileID: "f1"}, 2, 5)
	require.NoError(t, err)

	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("cdef"), got)
}
