package emerge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/retry"
)

// fakeUploader is a local, no-reflection test double for sessionUploader:
// it lets each test script exactly how many times an upload should fail
// before succeeding, matching spec.md §9's SimOperations-style fakes.
type fakeUploader struct {
	failUploadFileTimes int
	failUploadPartTimes int
	uploadFileCalls     int
	uploadPartCalls     int
}

var errFakeRetryable = errors.New("fake: retryable failure")

func (f *fakeUploader) UploadFile(_ context.Context, bucketID, fileName, contentType string, size int64, sha1Hex string, fileInfo map[string]string, r io.Reader) (*b2api.FileVersion, error) {
	f.uploadFileCalls++

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if f.uploadFileCalls <= f.failUploadFileTimes {
		return nil, errFakeRetryable
	}

	sha1, payload := splitHashAtEnd(body)

	return &b2api.FileVersion{FileName: fileName, BucketID: bucketID, ContentLength: int64(len(payload)), ContentSha1: sha1, ContentType: contentType, FileInfo: fileInfo}, nil
}

func (f *fakeUploader) UploadPart(_ context.Context, largeFileID string, partNumber int, size int64, sha1Hex string, r io.Reader) (*b2api.Part, error) {
	f.uploadPartCalls++

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if f.uploadPartCalls <= f.failUploadPartTimes {
		return nil, errFakeRetryable
	}

	sha1, payload := splitHashAtEnd(body)

	return &b2api.Part{FileID: largeFileID, PartNumber: partNumber, ContentLength: int64(len(payload)), ContentSha1: sha1}, nil
}

// splitHashAtEnd mirrors the server side of the hash-at-end protocol: the
// last 40 bytes are the hex sha1, everything before is the payload.
func splitHashAtEnd(body []byte) (sha1 string, payload []byte) {
	if len(body) < 40 {
		return "", body
	}

	return string(body[len(body)-40:]), body[:len(body)-40]
}

func sourceOf(data []byte) UploadSource {
	return UploadSource{
		Length: int64(len(data)),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func TestUploadSmallFile_SucceedsFirstTry(t *testing.T) {
	m := NewUploadManager(nil)
	fake := &fakeUploader{}

	fv, err := m.UploadSmallFile(context.Background(), fake, "b1", "f1", "text/plain", nil, sourceOf([]byte("hello world")), retry.IsRetryableUpload)
	require.NoError(t, err)
	assert.Equal(t, "f1", fv.FileName)
	assert.NotEmpty(t, fv.ContentSha1)
	assert.Equal(t, 1, fake.uploadFileCalls)
}

func TestUploadSmallFile_RetriesThenSucceeds(t *testing.T) {
	m := NewUploadManager(nil)
	fake := &fakeUploader{failUploadFileTimes: 2}

	fv, err := m.UploadSmallFile(context.Background(), fake, "b1", "f1", "text/plain", nil, sourceOf([]byte("retry me")), retry.IsRetryableUpload)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.uploadFileCalls)
	assert.NotEmpty(t, fv.ContentSha1)
}

func TestUploadSmallFile_ExhaustsRetries_ReturnsMaxRetriesExceeded(t *testing.T) {
	m := NewUploadManager(nil)
	fake := &fakeUploader{failUploadFileTimes: maxUploadAttempts}

	_, err := m.UploadSmallFile(context.Background(), fake, "b1", "f1", "text/plain", nil, sourceOf([]byte("never")), retry.IsRetryableUpload)
	require.Error(t, err)

	var exceeded *MaxRetriesExceeded

	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, maxUploadAttempts, exceeded.Attempts)
	assert.Len(t, exceeded.Causes, maxUploadAttempts)
}

func TestUploadSmallFile_NonRetryableError_StopsImmediately(t *testing.T) {
	m := NewUploadManager(nil)
	fake := &fakeUploader{failUploadFileTimes: 1}

	_, err := m.UploadSmallFile(context.Background(), fake, "b1", "f1", "text/plain", nil, sourceOf([]byte("nope")), func(error) bool { return false })
	require.Error(t, err)
	assert.Equal(t, 1, fake.uploadFileCalls)
}

func TestUploadPartOf_SharedStateShortCircuitsAfterSiblingFailure(t *testing.T) {
	m := NewUploadManager(nil)
	fake := &fakeUploader{}
	shared := NewSharedLargeFileState("lf1")
	shared.markFailed()

	_, err := m.UploadPartOf(context.Background(), fake, shared, 1, sourceOf([]byte("abc")), retry.IsRetryableUpload)

	var already *AlreadyFailed

	require.ErrorAs(t, err, &already)
	assert.Equal(t, "lf1", already.LargeFileID)
	assert.Equal(t, 0, fake.uploadPartCalls, "must not perform network I/O once a sibling has failed")
}

func TestUploadPartOf_NonRetryableError_MarksSharedStateFailed(t *testing.T) {
	m := NewUploadManager(nil)
	fake := &fakeUploader{failUploadPartTimes: 1}
	shared := NewSharedLargeFileState("lf1")

	_, err := m.UploadPartOf(context.Background(), fake, shared, 1, sourceOf([]byte("abc")), func(error) bool { return false })
	require.Error(t, err)
	assert.True(t, shared.hasFailed())
}

func TestHashingReader_AppendsFortyByteHexDigestAtEOF(t *testing.T) {
	hr := newHashingReader(bytes.NewReader([]byte("payload")))

	body, err := io.ReadAll(hr)
	require.NoError(t, err)
	assert.Equal(t, len(hr.digest), 40)
	assert.True(t, bytes.HasSuffix(body, []byte(hr.digest)))
	assert.Equal(t, "payload", string(body[:len(body)-40]))
}
