package syncfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/download"
	"github.com/cloudbin/b2sdk-go/internal/emerge"
)

// fakeFullSession implements fullSession, recording calls relevant to the
// four DefaultExecutor operations and erroring on everything else.
type fakeFullSession struct {
	uploadedBody []byte
	uploadedName string

	downloadName string
	downloadBody []byte

	deletedFileID string
	hiddenName    string
}

func (f *fakeFullSession) UploadFile(ctx context.Context, bucketID, fileName, contentType string, size int64, sha1Hex string, fileInfo map[string]string, r io.Reader) (*b2api.FileVersion, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// The upload manager streams with the hash-at-end protocol: the last 40
	// bytes are the hex SHA-1, not file content.
	if sha1Hex == "hex_digits_at_end" && len(body) >= 40 {
		body = body[:len(body)-40]
	}

	f.uploadedName = fileName
	f.uploadedBody = body

	return &b2api.FileVersion{FileID: "uploaded-1", FileName: fileName, ContentLength: int64(len(body))}, nil
}

func (f *fakeFullSession) UploadPart(ctx context.Context, largeFileID string, partNumber int, size int64, sha1Hex string, r io.Reader) (*b2api.Part, error) {
	return nil, errors.New("fakeFullSession: UploadPart not supported in this test")
}

func (f *fakeFullSession) CopyFile(ctx context.Context, sourceFileID, fileName string, rng *b2api.CopyRange, destinationBucketID, metadataDirective, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error) {
	return nil, errors.New("fakeFullSession: CopyFile not supported in this test")
}

func (f *fakeFullSession) CopyPart(ctx context.Context, sourceFileID, largeFileID string, partNumber int, rng b2api.CopyRange) (*b2api.Part, error) {
	return nil, errors.New("fakeFullSession: CopyPart not supported in this test")
}

func (f *fakeFullSession) StartLargeFile(ctx context.Context, bucketID, fileName, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error) {
	return nil, errors.New("fakeFullSession: StartLargeFile not supported in this test")
}

func (f *fakeFullSession) FinishLargeFile(ctx context.Context, fileID string, partSha1Array []string) (*b2api.FileVersion, error) {
	return nil, errors.New("fakeFullSession: FinishLargeFile not supported in this test")
}

func (f *fakeFullSession) CancelLargeFile(ctx context.Context, fileID string) error {
	return errors.New("fakeFullSession: CancelLargeFile not supported in this test")
}

func (f *fakeFullSession) ListParts(ctx context.Context, fileID string, startPartNumber *int, maxPartCount int) (*b2api.ListPartsResponse, error) {
	return nil, errors.New("fakeFullSession: ListParts not supported in this test")
}

func (f *fakeFullSession) ListUnfinishedLargeFiles(ctx context.Context, bucketID string, startFileID *string, maxFileCount int) (*b2api.ListUnfinishedLargeFilesResponse, error) {
	return nil, errors.New("fakeFullSession: ListUnfinishedLargeFiles not supported in this test")
}

func (f *fakeFullSession) GetFileInfo(ctx context.Context, fileID string) (*b2api.FileVersion, error) {
	return nil, errors.New("fakeFullSession: GetFileInfo not supported in this test")
}

func (f *fakeFullSession) DownloadFileByID(ctx context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	return nil, nil, errors.New("fakeFullSession: DownloadFileByID not supported in this test")
}

func (f *fakeFullSession) DownloadFileByName(ctx context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	f.downloadName = fileName

	return io.NopCloser(bytes.NewReader(f.downloadBody)), &b2api.DownloadInfo{
		ContentLength: int64(len(f.downloadBody)),
		ContentSha1:   "none",
	}, nil
}

func (f *fakeFullSession) DeleteFileVersion(ctx context.Context, fileName, fileID string) error {
	f.deletedFileID = fileID
	return nil
}

func (f *fakeFullSession) HideFile(ctx context.Context, bucketID, fileName string) (*b2api.FileVersion, error) {
	f.hiddenName = fileName
	return &b2api.FileVersion{FileName: fileName, Action: "hide"}, nil
}

func testEmergeConfig() emerge.Config {
	return emerge.Config{MinPartSize: 10, RecommendedPartSize: 100, MaxPartSize: 1000}
}

func TestDefaultExecutor_Upload_SmallFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644))

	session := &fakeFullSession{}
	de := NewDefaultExecutor(session, "bucket1", root, testEmergeConfig(), download.DefaultConfig(), nil)

	err := de.Upload(context.Background(), Action{Kind: ActionUpload, RelativePath: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", session.uploadedName)
	assert.Equal(t, []byte("hello world"), session.uploadedBody)
}

func TestDefaultExecutor_Download_WritesLocalFile(t *testing.T) {
	root := t.TempDir()

	session := &fakeFullSession{downloadBody: []byte("remote content")}
	de := NewDefaultExecutor(session, "bucket1", root, testEmergeConfig(), download.DefaultConfig(), nil)

	err := de.Download(context.Background(), Action{Kind: ActionDownload, RelativePath: "nested/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "nested/a.txt", session.downloadName)

	got, err := os.ReadFile(filepath.Join(root, "nested", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("remote content"), got)
}

func TestDefaultExecutor_DeleteVersion(t *testing.T) {
	session := &fakeFullSession{}
	de := NewDefaultExecutor(session, "bucket1", t.TempDir(), testEmergeConfig(), download.DefaultConfig(), nil)

	err := de.DeleteVersion(context.Background(), Action{FileName: "a.txt", FileID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "v1", session.deletedFileID)
}

func TestDefaultExecutor_HideRemote(t *testing.T) {
	session := &fakeFullSession{}
	de := NewDefaultExecutor(session, "bucket1", t.TempDir(), testEmergeConfig(), download.DefaultConfig(), nil)

	err := de.HideRemote(context.Background(), Action{FileName: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", session.hiddenName)
}
