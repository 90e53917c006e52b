package session

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // mirrors B2's own SHA-1 wire protocol
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cloudbin/b2sdk-go/internal/account"
	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// SimOperations is an in-memory Operations test double: an explicit fake,
// not a reflection-based mock, per spec.md §9's guidance that the session
// layer's test seam be a hand-written implementation of the same interface
// production code uses. internal/emerge's executor tests drive their
// scenarios through this type; the download and syncfs tests use their own
// package-local fakes.
type SimOperations struct {
	mu sync.Mutex

	buckets      map[string]*b2api.Bucket
	files        map[string][]*b2api.FileVersion // keyed by fileID; versions of one name share a bucket+name
	largeFiles   map[string]*simLargeFile
	nextFileNum  int
	nextBucketNum int

	allowed account.Allowed

	// FailNextUpload, when set, is returned as the error from the next
	// UploadFile/UploadPart call and then cleared, for testing C9's retry
	// and failure-list behavior.
	FailNextUpload error
}

type simLargeFile struct {
	bucketID    string
	fileName    string
	contentType string
	fileInfo    map[string]string
	parts       map[int]*b2api.Part
	partBytes   map[int][]byte
	finished    bool
	canceled    bool
}

// NewSimOperations builds an empty SimOperations with unrestricted
// capabilities.
func NewSimOperations() *SimOperations {
	return &SimOperations{
		buckets:    make(map[string]*b2api.Bucket),
		files:      make(map[string][]*b2api.FileVersion),
		largeFiles: make(map[string]*simLargeFile),
		allowed:    account.Allowed{Capabilities: []string{"listBuckets", "readFiles", "writeFiles", "listFiles", "deleteFiles"}},
	}
}

func (s *SimOperations) AllowedInfo() (account.Allowed, error) { return s.allowed, nil }

func (s *SimOperations) CreateBucket(_ context.Context, bucketName, bucketType string, bucketInfo map[string]string) (*b2api.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBucketNum++
	id := fmt.Sprintf("bucket-%d", s.nextBucketNum)
	b := &b2api.Bucket{BucketID: id, BucketName: bucketName, BucketType: bucketType, BucketInfo: bucketInfo}
	s.buckets[id] = b

	return b, nil
}

func (s *SimOperations) DeleteBucket(_ context.Context, bucketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buckets[bucketID]; !ok {
		return &b2api.Error{Kind: b2api.KindBucketIDNotFound, Status: 400}
	}

	delete(s.buckets, bucketID)

	return nil
}

func (s *SimOperations) UpdateBucket(_ context.Context, bucketID string, fields map[string]any) (*b2api.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketID]
	if !ok {
		return nil, &b2api.Error{Kind: b2api.KindBucketIDNotFound, Status: 400}
	}

	b.Revision++

	return b, nil
}

func (s *SimOperations) ListBuckets(_ context.Context, bucketName, bucketID *string) (*b2api.ListBucketsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []b2api.Bucket
	for _, b := range s.buckets {
		if bucketID != nil && b.BucketID != *bucketID {
			continue
		}

		if bucketName != nil && b.BucketName != *bucketName {
			continue
		}

		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BucketName < out[j].BucketName })

	return &b2api.ListBucketsResponse{Buckets: out}, nil
}

func (s *SimOperations) takeUploadFailure() error {
	if s.FailNextUpload != nil {
		err := s.FailNextUpload
		s.FailNextUpload = nil

		return err
	}

	return nil
}

func (s *SimOperations) UploadFile(_ context.Context, bucketID, fileName, contentType string, size int64, sha1Hex string, fileInfo map[string]string, r io.Reader) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeUploadFailure(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sim: read upload body: %w", err)
	}

	content, actualSha1 := stripHashAtEnd(data, sha1Hex)

	s.nextFileNum++
	fv := &b2api.FileVersion{
		FileID:        fmt.Sprintf("file-%d", s.nextFileNum),
		FileName:      fileName,
		BucketID:      bucketID,
		ContentLength: int64(len(content)),
		ContentSha1:   actualSha1,
		ContentType:   contentType,
		FileInfo:      fileInfo,
		Action:        "upload",
	}
	s.files[fv.FileID] = append(s.files[fv.FileID], fv)

	return fv, nil
}

// stripHashAtEnd mirrors the hash-at-end upload protocol: when sha1Hex is
// the "hex_digits_at_end" sentinel, the trailing 40 bytes of data are the
// hex digest and are not part of the file content.
func stripHashAtEnd(data []byte, sha1Hex string) ([]byte, string) {
	const sentinel = "hex_digits_at_end"
	if sha1Hex != sentinel || len(data) < 40 {
		sum := sha1.Sum(data) //nolint:gosec
		return data, hex.EncodeToString(sum[:])
	}

	content := data[:len(data)-40]
	digest := string(data[len(data)-40:])

	return content, digest
}

func (s *SimOperations) UploadPart(_ context.Context, largeFileID string, partNumber int, size int64, sha1Hex string, r io.Reader) (*b2api.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeUploadFailure(); err != nil {
		return nil, err
	}

	lf, ok := s.largeFiles[largeFileID]
	if !ok {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sim: read part body: %w", err)
	}

	content, digest := stripHashAtEnd(data, sha1Hex)

	part := &b2api.Part{FileID: largeFileID, PartNumber: partNumber, ContentLength: int64(len(content)), ContentSha1: digest}
	lf.parts[partNumber] = part
	lf.partBytes[partNumber] = content

	return part, nil
}

func (s *SimOperations) StartLargeFile(_ context.Context, bucketID, fileName, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFileNum++
	id := fmt.Sprintf("large-%d", s.nextFileNum)
	s.largeFiles[id] = &simLargeFile{
		bucketID: bucketID, fileName: fileName, contentType: contentType, fileInfo: fileInfo,
		parts: make(map[int]*b2api.Part), partBytes: make(map[int][]byte),
	}

	return &b2api.FileVersion{FileID: id, FileName: fileName, BucketID: bucketID, ContentType: contentType, FileInfo: fileInfo, Action: "start"}, nil
}

func (s *SimOperations) FinishLargeFile(_ context.Context, fileID string, partSha1Array []string) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, ok := s.largeFiles[fileID]
	if !ok {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	var buf bytes.Buffer

	for i := 1; i <= len(partSha1Array); i++ {
		part, ok := lf.parts[i]
		if !ok {
			return nil, &b2api.Error{Kind: b2api.KindMissingPart, Status: 400}
		}

		if part.ContentSha1 != partSha1Array[i-1] {
			return nil, &b2api.Error{Kind: b2api.KindPartSha1Mismatch, Status: 400}
		}

		buf.Write(lf.partBytes[i])
	}

	lf.finished = true
	sum := sha1.Sum(buf.Bytes()) //nolint:gosec

	fv := &b2api.FileVersion{
		FileID: fileID, FileName: lf.fileName, BucketID: lf.bucketID,
		ContentType: lf.contentType, FileInfo: lf.fileInfo,
		ContentLength: int64(buf.Len()), ContentSha1: hex.EncodeToString(sum[:]), Action: "upload",
	}
	s.files[fileID] = append(s.files[fileID], fv)

	return fv, nil
}

func (s *SimOperations) CancelLargeFile(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, ok := s.largeFiles[fileID]
	if !ok {
		return &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	lf.canceled = true
	delete(s.largeFiles, fileID)

	return nil
}

func (s *SimOperations) ListParts(_ context.Context, fileID string, startPartNumber *int, maxPartCount int) (*b2api.ListPartsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, ok := s.largeFiles[fileID]
	if !ok {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	var nums []int
	for n := range lf.parts {
		nums = append(nums, n)
	}

	sort.Ints(nums)

	var out []b2api.Part
	for _, n := range nums {
		out = append(out, *lf.parts[n])
	}

	return &b2api.ListPartsResponse{Parts: out}, nil
}

func (s *SimOperations) ListUnfinishedLargeFiles(_ context.Context, bucketID string, startFileID *string, maxFileCount int) (*b2api.ListUnfinishedLargeFilesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []b2api.UnfinishedLargeFile
	for id, lf := range s.largeFiles {
		if lf.bucketID != bucketID || lf.finished {
			continue
		}

		out = append(out, b2api.UnfinishedLargeFile{FileID: id, BucketID: lf.bucketID, FileName: lf.fileName, ContentType: lf.contentType, FileInfo: lf.fileInfo})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })

	return &b2api.ListUnfinishedLargeFilesResponse{Files: out}, nil
}

func (s *SimOperations) CopyFile(_ context.Context, sourceFileID, fileName string, rng *b2api.CopyRange, destinationBucketID, metadataDirective, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.latestVersionLocked(sourceFileID)
	if src == nil {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	s.nextFileNum++
	fv := &b2api.FileVersion{
		FileID: fmt.Sprintf("file-%d", s.nextFileNum), FileName: fileName,
		BucketID: destinationBucketID, ContentLength: src.ContentLength,
		ContentSha1: src.ContentSha1, ContentType: contentType, FileInfo: fileInfo, Action: "copy",
	}
	s.files[fv.FileID] = append(s.files[fv.FileID], fv)

	return fv, nil
}

func (s *SimOperations) CopyPart(_ context.Context, sourceFileID, largeFileID string, partNumber int, rng b2api.CopyRange) (*b2api.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, ok := s.largeFiles[largeFileID]
	if !ok {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	length := rng.End - rng.Start + 1
	part := &b2api.Part{FileID: largeFileID, PartNumber: partNumber, ContentLength: length}
	lf.parts[partNumber] = part

	return part, nil
}

func (s *SimOperations) latestVersionLocked(fileID string) *b2api.FileVersion {
	for _, versions := range s.files {
		for _, v := range versions {
			if v.FileID == fileID {
				return v
			}
		}
	}

	return nil
}

func (s *SimOperations) DownloadFileByID(_ context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	return nil, nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400, Message: "SimOperations does not retain upload bytes for download; seed via a higher-level fixture"}
}

func (s *SimOperations) DownloadFileByName(_ context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	return nil, nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400, Message: "SimOperations does not retain upload bytes for download; seed via a higher-level fixture"}
}

func (s *SimOperations) ListFileNames(_ context.Context, bucketID string, startFileName *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileNamesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []b2api.FileVersion

	for _, versions := range s.files {
		if len(versions) == 0 {
			continue
		}

		latest := versions[len(versions)-1]
		if latest.BucketID != bucketID {
			continue
		}

		if prefix != "" && !hasPrefix(latest.FileName, prefix) {
			continue
		}

		out = append(out, *latest)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })

	return &b2api.ListFileNamesResponse{Files: out}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (s *SimOperations) ListFileVersions(_ context.Context, bucketID string, startFileName, startFileID *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileVersionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []b2api.FileVersion

	for _, versions := range s.files {
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			if v.BucketID != bucketID {
				continue
			}

			if prefix != "" && !hasPrefix(v.FileName, prefix) {
				continue
			}

			out = append(out, *v)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FileName != out[j].FileName {
			return out[i].FileName < out[j].FileName
		}

		return out[i].UploadTimestamp > out[j].UploadTimestamp
	})

	return &b2api.ListFileVersionsResponse{Files: out}, nil
}

func (s *SimOperations) HideFile(_ context.Context, bucketID, fileName string) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFileNum++
	fv := &b2api.FileVersion{FileID: fmt.Sprintf("file-%d", s.nextFileNum), FileName: fileName, BucketID: bucketID, Action: "hide"}
	s.files[fv.FileID] = append(s.files[fv.FileID], fv)

	return fv, nil
}

func (s *SimOperations) DeleteFileVersion(_ context.Context, fileName, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; !ok {
		return &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	delete(s.files, fileID)

	return nil
}

func (s *SimOperations) GetFileInfo(_ context.Context, fileID string) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.latestVersionLocked(fileID)
	if v == nil {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	return v, nil
}

func (s *SimOperations) UpdateFileRetention(_ context.Context, fileName, fileID string, retention b2api.FileRetention, bypassGovernance bool) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.latestVersionLocked(fileID)
	if v == nil {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	v.FileRetention = &retention

	return v, nil
}

func (s *SimOperations) UpdateFileLegalHold(_ context.Context, fileName, fileID string, legalHold b2api.LegalHold) (*b2api.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.latestVersionLocked(fileID)
	if v == nil {
		return nil, &b2api.Error{Kind: b2api.KindFileNotPresent, Status: 400}
	}

	v.LegalHold = &legalHold

	return v, nil
}
