// Package session implements the C7 Session component: it composes the
// Account-Info Store (C1), the raw protocol client (C3), the error
// classifier (C5), and the retry driver (C6) into the single entry point
// every higher layer (emerge, download, syncfs) calls through. Operations
// is defined here, at the consumer, per spec.md §9's "accept interfaces,
// return structs" guidance — it is never moved into internal/b2api.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cloudbin/b2sdk-go/internal/account"
	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/retry"
)

// Operations is the full set of B2 calls available once authorized,
// each already carrying its api/download URL and auth token. In
// RealSession every call except DownloadFileByID and DownloadFileByName
// runs inside the C6 retry driver and re-authorizes on InvalidAuthToken;
// the two downloads make a single attempt with the current token and do
// neither. internal/emerge, internal/download, and
// internal/syncfs depend only on this interface, never on *b2api.Client or
// *RealSession directly, so tests substitute SimOperations.
type Operations interface {
	CreateBucket(ctx context.Context, bucketName, bucketType string, bucketInfo map[string]string) (*b2api.Bucket, error)
	DeleteBucket(ctx context.Context, bucketID string) error
	UpdateBucket(ctx context.Context, bucketID string, fields map[string]any) (*b2api.Bucket, error)
	ListBuckets(ctx context.Context, bucketName, bucketID *string) (*b2api.ListBucketsResponse, error)

	UploadFile(ctx context.Context, bucketID, fileName, contentType string, size int64, sha1Hex string, fileInfo map[string]string, r io.Reader) (*b2api.FileVersion, error)
	UploadPart(ctx context.Context, largeFileID string, partNumber int, size int64, sha1Hex string, r io.Reader) (*b2api.Part, error)

	StartLargeFile(ctx context.Context, bucketID, fileName, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error)
	FinishLargeFile(ctx context.Context, fileID string, partSha1Array []string) (*b2api.FileVersion, error)
	CancelLargeFile(ctx context.Context, fileID string) error
	ListParts(ctx context.Context, fileID string, startPartNumber *int, maxPartCount int) (*b2api.ListPartsResponse, error)
	ListUnfinishedLargeFiles(ctx context.Context, bucketID string, startFileID *string, maxFileCount int) (*b2api.ListUnfinishedLargeFilesResponse, error)

	CopyFile(ctx context.Context, sourceFileID, fileName string, rng *b2api.CopyRange, destinationBucketID, metadataDirective, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error)
	CopyPart(ctx context.Context, sourceFileID, largeFileID string, partNumber int, rng b2api.CopyRange) (*b2api.Part, error)

	DownloadFileByID(ctx context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error)
	DownloadFileByName(ctx context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error)

	ListFileNames(ctx context.Context, bucketID string, startFileName *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileNamesResponse, error)
	ListFileVersions(ctx context.Context, bucketID string, startFileName, startFileID *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileVersionsResponse, error)
	HideFile(ctx context.Context, bucketID, fileName string) (*b2api.FileVersion, error)
	DeleteFileVersion(ctx context.Context, fileName, fileID string) error
	GetFileInfo(ctx context.Context, fileID string) (*b2api.FileVersion, error)
	UpdateFileRetention(ctx context.Context, fileName, fileID string, retention b2api.FileRetention, bypassGovernance bool) (*b2api.FileVersion, error)
	UpdateFileLegalHold(ctx context.Context, fileName, fileID string, legalHold b2api.LegalHold) (*b2api.FileVersion, error)

	// AllowedInfo returns the current key's allowed descriptor, used to
	// annotate Unauthorized/AccessDenied errors per spec.md §4.4.
	AllowedInfo() (account.Allowed, error)
}

// AuthorizeFunc performs b2_authorize_account and returns the resulting
// State, given the credentials RealSession was built with.
type AuthorizeFunc func(ctx context.Context) (account.State, error)

// RealSession is the production Operations implementation: it wraps a raw
// *b2api.Client, an account.Info store, an account.UploadURLPool, and two
// retry.Driver instances (metadata vs. data-plane budgets).
type RealSession struct {
	raw   *b2api.Client
	info  account.Info
	pool  *account.UploadURLPool
	meta  *retry.Driver
	data  *retry.Driver
	log   *slog.Logger

	authorize AuthorizeFunc

	// tokenMu guards per-upload-key mutexes so concurrent uploads to the
	// same bucket/large-file id never reuse the same upload token in
	// parallel — spec.md §4.4's UploadTokenUsedConcurrently discipline.
	tokenMu sync.Mutex
	tokens  map[string]*sync.Mutex
}

// NewRealSession builds a RealSession. authorize is called on first use and
// on every InvalidAuthToken recovery.
func NewRealSession(raw *b2api.Client, info account.Info, pool *account.UploadURLPool, authorize AuthorizeFunc, log *slog.Logger) *RealSession {
	if log == nil {
		log = slog.Default()
	}

	return &RealSession{
		raw:       raw,
		info:      info,
		pool:      pool,
		meta:      retry.New(retry.MetadataPolicy).WithLogger(log),
		data:      retry.New(retry.DataPolicy).WithLogger(log),
		log:       log,
		authorize: authorize,
		tokens:    make(map[string]*sync.Mutex),
	}
}

func (s *RealSession) AllowedInfo() (account.Allowed, error) { return s.info.AllowedInfo() }

func (s *RealSession) tokenLock(key string) *sync.Mutex {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	m, ok := s.tokens[key]
	if !ok {
		m = &sync.Mutex{}
		s.tokens[key] = m
	}

	return m
}

// reauthorizeOnce re-runs AuthorizeFunc and persists the resulting State.
func (s *RealSession) reauthorizeOnce(ctx context.Context) error {
	state, err := s.authorize(ctx)
	if err != nil {
		return fmt.Errorf("session: re-authorize: %w", err)
	}

	return s.info.SetAuthData(state)
}

// isInvalidAuthToken reports whether err classifies as InvalidAuthToken.
func isInvalidAuthToken(err error) bool {
	var apiErr *b2api.Error
	return errors.As(err, &apiErr) && apiErr.Kind == b2api.KindInvalidAuthToken
}

// withAPIAuth resolves the current (api_url, auth_token) and calls fn,
// re-authorizing exactly once if fn's first attempt reports
// InvalidAuthToken (spec.md §4.4).
func withAPIAuth[T any](ctx context.Context, s *RealSession, fn func(apiURL, authToken string) (T, error)) (T, error) {
	var zero T

	apiURL, err := s.info.APIURL()
	if err != nil {
		return zero, err
	}

	authToken, err := s.info.AuthToken()
	if err != nil {
		return zero, err
	}

	result, err := fn(apiURL, authToken)
	if err == nil || !isInvalidAuthToken(err) {
		return annotateUnauthorized(s, err, result)
	}

	if reauthErr := s.reauthorizeOnce(ctx); reauthErr != nil {
		return zero, reauthErr
	}

	apiURL, err = s.info.APIURL()
	if err != nil {
		return zero, err
	}

	authToken, err = s.info.AuthToken()
	if err != nil {
		return zero, err
	}

	result, err = fn(apiURL, authToken)

	return annotateUnauthorized(s, err, result)
}

// annotateUnauthorized attaches the allowed descriptor to Unauthorized/
// AccessDenied errors per spec.md §4.4, then returns (result, err)
// unchanged otherwise.
func annotateUnauthorized[T any](s *RealSession, err error, result T) (T, error) {
	if err == nil {
		return result, nil
	}

	var apiErr *b2api.Error
	if errors.As(err, &apiErr) && (apiErr.Kind == b2api.KindUnauthorized || apiErr.Kind == b2api.KindAccessDenied) {
		if allowed, allowedErr := s.info.AllowedInfo(); allowedErr == nil {
			apiErr.Allowed = &b2api.AllowedDescriptor{
				Capabilities: allowed.Capabilities,
				BucketID:     allowed.BucketID,
				BucketName:   allowed.BucketName,
				NamePrefix:   allowed.NamePrefix,
			}
		}
	}

	return result, err
}

// callMeta runs fn under the metadata retry budget (N=5).
func callMeta[T any](ctx context.Context, s *RealSession, fn func(apiURL, authToken string) (T, error)) (T, error) {
	return retry.Do(ctx, s.meta, retry.IsRetryableHTTP, func(ctx context.Context) (T, error) {
		return withAPIAuth(ctx, s, fn)
	})
}

// callData runs fn under the data-plane retry budget (N=20).
func callData[T any](ctx context.Context, s *RealSession, fn func(apiURL, authToken string) (T, error)) (T, error) {
	return retry.Do(ctx, s.data, retry.IsRetryableUpload, func(ctx context.Context) (T, error) {
		return withAPIAuth(ctx, s, fn)
	})
}

func (s *RealSession) CreateBucket(ctx context.Context, bucketName, bucketType string, bucketInfo map[string]string) (*b2api.Bucket, error) {
	accountID, err := s.info.AccountID()
	if err != nil {
		return nil, err
	}

	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.Bucket, error) {
		return s.raw.CreateBucket(ctx, apiURL, authToken, accountID, bucketName, bucketType, bucketInfo)
	})
}

func (s *RealSession) DeleteBucket(ctx context.Context, bucketID string) error {
	accountID, err := s.info.AccountID()
	if err != nil {
		return err
	}

	_, err = callMeta(ctx, s, func(apiURL, authToken string) (*struct{}, error) {
		return nil, s.raw.DeleteBucket(ctx, apiURL, authToken, accountID, bucketID)
	})

	return err
}

func (s *RealSession) UpdateBucket(ctx context.Context, bucketID string, fields map[string]any) (*b2api.Bucket, error) {
	accountID, err := s.info.AccountID()
	if err != nil {
		return nil, err
	}

	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.Bucket, error) {
		return s.raw.UpdateBucket(ctx, apiURL, authToken, accountID, bucketID, fields)
	})
}

func (s *RealSession) ListBuckets(ctx context.Context, bucketName, bucketID *string) (*b2api.ListBucketsResponse, error) {
	accountID, err := s.info.AccountID()
	if err != nil {
		return nil, err
	}

	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.ListBucketsResponse, error) {
		return s.raw.ListBuckets(ctx, apiURL, authToken, accountID, bucketName, bucketID)
	})
}

// UploadFile takes a pooled upload URL for bucketID, uploads, and returns
// the pair on success or discards it on a retryable failure, per spec.md
// §4.4's upload-token discipline.
func (s *RealSession) UploadFile(ctx context.Context, bucketID, fileName, contentType string, size int64, sha1Hex string, fileInfo map[string]string, r io.Reader) (*b2api.FileVersion, error) {
	return s.uploadWithPooledURL(ctx, bucketID, func(apiURL, authToken, uploadURL, uploadToken string) (*b2api.FileVersion, error) {
		return s.raw.UploadFile(ctx, uploadURL, uploadToken, fileName, contentType, size, sha1Hex, fileInfo, r)
	}, func(apiURL, authToken string) (*b2api.UploadURLResponse, error) {
		return s.raw.GetUploadURL(ctx, apiURL, authToken, bucketID)
	})
}

func (s *RealSession) UploadPart(ctx context.Context, largeFileID string, partNumber int, size int64, sha1Hex string, r io.Reader) (*b2api.Part, error) {
	return retry.Do(ctx, s.data, retry.IsRetryableUpload, func(ctx context.Context) (*b2api.Part, error) {
		return uploadWithPooledURLImpl(ctx, s, largeFileID, func(apiURL, authToken, uploadURL, uploadToken string) (*b2api.Part, error) {
			return s.raw.UploadPart(ctx, uploadURL, uploadToken, partNumber, size, sha1Hex, r)
		}, func(apiURL, authToken string) (*b2api.UploadURLResponse, error) {
			return s.raw.GetUploadPartURL(ctx, apiURL, authToken, largeFileID)
		})
	})
}

// uploadWithPooledURL implements the shared take/put/discard + per-token
// mutex discipline of spec.md §4.4, parameterized over the small-file vs.
// part upload call and its matching upload-URL fetcher.
func uploadWithPooledURLImpl[T any](
	ctx context.Context, s *RealSession, key string,
	doUpload func(apiURL, authToken, uploadURL, uploadToken string) (T, error),
	getUploadURL func(apiURL, authToken string) (*b2api.UploadURLResponse, error),
) (T, error) {
	var zero T

	apiURL, err := s.info.APIURL()
	if err != nil {
		return zero, err
	}

	pair, ok := s.pool.Take(key)
	if !ok {
		resp, err := withAPIAuth(ctx, s, func(apiURL, authToken string) (*b2api.UploadURLResponse, error) {
			return getUploadURL(apiURL, authToken)
		})
		if err != nil {
			return zero, err
		}

		pair = account.URLToken{URL: resp.UploadURL, Token: resp.AuthorizationToken}
	}

	lock := s.tokenLock(pair.Token)
	lock.Lock()
	defer lock.Unlock()

	authToken, err := s.info.AuthToken()
	if err != nil {
		return zero, err
	}

	result, err := doUpload(apiURL, authToken, pair.URL, pair.Token)
	if err == nil {
		s.pool.Put(key, pair)
		return result, nil
	}

	var apiErr *b2api.Error
	if errors.As(err, &apiErr) && apiErr.RetryableUpload {
		// Discard the pair; the caller's retry.Do loop will fetch a fresh
		// one on the next attempt through uploadWithPooledURL.
		return zero, err
	}

	return zero, err
}

func (s *RealSession) uploadWithPooledURL(ctx context.Context, key string, doUpload func(apiURL, authToken, uploadURL, uploadToken string) (*b2api.FileVersion, error), getUploadURL func(apiURL, authToken string) (*b2api.UploadURLResponse, error)) (*b2api.FileVersion, error) {
	return retry.Do(ctx, s.data, retry.IsRetryableUpload, func(ctx context.Context) (*b2api.FileVersion, error) {
		return uploadWithPooledURLImpl(ctx, s, key, doUpload, getUploadURL)
	})
}

func (s *RealSession) StartLargeFile(ctx context.Context, bucketID, fileName, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.StartLargeFile(ctx, apiURL, authToken, bucketID, fileName, contentType, fileInfo)
	})
}

func (s *RealSession) FinishLargeFile(ctx context.Context, fileID string, partSha1Array []string) (*b2api.FileVersion, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.FinishLargeFile(ctx, apiURL, authToken, fileID, partSha1Array)
	})
}

func (s *RealSession) CancelLargeFile(ctx context.Context, fileID string) error {
	_, err := callMeta(ctx, s, func(apiURL, authToken string) (*struct{}, error) {
		return nil, s.raw.CancelLargeFile(ctx, apiURL, authToken, fileID)
	})

	return err
}

func (s *RealSession) ListParts(ctx context.Context, fileID string, startPartNumber *int, maxPartCount int) (*b2api.ListPartsResponse, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.ListPartsResponse, error) {
		return s.raw.ListParts(ctx, apiURL, authToken, fileID, startPartNumber, maxPartCount)
	})
}

func (s *RealSession) ListUnfinishedLargeFiles(ctx context.Context, bucketID string, startFileID *string, maxFileCount int) (*b2api.ListUnfinishedLargeFilesResponse, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.ListUnfinishedLargeFilesResponse, error) {
		return s.raw.ListUnfinishedLargeFiles(ctx, apiURL, authToken, bucketID, startFileID, maxFileCount)
	})
}

func (s *RealSession) CopyFile(ctx context.Context, sourceFileID, fileName string, rng *b2api.CopyRange, destinationBucketID, metadataDirective, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error) {
	return callData(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.CopyFile(ctx, apiURL, authToken, sourceFileID, fileName, rng, destinationBucketID, metadataDirective, contentType, fileInfo)
	})
}

func (s *RealSession) CopyPart(ctx context.Context, sourceFileID, largeFileID string, partNumber int, rng b2api.CopyRange) (*b2api.Part, error) {
	return callData(ctx, s, func(apiURL, authToken string) (*b2api.Part, error) {
		return s.raw.CopyPart(ctx, apiURL, authToken, sourceFileID, largeFileID, partNumber, rng)
	})
}

func (s *RealSession) DownloadFileByID(ctx context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	downloadURL, err := s.info.DownloadURL()
	if err != nil {
		return nil, nil, err
	}

	authToken, err := s.info.AuthToken()
	if err != nil {
		return nil, nil, err
	}

	resp, info, err := s.raw.DownloadFileByID(ctx, downloadURL, authToken, fileID, rng)
	if err != nil {
		return nil, nil, err
	}

	return resp.Body, info, nil
}

func (s *RealSession) DownloadFileByName(ctx context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error) {
	downloadURL, err := s.info.DownloadURL()
	if err != nil {
		return nil, nil, err
	}

	authToken, err := s.info.AuthToken()
	if err != nil {
		return nil, nil, err
	}

	resp, info, err := s.raw.DownloadFileByName(ctx, downloadURL, authToken, bucketName, fileName, rng)
	if err != nil {
		return nil, nil, err
	}

	return resp.Body, info, nil
}

func (s *RealSession) ListFileNames(ctx context.Context, bucketID string, startFileName *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileNamesResponse, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.ListFileNamesResponse, error) {
		return s.raw.ListFileNames(ctx, apiURL, authToken, bucketID, startFileName, maxFileCount, prefix, delimiter)
	})
}

func (s *RealSession) ListFileVersions(ctx context.Context, bucketID string, startFileName, startFileID *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileVersionsResponse, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.ListFileVersionsResponse, error) {
		return s.raw.ListFileVersions(ctx, apiURL, authToken, bucketID, startFileName, startFileID, maxFileCount, prefix, delimiter)
	})
}

func (s *RealSession) HideFile(ctx context.Context, bucketID, fileName string) (*b2api.FileVersion, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.HideFile(ctx, apiURL, authToken, bucketID, fileName)
	})
}

func (s *RealSession) DeleteFileVersion(ctx context.Context, fileName, fileID string) error {
	_, err := callMeta(ctx, s, func(apiURL, authToken string) (*struct{}, error) {
		return nil, s.raw.DeleteFileVersion(ctx, apiURL, authToken, fileName, fileID)
	})

	return err
}

func (s *RealSession) GetFileInfo(ctx context.Context, fileID string) (*b2api.FileVersion, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.GetFileInfo(ctx, apiURL, authToken, fileID)
	})
}

func (s *RealSession) UpdateFileRetention(ctx context.Context, fileName, fileID string, retention b2api.FileRetention, bypassGovernance bool) (*b2api.FileVersion, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.UpdateFileRetention(ctx, apiURL, authToken, fileName, fileID, retention, bypassGovernance)
	})
}

func (s *RealSession) UpdateFileLegalHold(ctx context.Context, fileName, fileID string, legalHold b2api.LegalHold) (*b2api.FileVersion, error) {
	return callMeta(ctx, s, func(apiURL, authToken string) (*b2api.FileVersion, error) {
		return s.raw.UpdateFileLegalHold(ctx, apiURL, authToken, fileName, fileID, legalHold)
	})
}
