package b2api

import (
	"encoding/json"
	"time"
)

// AuthorizeAccountResponse is the payload returned by b2_authorize_account.
type AuthorizeAccountResponse struct {
	AccountID               string             `json:"accountId"`
	AuthorizationToken      string             `json:"authorizationToken"`
	APIInfo                 authorizeAPIInfo   `json:"apiInfo"`
	Allowed                 AllowedDescriptor  `json:"allowed"`
	ApplicationKeyExpiration *int64            `json:"applicationKeyExpirationTimestamp"`
}

type authorizeAPIInfo struct {
	StorageAPI storageAPIInfo `json:"storageApi"`
}

type storageAPIInfo struct {
	APIURL              string   `json:"apiUrl"`
	DownloadURL         string   `json:"downloadUrl"`
	S3APIURL            string   `json:"s3ApiUrl"`
	RecommendedPartSize int64    `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64 `json:"absoluteMinimumPartSize"`
	Capabilities        []string `json:"capabilities"`
}

// Bucket is the wire representation of a bucket, returned by
// b2_create_bucket, b2_update_bucket, and b2_list_buckets.
type Bucket struct {
	AccountID     string            `json:"accountId"`
	BucketID      string            `json:"bucketId"`
	BucketName    string            `json:"bucketName"`
	BucketType    string            `json:"bucketType"`
	BucketInfo    map[string]string `json:"bucketInfo"`
	LifecycleRules []LifecycleRule  `json:"lifecycleRules"`
	Revision      int               `json:"revision"`
	// ReplicationConfiguration is passed through opaquely; spec.md §9
	// Non-goals excludes replication orchestration beyond payload submission.
	ReplicationConfiguration json.RawMessage `json:"replicationConfiguration,omitempty"`
}

// LifecycleRule mirrors B2's bucket lifecycle rule object: files matching
// FileNamePrefix are hidden after DaysFromUploadingToHiding days and their
// hidden versions deleted after DaysFromHidingToDeleting days.
type LifecycleRule struct {
	FileNamePrefix            string `json:"fileNamePrefix"`
	DaysFromHidingToDeleting  *int   `json:"daysFromHidingToDeleting"`
	DaysFromUploadingToHiding *int   `json:"daysFromUploadingToHiding"`
}

// UploadURLResponse is returned by both b2_get_upload_url and
// b2_get_upload_part_url — the two share an identical shape.
type UploadURLResponse struct {
	BucketID           string `json:"bucketId,omitempty"`
	FileID             string `json:"fileId,omitempty"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

// FileVersion is the wire representation of an uploaded/copied file
// returned by b2_upload_file, b2_upload_part (wrapped), b2_copy_file,
// b2_get_file_info, b2_list_file_names, and b2_list_file_versions.
type FileVersion struct {
	AccountID       string            `json:"accountId"`
	BucketID        string            `json:"bucketId"`
	FileID          string            `json:"fileId"`
	FileName        string            `json:"fileName"`
	ContentLength   int64             `json:"contentLength"`
	ContentSha1     string            `json:"contentSha1"`
	ContentMd5      string            `json:"contentMd5,omitempty"`
	ContentType     string            `json:"contentType"`
	FileInfo        map[string]string `json:"fileInfo"`
	Action          string            `json:"action"`
	UploadTimestamp int64             `json:"uploadTimestamp"`
	FileRetention   *FileRetention    `json:"fileRetention,omitempty"`
	LegalHold       *LegalHold        `json:"legalHold,omitempty"`
	ReplicationStatus string          `json:"replicationStatus,omitempty"`
}

// FileRetention mirrors B2's object-lock retention setting.
type FileRetention struct {
	Mode   string `json:"mode"`
	RetainUntilTimestamp *int64 `json:"retainUntilTimestamp"`
}

// LegalHold mirrors B2's object-lock legal-hold setting.
type LegalHold struct {
	IsClientAuthorizedToRead bool   `json:"isClientAuthorizedToRead"`
	Value                    string `json:"value"`
}

// Part describes one uploaded part of an in-progress large file, as
// returned by b2_list_parts.
type Part struct {
	FileID          string `json:"fileId"`
	PartNumber      int    `json:"partNumber"`
	ContentLength   int64  `json:"contentLength"`
	ContentSha1     string `json:"contentSha1"`
	UploadTimestamp int64  `json:"uploadTimestamp"`
}

// UnfinishedLargeFile describes an in-progress large file returned by
// b2_list_unfinished_large_files.
type UnfinishedLargeFile struct {
	FileID      string            `json:"fileId"`
	BucketID    string            `json:"bucketId"`
	FileName    string            `json:"fileName"`
	AccountID   string            `json:"accountId"`
	ContentType string            `json:"contentType"`
	FileInfo    map[string]string `json:"fileInfo"`
}

// ListFileNamesResponse is returned by b2_list_file_names.
type ListFileNamesResponse struct {
	Files        []FileVersion `json:"files"`
	NextFileName *string       `json:"nextFileName"`
}

// ListFileVersionsResponse is returned by b2_list_file_versions.
type ListFileVersionsResponse struct {
	Files        []FileVersion `json:"files"`
	NextFileName *string       `json:"nextFileName"`
	NextFileID   *string       `json:"nextFileId"`
}

// ListPartsResponse is returned by b2_list_parts.
type ListPartsResponse struct {
	Parts          []Part  `json:"parts"`
	NextPartNumber *int    `json:"nextPartNumber"`
}

// ListUnfinishedLargeFilesResponse is returned by
// b2_list_unfinished_large_files.
type ListUnfinishedLargeFilesResponse struct {
	Files       []UnfinishedLargeFile `json:"files"`
	NextFileID  *string               `json:"nextFileId"`
}

// ListBucketsResponse is returned by b2_list_buckets.
type ListBucketsResponse struct {
	Buckets []Bucket `json:"buckets"`
}

// CopyRange expresses the inclusive byte range copied by b2_copy_file or
// b2_copy_part. A nil CopyRange means "entire source file".
type CopyRange struct {
	Start int64
	End   int64 // inclusive, per B2's Range header semantics
}

// DownloadInfo is the metadata header set returned alongside a download's
// response body, per spec.md §3's download-info struct.
type DownloadInfo struct {
	FileID          string
	FileName        string
	BucketID        string
	ContentLength   int64
	ContentRange    string
	ContentSha1     string
	ContentType     string
	FileInfo        map[string]string
	UploadTimestamp time.Time
}
