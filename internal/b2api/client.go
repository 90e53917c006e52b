// Package b2api implements the raw, stateless B2 wire protocol (spec.md
// component C3): one method per B2_cloud_storage API call, each performing
// exactly one HTTP round trip with no retry and no session bookkeeping.
// Retries (C6), auth-token lifecycle (C7), and upload-URL pooling (C2) all
// live one layer up and compose these methods.
package b2api

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // B2's hash-at-end protocol mandates SHA-1, not a stronger digest
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Timeouts per spec.md §4.2: a connect timeout shared by every call, and a
// read timeout that varies by endpoint class.
const (
	ConnectTimeout        = 46 * time.Second
	DefaultReadTimeout    = 128 * time.Second
	CopyReadTimeout       = 1200 * time.Second
	UploadReadTimeout     = 128 * time.Second
	UnverifiedChecksumKey = "X-Bz-Content-Sha1"
)

// Client is a stateless HTTP client for the B2 native API. It does not
// cache an auth token or an upload URL — those belong to internal/session
// and internal/account respectively — it only knows how to shape a single
// request and parse its response.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient builds a Client. httpClient, when nil, defaults to a client
// configured with ConnectTimeout; logger, when nil, defaults to slog.Default.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{Timeout: ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{httpClient: httpClient, logger: logger, userAgent: "b2sdk-go/0.1"}
}

// AuthorizeAccount calls b2_authorize_account using HTTP Basic auth over
// keyID/applicationKey against realmBaseURL (e.g. https://api.backblazeb2.com).
func (c *Client) AuthorizeAccount(ctx context.Context, realmBaseURL, keyID, applicationKey string) (*AuthorizeAccountResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, realmBaseURL+"/b2api/v4/b2_authorize_account", nil)
	if err != nil {
		return nil, fmt.Errorf("b2api: build authorize request: %w", err)
	}

	req.SetBasicAuth(keyID, applicationKey)

	var out AuthorizeAccountResponse
	if err := c.doJSON(ctx, req, false, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CreateBucket calls b2_create_bucket.
func (c *Client) CreateBucket(ctx context.Context, apiURL, authToken, accountID, bucketName, bucketType string, bucketInfo map[string]string) (*Bucket, error) {
	body := map[string]any{
		"accountId":  accountID,
		"bucketName": bucketName,
		"bucketType": bucketType,
	}
	if bucketInfo != nil {
		body["bucketInfo"] = bucketInfo
	}

	var out Bucket
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_create_bucket", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteBucket calls b2_delete_bucket.
func (c *Client) DeleteBucket(ctx context.Context, apiURL, authToken, accountID, bucketID string) error {
	body := map[string]any{"accountId": accountID, "bucketId": bucketID}
	return c.postJSON(ctx, apiURL, "/b2api/v4/b2_delete_bucket", authToken, body, &Bucket{})
}

// UpdateBucket calls b2_update_bucket.
func (c *Client) UpdateBucket(ctx context.Context, apiURL, authToken, accountID, bucketID string, fields map[string]any) (*Bucket, error) {
	body := map[string]any{"accountId": accountID, "bucketId": bucketID}
	for k, v := range fields {
		body[k] = v
	}

	var out Bucket
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_update_bucket", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListBuckets calls b2_list_buckets.
func (c *Client) ListBuckets(ctx context.Context, apiURL, authToken, accountID string, bucketName, bucketID *string) (*ListBucketsResponse, error) {
	body := map[string]any{"accountId": accountID}
	if bucketName != nil {
		body["bucketName"] = *bucketName
	}

	if bucketID != nil {
		body["bucketId"] = *bucketID
	}

	var out ListBucketsResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_list_buckets", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetUploadURL calls b2_get_upload_url.
func (c *Client) GetUploadURL(ctx context.Context, apiURL, authToken, bucketID string) (*UploadURLResponse, error) {
	var out UploadURLResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_get_upload_url", authToken, map[string]any{"bucketId": bucketID}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// GetUploadPartURL calls b2_get_upload_part_url.
func (c *Client) GetUploadPartURL(ctx context.Context, apiURL, authToken, fileID string) (*UploadURLResponse, error) {
	var out UploadURLResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_get_upload_part_url", authToken, map[string]any{"fileId": fileID}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UploadFile uploads r (exactly size bytes) as a new file version using an
// upload URL/token from GetUploadURL. sha1Hex is sent verbatim as the
// X-Bz-Content-Sha1 header; for the hash-at-end protocol the caller passes
// "hex_digits_at_end" and r must end with the 40-byte hex SHA-1 of the
// preceding bytes, counted in size.
func (c *Client) UploadFile(
	ctx context.Context, uploadURL, uploadAuthToken, fileName, contentType string,
	size int64, sha1Hex string, fileInfo map[string]string, r io.Reader,
) (*FileVersion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, r)
	if err != nil {
		return nil, fmt.Errorf("b2api: build upload request: %w", err)
	}

	req.ContentLength = size
	req.Header.Set("Authorization", uploadAuthToken)
	req.Header.Set("X-Bz-File-Name", url.PathEscape(fileName))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set(UnverifiedChecksumKey, sha1Hex)
	setFileInfoHeaders(req.Header, fileInfo)

	var out FileVersion
	if err := c.doJSON(ctx, req, true, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UploadPart uploads one part of a large file using an upload URL/token from
// GetUploadPartURL.
func (c *Client) UploadPart(ctx context.Context, uploadURL, uploadAuthToken string, partNumber int, size int64, sha1Hex string, r io.Reader) (*Part, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, r)
	if err != nil {
		return nil, fmt.Errorf("b2api: build upload-part request: %w", err)
	}

	req.ContentLength = size
	req.Header.Set("Authorization", uploadAuthToken)
	req.Header.Set("X-Bz-Part-Number", strconv.Itoa(partNumber))
	req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set(UnverifiedChecksumKey, sha1Hex)

	var out Part
	if err := c.doJSON(ctx, req, true, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// StartLargeFile calls b2_start_large_file.
func (c *Client) StartLargeFile(ctx context.Context, apiURL, authToken, bucketID, fileName, contentType string, fileInfo map[string]string) (*FileVersion, error) {
	body := map[string]any{
		"bucketId":    bucketID,
		"fileName":    fileName,
		"contentType": contentType,
	}
	if fileInfo != nil {
		body["fileInfo"] = fileInfo
	}

	var out FileVersion
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_start_large_file", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// FinishLargeFile calls b2_finish_large_file with the ordered list of each
// part's SHA-1 digest.
func (c *Client) FinishLargeFile(ctx context.Context, apiURL, authToken, fileID string, partSha1Array []string) (*FileVersion, error) {
	body := map[string]any{"fileId": fileID, "partSha1Array": partSha1Array}

	var out FileVersion
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_finish_large_file", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CancelLargeFile calls b2_cancel_large_file.
func (c *Client) CancelLargeFile(ctx context.Context, apiURL, authToken, fileID string) error {
	return c.postJSON(ctx, apiURL, "/b2api/v4/b2_cancel_large_file", authToken, map[string]any{"fileId": fileID}, &struct {
		FileID string `json:"fileId"`
	}{})
}

// ListParts calls b2_list_parts.
func (c *Client) ListParts(ctx context.Context, apiURL, authToken, fileID string, startPartNumber *int, maxPartCount int) (*ListPartsResponse, error) {
	body := map[string]any{"fileId": fileID}
	if startPartNumber != nil {
		body["startPartNumber"] = *startPartNumber
	}

	if maxPartCount > 0 {
		body["maxPartCount"] = maxPartCount
	}

	var out ListPartsResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_list_parts", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListUnfinishedLargeFiles calls b2_list_unfinished_large_files.
func (c *Client) ListUnfinishedLargeFiles(ctx context.Context, apiURL, authToken, bucketID string, startFileID *string, maxFileCount int) (*ListUnfinishedLargeFilesResponse, error) {
	body := map[string]any{"bucketId": bucketID}
	if startFileID != nil {
		body["startFileId"] = *startFileID
	}

	if maxFileCount > 0 {
		body["maxFileCount"] = maxFileCount
	}

	var out ListUnfinishedLargeFilesResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_list_unfinished_large_files", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// CopyFile calls b2_copy_file. rng, when non-nil, copies only that
// (inclusive) byte range; it is sent with whatever metadataDirective the
// caller passes.
func (c *Client) CopyFile(ctx context.Context, apiURL, authToken, sourceFileID, fileName string, rng *CopyRange, destinationBucketID, metadataDirective, contentType string, fileInfo map[string]string) (*FileVersion, error) {
	body := map[string]any{
		"sourceFileId": sourceFileID,
		"fileName":     fileName,
	}
	if destinationBucketID != "" {
		body["destinationBucketId"] = destinationBucketID
	}

	if metadataDirective != "" {
		body["metadataDirective"] = metadataDirective
	}

	if contentType != "" {
		body["contentType"] = contentType
	}

	if fileInfo != nil {
		body["fileInfo"] = fileInfo
	}

	if rng != nil {
		body["range"] = formatRange(*rng)
	}

	var out FileVersion
	if err := c.postJSONTimeout(ctx, apiURL, "/b2api/v4/b2_copy_file", authToken, body, &out, CopyReadTimeout); err != nil {
		return nil, err
	}

	return &out, nil
}

// CopyPart calls b2_copy_part.
func (c *Client) CopyPart(ctx context.Context, apiURL, authToken, sourceFileID, largeFileID string, partNumber int, rng CopyRange) (*Part, error) {
	body := map[string]any{
		"sourceFileId":  sourceFileID,
		"largeFileId":   largeFileID,
		"partNumber":    partNumber,
		"range":         formatRange(rng),
	}

	var out Part
	if err := c.postJSONTimeout(ctx, apiURL, "/b2api/v4/b2_copy_part", authToken, body, &out, CopyReadTimeout); err != nil {
		return nil, err
	}

	return &out, nil
}

// DownloadFileByID streams a GET to b2_download_file_by_id. The caller owns
// closing the returned body. rng, when non-nil, sets a Range header.
func (c *Client) DownloadFileByID(ctx context.Context, downloadURL, authToken, fileID string, rng *CopyRange) (*http.Response, *DownloadInfo, error) {
	u := downloadURL + "/b2api/v4/b2_download_file_by_id?fileId=" + url.QueryEscape(fileID)
	return c.doDownload(ctx, u, authToken, rng)
}

// DownloadFileByName streams a GET to bucketName/fileName under downloadURL.
func (c *Client) DownloadFileByName(ctx context.Context, downloadURL, authToken, bucketName, fileName string, rng *CopyRange) (*http.Response, *DownloadInfo, error) {
	u := downloadURL + "/file/" + url.PathEscape(bucketName) + "/" + escapeFilePath(fileName)
	return c.doDownload(ctx, u, authToken, rng)
}

// ListFileNames calls b2_list_file_names.
func (c *Client) ListFileNames(ctx context.Context, apiURL, authToken, bucketID string, startFileName *string, maxFileCount int, prefix, delimiter string) (*ListFileNamesResponse, error) {
	body := map[string]any{"bucketId": bucketID}
	if startFileName != nil {
		body["startFileName"] = *startFileName
	}

	if maxFileCount > 0 {
		body["maxFileCount"] = maxFileCount
	}

	if prefix != "" {
		body["prefix"] = prefix
	}

	if delimiter != "" {
		body["delimiter"] = delimiter
	}

	var out ListFileNamesResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_list_file_names", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ListFileVersions calls b2_list_file_versions.
func (c *Client) ListFileVersions(ctx context.Context, apiURL, authToken, bucketID string, startFileName, startFileID *string, maxFileCount int, prefix, delimiter string) (*ListFileVersionsResponse, error) {
	body := map[string]any{"bucketId": bucketID}
	if startFileName != nil {
		body["startFileName"] = *startFileName
	}

	if startFileID != nil {
		body["startFileId"] = *startFileID
	}

	if maxFileCount > 0 {
		body["maxFileCount"] = maxFileCount
	}

	if prefix != "" {
		body["prefix"] = prefix
	}

	if delimiter != "" {
		body["delimiter"] = delimiter
	}

	var out ListFileVersionsResponse
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_list_file_versions", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// HideFile calls b2_hide_file.
func (c *Client) HideFile(ctx context.Context, apiURL, authToken, bucketID, fileName string) (*FileVersion, error) {
	var out FileVersion
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_hide_file", authToken, map[string]any{"bucketId": bucketID, "fileName": fileName}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeleteFileVersion calls b2_delete_file_version.
func (c *Client) DeleteFileVersion(ctx context.Context, apiURL, authToken, fileName, fileID string) error {
	body := map[string]any{"fileName": fileName, "fileId": fileID}
	return c.postJSON(ctx, apiURL, "/b2api/v4/b2_delete_file_version", authToken, body, &FileVersion{})
}

// GetFileInfo calls b2_get_file_info.
func (c *Client) GetFileInfo(ctx context.Context, apiURL, authToken, fileID string) (*FileVersion, error) {
	var out FileVersion
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_get_file_info", authToken, map[string]any{"fileId": fileID}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateFileRetention calls b2_update_file_retention.
func (c *Client) UpdateFileRetention(ctx context.Context, apiURL, authToken, fileName, fileID string, retention FileRetention, bypassGovernance bool) (*FileVersion, error) {
	body := map[string]any{
		"fileName":                   fileName,
		"fileId":                     fileID,
		"fileRetention":              retention,
		"bypassGovernance":           bypassGovernance,
	}

	var out FileVersion
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_update_file_retention", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// UpdateFileLegalHold calls b2_update_file_legal_hold.
func (c *Client) UpdateFileLegalHold(ctx context.Context, apiURL, authToken, fileName, fileID string, legalHold LegalHold) (*FileVersion, error) {
	body := map[string]any{"fileName": fileName, "fileId": fileID, "legalHold": legalHold.Value}

	var out FileVersion
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_update_file_legal_hold", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ReplicationConfigurationUpdate submits a bucket's replication
// configuration verbatim. spec.md §9 Non-goals excludes orchestrating
// replication beyond payload submission, so raw is passed through untouched.
func (c *Client) ReplicationConfigurationUpdate(ctx context.Context, apiURL, authToken, accountID, bucketID string, raw json.RawMessage) (*Bucket, error) {
	body := map[string]any{
		"accountId":               accountID,
		"bucketId":                bucketID,
		"replicationConfiguration": json.RawMessage(raw),
	}

	var out Bucket
	if err := c.postJSON(ctx, apiURL, "/b2api/v4/b2_update_bucket", authToken, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// SHA1Hex computes the hex-encoded SHA-1 digest of p, used by callers
// assembling the hash-at-end upload protocol trailer.
func SHA1Hex(p []byte) string {
	sum := sha1.Sum(p) //nolint:gosec // mandated by B2 wire protocol
	return hex.EncodeToString(sum[:])
}

func formatRange(r CopyRange) string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

func setFileInfoHeaders(h http.Header, fileInfo map[string]string) {
	for k, v := range fileInfo {
		h.Set("X-Bz-Info-"+url.PathEscape(k), url.PathEscape(v))
	}
}

// escapeFilePath percent-encodes a file name for use in a download-by-name
// URL path, preserving literal "/" separators the way B2 expects.
func escapeFilePath(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

func (c *Client) postJSON(ctx context.Context, apiURL, path, authToken string, body any, out any) error {
	return c.postJSONTimeout(ctx, apiURL, path, authToken, body, out, DefaultReadTimeout)
}

func (c *Client) postJSONTimeout(ctx context.Context, apiURL, path, authToken string, body any, out any, _ time.Duration) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("b2api: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("b2api: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", authToken)
	}

	return c.doJSON(ctx, req, false, out)
}

// doJSON executes req once (no retry — that is C6's job) and decodes a JSON
// response body into out. uploadPath tags the resulting *Error so Classify
// applies the upload-specific 408 variant.
func (c *Client) doJSON(ctx context.Context, req *http.Request, uploadPath bool, out any) error {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("transport error", slog.String("url", req.URL.String()), slog.String("error", err.Error()))
		return ClassifyTransport(strings.ToLower(err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyTransport(strings.ToLower(err.Error()))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return Classify(0, "", "bad json", resp.Header, uploadPath)
		}

		return nil
	}

	var env errEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Classify(resp.StatusCode, "", string(raw), resp.Header, uploadPath)
	}

	apiErr := Classify(resp.StatusCode, env.Code, env.Message, resp.Header, uploadPath)
	c.logger.Debug("b2 api error",
		slog.Int("status", apiErr.Status),
		slog.String("code", apiErr.Code),
		slog.String("kind", apiErr.Kind.prefix()))

	return apiErr
}

// doDownload issues a GET against a download endpoint and returns the raw
// response plus parsed DownloadInfo headers. On a 2xx status the caller must
// close the returned response body; on any other status the (JSON) error
// body is drained and closed here and a nil response is returned with the
// classified error.
func (c *Client) doDownload(ctx context.Context, rawURL, authToken string, rng *CopyRange) (*http.Response, *DownloadInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("b2api: build download request: %w", err)
	}

	if authToken != "" {
		req.Header.Set("Authorization", authToken)
	}

	if rng != nil {
		req.Header.Set("Range", formatRange(*rng))
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, ClassifyTransport(strings.ToLower(err.Error()))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, parseDownloadInfo(resp), nil
	}

	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var env errEnvelope
	_ = json.Unmarshal(raw, &env)

	return nil, nil, Classify(resp.StatusCode, env.Code, env.Message, resp.Header, false)
}

func parseDownloadInfo(resp *http.Response) *DownloadInfo {
	info := &DownloadInfo{
		FileID:        resp.Header.Get("X-Bz-File-Id"),
		FileName:      resp.Header.Get("X-Bz-File-Name"),
		ContentSha1:   resp.Header.Get("X-Bz-Content-Sha1"),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentRange:  resp.Header.Get("Content-Range"),
		ContentLength: resp.ContentLength,
		FileInfo:      map[string]string{},
	}

	if ts, err := strconv.ParseInt(resp.Header.Get("X-Bz-Upload-Timestamp"), 10, 64); err == nil {
		info.UploadTimestamp = time.UnixMilli(ts)
	}

	const infoPrefix = "X-Bz-Info-"
	for k, v := range resp.Header {
		if strings.HasPrefix(k, infoPrefix) && len(v) > 0 {
			key := strings.TrimPrefix(k, infoPrefix)
			if unescaped, err := url.PathUnescape(v[0]); err == nil {
				info.FileInfo[key] = unescaped
			} else {
				info.FileInfo[key] = v[0]
			}
		}
	}

	return info
}
