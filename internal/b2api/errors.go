package b2api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failed B2 API call. Kind is not itself an error: use
// errors.As to obtain the *Error and switch on its Kind field.
type Kind int

// Kind values mirror the mapping table in spec.md §4.2. Ordering is
// insignificant; values are stable within a build but not across versions.
const (
	KindUnknown Kind = iota
	KindBadJSON
	KindFileAlreadyHidden
	KindFileNotPresent
	KindDuplicateBucketName
	KindMissingPart
	KindPartSha1Mismatch
	KindBucketIDNotFound
	KindUploadTokenUsedConcurrently
	KindInvalidAuthToken
	KindUnauthorized
	KindCapExceeded
	KindAccessDenied
	KindResourceNotFound
	KindRequestTimeout
	KindRequestTimeoutDuringUpload
	KindConflict
	KindUnsatisfiableRange
	KindTooManyRequests
	KindServiceError
	KindConnectionReset
	KindBrokenPipe
	KindUnknownHost
	KindPotentialS3Endpoint
	KindClockSkew
	KindBadRequest
)

// Error is the typed error returned by every internal/b2api call. It carries
// the raw status/code/message from the service plus the two retryability
// flags and optional Retry-After hint the retry driver (internal/retry)
// consumes — see spec.md §4.2/§4.3.
type Error struct {
	Kind            Kind
	Status          int
	Code            string
	Message         string
	RetryableHTTP   bool
	RetryableUpload bool
	RetryAfter      *time.Duration

	// Allowed is populated by the session layer (C7) on Unauthorized/
	// AccessDenied so the caller can see why the application key could not
	// perform the action (spec.md §4.4).
	Allowed *AllowedDescriptor
}

func (e *Error) Error() string {
	prefix := e.Kind.prefix()
	if e.Code != "" {
		return fmt.Sprintf("b2: %s (status=%d code=%s): %s", prefix, e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("b2: %s (status=%d): %s", prefix, e.Status, e.Message)
}

// prefix returns the human-readable label used in Error() and surfaced to
// callers, per spec.md §7 "every error carries a human-readable prefix".
func (k Kind) prefix() string {
	switch k {
	case KindBadJSON:
		return "bad json"
	case KindFileAlreadyHidden:
		return "file already hidden"
	case KindFileNotPresent:
		return "file not present"
	case KindDuplicateBucketName:
		return "duplicate bucket name"
	case KindMissingPart:
		return "missing part"
	case KindPartSha1Mismatch:
		return "part sha1 mismatch"
	case KindBucketIDNotFound:
		return "bucket id not found"
	case KindUploadTokenUsedConcurrently:
		return "upload token used concurrently"
	case KindInvalidAuthToken:
		return "invalid auth token"
	case KindUnauthorized:
		return "unauthorized"
	case KindCapExceeded:
		return "cap exceeded"
	case KindAccessDenied:
		return "access denied"
	case KindResourceNotFound:
		return "resource not found"
	case KindRequestTimeout:
		return "request timeout"
	case KindRequestTimeoutDuringUpload:
		return "request timeout during upload"
	case KindConflict:
		return "conflict"
	case KindUnsatisfiableRange:
		return "unsatisfiable range"
	case KindTooManyRequests:
		return "too many requests"
	case KindServiceError:
		return "service error"
	case KindConnectionReset:
		return "connection reset"
	case KindBrokenPipe:
		return "broken pipe"
	case KindUnknownHost:
		return "unknown host"
	case KindPotentialS3Endpoint:
		return "potential s3 endpoint passed as realm"
	case KindClockSkew:
		return "clock skew"
	case KindBadRequest:
		return "bad request"
	default:
		return "unknown error"
	}
}

// AllowedDescriptor mirrors the capability/bucket/prefix restriction carried
// by an authorized application key (spec.md §3 "allowed descriptor").
type AllowedDescriptor struct {
	Capabilities []string
	BucketID     string
	BucketName   string
	NamePrefix   string
}

// errEnvelope is the JSON shape of a B2 error response body:
// {"status": 400, "code": "bad_request", "message": "..."}.
type errEnvelope struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Classify converts a (status, code, message, headers) tuple into a typed
// *Error per the mapping table in spec.md §4.2. uploadPath indicates whether
// the call was an upload-endpoint call; it only selects the 408
// RequestTimeoutDuringUpload variant over RequestTimeout.
func Classify(status int, code, message string, headers http.Header, uploadPath bool) *Error {
	e := &Error{Status: status, Code: code, Message: message}

	switch {
	case status == http.StatusBadRequest:
		classifyBadRequest(e, code, message)
	case status == http.StatusUnauthorized:
		classifyUnauthorized(e, code)
	case status == http.StatusForbidden:
		classifyForbidden(e, code)
	case status == http.StatusNotFound:
		e.Kind = KindResourceNotFound
	case status == http.StatusRequestTimeout:
		classifyTimeout(e, uploadPath)
	case status == http.StatusConflict:
		e.Kind = KindConflict
	case status == http.StatusRequestedRangeNotSatisfiable:
		e.Kind = KindUnsatisfiableRange
	case status == http.StatusTooManyRequests:
		e.Kind = KindTooManyRequests
		e.RetryableHTTP = true
		e.RetryableUpload = true
		e.RetryAfter = retryAfter(headers)
	case status >= 500 && status <= 599:
		e.Kind = KindServiceError
		e.RetryableHTTP = true
		e.RetryableUpload = true
	default:
		e.Kind = KindUnknown
	}

	return e
}

func classifyBadRequest(e *Error, code, message string) {
	switch code {
	case "bad_json":
		e.Kind = KindBadJSON
	case "already_hidden":
		e.Kind = KindFileAlreadyHidden
	case "no_such_file", "file_not_present":
		e.Kind = KindFileNotPresent
	case "duplicate_bucket_name":
		e.Kind = KindDuplicateBucketName
	case "missing_part":
		e.Kind = KindMissingPart
	case "part_sha1_mismatch":
		e.Kind = KindPartSha1Mismatch
	case "bad_bucket_id":
		e.Kind = KindBucketIDNotFound
	case "bad_request":
		if strings.Contains(message, "more than one upload using auth token") {
			e.Kind = KindUploadTokenUsedConcurrently
			e.RetryableHTTP = true
			e.RetryableUpload = true

			return
		}

		e.Kind = KindBadRequest
	default:
		e.Kind = KindBadRequest
	}
}

func classifyUnauthorized(e *Error, code string) {
	switch code {
	case "bad_auth_token", "expired_auth_token":
		e.Kind = KindInvalidAuthToken
		e.RetryableUpload = true
	default:
		e.Kind = KindUnauthorized
		e.RetryableUpload = true
	}
}

func classifyForbidden(e *Error, code string) {
	switch code {
	case "storage_cap_exceeded", "transaction_cap_exceeded":
		e.Kind = KindCapExceeded
	case "access_denied":
		e.Kind = KindAccessDenied
	default:
		e.Kind = KindAccessDenied
	}
}

func classifyTimeout(e *Error, uploadPath bool) {
	e.RetryableHTTP = true
	e.RetryableUpload = true

	if uploadPath {
		e.Kind = KindRequestTimeoutDuringUpload
	} else {
		e.Kind = KindRequestTimeout
	}
}

// retryAfter parses a Retry-After header expressed in seconds, per spec.md
// §4.2's 429 row. Returns nil if absent or unparseable.
func retryAfter(headers http.Header) *time.Duration {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return nil
	}

	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return nil
	}

	d := time.Duration(secs) * time.Second

	return &d
}

// ClassifyTransport converts a transport-level failure (connection reset,
// broken pipe, DNS failure) observed by internal/b2api's HTTP layer into a
// typed *Error. errText is the lowercase rendering of the underlying error.
func ClassifyTransport(errText string) *Error {
	e := &Error{RetryableHTTP: true, RetryableUpload: true}

	switch {
	case strings.Contains(errText, "connection reset"):
		e.Kind = KindConnectionReset
	case strings.Contains(errText, "broken pipe"):
		e.Kind = KindBrokenPipe
	case strings.Contains(errText, "no such host") || strings.Contains(errText, "dns"):
		e.Kind = KindUnknownHost
	default:
		e.Kind = KindUnknown
	}

	e.Message = errText

	return e
}

// NewClockSkew builds the ClockSkew error raised when the server Date header
// differs from local UTC by more than 10 minutes (spec.md §4.2, §6).
func NewClockSkew(serverTime, localTime time.Time) *Error {
	return &Error{
		Kind: KindClockSkew,
		Message: fmt.Sprintf(
			"server date %s differs from local time %s by more than 10 minutes",
			serverTime.Format(time.RFC3339), localTime.Format(time.RFC3339)),
	}
}

// NewPotentialS3Endpoint builds the error raised when a non-JSON response is
// received from a host beginning with "s3." (spec.md §4.2).
func NewPotentialS3Endpoint(host string) *Error {
	return &Error{
		Kind:    KindPotentialS3Endpoint,
		Message: fmt.Sprintf("host %q looks like an S3 endpoint, not a B2 realm", host),
	}
}
