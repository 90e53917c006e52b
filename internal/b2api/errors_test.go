package b2api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_BadRequestCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code string
		want Kind
	}{
		{"bad_json", KindBadJSON},
		{"already_hidden", KindFileAlreadyHidden},
		{"no_such_file", KindFileNotPresent},
		{"file_not_present", KindFileNotPresent},
		{"duplicate_bucket_name", KindDuplicateBucketName},
		{"missing_part", KindMissingPart},
		{"part_sha1_mismatch", KindPartSha1Mismatch},
		{"bad_bucket_id", KindBucketIDNotFound},
	}

	for _, tc := range cases {
		e := Classify(http.StatusBadRequest, tc.code, "details", http.Header{}, false)
		assert.Equal(t, tc.want, e.Kind, "code=%s", tc.code)
		assert.False(t, e.RetryableHTTP)
	}
}

func TestClassify_UploadTokenUsedConcurrentlyIsRetryable(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusBadRequest, "bad_request", "more than one upload using auth token at once", http.Header{}, true)

	assert.Equal(t, KindUploadTokenUsedConcurrently, e.Kind)
	assert.True(t, e.RetryableHTTP)
	assert.True(t, e.RetryableUpload)
}

func TestClassify_InvalidAuthToken(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusUnauthorized, "expired_auth_token", "token expired", http.Header{}, false)

	assert.Equal(t, KindInvalidAuthToken, e.Kind)
	assert.True(t, e.RetryableUpload)
}

func TestClassify_UnauthorizedOther(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusUnauthorized, "unauthorized", "no go", http.Header{}, false)

	assert.Equal(t, KindUnauthorized, e.Kind)
	assert.False(t, e.RetryableHTTP)
}

func TestClassify_CapExceeded(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusForbidden, "storage_cap_exceeded", "cap", http.Header{}, false)
	assert.Equal(t, KindCapExceeded, e.Kind)
}

func TestClassify_NotFound(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusNotFound, "", "", http.Header{}, false)
	assert.Equal(t, KindResourceNotFound, e.Kind)
}

func TestClassify_RequestTimeoutVariants(t *testing.T) {
	t.Parallel()

	metadataTimeout := Classify(http.StatusRequestTimeout, "", "", http.Header{}, false)
	assert.Equal(t, KindRequestTimeout, metadataTimeout.Kind)

	uploadTimeout := Classify(http.StatusRequestTimeout, "", "", http.Header{}, true)
	assert.Equal(t, KindRequestTimeoutDuringUpload, uploadTimeout.Kind)
	assert.True(t, uploadTimeout.RetryableUpload)
}

func TestClassify_TooManyRequestsParsesRetryAfter(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "7")

	e := Classify(http.StatusTooManyRequests, "", "", h, false)

	require.NotNil(t, e.RetryAfter)
	assert.Equal(t, 7*time.Second, *e.RetryAfter)
}

func TestClassify_TooManyRequestsMalformedRetryAfter(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "not-a-number")

	e := Classify(http.StatusTooManyRequests, "", "", h, false)

	assert.Nil(t, e.RetryAfter)
	assert.True(t, e.RetryableHTTP)
}

func TestClassify_ServiceError(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusInternalServerError, "", "", http.Header{}, false)
	assert.Equal(t, KindServiceError, e.Kind)
	assert.True(t, e.RetryableHTTP)
}

func TestClassify_UnsatisfiableRange(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable", "", http.Header{}, false)
	assert.Equal(t, KindUnsatisfiableRange, e.Kind)
	assert.False(t, e.RetryableHTTP)
}

func TestClassifyTransport(t *testing.T) {
	t.Parallel()

	e := ClassifyTransport("read tcp: connection reset by peer")
	assert.Equal(t, KindConnectionReset, e.Kind)
	assert.True(t, e.RetryableHTTP)
}

func TestError_ErrorStringIncludesCodeAndStatus(t *testing.T) {
	t.Parallel()

	e := Classify(http.StatusBadRequest, "bad_json", "oops", http.Header{}, false)
	msg := e.Error()

	assert.Contains(t, msg, "400")
	assert.Contains(t, msg, "bad_json")
	assert.Contains(t, msg, "bad json")
}
