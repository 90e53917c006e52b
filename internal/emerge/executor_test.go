package emerge

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbin/b2sdk-go/internal/retry"
	"github.com/cloudbin/b2sdk-go/internal/session"
)

func planFor(t *testing.T, data []byte, cfg Config) *Plan {
	t.Helper()

	p := NewPlanner(nil)

	intents := []WriteIntent{{
		DestinationOffset: 0,
		Length:            int64(len(data)),
		Upload:            &UploadSource{Length: int64(len(data)), Open: func(ctx context.Context) (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }},
	}}

	plan, err := p.Plan(intents, cfg)
	require.NoError(t, err)

	return plan
}

func TestExecutor_SinglePartUpload_NoLargeFileSession(t *testing.T) {
	sim := session.NewSimOperations()
	e := NewExecutor(nil)

	data := []byte("small file contents")
	plan := planFor(t, data, Config{MinPartSize: 5_000_000, RecommendedPartSize: 100_000_000, MaxPartSize: 5_000_000_000})
	require.True(t, plan.IsSinglePart())

	fv, err := e.Execute(context.Background(), sim, plan, Request{BucketID: "b1", FileName: "small.txt", ContentType: "text/plain"}, retry.IsRetryableUpload)
	require.NoError(t, err)
	assert.Equal(t, "small.txt", fv.FileName)
	assert.NotEmpty(t, fv.ContentSha1)
}

func TestExecutor_MultiPartUpload_FinishesWithAllPartShas(t *testing.T) {
	sim := session.NewSimOperations()
	e := NewExecutor(nil)

	data := bytes.Repeat([]byte("x"), 250)
	cfg := Config{MinPartSize: 10, RecommendedPartSize: 100, MaxPartSize: 1000}
	plan := planFor(t, data, cfg)
	require.False(t, plan.IsSinglePart())
	require.NotEmpty(t, plan.PlanID)

	fv, err := e.Execute(context.Background(), sim, plan, Request{BucketID: "b1", FileName: "large.bin", ContentType: "application/octet-stream", CanListFiles: true}, retry.IsRetryableUpload)
	require.NoError(t, err)
	assert.Equal(t, "large.bin", fv.FileName)
}

func TestExecutor_TooLargePlan_RejectedBeforeAnyCall(t *testing.T) {
	sim := session.NewSimOperations()
	e := NewExecutor(nil)

	plan := &Plan{
		TotalLength: maxLargeFileSize + 1,
		Parts:       []Part{UploadPart{PartNumber: 1, Source: UploadSource{Length: 1}}, UploadPart{PartNumber: 2, Source: UploadSource{Length: 1}}},
		PlanID:      "does-not-matter",
	}

	_, err := e.Execute(context.Background(), sim, plan, Request{BucketID: "b1", FileName: "huge.bin"}, retry.IsRetryableUpload)
	require.ErrorIs(t, err, ErrLargeFileTooBig)
}

func TestExecutor_ResumeByPlanID_SkipsAlreadyUploadedParts(t *testing.T) {
	sim := session.NewSimOperations()
	e := NewExecutor(nil)

	data := bytes.Repeat([]byte("y"), 250)
	cfg := Config{MinPartSize: 10, RecommendedPartSize: 100, MaxPartSize: 1000}
	plan := planFor(t, data, cfg)
	require.False(t, plan.IsSinglePart())

	req := Request{BucketID: "b1", FileName: "resumable.bin", CanListFiles: true}

	// Start the session and upload only the first part directly against
	// SimOperations, simulating a process that crashed after part 1.
	fv, err := sim.StartLargeFile(context.Background(), req.BucketID, req.FileName, req.ContentType, mergeFileInfo(req.FileInfo, planIDInfoKey, plan.PlanID))
	require.NoError(t, err)

	first := plan.Parts[0].(UploadPart)
	rc, err := first.Source.Open(context.Background())
	require.NoError(t, err)

	hr := newHashingReader(rc)
	_, err = sim.UploadPart(context.Background(), fv.FileID, first.PartNumber, first.Source.Length+40, hashAtEndSentinel, hr)
	require.NoError(t, err)

	out, err := e.Execute(context.Background(), sim, plan, req, retry.IsRetryableUpload)
	require.NoError(t, err)
	assert.Equal(t, req.FileName, out.FileName)
}
