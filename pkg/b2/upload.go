package b2

import (
	"context"
	"io"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/emerge"
	"github.com/cloudbin/b2sdk-go/internal/retry"
)

// UploadRequest describes one file to upload. Open must return a fresh
// reader over exactly Length bytes on every call — the Emerge Executor may
// retry a part, and a multi-part plan opens the source once per part.
type UploadRequest struct {
	BucketID    string
	FileName    string
	ContentType string
	FileInfo    map[string]string

	Open   func(ctx context.Context) (io.ReadCloser, error)
	Length int64
	SHA1   string // optional precomputed digest; empty means "compute while streaming"

	// ExplicitResumeFileID resumes a previously started large-file upload
	// by id, per spec.md §4.8(a).
	ExplicitResumeFileID string
}

// UploadFile plans and executes an upload, choosing between a single
// b2_upload_file call and a resumable large-file session according to the
// account's part-size configuration — spec.md §4.7/§4.8, components C8-C11.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (*b2api.FileVersion, error) {
	intents := []emerge.WriteIntent{
		{
			DestinationOffset: 0,
			Length:            req.Length,
			Upload: &emerge.UploadSource{
				Open:   req.Open,
				Length: req.Length,
				SHA1:   req.SHA1,
			},
		},
	}

	plan, err := c.planner.Plan(intents, c.cfg.Transfers.ToEmergeConfig())
	if err != nil {
		return nil, err
	}

	allowed, err := c.session.AllowedInfo()
	if err != nil {
		return nil, err
	}

	execReq := emerge.Request{
		BucketID:             req.BucketID,
		FileName:             req.FileName,
		ContentType:          req.ContentType,
		FileInfo:             req.FileInfo,
		ExplicitResumeFileID: req.ExplicitResumeFileID,
		CanListFiles:         hasCapability(allowed.Capabilities, "listFiles"),
	}

	return c.executor.Execute(ctx, c.session, plan, execReq, retry.IsRetryableUpload)
}

func hasCapability(caps []string, name string) bool {
	for _, c := range caps {
		if c == name {
			return true
		}
	}

	return false
}
