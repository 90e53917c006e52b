package emerge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/download"
)

// maxLargeFileSize is spec.md §4.8's fast-fail ceiling: 10 x 10^12 bytes.
const maxLargeFileSize = 10_000_000_000_000

// ErrLargeFileTooBig is returned when a plan's total length exceeds
// maxLargeFileSize.
var ErrLargeFileTooBig = errors.New("emerge: total length exceeds the maximum large file size")

// sessionExecutor is the subset of session.Operations the Emerge Executor
// calls directly, beyond what UploadManager/CopyManager already need: the
// large-file lifecycle calls, resume-search listings, and a download used
// only to resolve a demoted small-copy subpart's bytes before re-uploading
// them (spec.md §4.7's "demoted to a subpart (download-then-upload)").
type sessionExecutor interface {
	sessionUploader
	sessionCopier

	StartLargeFile(ctx context.Context, bucketID, fileName, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error)
	FinishLargeFile(ctx context.Context, fileID string, partSha1Array []string) (*b2api.FileVersion, error)
	CancelLargeFile(ctx context.Context, fileID string) error
	ListParts(ctx context.Context, fileID string, startPartNumber *int, maxPartCount int) (*b2api.ListPartsResponse, error)
	ListUnfinishedLargeFiles(ctx context.Context, bucketID string, startFileID *string, maxFileCount int) (*b2api.ListUnfinishedLargeFilesResponse, error)
	DownloadFileByID(ctx context.Context, fileID string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error)
	DownloadFileByName(ctx context.Context, bucketName, fileName string, rng *b2api.CopyRange) (io.ReadCloser, *b2api.DownloadInfo, error)
	GetFileInfo(ctx context.Context, fileID string) (*b2api.FileVersion, error)
}

const defaultMaxConcurrentParts = 10

// Request bundles a computed Plan with the destination and metadata needed
// to execute it.
type Request struct {
	BucketID    string
	FileName    string
	ContentType string
	FileInfo    map[string]string

	// ExplicitResumeFileID, if set, is tried first per spec.md §4.8(a).
	ExplicitResumeFileID string

	// MaxConcurrentParts bounds the executor's worker pool (spec.md §4.8's
	// counting-semaphore-admitted max_queue_size). Defaults to 10.
	MaxConcurrentParts int

	// CanListFiles gates resume search: all resume tiers require the
	// listFiles capability; its absence silently disables resume rather
	// than failing (spec.md §4.8).
	CanListFiles bool
}

// Executor is the C11 component: resumes or starts a large-file session,
// dispatches part uploads/copies through a bounded worker pool, and
// finishes the session once every part has a confirmed SHA-1.
type Executor struct {
	log     *slog.Logger
	upload  *UploadManager
	copyMgr *CopyManager
}

// NewExecutor builds an Executor. log may be nil.
func NewExecutor(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}

	return &Executor{log: log, upload: NewUploadManager(log), copyMgr: NewCopyManager()}
}

// Execute runs plan against s: for a single-part plan, a direct upload or
// copy with no large-file session; for a multi-part plan, the full
// resume-or-start + bounded-parallel-parts + finish protocol of spec.md
// §4.8.
func (e *Executor) Execute(ctx context.Context, s sessionExecutor, plan *Plan, req Request, isRetryable func(error) bool) (*b2api.FileVersion, error) {
	if plan.IsSinglePart() {
		return e.executeSinglePart(ctx, s, plan, req, isRetryable)
	}

	if plan.TotalLength > maxLargeFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrLargeFileTooBig, plan.TotalLength)
	}

	return e.executeMultiPart(ctx, s, plan, req, isRetryable)
}

func (e *Executor) executeSinglePart(ctx context.Context, s sessionExecutor, plan *Plan, req Request, isRetryable func(error) bool) (*b2api.FileVersion, error) {
	if len(plan.Parts) == 0 {
		return nil, fmt.Errorf("emerge: empty plan has nothing to execute")
	}

	switch p := plan.Parts[0].(type) {
	case UploadPart:
		return e.upload.UploadSmallFile(ctx, s, req.BucketID, req.FileName, req.ContentType, req.FileInfo, p.Source, isRetryable)
	case CopyPart:
		directive := MetadataCopy
		if req.ContentType != "" || len(req.FileInfo) > 0 {
			directive = MetadataReplace
		}

		return e.copyMgr.CopyFile(ctx, s, CopyFileRequest{
			SourceFileID:        p.Source.SourceFileID,
			DestinationFileName: req.FileName,
			Range:               &CopySource{SourceFileID: p.Source.SourceFileID, Start: p.Source.Start, End: p.Source.End},
			SourceLengthKnown:   true,
			DestinationBucketID: req.BucketID,
			Directive:           directive,
			ContentType:         req.ContentType,
			FileInfo:            req.FileInfo,
		})
	default:
		return nil, fmt.Errorf("emerge: single-part plan with unsupported part kind %T", p)
	}
}

func (e *Executor) executeMultiPart(ctx context.Context, s sessionExecutor, plan *Plan, req Request, isRetryable func(error) bool) (*b2api.FileVersion, error) {
	maxConcurrent := req.MaxConcurrentParts
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentParts
	}

	largeFileID, alreadyDone, err := e.resumeOrStart(ctx, s, plan, req)
	if err != nil {
		return nil, err
	}

	shared := NewSharedLargeFileState(largeFileID)
	shas := make([]string, len(plan.Parts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrent)

	for i, part := range plan.Parts {
		i, part := i, part

		if known, ok := alreadyDone[part.partNumber()]; ok {
			shas[i] = known
			continue
		}

		group.Go(func() error {
			sha, err := e.executePart(groupCtx, s, shared, part, isRetryable)
			if err != nil {
				return err
			}

			shas[i] = sha

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return s.FinishLargeFile(ctx, largeFileID, shas)
}

// executePart uploads or copies one part and returns its confirmed SHA-1.
// SubpartsPart bytes are concatenated locally into a single buffered
// upload, per spec.md §4.7 ("mixed or multi-source buffers become
// SubpartsPart"), downloading any copy subpart's bytes first.
func (e *Executor) executePart(ctx context.Context, s sessionExecutor, shared *SharedLargeFileState, part Part, isRetryable func(error) bool) (string, error) {
	switch p := part.(type) {
	case UploadPart:
		got, err := e.upload.UploadPartOf(ctx, s, shared, p.PartNumber, p.Source, isRetryable)
		if err != nil {
			return "", err
		}

		return got.ContentSha1, nil
	case CopyPart:
		got, err := e.copyMgr.CopyPart(ctx, s, shared.largeFileID, p.PartNumber, p.Source)
		if err != nil {
			return "", err
		}

		return got.ContentSha1, nil
	case SubpartsPart:
		src := subpartsUploadSource(s, p)

		got, err := e.upload.UploadPartOf(ctx, s, shared, p.PartNumber, src, isRetryable)
		if err != nil {
			return "", err
		}

		return got.ContentSha1, nil
	default:
		return "", fmt.Errorf("emerge: unsupported part kind %T", p)
	}
}

// subpartsUploadSource builds an UploadSource whose Open streams each of a
// SubpartsPart's subparts in order: upload subparts stream straight from
// their own Open, copy subparts are fetched via DownloadFileByID — spec.md
// §4.7's demoted-small-copy case.
func subpartsUploadSource(s sessionExecutor, p SubpartsPart) UploadSource {
	var length int64
	for _, sp := range p.Subparts {
		length += sp.Length
	}

	return UploadSource{
		Length: length,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return newSubpartsReader(ctx, s, p.Subparts), nil
		},
	}
}

// subpartsReader lazily opens each subpart in turn, presenting their
// concatenation as a single io.ReadCloser.
type subpartsReader struct {
	ctx      context.Context
	s        sessionExecutor
	subparts []WriteIntent
	idx      int
	current  io.ReadCloser
}

func newSubpartsReader(ctx context.Context, s sessionExecutor, subparts []WriteIntent) *subpartsReader {
	return &subpartsReader{ctx: ctx, s: s, subparts: subparts}
}

func (r *subpartsReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.idx >= len(r.subparts) {
				return 0, io.EOF
			}

			rc, err := r.openSubpart(r.subparts[r.idx])
			if err != nil {
				return 0, err
			}

			r.current = rc
			r.idx++
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil

			if n > 0 {
				return n, nil
			}

			continue
		}

		return n, err
	}
}

func (r *subpartsReader) openSubpart(w WriteIntent) (io.ReadCloser, error) {
	if w.Upload != nil {
		return w.Upload.Open(r.ctx)
	}

	body, err := download.FetchRange(r.ctx, r.s, download.Request{FileID: w.Copy.SourceFileID}, w.Copy.Start, w.Copy.End-1)
	if err != nil {
		return nil, fmt.Errorf("emerge: fetching demoted copy subpart: %w", err)
	}

	return body, nil
}

func (r *subpartsReader) Close() error {
	if r.current != nil {
		return r.current.Close()
	}

	return nil
}
