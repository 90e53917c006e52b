package emerge

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// ErrOffsetWithoutLength is spec.md §4.6's "reject a non-zero offset with
// unknown length": the caller must resolve the source's length before
// requesting a copy that doesn't start at byte 0.
var ErrOffsetWithoutLength = errors.New("emerge: non-zero copy offset requires a known source length")

// MetadataDirective selects whether a copy carries over the source's
// metadata unchanged or replaces it, per spec.md §4.6.
type MetadataDirective string

const (
	MetadataCopy    MetadataDirective = "COPY"
	MetadataReplace MetadataDirective = "REPLACE"
)

// sessionCopier is the subset of session.Operations the Copy Manager
// calls.
type sessionCopier interface {
	CopyFile(ctx context.Context, sourceFileID, fileName string, rng *b2api.CopyRange, destinationBucketID, metadataDirective, contentType string, fileInfo map[string]string) (*b2api.FileVersion, error)
	CopyPart(ctx context.Context, sourceFileID, largeFileID string, partNumber int, rng b2api.CopyRange) (*b2api.Part, error)
}

// CopyManager is the C10 component: validates a copy request against
// spec.md §4.6's metadata-directive rules before issuing a server-side
// range copy (whole-file or per-part).
type CopyManager struct{}

// NewCopyManager builds a CopyManager. Stateless; exported for symmetry
// with UploadManager and for future extension (e.g. injected logging).
func NewCopyManager() *CopyManager { return &CopyManager{} }

// CopyFileRequest describes a whole-object server-side copy.
type CopyFileRequest struct {
	SourceFileID        string
	DestinationFileName string
	Range               *CopySource // nil means "entire source file"
	SourceLengthKnown   bool
	DestinationBucketID string
	Directive           MetadataDirective
	ContentType         string
	FileInfo            map[string]string
}

func (m *CopyManager) validate(rng *CopySource, sourceLengthKnown bool, directive MetadataDirective, contentType string, fileInfo map[string]string) error {
	if rng != nil && rng.Start != 0 && !sourceLengthKnown {
		return ErrOffsetWithoutLength
	}

	switch directive {
	case MetadataCopy:
		if contentType != "" || len(fileInfo) > 0 {
			return fmt.Errorf("emerge: metadata directive COPY forbids content_type/file_info")
		}
	case MetadataReplace:
		if contentType == "" {
			return fmt.Errorf("emerge: metadata directive REPLACE requires content_type")
		}
	default:
		return fmt.Errorf("emerge: unknown metadata directive %q", directive)
	}

	return nil
}

// CopyFile validates req and issues a whole-object server-side copy,
// returning a file version.
func (m *CopyManager) CopyFile(ctx context.Context, s sessionCopier, req CopyFileRequest) (*b2api.FileVersion, error) {
	if err := m.validate(req.Range, req.SourceLengthKnown, req.Directive, req.ContentType, req.FileInfo); err != nil {
		return nil, err
	}

	var apiRange *b2api.CopyRange
	if req.Range != nil {
		apiRange = &b2api.CopyRange{Start: req.Range.Start, End: req.Range.End - 1}
	}

	return s.CopyFile(ctx, req.SourceFileID, req.DestinationFileName, apiRange, req.DestinationBucketID, string(req.Directive), req.ContentType, req.FileInfo)
}

// CopyPart issues a per-part server-side range copy within an in-progress
// large-file session, returning a part descriptor with length and sha1.
func (m *CopyManager) CopyPart(ctx context.Context, s sessionCopier, largeFileID string, partNumber int, src CopySource) (*b2api.Part, error) {
	return s.CopyPart(ctx, src.SourceFileID, largeFileID, partNumber, b2api.CopyRange{Start: src.Start, End: src.End - 1})
}
