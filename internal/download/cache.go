package download

import (
	"context"
	"io"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// FetchRange is the supplemental single-range download helper from
// original_source/b2sdk: a plain ranged GET with no parallelism, no
// hashing, and no destination — just the body reader. The Emerge Executor
// uses this to resolve a demoted small-copy subpart's bytes before
// re-uploading them (spec.md §4.7's "demoted to a subpart
// (download-then-upload)"), reusing this package's single-range GET path
// rather than duplicating the range-request plumbing.
func FetchRange(ctx context.Context, s sessionDownloader, req Request, start, end int64) (io.ReadCloser, error) {
	body, _, err := req.fetchRange(ctx, s, b2api.CopyRange{Start: start, End: end})
	if err != nil {
		return nil, err
	}

	return body, nil
}
