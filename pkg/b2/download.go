package b2

import (
	"context"
	"io"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/download"
)

// DownloadFile downloads an object (by FileID, or by BucketName+FileName)
// into w, choosing between sequential and range-sharded parallel strategies
// per spec.md §4.9, components C12/C13.
func (c *Client) DownloadFile(ctx context.Context, req download.Request, w io.Writer) (*download.Result, error) {
	return c.dl.DownloadToWriter(ctx, c.session, req, w)
}

// DownloadFileToPath downloads an object straight to a local path, using
// positioned writes so the parallel downloader's streams can write
// concurrently.
func (c *Client) DownloadFileToPath(ctx context.Context, req download.Request, path string) (*download.Result, error) {
	return c.dl.DownloadToFile(ctx, c.session, req, path)
}

// GetFileInfo fetches a single version's metadata by id.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*b2api.FileVersion, error) {
	return c.session.GetFileInfo(ctx, fileID)
}

// DeleteFileVersion permanently deletes one version.
func (c *Client) DeleteFileVersion(ctx context.Context, fileName, fileID string) error {
	return c.session.DeleteFileVersion(ctx, fileName, fileID)
}

// HideFile hides the current version of fileName, per spec.md §4.5's
// tombstone semantics for a "deleted" object in a versioned bucket.
func (c *Client) HideFile(ctx context.Context, bucketID, fileName string) (*b2api.FileVersion, error) {
	return c.session.HideFile(ctx, bucketID, fileName)
}
