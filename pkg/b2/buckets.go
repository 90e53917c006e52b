package b2

import (
	"context"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

// CreateBucket creates a bucket, mirroring b2sdk's B2Api.create_bucket.
func (c *Client) CreateBucket(ctx context.Context, name, bucketType string, bucketInfo map[string]string) (*b2api.Bucket, error) {
	return c.session.CreateBucket(ctx, name, bucketType, bucketInfo)
}

// DeleteBucket deletes a bucket by id.
func (c *Client) DeleteBucket(ctx context.Context, bucketID string) error {
	return c.session.DeleteBucket(ctx, bucketID)
}

// ListBuckets lists every bucket visible to this account's application key,
// optionally filtered to one bucket by name or id.
func (c *Client) ListBuckets(ctx context.Context, bucketName, bucketID *string) ([]b2api.Bucket, error) {
	resp, err := c.session.ListBuckets(ctx, bucketName, bucketID)
	if err != nil {
		return nil, err
	}

	return resp.Buckets, nil
}

// ResolveBucketID returns the id for bucketName, consulting the account
// info's bucket-name cache before falling back to ListBuckets — mirroring
// spec.md §6's "bucket name → id cache" persisted state.
func (c *Client) ResolveBucketID(ctx context.Context, bucketName string) (string, error) {
	if id, ok := c.info.LookupBucketID(bucketName); ok {
		return id, nil
	}

	buckets, err := c.ListBuckets(ctx, &bucketName, nil)
	if err != nil {
		return "", err
	}

	for _, b := range buckets {
		if b.BucketName == bucketName {
			c.info.CacheBucketID(bucketName, b.BucketID)
			return b.BucketID, nil
		}
	}

	return "", &b2api.Error{Kind: b2api.KindBucketIDNotFound, Message: "bucket not found: " + bucketName}
}
