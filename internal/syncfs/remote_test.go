package syncfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

type fakeLister struct {
	pages [][]b2api.FileVersion
}

func (f *fakeLister) ListFileVersions(ctx context.Context, bucketID string, startFileName, startFileID *string, maxFileCount int, prefix, delimiter string) (*b2api.ListFileVersionsResponse, error) {
	if len(f.pages) == 0 {
		return &b2api.ListFileVersionsResponse{}, nil
	}

	page := f.pages[0]
	f.pages = f.pages[1:]

	resp := &b2api.ListFileVersionsResponse{Files: page}
	if len(f.pages) > 0 {
		name := "next"
		resp.NextFileName = &name
	}

	return resp, nil
}

func TestRemoteScanner_GroupsVersionsByFileName(t *testing.T) {
	lister := &fakeLister{pages: [][]b2api.FileVersion{{
		{FileID: "v2", FileName: "a.txt", Action: "upload", ContentLength: 10, UploadTimestamp: 2000},
		{FileID: "v1", FileName: "a.txt", Action: "upload", ContentLength: 8, UploadTimestamp: 1000},
		{FileID: "v1", FileName: "b.txt", Action: "upload", ContentLength: 4, UploadTimestamp: 500},
	}}}

	policies, err := NewScanPoliciesManager(PoliciesConfig{})
	require.NoError(t, err)

	scanner := NewRemoteScanner(lister, "bucket1", "", policies, nil)
	it := scanner.Scan(context.Background())
	defer it.Close()

	paths := drain(t, it)
	require.Len(t, paths, 2)

	assert.Equal(t, "a.txt", paths[0].RelativePath)
	require.Len(t, paths[0].Versions, 2)
	assert.Equal(t, "v2", paths[0].Versions[0].FileID)
	assert.Equal(t, "v1", paths[0].Versions[1].FileID)

	assert.Equal(t, "b.txt", paths[1].RelativePath)
	require.Len(t, paths[1].Versions, 1)
}

func TestRemoteScanner_SkipsUnfinishedLargeFileStart(t *testing.T) {
	lister := &fakeLister{pages: [][]b2api.FileVersion{{
		{FileID: "start1", FileName: "big.bin", Action: actionStart, UploadTimestamp: 1000},
		{FileID: "v1", FileName: "small.txt", Action: "upload", ContentLength: 1, UploadTimestamp: 1000},
	}}}

	policies, err := NewScanPoliciesManager(PoliciesConfig{})
	require.NoError(t, err)

	scanner := NewRemoteScanner(lister, "bucket1", "", policies, nil)
	it := scanner.Scan(context.Background())
	defer it.Close()

	paths := drain(t, it)
	require.Len(t, paths, 1)
	assert.Equal(t, "small.txt", paths[0].RelativePath)
}

func TestRemoteScanner_StripsPrefix(t *testing.T) {
	lister := &fakeLister{pages: [][]b2api.FileVersion{{
		{FileID: "v1", FileName: "photos/a.jpg", Action: "upload", ContentLength: 1, UploadTimestamp: 1000},
	}}}

	policies, err := NewScanPoliciesManager(PoliciesConfig{})
	require.NoError(t, err)

	scanner := NewRemoteScanner(lister, "bucket1", "photos/", policies, nil)
	it := scanner.Scan(context.Background())
	defer it.Close()

	paths := drain(t, it)
	require.Len(t, paths, 1)
	assert.Equal(t, "a.jpg", paths[0].RelativePath)
}

func TestRemoteScanner_RejectsUnsyncableName(t *testing.T) {
	lister := &fakeLister{pages: [][]b2api.FileVersion{{
		{FileID: "v1", FileName: "../escape.txt", Action: "upload", ContentLength: 1, UploadTimestamp: 1000},
	}}}

	policies, err := NewScanPoliciesManager(PoliciesConfig{})
	require.NoError(t, err)

	var reported []error
	reporter := func(relPath string, reason error) { reported = append(reported, reason) }

	scanner := NewRemoteScanner(lister, "bucket1", "", policies, reporter)
	it := scanner.Scan(context.Background())
	defer it.Close()

	paths := drain(t, it)
	assert.Empty(t, paths)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrUnsyncableRemoteName)
}

func TestRemoteScanner_PaginatesAcrossMultiplePages(t *testing.T) {
	lister := &fakeLister{pages: [][]b2api.FileVersion{
		{{FileID: "v1", FileName: "a.txt", Action: "upload", ContentLength: 1, UploadTimestamp: 1000}},
		{{FileID: "v1", FileName: "b.txt", Action: "upload", ContentLength: 1, UploadTimestamp: 1000}},
	}}

	policies, err := NewScanPoliciesManager(PoliciesConfig{})
	require.NoError(t, err)

	scanner := NewRemoteScanner(lister, "bucket1", "", policies, nil)
	it := scanner.Scan(context.Background())
	defer it.Close()

	paths := drain(t, it)
	require.Len(t, paths, 2)
	assert.Equal(t, "a.txt", paths[0].RelativePath)
	assert.Equal(t, "b.txt", paths[1].RelativePath)
}
