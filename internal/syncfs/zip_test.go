package syncfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipFolders_SourceOnlyDestOnlyAndBoth(t *testing.T) {
	ctx := context.Background()

	source := sliceIterator(ctx, []SyncPath{
		{RelativePath: "a.txt"},
		{RelativePath: "b.txt"},
		{RelativePath: "d.txt"},
	})
	dest := sliceIterator(ctx, []SyncPath{
		{RelativePath: "b.txt"},
		{RelativePath: "c.txt"},
	})
	defer source.Close()
	defer dest.Close()

	pairs, err := ZipFolders(source, dest)
	require.NoError(t, err)
	require.Len(t, pairs, 4)

	assert.Equal(t, "a.txt", pairs[0].Source.RelativePath)
	assert.True(t, pairs[0].HaveSource)
	assert.False(t, pairs[0].HaveDest)

	assert.Equal(t, "b.txt", pairs[1].Source.RelativePath)
	assert.True(t, pairs[1].HaveSource)
	assert.True(t, pairs[1].HaveDest)

	assert.Equal(t, "c.txt", pairs[2].Dest.RelativePath)
	assert.False(t, pairs[2].HaveSource)
	assert.True(t, pairs[2].HaveDest)

	assert.Equal(t, "d.txt", pairs[3].Source.RelativePath)
	assert.True(t, pairs[3].HaveSource)
	assert.False(t, pairs[3].HaveDest)
}

func TestZipFolders_BothEmpty(t *testing.T) {
	ctx := context.Background()
	source := sliceIterator(ctx, nil)
	dest := sliceIterator(ctx, nil)
	defer source.Close()
	defer dest.Close()

	pairs, err := ZipFolders(source, dest)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestZipFolders_PropagatesSourceError(t *testing.T) {
	ctx := context.Background()
	boom := assert.AnError

	source := newPathIterator(ctx, func(ctx context.Context, out chan<- scanItem) {
		out <- scanItem{err: boom}
	})
	dest := sliceIterator(ctx, nil)
	defer source.Close()
	defer dest.Close()

	_, err := ZipFolders(source, dest)
	assert.ErrorIs(t, err, boom)
}
