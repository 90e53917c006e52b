package syncfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceIterator builds a PathIterator over a fixed, already-ordered slice of
// paths, for tests that don't need a real scanner behind it.
func sliceIterator(ctx context.Context, paths []SyncPath) *PathIterator {
	return newPathIterator(ctx, func(ctx context.Context, out chan<- scanItem) {
		for _, p := range paths {
			select {
			case out <- scanItem{path: p}:
			case <-ctx.Done():
				return
			}
		}
	})
}

func TestPathIterator_NextExhausts(t *testing.T) {
	ctx := context.Background()
	it := sliceIterator(ctx, []SyncPath{{RelativePath: "a"}, {RelativePath: "b"}})
	defer it.Close()

	p, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", p.RelativePath)

	p, ok, err = it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", p.RelativePath)

	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathIterator_PeekDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	it := sliceIterator(ctx, []SyncPath{{RelativePath: "a"}})
	defer it.Close()

	p, ok, err := it.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", p.RelativePath)

	p, ok, err = it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", p.RelativePath)

	_, ok, _ = it.Next()
	assert.False(t, ok)
}

func TestPathIterator_PropagatesProducerError(t *testing.T) {
	ctx := context.Background()
	boom := assert.AnError

	it := newPathIterator(ctx, func(ctx context.Context, out chan<- scanItem) {
		out <- scanItem{path: SyncPath{RelativePath: "a"}}
		out <- scanItem{err: boom}
	})
	defer it.Close()

	_, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = it.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}
