package account

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadURLPool_TakeEmpty(t *testing.T) {
	t.Parallel()

	p := NewUploadURLPool()

	_, ok := p.Take("bucket-1")
	assert.False(t, ok)
}

func TestUploadURLPool_PutTakeIsLIFO(t *testing.T) {
	t.Parallel()

	p := NewUploadURLPool()
	p.Put("bucket-1", URLToken{URL: "u1", Token: "t1"})
	p.Put("bucket-1", URLToken{URL: "u2", Token: "t2"})

	first, ok := p.Take("bucket-1")
	require.True(t, ok)
	assert.Equal(t, "u2", first.URL)

	second, ok := p.Take("bucket-1")
	require.True(t, ok)
	assert.Equal(t, "u1", second.URL)

	_, ok = p.Take("bucket-1")
	assert.False(t, ok)
}

func TestUploadURLPool_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	p := NewUploadURLPool()
	p.Put("bucket-1", URLToken{URL: "u1"})
	p.Put("file-1", URLToken{URL: "u2"})

	_, ok := p.Take("bucket-2")
	assert.False(t, ok)

	entry, ok := p.Take("file-1")
	require.True(t, ok)
	assert.Equal(t, "u2", entry.URL)
}

func TestUploadURLPool_Clear(t *testing.T) {
	t.Parallel()

	p := NewUploadURLPool()
	p.Put("bucket-1", URLToken{URL: "u1"})
	p.Clear("bucket-1")

	_, ok := p.Take("bucket-1")
	assert.False(t, ok)
}

func TestUploadURLPool_ConcurrentTakesNeverDuplicate(t *testing.T) {
	t.Parallel()

	p := NewUploadURLPool()
	for i := 0; i < 100; i++ {
		p.Put("bucket-1", URLToken{Token: string(rune('a' + i%26))})
	}

	seen := make(chan URLToken, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if tok, ok := p.Take("bucket-1"); ok {
				seen <- tok
			}
		}()
	}

	wg.Wait()
	close(seen)

	count := 0
	for range seen {
		count++
	}

	assert.Equal(t, 100, count)

	_, ok := p.Take("bucket-1")
	assert.False(t, ok)
}
