package syncfs

import "context"

// PathIterator yields SyncPaths one at a time in ascending relative_path
// order. It replaces the source's generator with a lazy pull interface —
// spec.md §9's "generators for folder scanners" redesign note — backed by
// a producer goroutine and a channel so the walk itself stays recursive
// and idiomatic.
type PathIterator struct {
	items  <-chan scanItem
	cancel context.CancelFunc
	peeked *scanItem
	done   bool
}

type scanItem struct {
	path SyncPath
	err  error
}

func newPathIterator(ctx context.Context, produce func(context.Context, chan<- scanItem)) *PathIterator {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan scanItem)

	go func() {
		defer close(ch)
		produce(ctx, ch)
	}()

	return &PathIterator{items: ch, cancel: cancel}
}

// Next advances the iterator, returning (path, true, nil) on a fresh item,
// (zero, false, nil) once exhausted, or (zero, false, err) if the producer
// reported an error — which also ends the stream.
func (it *PathIterator) Next() (SyncPath, bool, error) {
	if it.peeked != nil {
		item := *it.peeked
		it.peeked = nil

		return item.path, true, item.err
	}

	if it.done {
		return SyncPath{}, false, nil
	}

	item, ok := <-it.items
	if !ok {
		it.done = true
		return SyncPath{}, false, nil
	}

	if item.err != nil {
		it.done = true
		return SyncPath{}, false, item.err
	}

	return item.path, true, nil
}

// Peek returns the next item without consuming it, so the zip-folders
// merge-join can compare both sides' heads before deciding which to
// advance — the "one-step lookahead" spec.md §4.10 requires.
func (it *PathIterator) Peek() (SyncPath, bool, error) {
	if it.peeked == nil {
		path, ok, err := it.Next()
		if err != nil {
			return SyncPath{}, false, err
		}

		if !ok {
			return SyncPath{}, false, nil
		}

		it.peeked = &scanItem{path: path}
	}

	return it.peeked.path, true, nil
}

// Close abandons the underlying producer goroutine, canceling its context.
// Safe to call after exhaustion.
func (it *PathIterator) Close() {
	it.cancel()
}
