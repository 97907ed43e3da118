package pagination

import (
	"context"
	"errors"
	"iter"
)

// maxEmptyPages bounds how many consecutive empty, non-terminal pages the
// iterator follows before giving up.
const maxEmptyPages = 32

// ErrTooManyEmptyPages ends an iteration whose server kept answering with
// empty pages that still advertise a next page.
var ErrTooManyEmptyPages = errors.New("pagination: too many consecutive empty pages")

type nextFetcher[T any] interface {
	fetch(ctx context.Context, dir Direction) ([]T, bool, error)
}

// ItemsIterator yields the items of a page and of every following page,
// fetching lazily. It follows the Next/Value/Err/Close pull pattern:
//
//	for it.Next() {
//		use(it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
//
// Once Next returns false it keeps returning false.
type ItemsIterator[T any] struct {
	ctx    context.Context
	source nextFetcher[T]
	buf    []T
	value  T
	err    error
	done   bool
}

func newItemsIterator[T any](ctx context.Context, initial []T, source nextFetcher[T]) *ItemsIterator[T] {
	return &ItemsIterator[T]{
		ctx:    ctx,
		source: source,
		buf:    initial,
	}
}

func failedIterator[T any](err error) *ItemsIterator[T] {
	return &ItemsIterator[T]{err: err, done: true}
}

// Next advances to the next item. Buffered items are returned without I/O;
// the next page is fetched only when the buffer is drained.
func (it *ItemsIterator[T]) Next() bool {
	if it.done {
		return false
	}

	empty := 0
	for len(it.buf) == 0 {
		items, ok, err := it.source.fetch(it.ctx, DirectionNext)
		if err != nil {
			it.finish(err)
			return false
		}
		if !ok {
			it.finish(nil)
			return false
		}
		if len(items) == 0 {
			EmptyPages.Inc()
			empty++
			if empty >= maxEmptyPages {
				it.finish(ErrTooManyEmptyPages)
				return false
			}
			continue
		}
		it.buf = items
	}

	it.value = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Value returns the item Next advanced to.
func (it *ItemsIterator[T]) Value() T {
	return it.value
}

// Err returns the error that ended the iteration, if any.
func (it *ItemsIterator[T]) Err() error {
	return it.err
}

// Close stops the iteration. Buffered items are dropped.
func (it *ItemsIterator[T]) Close() error {
	it.finish(it.err)
	return nil
}

// All adapts the iterator to a range-over-func sequence. The iterator is
// closed when the loop ends; an iteration error is yielded last.
func (it *ItemsIterator[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains the iterator.
func (it *ItemsIterator[T]) Collect() ([]T, error) {
	defer it.Close()
	var all []T
	for it.Next() {
		all = append(all, it.Value())
	}
	return all, it.Err()
}

func (it *ItemsIterator[T]) finish(err error) {
	var zero T
	it.done = true
	it.err = err
	it.buf = nil
	it.value = zero
}
