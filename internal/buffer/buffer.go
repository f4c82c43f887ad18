package buffer

import "sync"

// Buffer accumulates items until maxSize is reached. It is safe for
// concurrent use. Every pushed item ends up either still resident or in
// exactly one batch returned by Push or Drain.
type Buffer[T any] struct {
	mu      sync.Mutex
	items   []T
	maxSize int
}

func New[T any](maxSize int) *Buffer[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Buffer[T]{
		items:   make([]T, 0, maxSize),
		maxSize: maxSize,
	}
}

// Push appends item. When the buffer reaches its threshold the whole
// contents are swapped out inside the lock and returned with ok set; the
// caller owns the batch from then on.
func (b *Buffer[T]) Push(item T) (batch []T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
	if len(b.items) < b.maxSize {
		return nil, false
	}
	batch = b.items
	b.items = make([]T, 0, b.maxSize)
	return batch, true
}

// Drain takes whatever is buffered regardless of the threshold.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.items
	b.items = make([]T, 0, b.maxSize)
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Buffer[T]) MaxSize() int {
	return b.maxSize
}
