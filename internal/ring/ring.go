package ring

// Buffer is a fixed-capacity overwriting ring. Appending past capacity
// drops the oldest element, so memory stays bounded regardless of rate.
type Buffer[T any] struct {
	data  []T
	head  int
	count int
}

// New allocates a buffer with the given capacity (minimum 1).
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Append adds v, overwriting the oldest element when full.
func (b *Buffer[T]) Append(v T) {
	idx := (b.head + b.count) % len(b.data)
	b.data[idx] = v
	if b.count < len(b.data) {
		b.count++
		return
	}
	b.head = (b.head + 1) % len(b.data)
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	if b == nil {
		return 0
	}
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// At returns the i-th element, oldest first.
func (b *Buffer[T]) At(i int) (T, bool) {
	var zero T
	if b == nil || i < 0 || i >= b.count {
		return zero, false
	}
	return b.data[(b.head+i)%len(b.data)], true
}

// Last returns the most recently appended element.
func (b *Buffer[T]) Last() (T, bool) {
	if b == nil || b.count == 0 {
		var zero T
		return zero, false
	}
	return b.data[(b.head+b.count-1)%len(b.data)], true
}

// Tail copies out the most recent n elements, oldest first. n <= 0 or
// n > Len copies everything.
func (b *Buffer[T]) Tail(n int) []T {
	if b == nil || b.count == 0 {
		return nil
	}
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]T, n)
	start := b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.data[(b.head+start+i)%len(b.data)]
	}
	return out
}

// Clear drops all elements without releasing storage.
func (b *Buffer[T]) Clear() {
	if b == nil {
		return
	}
	b.head = 0
	b.count = 0
}
