// Package ringbuffer implements a growable FIFO ring used as the backing
// store for channel queues and broadcast logs.
package ringbuffer

const minCap = 8

// Buffer is a FIFO queue backed by a circular slice. The zero value is an
// empty buffer ready to use. It is not safe for concurrent use.
type Buffer[T any] struct {
	data         []T
	offset, size int
}

func (b *Buffer[T]) Len() int {
	return b.size
}

func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Push appends v to the tail, growing the backing slice if needed.
func (b *Buffer[T]) Push(v T) {
	b.grow(1)

	pos := (b.offset + b.size) % len(b.data)
	b.data[pos] = v
	b.size++
}

// Pop removes and returns the head element.
func (b *Buffer[T]) Pop() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}

	v := b.data[b.offset]
	b.discard()
	return v, true
}

// PopTail removes and returns the most recently pushed element.
func (b *Buffer[T]) PopTail() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}

	pos := (b.offset + b.size - 1) % len(b.data)
	v := b.data[pos]

	var zero T
	b.data[pos] = zero
	b.size--
	return v, true
}

func (b *Buffer[T]) Peek() (T, bool) {
	if b.size == 0 {
		var zero T
		return zero, false
	}
	return b.data[b.offset], true
}

// At returns the i-th element counting from the head.
// It panics if i is out of range.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ringbuffer: index out of range")
	}
	return b.data[(b.offset+i)%len(b.data)]
}

// Drop discards up to n elements from the head and returns how many were
// removed.
func (b *Buffer[T]) Drop(n int) int {
	dropped := 0
	for dropped < n && b.discard() {
		dropped++
	}
	if dropped > 0 {
		b.compact()
	}
	return dropped
}

// Reset removes all elements and releases references held by the buffer.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := 0; i < b.size; i++ {
		b.data[(b.offset+i)%len(b.data)] = zero
	}
	b.offset = 0
	b.size = 0
}

func (b *Buffer[T]) discard() bool {
	if b.size == 0 {
		return false
	}

	var zero T
	b.data[b.offset] = zero // let GC do its work

	b.offset = (b.offset + 1) % len(b.data)
	b.size--
	return true
}

// setCap changes the capacity and defragments the buffer.
// It panics if newCap is less than b.size.
func (b *Buffer[T]) setCap(newCap int) {
	newData := make([]T, newCap)

	if b.size > 0 {
		end := b.offset + b.size
		if end <= len(b.data) {
			copy(newData, b.data[b.offset:end])
		} else {
			copied := copy(newData, b.data[b.offset:])
			copy(newData[copied:], b.data[:b.size-copied])
		}
	}

	b.data = newData
	b.offset = 0
}

func (b *Buffer[T]) grow(n int) {
	target := b.size + n
	newCap := len(b.data)
	if newCap >= target {
		return
	}

	if newCap < minCap {
		newCap = minCap
	}
	for newCap < target {
		newCap <<= 1
	}
	b.setCap(newCap)
}

// compact halves the capacity while at most a quarter of it is in use.
func (b *Buffer[T]) compact() {
	newCap := len(b.data)
	for newCap>>1 >= minCap && b.size <= newCap>>2 {
		newCap >>= 1
	}
	if newCap < len(b.data) {
		b.setCap(newCap)
	}
}
