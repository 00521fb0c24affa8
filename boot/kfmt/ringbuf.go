package kfmt

import "io"

// backlogSize is the capacity of the ring buffer that retains output while
// no sink is attached. It must be a power of 2.
const backlogSize = 2048

// ringBuffer is a fixed-size byte queue that overwrites its oldest contents
// when full.
type ringBuffer struct {
	data       [backlogSize]byte
	head, tail int
}

// Write appends p to the buffer, dropping the oldest bytes on overflow. It
// always reports len(p) bytes written.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[rb.tail] = b
		rb.tail = (rb.tail + 1) & (backlogSize - 1)
		if rb.tail == rb.head {
			rb.head = (rb.head + 1) & (backlogSize - 1)
		}
	}
	return len(p), nil
}

// Read drains up to len(p) bytes. It returns io.EOF once the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.head == rb.tail {
		return 0, io.EOF
	}

	end := rb.tail
	if rb.head > rb.tail {
		end = backlogSize
	}

	n := copy(p, rb.data[rb.head:end])
	rb.head = (rb.head + n) & (backlogSize - 1)
	return n, nil
}
