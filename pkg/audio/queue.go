package audio

import "iter"

// ByteQueue accumulates inbound bytes for one connection until whole windows
// can be taken from the front. Consuming from the front only advances an
// offset; the consumed prefix is reclaimed lazily on the next Append once it
// outweighs the unread bytes, so each byte is copied a bounded number of times.
//
// The zero value is an empty queue ready for use. Not safe for concurrent use.
type ByteQueue struct {
	buf  []byte
	head int
}

// Append adds p to the tail of the queue. It never fails and places no limit
// on the amount of buffered data. p is copied; the caller may reuse it.
func (q *ByteQueue) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	if q.head > 0 && q.head >= len(q.buf)-q.head {
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	q.buf = append(q.buf, p...)
}

// Len returns the number of buffered, unconsumed bytes.
func (q *ByteQueue) Len() int {
	return len(q.buf) - q.head
}

// Windows returns a finite sequence that removes and yields one window of
// exactly size bytes from the head of the queue for as long as at least size
// bytes are buffered. Trailing bytes below size stay queued for the next call.
// A non-positive size yields nothing.
//
// A yielded window aliases the queue's storage and is only valid until the
// next call to Append or Reset. Stopping the iteration early leaves the
// remaining windows queued.
func (q *ByteQueue) Windows(size int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if size <= 0 {
			return
		}
		for q.Len() >= size {
			w := q.buf[q.head : q.head+size : q.head+size]
			q.head += size
			if !yield(w) {
				break
			}
		}
		if q.head == len(q.buf) {
			q.buf = q.buf[:0]
			q.head = 0
		}
	}
}

// Reset discards all buffered bytes and releases the backing storage.
func (q *ByteQueue) Reset() {
	q.buf = nil
	q.head = 0
}
