package audio

import (
	"bytes"
	"io"
	"sync"
)

// Queue is the bounded buffer between the asynchronous capture callback and
// the session consumer. The producer never blocks: when the queue is full the
// oldest chunk is evicted, keeping the most recent audio within the replay
// margin. A nil sentinel marks end-of-stream.
type Queue struct {
	buff chan []byte

	mu     sync.Mutex
	closed bool

	// eofSeen is only touched by the single consumer goroutine.
	eofSeen bool
}

// NewQueue creates a queue holding at most depth chunks
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{
		buff: make(chan []byte, depth),
	}
}

// Push appends a captured chunk without blocking. It reports whether an older
// chunk had to be evicted to make room. Pushes after CloseInput are dropped.
func (q *Queue) Push(chunk []byte) (evicted bool) {
	if len(chunk) == 0 {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	for {
		select {
		case q.buff <- chunk:
			return evicted
		default:
		}

		select {
		case <-q.buff:
			evicted = true
		default:
		}
	}
}

// CloseInput stops accepting new chunks and queues the end sentinel so a
// blocked Read observes end-of-stream promptly.
func (q *Queue) CloseInput() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	select {
	case q.buff <- nil:
	default:
		// Queue full: evict one chunk so the sentinel always fits.
		<-q.buff
		q.buff <- nil
	}
}

// Read blocks until at least one chunk is available, then coalesces any
// backlog into a single buffer so a consumer that fell behind catches up in
// one pull. Returns io.EOF once the end sentinel is observed. Not safe for
// concurrent consumers.
func (q *Queue) Read() ([]byte, error) {
	if q.eofSeen {
		return nil, io.EOF
	}

	chunk := <-q.buff
	if chunk == nil {
		q.eofSeen = true
		return nil, io.EOF
	}

	parts := [][]byte{chunk}
	for {
		select {
		case more := <-q.buff:
			if more == nil {
				q.eofSeen = true
				return bytes.Join(parts, nil), nil
			}
			parts = append(parts, more)
		default:
			return bytes.Join(parts, nil), nil
		}
	}
}

// Len returns the number of chunks currently queued
func (q *Queue) Len() int {
	return len(q.buff)
}
