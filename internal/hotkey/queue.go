package hotkey

import "sync"

// event is one queue entry. A stop event ends the consumer.
type event struct {
	key  Key
	stop bool
}

// queue is an unbounded FIFO. Producers never block; the consumer blocks until an
// event is available.
type queue struct {
	mu    sync.Mutex
	items []event
	// ready holds a token while items is non-empty.
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(e event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) pop() event {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = event{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return e
		}
		q.mu.Unlock()
		<-q.ready
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
