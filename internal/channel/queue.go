package channel

import (
	"context"
	"sync"

	"strom/internal/domain"
)

// FlowControlQueue is the single bounded buffer shared by every changelog
// channel. Producers block while the buffer is full, which is the only
// backpressure between log consumption and state-apply throughput. While
// paused, Get blocks; Resume reopens consumption and, when the queue was
// built with clearOnResume, truncates entries buffered during the pause
// since they are stale by then.
type FlowControlQueue struct {
	ch            chan domain.Record
	clearOnResume bool

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func NewFlowControlQueue(maxSize int, clearOnResume bool) *FlowControlQueue {
	resumed := make(chan struct{})
	close(resumed)
	return &FlowControlQueue{
		ch:            make(chan domain.Record, maxSize),
		clearOnResume: clearOnResume,
		resumed:       resumed,
	}
}

func (q *FlowControlQueue) Put(ctx context.Context, rec domain.Record) error {
	select {
	case q.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until a record is buffered and the queue is not paused.
// A Pause issued while Get is already draining takes effect on the
// following call.
func (q *FlowControlQueue) Get(ctx context.Context) (domain.Record, error) {
	q.mu.Lock()
	resumed := q.resumed
	q.mu.Unlock()

	select {
	case <-resumed:
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	}

	select {
	case rec := <-q.ch:
		return rec, nil
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	}
}

func (q *FlowControlQueue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused {
		return
	}
	q.paused = true
	q.resumed = make(chan struct{})
}

func (q *FlowControlQueue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		return
	}
	if q.clearOnResume {
		q.truncate()
	}
	q.paused = false
	close(q.resumed)
}

func (q *FlowControlQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (q *FlowControlQueue) Size() int {
	return len(q.ch)
}

func (q *FlowControlQueue) truncate() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
