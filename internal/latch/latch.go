package latch

import "sync"

// Latch is a one-shot boolean signal. It transitions from unset to set
// exactly once and is never reset. Any number of waiters may block on
// Done(); all of them unblock as soon as Set is called, including waiters
// that start waiting after the fact.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

func New() *Latch {
	return &Latch{ch: make(chan struct{})}
}

func (l *Latch) Set() {
	l.once.Do(func() {
		close(l.ch)
	})
}

func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}
