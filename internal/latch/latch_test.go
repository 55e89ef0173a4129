package latch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatch_InitiallyUnset(t *testing.T) {
	l := New()
	require.False(t, l.IsSet())

	select {
	case <-l.Done():
		t.Fatal("Done channel closed before Set")
	default:
	}
}

func TestLatch_SetIsObservable(t *testing.T) {
	l := New()
	l.Set()
	require.True(t, l.IsSet())

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel not closed after Set")
	}
}

func TestLatch_SetIsIdempotent(t *testing.T) {
	l := New()
	l.Set()
	l.Set()
	require.True(t, l.IsSet())
}

func TestLatch_MultipleWaitersNoMissedWakeup(t *testing.T) {
	l := New()

	const waiters = 8
	var wg sync.WaitGroup
	woken := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-l.Done()
			woken <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	l.Set()
	wg.Wait()
	require.Len(t, woken, waiters)

	// A waiter arriving after Set unblocks immediately.
	select {
	case <-l.Done():
	default:
		t.Fatal("late waiter blocked on a set latch")
	}
}
