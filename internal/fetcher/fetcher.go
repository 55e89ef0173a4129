package fetcher

import (
	"context"
	"log"
	"sync"

	"github.com/Shopify/sarama"
)

type IFetcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// Fetcher is the inbound data pump: it keeps a consumer-group session
// alive, which both delivers records and drives the rebalance protocol.
// Start is idempotent while running and restartable after Stop; the table
// manager stops it during shutdown before tables are torn down and starts
// it again once recovery completes.
type Fetcher struct {
	group   sarama.ConsumerGroup
	handler sarama.ConsumerGroupHandler
	topics  []string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	errChan chan error
}

func New(group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topics []string) *Fetcher {
	return &Fetcher{
		group:   group,
		handler: handler,
		topics:  topics,
		errChan: make(chan error, 1),
	}
}

// SetHandler installs the group handler before the first Start. The
// handler is built after the table manager, which itself holds the
// fetcher, so it cannot be passed at construction time.
func (f *Fetcher) SetHandler(handler sarama.ConsumerGroupHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

// SetTopics replaces the subscription before the first Start.
func (f *Fetcher) SetTopics(topics []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = topics
}

func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})
	topics, handler := f.topics, f.handler

	go func(done chan struct{}) {
		defer close(done)
		for {
			err := f.group.Consume(runCtx, topics, handler)
			if runCtx.Err() != nil {
				return
			}
			if err != nil {
				select {
				case f.errChan <- err:
				default:
				}
				log.Default().Printf("[FETCHER CONSUME ERROR] %v", err)
				// The loop is dead; a later Start must be able to
				// spawn a fresh session without an intervening Stop.
				f.mu.Lock()
				f.running = false
				f.mu.Unlock()
				return
			}
			// Consume returns on every rebalance; loop to rejoin.
		}
	}(f.done)
	return nil
}

func (f *Fetcher) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Errors reports consume failures from the pump loop.
func (f *Fetcher) Errors() <-chan error {
	return f.errChan
}
