package channel

import (
	"context"
	"fmt"
	"sync"

	"strom/internal/domain"
)

type IRegistry interface {
	Register(ch *Channel) error
	Get(topic string) (*Channel, error)
	Topics() []string
	Route(ctx context.Context, rec domain.Record) error
}

// Registry binds a changelog topic name to its consumable channel so the
// fetcher can route inbound records. Re-registering the same channel is a
// no-op; binding a different channel under an already-bound topic is a
// programming error.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
	}
}

func (r *Registry) Register(ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.channels[ch.Topic()]; ok {
		if existing == ch {
			return nil
		}
		return fmt.Errorf("topic %s: %w", ch.Topic(), domain.ErrorChannelAlreadyRegistered)
	}
	r.channels[ch.Topic()] = ch
	return nil
}

func (r *Registry) Get(topic string) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[topic]
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", topic, domain.ErrorUnknownChannel)
	}
	return ch, nil
}

func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.channels))
	for topic := range r.channels {
		topics = append(topics, topic)
	}
	return topics
}

// Route delivers a record to the channel bound to its topic.
func (r *Registry) Route(ctx context.Context, rec domain.Record) error {
	ch, err := r.Get(rec.TP.Topic)
	if err != nil {
		return err
	}
	return ch.Put(ctx, rec)
}
