package channel

import (
	"context"

	"strom/internal/domain"
)

// Channel is a changelog topic bound to the shared flow-controlled queue.
// All channels of a worker deliver into the same queue; the channel only
// carries the topic identity for routing and registration.
type Channel struct {
	topic string
	queue *FlowControlQueue
}

func New(topic string, queue *FlowControlQueue) *Channel {
	return &Channel{
		topic: topic,
		queue: queue,
	}
}

func (c *Channel) Topic() string {
	return c.topic
}

func (c *Channel) Put(ctx context.Context, rec domain.Record) error {
	return c.queue.Put(ctx, rec)
}

func (c *Channel) Queue() *FlowControlQueue {
	return c.queue
}
