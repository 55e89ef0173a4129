package kafka

import (
	"sync"

	"github.com/Shopify/sarama"

	"strom/internal/domain"
)

// Consumer adapts a sarama consumer group to the assignment interface the
// table manager works against. The current assignment and session are
// maintained by the group handler on every generation change; seeks are
// deferred until PerformSeek since sarama can only reset offsets inside a
// live session.
type Consumer struct {
	group sarama.ConsumerGroup

	mu         sync.Mutex
	assignment domain.TPSet
	session    sarama.ConsumerGroupSession
	seeks      map[domain.TP]int64
}

func NewConsumer(group sarama.ConsumerGroup) *Consumer {
	return &Consumer{
		group:      group,
		assignment: domain.NewTPSet(),
		seeks:      make(map[domain.TP]int64),
	}
}

func (c *Consumer) Assignment() domain.TPSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.NewTPSet(c.assignment.Slice()...)
}

func (c *Consumer) PausePartitions(tps domain.TPSet) {
	c.group.Pause(tps.Topics())
}

func (c *Consumer) ResumePartitions(tps domain.TPSet) {
	c.group.Resume(tps.Topics())
}

func (c *Consumer) AddSeek(tp domain.TP, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks[tp] = offset
}

// PerformSeek repositions consumption to every recorded offset. Seeks
// recorded while no session is live stay pending for the next call.
func (c *Consumer) PerformSeek() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	for tp, offset := range c.seeks {
		c.session.ResetOffset(tp.Topic, tp.Partition, offset, "")
		delete(c.seeks, tp)
	}
	return nil
}

func (c *Consumer) setSession(session sarama.ConsumerGroupSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// setAssignment swaps the tracked assignment, returning the previous set.
func (c *Consumer) setAssignment(tps domain.TPSet) domain.TPSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.assignment
	c.assignment = tps
	return prev
}
