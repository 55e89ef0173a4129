package kafka

import (
	"context"
	"log"

	"github.com/Shopify/sarama"

	"strom/internal/channel"
	"strom/internal/consumer"
	"strom/internal/domain"
)

// ProcessFunc handles one live (non-changelog) record.
type ProcessFunc func(ctx context.Context, rec domain.Record) error

// GroupHandler bridges sarama's group lifecycle to the rebalance protocol.
// Setup diffs the new claim set against the previous generation and hands
// the (assigned, revoked, newly assigned) triple to the listener before any
// message of the new generation is consumed. Claimed changelog records are
// routed through the registry into the shared queue; everything else goes
// to the process callback.
type GroupHandler struct {
	consumer *Consumer
	listener consumer.IRebalanceListener
	registry channel.IRegistry
	process  ProcessFunc
}

func NewGroupHandler(
	c *Consumer,
	listener consumer.IRebalanceListener,
	registry channel.IRegistry,
	process ProcessFunc,
) *GroupHandler {
	return &GroupHandler{
		consumer: c,
		listener: listener,
		registry: registry,
		process:  process,
	}
}

func (h *GroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	assigned := domain.NewTPSet()
	for topic, partitions := range session.Claims() {
		for _, p := range partitions {
			assigned.Add(domain.TP{Topic: topic, Partition: p})
		}
	}

	prev := h.consumer.setAssignment(assigned)
	h.consumer.setSession(session)

	revoked := domain.NewTPSet()
	for tp := range prev {
		if !assigned.Contains(tp) {
			revoked.Add(tp)
		}
	}
	newlyAssigned := domain.NewTPSet()
	for tp := range assigned {
		if !prev.Contains(tp) {
			newlyAssigned.Add(tp)
		}
	}

	return h.listener.OnRebalance(session.Context(), assigned, revoked, newlyAssigned)
}

func (h *GroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.consumer.setSession(nil)
	return nil
}

func (h *GroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for msg := range claim.Messages() {
		rec := domain.Record{
			TP:        domain.TP{Topic: msg.Topic, Partition: msg.Partition},
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Timestamp: msg.Timestamp,
		}
		if err := h.dispatch(ctx, rec); err != nil {
			return err
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *GroupHandler) dispatch(ctx context.Context, rec domain.Record) error {
	if _, err := h.registry.Get(rec.TP.Topic); err == nil {
		return h.registry.Route(ctx, rec)
	}
	if h.process == nil {
		log.Default().Printf("[DROPPED RECORD WITHOUT PROCESSOR] topic %s partition %d", rec.TP.Topic, rec.TP.Partition)
		return nil
	}
	return h.process(ctx, rec)
}
