package kafka

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"

	"strom/internal/domain"
)

type Output struct {
	producer sarama.SyncProducer
}

func NewOutput(producer sarama.SyncProducer) *Output {
	return &Output{
		producer: producer,
	}
}

// PushRecord produces the mutation to the record's changelog partition.
// A nil value is sent as a tombstone so replay deletes the key.
func (o *Output) PushRecord(ctx context.Context, rec domain.Record) error {
	msg := &sarama.ProducerMessage{
		Topic:     rec.TP.Topic,
		Partition: rec.TP.Partition,
		Key:       sarama.ByteEncoder(rec.Key),
	}
	if rec.Value != nil {
		msg.Value = sarama.ByteEncoder(rec.Value)
	}
	_, _, err := o.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("o.producer.SendMessage: %w", err)
	}
	return nil
}
