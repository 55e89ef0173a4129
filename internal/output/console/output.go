package console

import (
	"context"
	"fmt"

	"strom/internal/domain"
)

// DummyConsoleOutput prints mirrored mutations instead of producing them.
// Useful for local runs without a broker; replay recovery does not work
// with it.
type DummyConsoleOutput struct{}

func NewDummyConsoleOutput() *DummyConsoleOutput {
	return &DummyConsoleOutput{}
}

func (d *DummyConsoleOutput) PushRecord(_ context.Context, rec domain.Record) error {
	fmt.Printf("[CHANGELOG %s/%d] key=%q tombstone=%v\n",
		rec.TP.Topic, rec.TP.Partition, rec.Key, rec.Tombstone())
	return nil
}
