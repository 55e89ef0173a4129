package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Nop discards every observation. Used by tests and by components
// constructed without an explicit metrics sink.
type Nop struct{}

func NewNop() *Nop { return &Nop{} }

func (*Nop) TableRegistered() {}
func (*Nop) RebalanceObserved() {}
func (*Nop) RecoveryCompleted() {}
func (*Nop) RecordReplayed(string) {}
func (*Nop) ObserveQueueDepth(int) {}
func (*Nop) RegisterNew(gometrics.Registry) {}
