package consumer

import (
	"context"

	"strom/internal/domain"
)

type IConsumer interface {
	Assignment() domain.TPSet
	PausePartitions(tps domain.TPSet)
	ResumePartitions(tps domain.TPSet)
	PerformSeek() error
}

// IRebalanceListener receives the assignment triple computed from a group
// generation change. The table manager implements it.
type IRebalanceListener interface {
	OnRebalance(ctx context.Context, assigned, revoked, newlyAssigned domain.TPSet) error
}

// ISeekRecorder accumulates deferred seeks to be applied by PerformSeek.
// Recovery records the offsets it decided are correct for live consumption.
type ISeekRecorder interface {
	AddSeek(tp domain.TP, offset int64)
}
