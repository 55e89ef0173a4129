package table

import (
	"context"

	"strom/internal/domain"
)

// The manager behaves as three narrow things at once: a lifecycle-managed
// service, a name-keyed lookup over registered tables, and the coordinator
// of the rebalance/recovery protocol. Consumers depend on the slice they
// need.

type ILifecycle interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
}

type ILookup interface {
	Get(name string) (ITable, bool)
	Contains(name string) bool
	Names() []string
	ChangelogTopics() []string
}

type ITableManager interface {
	ILifecycle
	ILookup
	Add(t ITable) (ITable, error)
	OnRebalance(ctx context.Context, assigned, revoked, newlyAssigned domain.TPSet) error
	OnRecoveryCompleted(ctx context.Context) error
}
