package table

import (
	"context"
	"sync"
	"time"

	"strom/internal/domain"
	"strom/internal/output"
	"strom/internal/store"
)

type ITable interface {
	Name() string
	Changelog() *ChangelogTopic
	Storage() store.ITableStorage
	Start() error
	Stop() error
	OnPartitionsRevoked(ctx context.Context, revoked domain.TPSet) error
	OnPartitionsAssigned(ctx context.Context, assigned domain.TPSet) error
	RunRecoveredCallbacks(ctx context.Context) error
}

// RecoveredCallback runs after the table's changelog has been fully
// replayed, before any live processing starts.
type RecoveredCallback func(ctx context.Context) error

// Table is a partitioned state store mirrored to a changelog topic.
// Partition ownership follows the rebalance protocol: revoked partitions
// are released (local state dropped, to be rebuilt from the changelog on
// the next owner) before newly assigned ones are claimed.
type Table struct {
	name      string
	changelog *ChangelogTopic
	storage   store.ITableStorage
	mirror    output.IOutput

	mu        sync.Mutex
	started   bool
	active    domain.TPSet
	standby   domain.TPSet
	callbacks []RecoveredCallback
}

func New(name string, changelog *ChangelogTopic, storage store.ITableStorage) *Table {
	return &Table{
		name:      name,
		changelog: changelog,
		storage:   storage,
		active:    domain.NewTPSet(),
		standby:   domain.NewTPSet(),
	}
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Changelog() *ChangelogTopic {
	return t.changelog
}

func (t *Table) Storage() store.ITableStorage {
	return t.storage
}

// OnRecovered registers a callback for the post-recovery barrier.
func (t *Table) OnRecovered(cb RecoveredCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

func (t *Table) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

func (t *Table) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	t.started = false
	return t.storage.Close()
}

func (t *Table) OnPartitionsRevoked(ctx context.Context, revoked domain.TPSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for tp := range revoked {
		if tp.Topic != t.changelog.TopicName() {
			continue
		}
		if !t.active.Contains(tp) && !t.standby.Contains(tp) {
			continue
		}
		delete(t.active, tp)
		delete(t.standby, tp)
		if err := t.storage.ResetPartition(ctx, tp.Partition); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) OnPartitionsAssigned(ctx context.Context, assigned domain.TPSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for tp := range assigned {
		if tp.Topic != t.changelog.TopicName() {
			continue
		}
		delete(t.standby, tp)
		t.active.Add(tp)
	}
	return nil
}

// PromoteStandby marks a partition as a warm replica rather than an
// actively served one.
func (t *Table) PromoteStandby(tp domain.TP) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active.Contains(tp) {
		return
	}
	t.standby.Add(tp)
}

func (t *Table) ActivePartitions() domain.TPSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := domain.NewTPSet(t.active.Slice()...)
	return res
}

func (t *Table) RunRecoveredCallbacks(ctx context.Context) error {
	t.mu.Lock()
	callbacks := make([]RecoveredCallback, len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetMirror installs the changelog writer. Without one, writes stay local
// and cannot be recovered by replay.
func (t *Table) SetMirror(out output.IOutput) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mirror = out
}

func (t *Table) Get(ctx context.Context, partition int32, key []byte) ([]byte, error) {
	return t.storage.Get(ctx, partition, key)
}

func (t *Table) Set(ctx context.Context, partition int32, key, value []byte) error {
	if err := t.storage.Set(ctx, partition, key, value); err != nil {
		return err
	}
	return t.pushMirror(ctx, partition, key, value)
}

func (t *Table) Del(ctx context.Context, partition int32, key []byte) error {
	if err := t.storage.Del(ctx, partition, key); err != nil {
		return err
	}
	return t.pushMirror(ctx, partition, key, nil)
}

func (t *Table) pushMirror(ctx context.Context, partition int32, key, value []byte) error {
	t.mu.Lock()
	mirror := t.mirror
	t.mu.Unlock()
	if mirror == nil {
		return nil
	}
	return mirror.PushRecord(ctx, domain.Record{
		TP:        domain.TP{Topic: t.changelog.TopicName(), Partition: partition},
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
	})
}
