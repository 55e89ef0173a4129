package manager

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"strom/internal/channel"
	"strom/internal/config"
	"strom/internal/consumer"
	"strom/internal/domain"
	"strom/internal/fetcher"
	"strom/internal/latch"
	"strom/internal/metrics"
	"strom/internal/recovery"
	"strom/internal/store"
	"strom/internal/table"
)

// RecoveryFactory builds the recovery coordinator once, on first access.
// The manager hands itself in as the completion handler.
type RecoveryFactory func(handler recovery.ICompletionHandler) recovery.IRecovery

// TableManager owns every locally registered table, wires their changelogs
// into the rebalance protocol, and sequences recovery so live input is
// never applied against unrestored state. Registration is only valid
// strictly before the first rebalance; within a rebalance each table sees
// revoke before assign; recovery completion runs the full table callback
// barrier before any seek, resume, or fetcher restart.
type TableManager struct {
	consumer    consumer.IConsumer
	fetcher     fetcher.IFetcher
	registry    channel.IRegistry
	metrics     metrics.IMetrics
	newRecovery RecoveryFactory
	cfg         config.ManagerConfig

	mu         sync.Mutex
	tables     map[string]table.ITable
	changelogs map[string]table.ITable
	channels   map[string]*channel.Channel

	queueOnce sync.Once
	queue     *channel.FlowControlQueue

	drainOnce   sync.Once
	drainCancel context.CancelFunc

	recoveryOnce  sync.Once
	recoveryBuilt atomic.Bool
	recovery      recovery.IRecovery

	recoveryStarted   *latch.Latch
	recoveryCompleted *latch.Latch
	rebalancing       atomic.Bool
}

type Deps struct {
	Consumer    consumer.IConsumer
	Fetcher     fetcher.IFetcher
	Registry    channel.IRegistry
	Metrics     metrics.IMetrics
	NewRecovery RecoveryFactory
	Cfg         config.ManagerConfig
}

func NewTableManager(deps Deps) *TableManager {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &TableManager{
		consumer:          deps.Consumer,
		fetcher:           deps.Fetcher,
		registry:          deps.Registry,
		metrics:           m,
		newRecovery:       deps.NewRecovery,
		cfg:               deps.Cfg,
		tables:            make(map[string]table.ITable),
		changelogs:        make(map[string]table.ITable),
		channels:          make(map[string]*channel.Channel),
		recoveryStarted:   latch.New(),
		recoveryCompleted: latch.New(),
	}
}

// Add registers a table. It fails once the first rebalance has been
// observed: partition ownership is already being negotiated by then and a
// late table would never get a consistent pause/recover/resume window.
func (m *TableManager) Add(t table.ITable) (table.ITable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recoveryStarted.IsSet() {
		return nil, domain.ErrorTooLateForRegistration
	}
	if _, ok := m.tables[t.Name()]; ok {
		return nil, fmt.Errorf("table %s: %w", t.Name(), domain.ErrorTableAlreadyRegistered)
	}
	m.tables[t.Name()] = t
	m.changelogs[t.Changelog().TopicName()] = t
	m.metrics.TableRegistered()
	return t, nil
}

// ChangelogQueue returns the single flow-controlled queue shared by all
// changelog channels, building it on first access.
func (m *TableManager) ChangelogQueue() *channel.FlowControlQueue {
	m.queueOnce.Do(func() {
		m.queue = channel.NewFlowControlQueue(m.cfg.BufferMaxSize, true)
	})
	return m.queue
}

// Recovery returns the recovery coordinator, constructing it exactly once
// per manager lifetime.
func (m *TableManager) Recovery() recovery.IRecovery {
	m.recoveryOnce.Do(func() {
		m.recovery = m.newRecovery(m)
		m.recoveryBuilt.Store(true)
	})
	return m.recovery
}

func (m *TableManager) OnStart(ctx context.Context) error {
	select {
	case <-time.After(m.cfg.StartupGrace):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := m.updateChannels(ctx); err != nil {
		return err
	}
	return m.Recovery().Start(ctx)
}

func (m *TableManager) OnStop(ctx context.Context) error {
	if err := m.fetcher.Stop(); err != nil {
		return err
	}
	m.mu.Lock()
	drainCancel := m.drainCancel
	m.mu.Unlock()
	if drainCancel != nil {
		drainCancel()
	}
	if rec := m.builtRecovery(); rec != nil {
		if err := rec.Stop(); err != nil {
			return err
		}
	}
	for _, t := range m.sortedTables() {
		if err := t.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// updateChannels wires a channel for every table that lacks one, starts
// the tables, and pauses consumption on the assigned changelog partitions
// so the normal consumption path cannot race recovery's own replay path.
// Safe to run repeatedly; wired tables are skipped.
func (m *TableManager) updateChannels(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, t := range m.tables {
		if _, ok := m.channels[name]; !ok {
			ch := t.Changelog().CloneUsingQueue(m.ChangelogQueue())
			if err := m.registry.Register(ch); err != nil {
				return err
			}
			m.channels[name] = ch
		}
		if err := t.Start(); err != nil {
			return err
		}
	}
	m.startDrain()

	paused := domain.NewTPSet()
	for tp := range m.consumer.Assignment() {
		if _, ok := m.changelogs[tp.Topic]; ok {
			paused.Add(tp)
		}
	}
	m.consumer.PausePartitions(paused)
	return nil
}

// OnRebalance is invoked on every group generation change. The first call
// permanently locks out registration.
func (m *TableManager) OnRebalance(ctx context.Context, assigned, revoked, newlyAssigned domain.TPSet) error {
	m.rebalancing.Store(true)
	m.recoveryStarted.Set()
	m.metrics.RebalanceObserved()
	// Buffered records are superseded by the replay recovery is about to
	// run; the drain stays gated until completion truncates the buffer.
	m.ChangelogQueue().Pause()

	for _, t := range m.sortedTables() {
		if err := t.OnPartitionsRevoked(ctx, revoked); err != nil {
			return err
		}
		if err := t.OnPartitionsAssigned(ctx, newlyAssigned); err != nil {
			return err
		}
	}

	if err := m.updateChannels(ctx); err != nil {
		return err
	}
	return m.Recovery().OnRebalance(ctx, assigned, revoked, newlyAssigned)
}

// OnRecoveryCompleted is called by the recovery coordinator once replay has
// caught every changelog partition up to its live offset. All table
// callbacks complete before the seek/resume/restart sequence runs.
func (m *TableManager) OnRecoveryCompleted(ctx context.Context) error {
	log.Default().Println("[RESTORE COMPLETE]")

	tables := m.sortedTables()
	errChan := make(chan error, len(tables))
	var wg sync.WaitGroup
	for _, t := range tables {
		wg.Add(1)
		go func(t table.ITable) {
			defer wg.Done()
			errChan <- t.RunRecoveredCallbacks(ctx)
		}(t)
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return err
		}
	}

	if err := m.consumer.PerformSeek(); err != nil {
		return err
	}
	m.recoveryCompleted.Set()
	m.metrics.RecoveryCompleted()
	m.ChangelogQueue().Resume()
	m.metrics.ObserveQueueDepth(m.ChangelogQueue().Size())

	resumed := domain.NewTPSet()
	for tp := range m.consumer.Assignment() {
		if !m.isChangelogTP(tp) {
			resumed.Add(tp)
		}
	}
	m.consumer.ResumePartitions(resumed)

	if err := m.fetcher.Start(ctx); err != nil {
		return err
	}
	m.rebalancing.Store(false)
	log.Default().Println("[WORKER READY]")
	return nil
}

// startDrain spawns the loop consuming the shared changelog queue. Runs
// once per manager lifetime; OnStop cancels it. Callers hold m.mu.
func (m *TableManager) startDrain() {
	m.drainOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.drainCancel = cancel
		go m.drainChangelog(ctx)
	})
}

// drainChangelog applies buffered changelog records to the owning table's
// storage. The queue gates Get while a recovery window is open, so no
// record passes through here while replay owns the changelog partitions.
func (m *TableManager) drainChangelog(ctx context.Context) {
	q := m.ChangelogQueue()
	for {
		rec, err := q.Get(ctx)
		if err != nil {
			return
		}
		t, ok := m.ChangelogTable(rec.TP.Topic)
		if !ok {
			log.Default().Printf("[DROPPED CHANGELOG RECORD] no table for topic %s", rec.TP.Topic)
			continue
		}
		if err := store.Apply(ctx, t.Storage(), rec); err != nil {
			log.Default().Printf("[CHANGELOG APPLY ERROR] %v", err)
		}
		m.metrics.ObserveQueueDepth(q.Size())
	}
}

func (m *TableManager) Get(name string) (table.ITable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	return t, ok
}

func (m *TableManager) Contains(name string) bool {
	_, ok := m.Get(name)
	return ok
}

func (m *TableManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *TableManager) ChangelogTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.changelogs))
	for topic := range m.changelogs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// ChangelogTable resolves a changelog topic to the table it mirrors.
func (m *TableManager) ChangelogTable(topic string) (table.ITable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.changelogs[topic]
	return t, ok
}

// RecoveryStarted is set by the first rebalance and never cleared.
func (m *TableManager) RecoveryStarted() *latch.Latch {
	return m.recoveryStarted
}

// RecoveryCompleted is set by the first successful recovery and never
// cleared; it answers "has recovery ever completed".
func (m *TableManager) RecoveryCompleted() *latch.Latch {
	return m.recoveryCompleted
}

func (m *TableManager) Rebalancing() bool {
	return m.rebalancing.Load()
}

func (m *TableManager) isChangelogTP(tp domain.TP) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.changelogs[tp.Topic]
	return ok
}

// builtRecovery reports the coordinator only if it was ever constructed,
// so OnStop does not build one just to stop it.
func (m *TableManager) builtRecovery() recovery.IRecovery {
	if !m.recoveryBuilt.Load() {
		return nil
	}
	return m.recovery
}

func (m *TableManager) sortedTables() []table.ITable {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	res := make([]table.ITable, 0, len(names))
	for _, name := range names {
		res = append(res, m.tables[name])
	}
	return res
}
