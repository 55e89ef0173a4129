package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"strom/internal/channel"
	"strom/internal/config"
	"strom/internal/domain"
	"strom/internal/recovery"
	"strom/internal/store"
	"strom/internal/store/storemem"
	"strom/internal/table"
)

type fakeConsumer struct {
	mu         sync.Mutex
	assignment domain.TPSet
	paused     []domain.TPSet
	resumed    []domain.TPSet
	seeks      int
	onSeek     func()
}

func newFakeConsumer(assigned ...domain.TP) *fakeConsumer {
	return &fakeConsumer{assignment: domain.NewTPSet(assigned...)}
}

func (c *fakeConsumer) Assignment() domain.TPSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.NewTPSet(c.assignment.Slice()...)
}

func (c *fakeConsumer) PausePartitions(tps domain.TPSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = append(c.paused, tps)
}

func (c *fakeConsumer) ResumePartitions(tps domain.TPSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumed = append(c.resumed, tps)
}

func (c *fakeConsumer) PerformSeek() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks++
	if c.onSeek != nil {
		c.onSeek()
	}
	return nil
}

func (c *fakeConsumer) lastPaused() domain.TPSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.paused) == 0 {
		return nil
	}
	return c.paused[len(c.paused)-1]
}

func (c *fakeConsumer) lastResumed() domain.TPSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resumed) == 0 {
		return nil
	}
	return c.resumed[len(c.resumed)-1]
}

type fakeFetcher struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeFetcher) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeFetcher) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

type rebalanceCall struct {
	assigned, revoked, newlyAssigned domain.TPSet
}

type fakeRecovery struct {
	mu         sync.Mutex
	started    int
	stopped    int
	rebalances []rebalanceCall
}

func (r *fakeRecovery) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *fakeRecovery) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return nil
}

func (r *fakeRecovery) OnRebalance(_ context.Context, assigned, revoked, newlyAssigned domain.TPSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebalances = append(r.rebalances, rebalanceCall{assigned, revoked, newlyAssigned})
	return nil
}

type tableEvent struct {
	kind string
	tps  domain.TPSet
}

type fakeTable struct {
	name      string
	changelog *table.ChangelogTopic
	storage   store.ITableStorage

	mu        sync.Mutex
	events    []tableEvent
	starts    int
	stops     int
	recovered int
	onRecover func()
}

func newFakeTable(name, changelogTopic string) *fakeTable {
	return &fakeTable{
		name:      name,
		changelog: table.NewChangelogTopic(changelogTopic, 1),
		storage:   storemem.NewStorage(),
	}
}

func (t *fakeTable) Name() string { return t.name }

func (t *fakeTable) Changelog() *table.ChangelogTopic { return t.changelog }

func (t *fakeTable) Storage() store.ITableStorage { return t.storage }

func (t *fakeTable) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts++
	return nil
}

func (t *fakeTable) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return nil
}

func (t *fakeTable) OnPartitionsRevoked(_ context.Context, revoked domain.TPSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, tableEvent{kind: "revoked", tps: revoked})
	return nil
}

func (t *fakeTable) OnPartitionsAssigned(_ context.Context, assigned domain.TPSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, tableEvent{kind: "assigned", tps: assigned})
	return nil
}

func (t *fakeTable) RunRecoveredCallbacks(context.Context) error {
	if t.onRecover != nil {
		t.onRecover()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recovered++
	return nil
}

type env struct {
	manager         *TableManager
	consumer        *fakeConsumer
	fetcher         *fakeFetcher
	recovery        *fakeRecovery
	factoryCalls    int32
	factoryHandlers []recovery.ICompletionHandler
}

func newEnv(t *testing.T, cons *fakeConsumer) *env {
	t.Helper()
	e := &env{
		consumer: cons,
		fetcher:  &fakeFetcher{},
		recovery: &fakeRecovery{},
	}
	e.manager = NewTableManager(Deps{
		Consumer: cons,
		Fetcher:  e.fetcher,
		Registry: channel.NewRegistry(),
		NewRecovery: func(h recovery.ICompletionHandler) recovery.IRecovery {
			atomic.AddInt32(&e.factoryCalls, 1)
			e.factoryHandlers = append(e.factoryHandlers, h)
			return e.recovery
		},
		Cfg: config.ManagerConfig{
			StartupGrace:  time.Millisecond,
			BufferMaxSize: 16,
		},
	})
	return e
}

func TestTableManager_AddRegistersChangelogs(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	t1 := newFakeTable("orders", "orders-changelog")
	t2 := newFakeTable("payments", "payments-changelog")

	got, err := e.manager.Add(t1)
	require.NoError(t, err)
	require.Same(t, table.ITable(t1), got)
	_, err = e.manager.Add(t2)
	require.NoError(t, err)

	require.Equal(t, []string{"orders-changelog", "payments-changelog"}, e.manager.ChangelogTopics())
	require.True(t, e.manager.Contains("orders"))
	require.Equal(t, []string{"orders", "payments"}, e.manager.Names())

	found, ok := e.manager.Get("payments")
	require.True(t, ok)
	require.Same(t, table.ITable(t2), found)
}

func TestTableManager_AddDuplicateNameFails(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	_, err := e.manager.Add(newFakeTable("orders", "orders-changelog"))
	require.NoError(t, err)

	_, err = e.manager.Add(newFakeTable("orders", "other-changelog"))
	require.ErrorIs(t, err, domain.ErrorTableAlreadyRegistered)

	// State unchanged: the rejected changelog topic is not indexed.
	require.Equal(t, []string{"orders-changelog"}, e.manager.ChangelogTopics())
}

func TestTableManager_AddAfterRebalanceFails(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	_, err := e.manager.Add(newFakeTable("orders", "orders-changelog"))
	require.NoError(t, err)

	err = e.manager.OnRebalance(context.Background(), domain.NewTPSet(), domain.NewTPSet(), domain.NewTPSet())
	require.NoError(t, err)

	_, err = e.manager.Add(newFakeTable("payments", "payments-changelog"))
	require.ErrorIs(t, err, domain.ErrorTooLateForRegistration)
}

func TestTableManager_ChangelogQueueSingleton(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	q := e.manager.ChangelogQueue()
	require.NotNil(t, q)
	require.Same(t, q, e.manager.ChangelogQueue())
}

func TestTableManager_RecoverySingletonBuiltOnFirstAccess(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	require.Equal(t, int32(0), atomic.LoadInt32(&e.factoryCalls))

	rec := e.manager.Recovery()
	require.Equal(t, int32(1), atomic.LoadInt32(&e.factoryCalls))
	require.Same(t, recovery.IRecovery(e.recovery), rec)
	require.Same(t, rec, e.manager.Recovery())
	require.Equal(t, int32(1), atomic.LoadInt32(&e.factoryCalls))
}

func TestTableManager_OnStartWiresChannelsAndStartsRecovery(t *testing.T) {
	changelogTP := domain.TP{Topic: "orders-changelog", Partition: 0}
	liveTP := domain.TP{Topic: "orders", Partition: 0}
	e := newEnv(t, newFakeConsumer(changelogTP, liveTP))

	tbl := newFakeTable("orders", "orders-changelog")
	_, err := e.manager.Add(tbl)
	require.NoError(t, err)

	require.NoError(t, e.manager.OnStart(context.Background()))

	// Exactly the assigned changelog partition is paused.
	require.Equal(t, domain.NewTPSet(changelogTP), e.consumer.lastPaused())
	require.Equal(t, 1, tbl.starts)
	require.Equal(t, 1, e.recovery.started)
}

func TestTableManager_RevokeBeforeAssignPerTable(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	tbl := newFakeTable("orders", "orders-changelog")
	_, err := e.manager.Add(tbl)
	require.NoError(t, err)

	p1 := domain.TP{Topic: "orders-changelog", Partition: 1}
	p2 := domain.TP{Topic: "orders-changelog", Partition: 2}
	err = e.manager.OnRebalance(context.Background(),
		domain.NewTPSet(p2), domain.NewTPSet(p1), domain.NewTPSet(p2))
	require.NoError(t, err)

	require.Len(t, tbl.events, 2)
	require.Equal(t, "revoked", tbl.events[0].kind)
	require.Equal(t, domain.NewTPSet(p1), tbl.events[0].tps)
	require.Equal(t, "assigned", tbl.events[1].kind)
	require.Equal(t, domain.NewTPSet(p2), tbl.events[1].tps)
}

func TestTableManager_RebalanceForwardsTripleToRecovery(t *testing.T) {
	changelogTP := domain.TP{Topic: "orders-changelog", Partition: 0}
	e := newEnv(t, newFakeConsumer(changelogTP))
	_, err := e.manager.Add(newFakeTable("orders", "orders-changelog"))
	require.NoError(t, err)

	assigned := domain.NewTPSet(changelogTP)
	revoked := domain.NewTPSet()
	newly := domain.NewTPSet(changelogTP)
	require.NoError(t, e.manager.OnRebalance(context.Background(), assigned, revoked, newly))

	require.Len(t, e.recovery.rebalances, 1)
	call := e.recovery.rebalances[0]
	require.Equal(t, assigned, call.assigned)
	require.Equal(t, revoked, call.revoked)
	require.Equal(t, newly, call.newlyAssigned)
}

func TestTableManager_RepeatedRebalanceIsIdempotentForWiring(t *testing.T) {
	changelogTP := domain.TP{Topic: "orders-changelog", Partition: 0}
	e := newEnv(t, newFakeConsumer(changelogTP))
	tbl := newFakeTable("orders", "orders-changelog")
	_, err := e.manager.Add(tbl)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.manager.OnRebalance(context.Background(),
			domain.NewTPSet(changelogTP), domain.NewTPSet(), domain.NewTPSet()))
	}
	// Table started on each wiring pass without re-registering channels.
	require.Equal(t, 3, tbl.starts)
	require.Len(t, e.recovery.rebalances, 3)
}

func TestTableManager_RecoveryCompletedBarrierBeforeSeek(t *testing.T) {
	cons := newFakeConsumer()
	e := newEnv(t, cons)

	const n = 5
	var completed int32
	cons.onSeek = func() {
		require.Equal(t, int32(n), atomic.LoadInt32(&completed),
			"PerformSeek ran before all recovered callbacks completed")
	}
	for i := 0; i < n; i++ {
		tbl := newFakeTable(string(rune('a'+i)), string(rune('a'+i))+"-changelog")
		tbl.onRecover = func() {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&completed, 1)
		}
		_, err := e.manager.Add(tbl)
		require.NoError(t, err)
	}

	require.NoError(t, e.manager.OnRecoveryCompleted(context.Background()))
	require.Equal(t, 1, cons.seeks)
}

func TestTableManager_ResumeExcludesChangelogPartitions(t *testing.T) {
	changelogTP := domain.TP{Topic: "orders-changelog", Partition: 0}
	liveTP := domain.TP{Topic: "orders", Partition: 0}
	e := newEnv(t, newFakeConsumer(changelogTP, liveTP))
	_, err := e.manager.Add(newFakeTable("orders", "orders-changelog"))
	require.NoError(t, err)

	require.NoError(t, e.manager.OnRecoveryCompleted(context.Background()))
	require.Equal(t, domain.NewTPSet(liveTP), e.consumer.lastResumed())
	require.Equal(t, 1, e.fetcher.started)
}

func TestTableManager_DrainsBufferedChangelogRecords(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, newFakeConsumer())
	tbl := newFakeTable("orders", "orders-changelog")
	_, err := e.manager.Add(tbl)
	require.NoError(t, err)

	require.NoError(t, e.manager.OnStart(ctx))

	tp := domain.TP{Topic: "orders-changelog", Partition: 0}
	require.NoError(t, e.manager.ChangelogQueue().Put(ctx,
		domain.Record{TP: tp, Offset: 7, Key: []byte("k"), Value: []byte("v")}))

	require.Eventually(t, func() bool {
		v, err := tbl.storage.Get(ctx, 0, []byte("k"))
		return err == nil && v != nil
	}, time.Second, 5*time.Millisecond)

	off, err := tbl.storage.Offset(ctx, tp)
	require.NoError(t, err)
	require.Equal(t, int64(7), off)

	require.NoError(t, e.manager.OnStop(ctx))
}

func TestTableManager_QueuePausedAcrossRecoveryWindow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, newFakeConsumer())
	_, err := e.manager.Add(newFakeTable("orders", "orders-changelog"))
	require.NoError(t, err)

	require.NoError(t, e.manager.OnRebalance(ctx,
		domain.NewTPSet(), domain.NewTPSet(), domain.NewTPSet()))
	require.True(t, e.manager.ChangelogQueue().Paused())

	// Records buffered inside the window are stale once replay has run
	// past them; completion truncates the buffer before reopening it.
	require.NoError(t, e.manager.ChangelogQueue().Put(ctx,
		domain.Record{TP: domain.TP{Topic: "orders-changelog", Partition: 0}, Offset: 1}))
	require.NoError(t, e.manager.OnRecoveryCompleted(ctx))
	require.False(t, e.manager.ChangelogQueue().Paused())
	require.Equal(t, 0, e.manager.ChangelogQueue().Size())

	require.NoError(t, e.manager.OnStop(ctx))
}

func TestTableManager_RecoveryCompletedLatchObservableByWaiter(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	require.False(t, e.manager.RecoveryCompleted().IsSet())

	woke := make(chan struct{})
	go func() {
		<-e.manager.RecoveryCompleted().Done()
		close(woke)
	}()

	require.NoError(t, e.manager.OnRecoveryCompleted(context.Background()))
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter missed the recoveryCompleted wakeup")
	}

	// A second completion leaves the latch set.
	require.NoError(t, e.manager.OnRecoveryCompleted(context.Background()))
	require.True(t, e.manager.RecoveryCompleted().IsSet())
}

func TestTableManager_OnStopOrder(t *testing.T) {
	e := newEnv(t, newFakeConsumer())
	tbl := newFakeTable("orders", "orders-changelog")
	_, err := e.manager.Add(tbl)
	require.NoError(t, err)

	// Recovery never built: OnStop must not construct it just to stop it.
	require.NoError(t, e.manager.OnStop(context.Background()))
	require.Equal(t, 1, e.fetcher.stopped)
	require.Equal(t, 0, e.recovery.stopped)
	require.Equal(t, int32(0), atomic.LoadInt32(&e.factoryCalls))
	require.Equal(t, 1, tbl.stops)

	// Once built, it is stopped.
	e.manager.Recovery()
	require.NoError(t, e.manager.OnStop(context.Background()))
	require.Equal(t, 1, e.recovery.stopped)
}

func TestTableManager_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	changelogTP := domain.TP{Topic: "orders-changelog", Partition: 0}
	cons := newFakeConsumer(changelogTP)
	e := newEnv(t, cons)

	tbl := newFakeTable("orders", "orders-changelog")
	_, err := e.manager.Add(tbl)
	require.NoError(t, err)

	assigned := domain.NewTPSet(changelogTP)
	require.NoError(t, e.manager.OnRebalance(ctx, assigned, domain.NewTPSet(), assigned))

	require.True(t, e.manager.Rebalancing())
	require.True(t, e.manager.RecoveryStarted().IsSet())
	require.Equal(t, domain.NewTPSet(changelogTP), cons.lastPaused())
	require.Len(t, e.recovery.rebalances, 1)
	require.Equal(t, assigned, e.recovery.rebalances[0].assigned)

	// Recovery signals completion, as the coordinator would.
	handler := e.factoryHandlers[0]
	require.NoError(t, handler.OnRecoveryCompleted(ctx))

	require.Equal(t, 1, tbl.recovered)
	require.Equal(t, 1, cons.seeks)
	// The only assigned partition is a changelog partition, so the resume
	// set is empty.
	require.Empty(t, cons.lastResumed())
	require.Equal(t, 1, e.fetcher.started)
	require.True(t, e.manager.RecoveryCompleted().IsSet())
	require.False(t, e.manager.Rebalancing())
}
