package recovery

import (
	"context"
	"log"
	"sync"

	"github.com/Shopify/sarama"

	"strom/internal/consumer"
	"strom/internal/domain"
	"strom/internal/metrics"
	"strom/internal/store"
	"strom/internal/table"
)

type IRecovery interface {
	Start(ctx context.Context) error
	Stop() error
	OnRebalance(ctx context.Context, assigned, revoked, newlyAssigned domain.TPSet) error
}

// ICompletionHandler is notified once every active changelog partition has
// been replayed up to its live offset. The table manager implements it.
type ICompletionHandler interface {
	OnRecoveryCompleted(ctx context.Context) error
}

// ITableLocator resolves a changelog topic to the table it mirrors.
type ITableLocator interface {
	ChangelogTable(topic string) (table.ITable, bool)
}

// Coordinator owns the changelog replay. Every rebalance recomputes the set
// of changelog partitions this worker must restore: replays running for
// partitions no longer owned are cancelled, replays for newly owned ones
// are spawned, and completion is signalled exactly once per generation when
// the whole set has caught up with the live highwatermarks. It reads the
// changelog through its own partition consumers, separate from the paused
// group consumption path.
type Coordinator struct {
	client  sarama.Client
	cons    sarama.Consumer
	tables  ITableLocator
	seeker  consumer.ISeekRecorder
	handler ICompletionHandler
	metrics metrics.IMetrics

	mu         sync.Mutex
	started    bool
	generation uint64
	pending    int
	active     map[domain.TP]context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	errChan    chan error
}

type Deps struct {
	Client  sarama.Client
	Cons    sarama.Consumer
	Tables  ITableLocator
	Seeker  consumer.ISeekRecorder
	Handler ICompletionHandler
	Metrics metrics.IMetrics
}

func NewCoordinator(deps Deps) *Coordinator {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &Coordinator{
		client:  deps.Client,
		cons:    deps.Cons,
		tables:  deps.Tables,
		seeker:  deps.Seeker,
		handler: deps.Handler,
		metrics: m,
		active:  make(map[domain.TP]context.CancelFunc),
		errChan: make(chan error, 1),
	}
}

func (r *Coordinator) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true
	return nil
}

func (r *Coordinator) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.generation++
	r.active = make(map[domain.TP]context.CancelFunc)
	r.pending = 0
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	return nil
}

// OnRebalance recomputes the replay set from the full assignment. The
// identical triple the manager received is forwarded here; revoked and
// newly assigned sets are implied by the diff against the running replays.
func (r *Coordinator) OnRebalance(ctx context.Context, assigned, revoked, newlyAssigned domain.TPSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		r.ctx, r.cancel = context.WithCancel(context.Background())
		r.started = true
	}

	r.generation++
	gen := r.generation
	for _, cancel := range r.active {
		cancel()
	}
	r.active = make(map[domain.TP]context.CancelFunc)

	type job struct {
		tp  domain.TP
		tbl table.ITable
	}
	var jobs []job
	for tp := range assigned {
		tbl, ok := r.tables.ChangelogTable(tp.Topic)
		if !ok {
			continue
		}
		jobs = append(jobs, job{tp: tp, tbl: tbl})
	}

	r.pending = len(jobs)
	if r.pending == 0 {
		r.fireCompletion()
		return nil
	}
	for _, j := range jobs {
		replayCtx, cancel := context.WithCancel(r.ctx)
		r.active[j.tp] = cancel
		r.wg.Add(1)
		go r.replay(replayCtx, gen, j.tp, j.tbl)
	}
	return nil
}

func (r *Coordinator) Errors() <-chan error {
	return r.errChan
}

func (r *Coordinator) replay(ctx context.Context, gen uint64, tp domain.TP, tbl table.ITable) {
	defer r.wg.Done()

	storage := tbl.Storage()
	stored, err := storage.Offset(ctx, tp)
	if err != nil {
		r.fail(err)
		return
	}
	highwater, err := r.client.GetOffset(tp.Topic, tp.Partition, sarama.OffsetNewest)
	if err != nil {
		r.fail(err)
		return
	}

	start := stored + 1
	if stored < 0 {
		start = sarama.OffsetOldest
	}
	if highwater == 0 || (stored >= 0 && start >= highwater) {
		r.finish(gen, tp, highwater)
		return
	}

	pc, err := r.cons.ConsumePartition(tp.Topic, tp.Partition, start)
	if err != nil {
		r.fail(err)
		return
	}
	defer pc.AsyncClose()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			rec := domain.Record{
				TP:        tp,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
				Timestamp: msg.Timestamp,
			}
			if err := store.Apply(ctx, storage, rec); err != nil {
				r.fail(err)
				return
			}
			r.metrics.RecordReplayed(tp.Topic)
			if msg.Offset >= highwater-1 {
				r.finish(gen, tp, highwater)
				return
			}
		}
	}
}

// finish records the seek target and retires the replay. A replay
// outliving its generation is superseded: its seek target was computed
// against an assignment that no longer holds, so nothing is recorded.
func (r *Coordinator) finish(gen uint64, tp domain.TP, highwater int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}
	r.seeker.AddSeek(tp, highwater)
	delete(r.active, tp)
	r.pending--
	if r.pending == 0 {
		r.fireCompletion()
	}
}

// fireCompletion is called with r.mu held. Completion is delivered on its
// own goroutine so the coordinator's flow of control never blocks on the
// manager's fan-out barrier.
func (r *Coordinator) fireCompletion() {
	ctx := r.ctx
	go func() {
		if err := r.handler.OnRecoveryCompleted(ctx); err != nil {
			log.Default().Printf("[RECOVERY COMPLETION ERROR] %v", err)
			r.fail(err)
		}
	}()
}

func (r *Coordinator) fail(err error) {
	select {
	case r.errChan <- err:
	default:
	}
	log.Default().Printf("[RECOVERY ERROR] %v", err)
}
