package explore

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/equivalence"
	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/journal"
	"github.com/agenthands/ptgbot/internal/metrics"
)

var ErrStopped = errors.New("builder stopped")

// Transition is one driver step handed to the builder: the operation that was
// performed, its events and the observation it produced. A transition with
// no operation only positions the builder on the observed page.
type Transition struct {
	Operation string
	Events    []event.Event
	Record    *page.Record
}

// Journal receives every graph mutation. *journal.Journal implements it.
type Journal interface {
	Append(kind journal.Kind, rec journal.Record) (uint64, error)
}

// Builder is the single background worker that turns transitions into graph
// updates. One mutex guards the queue, the busy flag and the stop flag; the
// condition variable is broadcast on every queue, idle or shutdown change.
type Builder struct {
	Graph      *ptg.Graph
	Comparator *equivalence.Comparator
	Describer  oracle.Describer
	Journal    Journal
	Logger     *zap.Logger
	Metrics    *metrics.Registry

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Transition
	busy      bool
	started   bool
	stopping  bool
	exited    bool
	current   int
	abilities []string
	seen      map[string]bool
	done      chan struct{}
}

func NewBuilder(g *ptg.Graph, cmp *equivalence.Comparator, describer oracle.Describer, j Journal, logger *zap.Logger, m *metrics.Registry) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		Graph:      g,
		Comparator: cmp,
		Describer:  describer,
		Journal:    j,
		Logger:     logger,
		Metrics:    m,
		current:    -1,
		seen:       make(map[string]bool),
		done:       make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	if g.Len() > 0 {
		b.current = 0
	}
	return b
}

// Start launches the worker. Cancelling ctx makes the worker discard its
// backlog and exit.
func (b *Builder) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	go func() {
		defer close(b.done)
		defer stop()
		b.run(ctx)
	}()
}

func (b *Builder) run(ctx context.Context) {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopping && ctx.Err() == nil {
			b.cond.Wait()
		}
		if ctx.Err() != nil || (b.stopping && len(b.queue) == 0) {
			if n := len(b.queue); n > 0 {
				b.Logger.Warn("discarding queued transitions", zap.Int("count", n), zap.Error(ctx.Err()))
			}
			b.queue = nil
			b.exited = true
			b.Metrics.SetQueueDepth(0)
			b.cond.Broadcast()
			b.mu.Unlock()
			return
		}
		t := b.queue[0]
		b.queue = b.queue[1:]
		b.busy = true
		b.Metrics.SetQueueDepth(len(b.queue))
		b.mu.Unlock()

		b.process(ctx, t)

		b.mu.Lock()
		b.busy = false
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

// Enqueue hands a transition to the worker.
func (b *Builder) Enqueue(t Transition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping || b.exited {
		return ErrStopped
	}
	b.queue = append(b.queue, t)
	b.Metrics.SetQueueDepth(len(b.queue))
	b.cond.Broadcast()
	return nil
}

// WaitIdle blocks until the queue is empty and the worker is idle, or the
// worker has exited.
func (b *Builder) WaitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	for !b.exited && (len(b.queue) > 0 || b.busy) {
		b.cond.Wait()
	}
}

// Stop drains the queue, unless the run context is already cancelled, and
// joins the worker. It is safe to call more than once.
func (b *Builder) Stop() {
	b.mu.Lock()
	b.stopping = true
	started := b.started
	b.cond.Broadcast()
	b.mu.Unlock()
	if started {
		<-b.done
	}
}

// Current is the index of the page the last transition landed on, or -1.
func (b *Builder) Current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Abilities lists every ability seen, in discovery order.
func (b *Builder) Abilities() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.abilities...)
}

func (b *Builder) process(ctx context.Context, t Transition) {
	start := time.Now()
	src := b.Current()

	idx, isNew := b.Comparator.Resolve(ctx, t.Record, equivalence.FromGraph(b.Graph))
	kind := journal.KindKnownPage
	if isNew {
		idx = b.Graph.AddPage(t.Record).Index
		kind = journal.KindNewPage
		describePage(ctx, b.Describer, b.Graph, idx, t.Record, b.Logger)
	}

	dst := idx
	if src >= 0 && t.Operation != "" {
		if idx == src {
			dst = ptg.Ineffective
			kind = journal.KindIneffective
		} else if len(t.Events) > 0 {
			if err := b.Graph.SetEdge(src, idx, t.Events); err != nil {
				b.Logger.Error("failed to record edge", zap.Int("src", src), zap.Int("dst", idx), zap.Error(err))
			}
		}
		if err := b.Graph.AddOperation(src, t.Operation, dst); err != nil {
			b.Logger.Error("failed to record operation", zap.Int("src", src), zap.Error(err))
		}
	}

	b.mu.Lock()
	b.current = idx
	if a := t.Record.Ability(); a != "" && !b.seen[a] {
		b.seen[a] = true
		b.abilities = append(b.abilities, a)
	}
	b.mu.Unlock()

	if b.Journal != nil {
		rec := journal.Record{Src: src, Dst: dst, Operation: t.Operation, Ability: t.Record.Ability(), Events: t.Events}
		if _, err := b.Journal.Append(kind, rec); err != nil {
			b.Logger.Warn("journal append failed", zap.Error(err))
		}
	}
	b.Metrics.RecordTransition(kind.String(), time.Since(start))
	b.Metrics.UpdateGraphMetrics(b.Graph.Len(), len(b.Graph.Edges()))
	b.Logger.Debug("transition recorded",
		zap.Int("src", src),
		zap.Int("dst", idx),
		zap.String("kind", kind.String()),
		zap.String("operation", t.Operation),
	)
}

// describePage attaches the oracle's description to a new page. Failures
// leave the page undescribed.
func describePage(ctx context.Context, d oracle.Describer, g *ptg.Graph, idx int, rec *page.Record, logger *zap.Logger) {
	if d == nil {
		return
	}
	desc, err := d.Describe(ctx, rec)
	if err != nil {
		logger.Warn("page description failed", zap.Int("page", idx), zap.Error(err))
		return
	}
	_ = g.Describe(idx, desc.Summary, desc.Widgets, desc.Functions)
}
