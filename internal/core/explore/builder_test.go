package explore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/device/devicetest"
	"github.com/agenthands/ptgbot/internal/journal"
)

func appWithScreens(names ...string) *devicetest.Fake {
	dev := devicetest.New("com.demo", names[0])
	for _, n := range names {
		dev.AddScreen(n, "ok")
	}
	return dev
}

func TestBuilderOrderingAfterWaitIdle(t *testing.T) {
	dev := appWithScreens("Home", "A", "B")
	r := newRig(dev)
	j := &memJournal{}
	b := NewBuilder(r.graph, r.comparator, r.oracle, j, nil, nil)
	b.Start(context.Background())
	defer b.Stop()

	steps := []Transition{
		{Record: snapshot(t, dev, "Home")},
		{Operation: "op1", Events: []event.Event{tap(t, dev, "Home", "ok")}, Record: snapshot(t, dev, "A")},
		{Operation: "op2", Events: []event.Event{tap(t, dev, "A", "ok")}, Record: snapshot(t, dev, "Home")},
		{Operation: "op3", Events: []event.Event{tap(t, dev, "Home", "ok")}, Record: snapshot(t, dev, "B")},
		{Operation: "op4", Events: []event.Event{tap(t, dev, "B", "ok")}, Record: snapshot(t, dev, "Home")},
	}
	for _, s := range steps {
		require.NoError(t, b.Enqueue(s))
	}
	b.WaitIdle()

	require.Equal(t, 3, r.graph.Len())
	home, _ := r.graph.Page(0)
	assert.Equal(t, []ptg.Operation{{Description: "op1", Dest: 1}, {Description: "op3", Dest: 2}}, home.Operations)
	assert.Equal(t, "screen Home", home.Summary)
	a, _ := r.graph.Page(1)
	assert.Equal(t, []ptg.Operation{{Description: "op2", Dest: 0}}, a.Operations)
	assert.Len(t, r.graph.Edges(), 4)
	assert.Equal(t, 0, b.Current())
	assert.Equal(t, []string{"Home", "A", "B"}, b.Abilities())
	assert.Equal(t, []journal.Kind{
		journal.KindNewPage, journal.KindNewPage, journal.KindKnownPage, journal.KindNewPage, journal.KindKnownPage,
	}, j.kinds)
}

func TestBuilderNeverDuplicatesIdenticalObservation(t *testing.T) {
	dev := appWithScreens("Home")
	r := newRig(dev)
	b := NewBuilder(r.graph, r.comparator, nil, nil, nil, nil)
	b.Start(context.Background())
	defer b.Stop()

	require.NoError(t, b.Enqueue(Transition{Record: snapshot(t, dev, "Home")}))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Enqueue(Transition{Operation: "tap title", Record: snapshot(t, dev, "Home")}))
	}
	b.WaitIdle()

	assert.Equal(t, 1, r.graph.Len())
	home, _ := r.graph.Page(0)
	assert.Len(t, home.Operations, 3)
	assert.Equal(t, ptg.Ineffective, home.Operations[0].Dest)
	assert.Empty(t, r.graph.Edges())
}

type slowDescriber struct {
	delay   time.Duration
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (d *slowDescriber) Describe(ctx context.Context, rec *page.Record) (oracle.Description, error) {
	if d.entered != nil {
		d.once.Do(func() { close(d.entered) })
	}
	if d.gate != nil {
		<-d.gate
	}
	time.Sleep(d.delay)
	return oracle.Description{Summary: rec.Ability()}, nil
}

func TestBuilderStopDrainsBacklog(t *testing.T) {
	names := []string{"P0", "P1", "P2", "P3", "P4"}
	dev := appWithScreens(names...)
	r := newRig(dev)
	b := NewBuilder(r.graph, r.comparator, &slowDescriber{delay: 5 * time.Millisecond}, nil, nil, nil)
	b.Start(context.Background())

	for _, n := range names {
		require.NoError(t, b.Enqueue(Transition{Operation: "go " + n, Record: snapshot(t, dev, n)}))
	}
	b.Stop()

	assert.Equal(t, 5, r.graph.Len())
	assert.ErrorIs(t, b.Enqueue(Transition{Record: snapshot(t, dev, "P0")}), ErrStopped)
	b.Stop()
}

func TestBuilderCancelDiscardsBacklog(t *testing.T) {
	names := []string{"P0", "P1", "P2", "P3", "P4"}
	dev := appWithScreens(names...)
	r := newRig(dev)
	gate, entered := make(chan struct{}), make(chan struct{})
	b := NewBuilder(r.graph, r.comparator, &slowDescriber{gate: gate, entered: entered}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)

	for _, n := range names {
		require.NoError(t, b.Enqueue(Transition{Record: snapshot(t, dev, n)}))
	}
	<-entered
	cancel()
	close(gate)

	done := make(chan struct{})
	go func() {
		b.WaitIdle()
		b.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop deadlocked")
	}
	assert.Equal(t, 1, r.graph.Len())
}

func TestWaitIdleBeforeStart(t *testing.T) {
	r := newRig(appWithScreens("Home"))
	b := NewBuilder(r.graph, r.comparator, nil, nil, nil, nil)
	b.WaitIdle()
	b.Stop()
	assert.Equal(t, -1, b.Current())
}
