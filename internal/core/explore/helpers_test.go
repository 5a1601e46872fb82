package explore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agenthands/ptgbot/internal/core/equivalence"
	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device/devicetest"
	"github.com/agenthands/ptgbot/internal/journal"
)

// scriptOracle is a deterministic stand-in for every oracle role. Screens of
// the fake device carry distinct abilities, so novelty is never ambiguous.
type scriptOracle struct {
	mu           sync.Mutex
	instructions []string
	candidates   map[string][]string
	reviews      []oracle.Review
	verdict      oracle.Verdict
	verifyErr    error

	nextCalls   int
	returnCalls int
	requests    []oracle.InstructionRequest
}

func (o *scriptOracle) NextInstruction(ctx context.Context, req oracle.InstructionRequest) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextCalls++
	o.requests = append(o.requests, req)
	if len(o.instructions) == 0 {
		return "", errors.New("no instruction scripted")
	}
	next := o.instructions[0]
	o.instructions = o.instructions[1:]
	return next, nil
}

func (o *scriptOracle) JudgeNovelty(ctx context.Context, rec *page.Record, candidates []oracle.Candidate) (oracle.Novelty, error) {
	return oracle.Novelty{IsNew: true, ExistingIndex: -1}, nil
}

func (o *scriptOracle) VerifyTransition(ctx context.Context, before, expected, actual *page.Record) (oracle.Verdict, error) {
	return o.verdict, o.verifyErr
}

func (o *scriptOracle) ReturnInstruction(ctx context.Context, target, current *page.Record, via []event.Event) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.returnCalls++
	return "back", nil
}

func (o *scriptOracle) Candidates(ctx context.Context, rec *page.Record) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.candidates[rec.Ability()], nil
}

func (o *scriptOracle) Describe(ctx context.Context, rec *page.Record) (oracle.Description, error) {
	return oracle.Description{Summary: "screen " + rec.Ability()}, nil
}

func (o *scriptOracle) Review(ctx context.Context, instruction string, before, after *page.Record, actions []string) (oracle.Review, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.reviews) == 0 {
		return oracle.Review{Status: "success"}, nil
	}
	r := o.reviews[0]
	o.reviews = o.reviews[1:]
	return r, nil
}

// tapGrounder treats an instruction as the id of the button to tap, or
// "back". Every instruction takes exactly one action.
type tapGrounder struct {
	dev *devicetest.Fake
}

func (g tapGrounder) NextAction(ctx context.Context, instruction string, rec *page.Record, history []string) (oracle.Action, error) {
	if len(history) > 0 {
		return oracle.Action{Type: oracle.ActionFinished}, nil
	}
	if instruction == "back" {
		return oracle.Action{Type: oracle.ActionBack}, nil
	}
	x, y := g.dev.Center(rec.Ability(), instruction)
	return oracle.Action{Type: oracle.ActionClick, X: x, Y: y}, nil
}

type memJournal struct {
	mu    sync.Mutex
	kinds []journal.Kind
	recs  []journal.Record
}

func (j *memJournal) Append(kind journal.Kind, rec journal.Record) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.kinds = append(j.kinds, kind)
	j.recs = append(j.recs, rec)
	return uint64(len(j.kinds)), nil
}

type rig struct {
	dev        *devicetest.Fake
	oracle     *scriptOracle
	graph      *ptg.Graph
	player     *event.Player
	comparator *equivalence.Comparator
	executor   *Executor
}

func newRig(dev *devicetest.Fake) *rig {
	o := &scriptOracle{candidates: map[string][]string{}}
	player := event.NewPlayer(dev, 0)
	return &rig{
		dev:        dev,
		oracle:     o,
		graph:      ptg.New(),
		player:     player,
		comparator: equivalence.New(o, equivalence.DefaultThresholds(), nil, nil),
		executor:   NewExecutor(dev, tapGrounder{dev: dev}, player, 3, nil),
	}
}

func (r *rig) verifier() *Verifier {
	return &Verifier{
		Device:     r.dev,
		Graph:      r.graph,
		Oracle:     r.oracle,
		Explorer:   r.oracle,
		Describer:  r.oracle,
		Comparator: r.comparator,
		Player:     r.player,
		Executor:   r.executor,
		Retries:    3,
		MaxDepth:   3,
	}
}

// snapshot captures screen without disturbing the fake's position.
func snapshot(t *testing.T, dev *devicetest.Fake, screen string) *page.Record {
	t.Helper()
	cur := dev.Current()
	dev.Goto(screen)
	defer dev.Goto(cur)
	rec, err := dev.Capture(context.Background())
	require.NoError(t, err)
	return rec
}

func tap(t *testing.T, dev *devicetest.Fake, screen, button string) event.Event {
	t.Helper()
	rec := snapshot(t, dev, screen)
	nodes := rec.Tree.Query(uitree.Attrs{uitree.KeyID: button})
	require.NotEmpty(t, nodes)
	return event.Click{Node: nodes[0].Attributes}
}
