package explore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/equivalence"
	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/device"
	"github.com/agenthands/ptgbot/internal/journal"
	"github.com/agenthands/ptgbot/internal/metrics"
)

var ErrIncompleteVerifier = errors.New("verifier needs a device, graph, oracle, comparator, player and executor")

type Outcome string

const (
	Match     Outcome = "MATCH"
	NoChange  Outcome = "NO_CHANGE"
	WrongPage Outcome = "WRONG_PAGE"
	// Failed means the recorded events could not be replayed at all.
	Failed Outcome = "FAILED"
)

type EdgeResult struct {
	Src      int     `json:"src"`
	Dst      int     `json:"dst"`
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts"`
	// Landed is the page a WRONG_PAGE replay ended on.
	Landed   int  `json:"landed"`
	Explored bool `json:"explored,omitempty"`
}

// Result is the record of one verification run.
type Result struct {
	Edges   []EdgeResult `json:"edges"`
	Added   []int        `json:"added_pages"`
	Visited []int        `json:"visited"`
}

func (r *Result) Count(o Outcome) int {
	n := 0
	for _, e := range r.Edges {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// Verifier replays a recorded graph against a live device depth first,
// repairing drift and exploring pages that have no recorded edges.
type Verifier struct {
	Device     device.Device
	Graph      *ptg.Graph
	Oracle     oracle.Oracle
	Explorer   oracle.Explorer
	Describer  oracle.Describer
	Comparator *equivalence.Comparator
	Player     *event.Player
	Executor   *Executor
	Retries    int
	MaxDepth   int
	Journal    Journal
	Logger     *zap.Logger
	Metrics    *metrics.Registry

	result  *Result
	visited map[int]bool
}

type frame struct {
	page    int
	parent  int
	via     []event.Event
	targets []int
	next    int
	entered bool
	// arrived is set when the edge into page was just verified.
	arrived bool
}

// Verify walks the graph from anchor. Only device failures abort the walk;
// everything else is recorded in the result and the walk moves on.
// Device, Graph, Oracle, Comparator, Player and Executor are required.
func (v *Verifier) Verify(ctx context.Context, anchor int) (*Result, error) {
	if v.Logger == nil {
		v.Logger = zap.NewNop()
	}
	if v.Device == nil || v.Graph == nil || v.Oracle == nil || v.Comparator == nil || v.Player == nil || v.Executor == nil {
		return nil, ErrIncompleteVerifier
	}
	if _, ok := v.Graph.Page(anchor); !ok {
		return nil, fmt.Errorf("%w: anchor %d", ptg.ErrUnknownIndex, anchor)
	}
	v.result = &Result{}
	v.visited = make(map[int]bool)

	stack := []*frame{{page: anchor, parent: -1}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			v.Logger.Info("verification stopped", zap.Error(err))
			break
		}
		f := stack[len(stack)-1]
		if !f.entered {
			f.entered = true
			if err := v.enter(ctx, f); err != nil {
				return v.result, err
			}
		}
		if f.next >= len(f.targets) {
			stack = stack[:len(stack)-1]
			if f.parent >= 0 {
				v.returnTo(ctx, f.parent, f.via)
			}
			continue
		}

		dst := f.targets[f.next]
		f.next++
		if v.visited[dst] {
			continue
		}
		outcome, events, err := v.verifyEdge(ctx, f.page, dst)
		if err != nil {
			return v.result, err
		}
		if outcome == Match {
			stack = append(stack, &frame{page: dst, parent: f.page, via: events, arrived: true})
		}
	}
	return v.result, nil
}

// enter marks a page visited, refreshes its representative and explores it
// when it has no recorded edges. A page the device is not on is returned to
// first; when that fails the frame is left without targets and unvisited.
func (v *Verifier) enter(ctx context.Context, f *frame) error {
	rec, err := v.Device.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	node, _ := v.Graph.Page(f.page)
	same := v.Comparator.Same(ctx, rec, node.Record)
	if !same && !f.arrived {
		v.Logger.Warn("device is not on the expected page", zap.Int("page", f.page))
		if !v.returnTo(ctx, f.page, f.via) {
			v.Logger.Warn("skipping unreachable page", zap.Int("page", f.page))
			return nil
		}
		if rec, err = v.Device.Capture(ctx); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		same = true
	}
	if same {
		_ = v.Graph.Refresh(f.page, rec)
	}
	v.visited[f.page] = true
	v.result.Visited = append(v.result.Visited, f.page)

	f.targets = v.Graph.Targets(f.page)
	if len(f.targets) == 0 {
		return v.explore(ctx, f.page)
	}
	return nil
}

// verifyEdge replays src->dst and repairs it on WRONG_PAGE. The returned
// events are the ones that reached dst.
func (v *Verifier) verifyEdge(ctx context.Context, src, dst int) (Outcome, []event.Event, error) {
	events, _ := v.Graph.Edge(src, dst)
	srcNode, _ := v.Graph.Page(src)
	dstNode, _ := v.Graph.Page(dst)
	desc := event.DescribeAll(events)

	if err := v.Player.Replay(ctx, events); err != nil {
		v.Logger.Info("replay failed", zap.Int("src", src), zap.Int("dst", dst), zap.Error(err))
		_ = v.Graph.AddOperation(src, desc, ptg.Ineffective)
		v.record(EdgeResult{Src: src, Dst: dst, Outcome: Failed, Attempts: 1, Landed: -1})
		v.returnTo(ctx, src, events)
		return Failed, nil, nil
	}
	landed, err := v.Device.Capture(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("capture: %w", err)
	}

	switch outcome := v.classify(ctx, srcNode.Record, dstNode.Record, landed); outcome {
	case Match:
		v.record(EdgeResult{Src: src, Dst: dst, Outcome: Match, Attempts: 1, Landed: dst})
		return Match, events, nil
	case NoChange:
		_ = v.Graph.AddOperation(src, desc, ptg.Ineffective)
		v.record(EdgeResult{Src: src, Dst: dst, Outcome: NoChange, Attempts: 1, Landed: src})
		return NoChange, nil, nil
	}

	// Drift: keep what we found, then try to reach dst again.
	found, isNew := v.Comparator.Resolve(ctx, landed, equivalence.FromGraph(v.Graph, src, dst))
	if isNew {
		found = v.Graph.AddPage(landed).Index
		describePage(ctx, v.Describer, v.Graph, found, landed, v.Logger)
		v.result.Added = append(v.result.Added, found)
	}
	_ = v.Graph.SetEdge(src, found, events)
	v.Logger.Info("wrong page", zap.Int("src", src), zap.Int("expected", dst), zap.Int("landed", found), zap.Bool("new", isNew))

	for attempt := 1; attempt <= v.Retries; attempt++ {
		if !v.returnTo(ctx, src, events) {
			break
		}
		evs, err := v.retry(ctx, attempt, srcNode, dstNode, events)
		if err != nil {
			v.Logger.Info("retry failed", zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		cur, err := v.Device.Capture(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("capture: %w", err)
		}
		if v.classify(ctx, srcNode.Record, dstNode.Record, cur) == Match {
			_ = v.Graph.SetEdge(src, dst, evs)
			v.record(EdgeResult{Src: src, Dst: dst, Outcome: Match, Attempts: attempt + 1, Landed: dst})
			return Match, evs, nil
		}
	}

	// Budget spent: the recorded edge stays for a future run.
	v.record(EdgeResult{Src: src, Dst: dst, Outcome: WrongPage, Attempts: v.Retries + 1, Landed: found})
	v.returnTo(ctx, src, events)
	return WrongPage, nil, nil
}

// retry makes one more attempt at reaching dst from src. The first attempt
// replays the recorded events; later ones ask the oracle for a fresh
// instruction.
func (v *Verifier) retry(ctx context.Context, attempt int, src, dst *ptg.PageNode, events []event.Event) ([]event.Event, error) {
	if attempt == 1 && len(events) > 0 {
		return events, v.Player.Replay(ctx, events)
	}
	cur, err := v.Device.Capture(ctx)
	if err != nil {
		return nil, err
	}
	local, _ := v.Graph.LocalMap(src.Index)
	instruction, err := v.Oracle.NextInstruction(ctx, oracle.InstructionRequest{
		Current:  cur,
		Target:   dst.Record,
		Map:      local,
		Feedback: fmt.Sprintf("%s led to the wrong page", event.DescribeAll(events)),
	})
	if err != nil {
		return nil, err
	}
	steps, err := v.Executor.Run(ctx, instruction, nil)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("instruction %q produced no actions", instruction)
	}
	return eventsOf(steps), nil
}

// classify decides how a replay ended. Oracle failures count as not
// verified.
func (v *Verifier) classify(ctx context.Context, src, dst, landed *page.Record) Outcome {
	if v.Comparator.Same(ctx, landed, dst) {
		return Match
	}
	if v.Comparator.Same(ctx, landed, src) {
		return NoChange
	}
	if page.SameTag(landed, dst) {
		verdict, err := v.Oracle.VerifyTransition(ctx, src, dst, landed)
		if err != nil {
			v.Logger.Warn("transition verification failed", zap.Error(err))
			return WrongPage
		}
		if verdict.Matched {
			return Match
		}
		if verdict.ErrorType == oracle.ErrorNoChange {
			return NoChange
		}
	}
	return WrongPage
}

// returnTo brings the device back to page target, asking the oracle for a
// return instruction up to Retries times. via are the events that left
// target.
func (v *Verifier) returnTo(ctx context.Context, target int, via []event.Event) bool {
	node, ok := v.Graph.Page(target)
	if !ok {
		return false
	}
	for i := 0; i <= v.Retries; i++ {
		cur, err := v.Device.Capture(ctx)
		if err != nil {
			return false
		}
		if v.Comparator.Same(ctx, cur, node.Record) {
			return true
		}
		if i == v.Retries || ctx.Err() != nil {
			break
		}
		instruction, err := v.Oracle.ReturnInstruction(ctx, node.Record, cur, via)
		if err != nil {
			v.Logger.Info("no return instruction, pressing back", zap.Error(err))
			_ = v.Player.Execute(ctx, event.Key{Name: device.KeyBack})
			_ = v.Player.Wait(ctx)
			continue
		}
		if _, err := v.Executor.Run(ctx, instruction, nil); err != nil {
			v.Logger.Info("return instruction failed", zap.String("instruction", instruction), zap.Error(err))
		}
	}
	v.Logger.Warn("could not return to page", zap.Int("page", target))
	return false
}

type exploreFrame struct {
	page       int
	parent     int
	depth      int
	via        []event.Event
	candidates []string
	loaded     bool
	next       int
}

// explore enumerates candidate operations on a page without recorded edges
// and follows the new pages they reveal, at most MaxDepth levels down.
func (v *Verifier) explore(ctx context.Context, root int) error {
	if v.Explorer == nil {
		return nil
	}
	stack := []*exploreFrame{{page: root, parent: -1}}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return nil
		}
		f := stack[len(stack)-1]
		if !f.loaded {
			f.loaded = true
			v.visited[f.page] = true
			if f.depth < v.MaxDepth {
				rec, err := v.Device.Capture(ctx)
				if err != nil {
					return fmt.Errorf("capture: %w", err)
				}
				cands, err := v.Explorer.Candidates(ctx, rec)
				if err != nil {
					v.Logger.Warn("candidate enumeration failed", zap.Int("page", f.page), zap.Error(err))
				}
				f.candidates = cands
			}
		}
		if f.next >= len(f.candidates) {
			stack = stack[:len(stack)-1]
			if f.parent >= 0 {
				v.returnTo(ctx, f.parent, f.via)
			}
			continue
		}

		instruction := f.candidates[f.next]
		f.next++
		steps, err := v.Executor.Run(ctx, instruction, nil)
		if err != nil {
			v.Logger.Info("candidate failed", zap.String("instruction", instruction), zap.Error(err))
			if ctx.Err() != nil {
				return nil
			}
		}
		if len(steps) == 0 {
			_ = v.Graph.AddOperation(f.page, instruction, ptg.Ineffective)
			continue
		}
		events := eventsOf(steps)
		landed := steps[len(steps)-1].After

		idx, isNew := v.Comparator.Resolve(ctx, landed, equivalence.FromGraph(v.Graph))
		if isNew {
			idx = v.Graph.AddPage(landed).Index
			describePage(ctx, v.Describer, v.Graph, idx, landed, v.Logger)
			v.result.Added = append(v.result.Added, idx)
		}
		if idx == f.page {
			_ = v.Graph.AddOperation(f.page, instruction, ptg.Ineffective)
			continue
		}
		_ = v.Graph.SetEdge(f.page, idx, events)
		_ = v.Graph.AddOperation(f.page, instruction, idx)
		v.record(EdgeResult{Src: f.page, Dst: idx, Outcome: Match, Attempts: 1, Landed: idx, Explored: true})

		if isNew && f.depth+1 < v.MaxDepth {
			v.result.Visited = append(v.result.Visited, idx)
			stack = append(stack, &exploreFrame{page: idx, parent: f.page, depth: f.depth + 1, via: events})
			continue
		}
		v.returnTo(ctx, f.page, events)
	}
	return nil
}

func (v *Verifier) record(r EdgeResult) {
	v.result.Edges = append(v.result.Edges, r)
	v.Metrics.RecordOutcome(string(r.Outcome))
	if v.Journal != nil {
		if _, err := v.Journal.Append(journal.KindOutcome, journal.Record{Src: r.Src, Dst: r.Dst, Outcome: string(r.Outcome)}); err != nil {
			v.Logger.Warn("journal append failed", zap.Error(err))
		}
	}
}
