package explore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/device"
	"github.com/agenthands/ptgbot/internal/metrics"
)

// Bug is a reviewer finding.
type Bug struct {
	Page        int      `json:"page"`
	Instruction string   `json:"instruction"`
	Actions     []string `json:"actions"`
	Feedback    string   `json:"feedback"`
	Screenshot  []byte   `json:"-"`
}

type Options struct {
	MaxSteps           int
	MaxDuration        time.Duration
	InstructionHistory int
	ActionHistory      int
	// App is started before the first step when set.
	App string
}

// Explorer is the foreground driver: decide, act, verify. Graph updates are
// left to the Builder, and the driver waits for it to go idle before every
// decision.
type Explorer struct {
	Device   device.Device
	Graph    *ptg.Graph
	Oracle   oracle.Oracle
	Reviewer oracle.Reviewer
	Executor *Executor
	Builder  *Builder
	Options  Options
	Logger   *zap.Logger
	Metrics  *metrics.Registry

	bugs         []Bug
	instructions []string
	actions      []string
}

// Run explores until MaxSteps or MaxDuration is spent. The builder is always
// stopped and joined before Run returns, so the graph is quiescent after it.
// MaxDuration bounds only the driver: queued transitions are still drained
// into the graph. Cancelling ctx discards them.
// Only device failures are returned; oracle failures skip the step.
func (e *Explorer) Run(ctx context.Context) error {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	e.Builder.Start(ctx)
	defer e.Builder.Stop()

	if e.Options.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Options.MaxDuration)
		defer cancel()
	}

	if e.Options.App != "" {
		if err := e.Executor.Player.Execute(ctx, event.StartApp{App: e.Options.App}); err != nil {
			return fmt.Errorf("start app: %w", err)
		}
		if err := e.Executor.Player.Wait(ctx); err != nil {
			return nil
		}
	}

	first, err := e.Device.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := e.Builder.Enqueue(Transition{Record: first}); err != nil {
		return nil
	}
	e.Builder.WaitIdle()

	var feedback string
	for step := 0; e.Options.MaxSteps <= 0 || step < e.Options.MaxSteps; step++ {
		if ctx.Err() != nil {
			break
		}
		fb, err := e.step(ctx, step, feedback)
		e.Builder.WaitIdle()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var fatal *fatalError
			if errors.As(err, &fatal) {
				return fatal.err
			}
			e.Logger.Warn("step skipped", zap.Int("step", step), zap.Error(err))
			e.Metrics.RecordStep(false)
			continue
		}
		feedback = fb
		e.Metrics.RecordStep(true)
	}

	e.Logger.Info("exploration finished",
		zap.Int("pages", e.Graph.Len()),
		zap.Int("edges", len(e.Graph.Edges())),
		zap.Int("bugs", len(e.bugs)),
	)
	return nil
}

type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }

func (e *Explorer) step(ctx context.Context, n int, feedback string) (string, error) {
	cur := e.Builder.Current()
	rec, err := e.Device.Capture(ctx)
	if err != nil {
		return "", &fatalError{fmt.Errorf("capture: %w", err)}
	}
	if err := e.Graph.Refresh(cur, rec); err != nil {
		return "", err
	}
	local, err := e.Graph.LocalMap(cur)
	if err != nil {
		return "", err
	}
	node, _ := e.Graph.Page(cur)

	instruction, err := e.Oracle.NextInstruction(ctx, oracle.InstructionRequest{
		Current:      rec,
		Map:          local,
		ExploredOps:  node.Operations,
		Instructions: e.instructions,
		Actions:      e.actions,
		Feedback:     feedback,
	})
	if err != nil {
		return "", fmt.Errorf("next instruction: %w", err)
	}
	e.Logger.Info("executing instruction", zap.Int("step", n), zap.Int("page", cur), zap.String("instruction", instruction))

	var described []string
	steps, err := e.Executor.Run(ctx, instruction, func(s Step) {
		described = append(described, s.Description())
		if qerr := e.Builder.Enqueue(Transition{
			Operation: s.Description(),
			Events:    []event.Event{s.Event},
			Record:    s.After,
		}); qerr != nil {
			e.Logger.Debug("transition dropped", zap.Error(qerr))
		}
	})
	e.instructions = keepLast(append(e.instructions, instruction), e.Options.InstructionHistory)
	e.actions = keepLast(append(e.actions, described...), e.Options.ActionHistory)
	if err != nil {
		return "", fmt.Errorf("execute %q: %w", instruction, err)
	}
	if len(steps) == 0 || e.Reviewer == nil {
		return "", nil
	}

	review, err := e.Reviewer.Review(ctx, instruction, steps[0].Before, steps[len(steps)-1].After, described)
	if err != nil {
		e.Logger.Warn("review failed", zap.Error(err))
		return "", nil
	}
	if review.Failed() {
		e.Logger.Info("bug reported", zap.Int("page", cur), zap.String("feedback", review.Feedback))
		e.bugs = append(e.bugs, Bug{
			Page:        cur,
			Instruction: instruction,
			Actions:     described,
			Feedback:    review.Feedback,
			Screenshot:  steps[len(steps)-1].After.Screenshot,
		})
		e.Metrics.RecordBug()
	}
	return review.Feedback, nil
}

// Bugs returns the reviewer findings of the last run.
func (e *Explorer) Bugs() []Bug {
	return append([]Bug(nil), e.bugs...)
}

func keepLast(s []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
