// Package explore drives a live device: the exploration loop with its
// background graph builder, and the DFS verifier that replays a recorded
// graph.
package explore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
)

// Step is one executed action and the screens around it.
type Step struct {
	Before *page.Record
	After  *page.Record
	Action oracle.Action
	Event  event.Event
}

// Description names the step for operation lists and histories.
func (s Step) Description() string {
	if s.Action.Description != "" {
		return s.Action.Description
	}
	return s.Event.Describe()
}

// Executor carries out a natural-language instruction one grounded action at
// a time.
type Executor struct {
	Device     device.Device
	Grounder   oracle.Grounder
	Player     *event.Player
	MaxActions int
	Logger     *zap.Logger
}

func NewExecutor(d device.Device, g oracle.Grounder, p *event.Player, maxActions int, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{Device: d, Grounder: g, Player: p, MaxActions: maxActions, Logger: logger}
}

// Run loops capture, ground, execute until the grounder reports the
// instruction finished or MaxActions is spent. onStep, if set, sees every
// executed step. Actions that cannot be turned into events or fail on the
// device are skipped and reported to the grounder through the history.
func (x *Executor) Run(ctx context.Context, instruction string, onStep func(Step)) ([]Step, error) {
	limit := x.MaxActions
	if limit <= 0 {
		limit = 1
	}
	var steps []Step
	var history []string
	for i := 0; i < limit; i++ {
		before, err := x.Device.Capture(ctx)
		if err != nil {
			return steps, fmt.Errorf("capture: %w", err)
		}
		a, err := x.Grounder.NextAction(ctx, instruction, before, history)
		if err != nil {
			return steps, err
		}
		if a.Type == oracle.ActionFinished {
			return steps, nil
		}

		ev, err := ToEvent(a, before.Tree)
		if err == nil {
			err = x.Player.Execute(ctx, ev)
		}
		if err != nil {
			if ctx.Err() != nil {
				return steps, ctx.Err()
			}
			x.Logger.Info("action failed", zap.String("instruction", instruction), zap.Stringer("action", a), zap.Error(err))
			history = append(history, fmt.Sprintf("%s failed: %v", a, err))
			continue
		}
		if err := x.Player.Wait(ctx); err != nil {
			return steps, err
		}
		after, err := x.Device.Capture(ctx)
		if err != nil {
			return steps, fmt.Errorf("capture: %w", err)
		}

		s := Step{Before: before, After: after, Action: a, Event: ev}
		steps = append(steps, s)
		history = append(history, a.String())
		if onStep != nil {
			onStep(s)
		}
	}
	return steps, nil
}

// ToEvent binds a grounded action to a replayable event. Clicks bind to the
// node under the point; typing binds to the focused node.
func ToEvent(a oracle.Action, tree *uitree.Tree) (event.Event, error) {
	switch a.Type {
	case oracle.ActionClick, oracle.ActionLongClick:
		n := event.NodeAt(tree, a.X, a.Y)
		if n == nil {
			return nil, fmt.Errorf("%w at (%d, %d)", event.ErrNodeNotFound, a.X, a.Y)
		}
		if a.Type == oracle.ActionLongClick {
			return event.LongClick{Node: n.Attributes}, nil
		}
		return event.Click{Node: n.Attributes}, nil
	case oracle.ActionInput:
		n := event.Focused(tree)
		if n == nil {
			return nil, event.ErrNoFocusedNode
		}
		return event.Input{Node: n.Attributes, Text: a.Content}, nil
	case oracle.ActionScroll:
		return event.Swipe{Direction: a.Direction}, nil
	case oracle.ActionBack:
		return event.Key{Name: device.KeyBack}, nil
	default:
		return nil, fmt.Errorf("%w: %s", event.ErrUnknownType, a.Type)
	}
}

func eventsOf(steps []Step) []event.Event {
	out := make([]event.Event, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Event)
	}
	return out
}
