package event

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
)

// Player executes events against a device. Settle is waited after every
// replayed event before the next one runs.
type Player struct {
	Device device.Device
	Settle time.Duration
}

func NewPlayer(d device.Device, settle time.Duration) *Player {
	return &Player{Device: d, Settle: settle}
}

// Execute performs one event. Node-bound events capture the live tree first.
func (p *Player) Execute(ctx context.Context, e Event) error {
	switch e := e.(type) {
	case Click:
		x, y, err := p.locate(ctx, e.Node)
		if err != nil {
			return err
		}
		return p.Device.Click(ctx, x, y)
	case LongClick:
		x, y, err := p.locate(ctx, e.Node)
		if err != nil {
			return err
		}
		return p.Device.LongClick(ctx, x, y)
	case Input:
		rec, err := p.Device.Capture(ctx)
		if err != nil {
			return err
		}
		n := Focused(rec.Tree)
		if n == nil {
			return ErrNoFocusedNode
		}
		x, y := n.Center()
		return p.Device.Input(ctx, x, y, e.Text)
	case Swipe:
		return p.Device.Swipe(ctx, e.Direction)
	case Key:
		return p.Device.PressKey(ctx, e.Name)
	case StartApp:
		return p.Device.StartApp(ctx, e.App)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, e)
	}
}

func (p *Player) locate(ctx context.Context, ref uitree.Attributes) (int, int, error) {
	rec, err := p.Device.Capture(ctx)
	if err != nil {
		return 0, 0, err
	}
	n, err := Resolve(rec.Tree, ref)
	if err != nil {
		return 0, 0, err
	}
	x, y := n.Center()
	return x, y, nil
}

// Replay runs events in order and stops at the first failure.
func (p *Player) Replay(ctx context.Context, events []Event) error {
	for i, e := range events {
		if err := p.Execute(ctx, e); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, e.Describe(), err)
		}
		if err := p.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks for the settle delay or until ctx is done.
func (p *Player) Wait(ctx context.Context) error {
	if p.Settle <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
