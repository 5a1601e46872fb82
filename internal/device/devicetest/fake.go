// Package devicetest provides an in-memory device for exploration tests.
package devicetest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
)

const rowHeight = 100

// Fake is a scripted app. Every screen has its own ability, and clicking a
// linked node moves to the next target in its sequence; the last target
// repeats once the sequence is used up.
type Fake struct {
	Bundle string

	mu      sync.Mutex
	screens map[string]*uitree.Tree
	shots   map[string][]byte
	links   map[string]map[string][]string
	home    string
	current string
	stack   []string
	actions []string

	CaptureErr error
}

func New(bundle, home string) *Fake {
	return &Fake{
		Bundle:  bundle,
		screens: make(map[string]*uitree.Tree),
		shots:   make(map[string][]byte),
		links:   make(map[string]map[string][]string),
		home:    home,
		current: home,
	}
}

// AddScreen registers a screen with one clickable button per name, stacked
// vertically.
func (f *Fake) AddScreen(name string, buttons ...string) {
	root := &uitree.Node{Attributes: uitree.Attributes{
		Type:    "Column",
		ID:      name,
		Bounds:  uitree.Rect{X1: 0, Y1: 0, X2: 1000, Y2: 2000},
		Enabled: true,
	}}
	for i, b := range buttons {
		root.Children = append(root.Children, &uitree.Node{Attributes: uitree.Attributes{
			Type:      "Button",
			ID:        b,
			Text:      b,
			Bounds:    uitree.Rect{X1: 0, Y1: i * rowHeight, X2: 1000, Y2: i*rowHeight + rowHeight/2},
			Clickable: true,
			Enabled:   true,
		}})
	}
	f.AddTree(name, uitree.New(root))
}

func (f *Fake) AddTree(name string, tree *uitree.Tree) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens[name] = tree
	f.shots[name] = solid(len(f.shots))
}

// Link makes clicks on button in screen from land on each of to in turn.
func (f *Fake) Link(from, button string, to ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.links[from] == nil {
		f.links[from] = make(map[string][]string)
	}
	f.links[from][button] = append(f.links[from][button], to...)
}

func (f *Fake) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) Goto(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = name
	f.stack = nil
}

// Actions lists every input the fake received, in order.
func (f *Fake) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

// Center returns the tap point of button on screen.
func (f *Fake) Center(screen, button string) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.screens[screen].Query(uitree.Attrs{uitree.KeyID: button}) {
		return n.Center()
	}
	return -1, -1
}

func (f *Fake) Capture(ctx context.Context) (*page.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	tree, ok := f.screens[f.current]
	if !ok {
		return nil, fmt.Errorf("unknown screen %q", f.current)
	}
	info := &page.Info{Bundle: f.Bundle, Ability: f.current, Name: f.current}
	return page.NewRecord(tree, f.shots[f.current], info, page.Resource{}), nil
}

func (f *Fake) Click(ctx context.Context, x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, fmt.Sprintf("click %d %d", x, y))

	target := f.hit(x, y)
	if target == "" {
		return nil
	}
	seq := f.links[f.current][target]
	if len(seq) == 0 {
		return nil
	}
	next := seq[0]
	if len(seq) > 1 {
		f.links[f.current][target] = seq[1:]
	}
	if next != f.current {
		f.stack = append(f.stack, f.current)
		f.current = next
	}
	return nil
}

// hit returns the id of the smallest clickable node containing (x, y).
func (f *Fake) hit(x, y int) string {
	best, area := "", -1
	f.screens[f.current].Walk(func(n *uitree.Node) bool {
		if n.Clickable && n.Bounds.Contains(x, y) && (area < 0 || n.Bounds.Area() < area) {
			best, area = n.ID, n.Bounds.Area()
		}
		return true
	})
	return best
}

func (f *Fake) LongClick(ctx context.Context, x, y int) error {
	f.record(fmt.Sprintf("long_click %d %d", x, y))
	return nil
}

func (f *Fake) Swipe(ctx context.Context, dir device.Direction) error {
	f.record("swipe " + string(dir))
	return nil
}

func (f *Fake) Input(ctx context.Context, x, y int, text string) error {
	f.record(fmt.Sprintf("input %d %d %s", x, y, text))
	return nil
}

func (f *Fake) PressKey(ctx context.Context, key device.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "key "+string(key))
	switch key {
	case device.KeyBack:
		if n := len(f.stack); n > 0 {
			f.current = f.stack[n-1]
			f.stack = f.stack[:n-1]
		}
	case device.KeyHome:
		f.current, f.stack = f.home, nil
	}
	return nil
}

func (f *Fake) StartApp(ctx context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "start "+app)
	f.current, f.stack = f.home, nil
	return nil
}

func (f *Fake) record(action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func solid(seed int) []byte {
	img := image.NewGray(image.Rect(0, 0, 16, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 16; x++ {
			if (y+seed*3)%(seed+2) == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var _ device.Device = (*Fake)(nil)
