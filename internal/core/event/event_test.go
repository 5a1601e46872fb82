package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
	"github.com/agenthands/ptgbot/internal/device/devicetest"
)

func node(a uitree.Attributes, children ...*uitree.Node) *uitree.Node {
	return &uitree.Node{Attributes: a, Children: children}
}

func rect(x1, y1, x2, y2 int) uitree.Rect { return uitree.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2} }

func sampleTree() *uitree.Tree {
	return uitree.New(node(uitree.Attributes{Type: "root", Bounds: rect(0, 0, 1000, 1000)},
		node(uitree.Attributes{Type: "Card", Clickable: true, Bounds: rect(0, 0, 500, 500)},
			node(uitree.Attributes{Type: "Button", ID: "ok", Text: "OK", Clickable: true, Bounds: rect(100, 100, 200, 200)}),
			node(uitree.Attributes{Type: "Button", ID: "dup", Clickable: true, Bounds: rect(300, 300, 400, 400)}),
			node(uitree.Attributes{Type: "Button", ID: "dup2", Clickable: true, Bounds: rect(300, 300, 400, 400)}),
		),
		node(uitree.Attributes{Type: "Wrapper"},
			node(uitree.Attributes{Type: "Icon", LongClickable: true, Bounds: rect(600, 600, 700, 700)}),
		),
		node(uitree.Attributes{Type: "Text", Text: "plain", Bounds: rect(800, 800, 900, 900)}),
	))
}

func TestNodeAtPicksSmallestContaining(t *testing.T) {
	tree := sampleTree()

	n := NodeAt(tree, 150, 150)
	require.NotNil(t, n)
	assert.Equal(t, "ok", n.ID)

	n = NodeAt(tree, 50, 50)
	require.NotNil(t, n)
	assert.Equal(t, "Card", n.Type)

	// equal areas: first in pre-order wins
	n = NodeAt(tree, 350, 350)
	require.NotNil(t, n)
	assert.Equal(t, "dup", n.ID)

	// zero-bound wrapper is transparent
	n = NodeAt(tree, 650, 650)
	require.NotNil(t, n)
	assert.Equal(t, "Icon", n.Type)

	assert.Nil(t, NodeAt(tree, 850, 850))
	assert.Nil(t, NodeAt(nil, 1, 1))
}

func TestResolveFallsBackToAttributes(t *testing.T) {
	tree := sampleTree()

	n, err := Resolve(tree, uitree.Attributes{Type: "Button", ID: "ok", Bounds: rect(100, 100, 200, 200)})
	require.NoError(t, err)
	assert.Equal(t, "ok", n.ID)

	// the button moved; its recorded center now hits nothing clickable
	n, err = Resolve(tree, uitree.Attributes{Type: "Text", Text: "plain", Bounds: rect(850, 850, 860, 860)})
	require.NoError(t, err)
	assert.Equal(t, "plain", n.Text)

	_, err = Resolve(tree, uitree.Attributes{Type: "Slider", Bounds: rect(950, 950, 960, 960)})
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = Resolve(tree, uitree.Attributes{})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestPlayerReplay(t *testing.T) {
	dev := devicetest.New("com.demo", "Home")
	dev.AddScreen("Home", "settings", "about")
	dev.AddScreen("Settings", "back")
	dev.Link("Home", "settings", "Settings")

	rec, err := dev.Capture(context.Background())
	require.NoError(t, err)
	btn := rec.Tree.Query(uitree.Attrs{uitree.KeyID: "settings"})[0]

	p := NewPlayer(dev, 0)
	require.NoError(t, p.Replay(context.Background(), []Event{Click{Node: btn.Attributes}}))
	assert.Equal(t, "Settings", dev.Current())

	require.NoError(t, p.Replay(context.Background(), []Event{Key{Name: device.KeyBack}, Swipe{Direction: device.Up}}))
	assert.Equal(t, "Home", dev.Current())
	assert.Contains(t, dev.Actions(), "swipe up")
}

func TestPlayerStopsAtFirstFailure(t *testing.T) {
	dev := devicetest.New("com.demo", "Home")
	dev.AddScreen("Home", "a")

	p := NewPlayer(dev, 0)
	err := p.Replay(context.Background(), []Event{
		Click{Node: uitree.Attributes{Type: "Missing", ID: "nope"}},
		StartApp{App: "com.demo"},
	})
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.NotContains(t, dev.Actions(), "start com.demo")

	err = p.Execute(context.Background(), Input{Node: uitree.Attributes{Type: "Field"}, Text: "x"})
	assert.ErrorIs(t, err, ErrNoFocusedNode)

	dev.CaptureErr = errors.New("offline")
	err = p.Execute(context.Background(), Click{Node: uitree.Attributes{ID: "a"}})
	assert.EqualError(t, err, "offline")
}

func TestPlayerInputTargetsFocusedNode(t *testing.T) {
	dev := devicetest.New("com.demo", "Login")
	dev.AddTree("Login", uitree.New(node(uitree.Attributes{Type: "root", Bounds: rect(0, 0, 100, 100)},
		node(uitree.Attributes{Type: "Field", ID: "user", Focused: true, Enabled: true, Bounds: rect(0, 0, 100, 20)}),
	)))

	p := NewPlayer(dev, 0)
	require.NoError(t, p.Execute(context.Background(), Input{Text: "alice"}))
	assert.Equal(t, []string{"input 50 10 alice"}, dev.Actions())
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPlayer(nil, 1<<40)
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestListJSON(t *testing.T) {
	in := List{
		Click{Node: uitree.Attributes{Type: "Button", ID: "ok", Clickable: true, Enabled: true, Bounds: rect(1, 2, 3, 4)}},
		Input{Node: uitree.Attributes{Type: "Field"}, Text: "hi there"},
		Swipe{Direction: device.Left},
		Key{Name: device.KeyBack},
		StartApp{App: "com.demo"},
		LongClick{Node: uitree.Attributes{Type: "Icon"}},
	}
	data, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"SwipeExt"`)

	var out List
	require.NoError(t, out.UnmarshalJSON(data))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("events changed after round trip (-want +got):\n%s", diff)
	}
}

func TestUnmarshalLegacyForms(t *testing.T) {
	e, err := Unmarshal([]byte(`{"type":"Input","node":{"type":"Field","text":"typed","bounds":"[0,0][10,10]","focused":"true"}}`))
	require.NoError(t, err)
	in, ok := e.(Input)
	require.True(t, ok)
	assert.Equal(t, "typed", in.Text)
	assert.True(t, in.Node.Focused)
	assert.Equal(t, rect(0, 0, 10, 10), in.Node.Bounds)

	_, err = Unmarshal([]byte(`{"type":"Teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Unmarshal([]byte(`{"type":"SwipeExt","direction":"sideways"}`))
	assert.Error(t, err)
}

func TestDescribeAll(t *testing.T) {
	s := DescribeAll([]Event{
		Click{Node: uitree.Attributes{Type: "Button", Text: "OK"}},
		Key{Name: device.KeyBack},
	})
	assert.Equal(t, `click Button "OK", then press back`, s)
}
