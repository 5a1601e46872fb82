// Package event models replayable UI operations.
package event

import (
	"errors"
	"fmt"

	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
)

var (
	ErrNodeNotFound  = errors.New("target node not found")
	ErrNoFocusedNode = errors.New("no focused editable node")
	ErrUnknownType   = errors.New("unknown event type")
)

// Event is one replayable operation. Node-bound variants carry a detached
// copy of the node's attributes and are resolved against the live tree when
// executed.
type Event interface {
	Kind() string
	Describe() string
	isEvent()
}

type Click struct {
	Node uitree.Attributes
}

type LongClick struct {
	Node uitree.Attributes
}

type Input struct {
	Node uitree.Attributes
	Text string
}

type Swipe struct {
	Direction device.Direction
}

type Key struct {
	Name device.Key
}

type StartApp struct {
	App string
}

func (Click) Kind() string     { return "Click" }
func (LongClick) Kind() string { return "LongClick" }
func (Input) Kind() string     { return "Input" }
func (Swipe) Kind() string     { return "SwipeExt" }
func (Key) Kind() string       { return "Key" }
func (StartApp) Kind() string  { return "StartApp" }

func (Click) isEvent()     {}
func (LongClick) isEvent() {}
func (Input) isEvent()     {}
func (Swipe) isEvent()     {}
func (Key) isEvent()       {}
func (StartApp) isEvent()  {}

func (e Click) Describe() string     { return "click " + label(e.Node) }
func (e LongClick) Describe() string { return "long click " + label(e.Node) }
func (e Input) Describe() string     { return fmt.Sprintf("input %q into %s", e.Text, label(e.Node)) }
func (e Swipe) Describe() string     { return "swipe " + string(e.Direction) }
func (e Key) Describe() string       { return "press " + string(e.Name) }
func (e StartApp) Describe() string  { return "start " + e.App }

func label(a uitree.Attributes) string {
	switch {
	case a.Text != "":
		return fmt.Sprintf("%s %q", a.Type, a.Text)
	case a.ID != "":
		return fmt.Sprintf("%s #%s", a.Type, a.ID)
	case !a.Bounds.IsZero():
		return fmt.Sprintf("%s at %s", a.Type, a.Bounds)
	}
	return a.Type
}

// DescribeAll joins the descriptions of a sequence.
func DescribeAll(events []Event) string {
	s := ""
	for i, e := range events {
		if i > 0 {
			s += ", then "
		}
		s += e.Describe()
	}
	return s
}
