package event

import (
	"encoding/json"
	"fmt"

	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/device"
)

type wireEvent struct {
	Type      string             `json:"type"`
	Node      *uitree.Attributes `json:"node,omitempty"`
	Direction string             `json:"direction,omitempty"`
	Key       string             `json:"key,omitempty"`
	App       string             `json:"app,omitempty"`
	Text      *string            `json:"text,omitempty"`
}

func toWire(e Event) (wireEvent, error) {
	w := wireEvent{Type: e.Kind()}
	switch e := e.(type) {
	case Click:
		w.Node = &e.Node
	case LongClick:
		w.Node = &e.Node
	case Input:
		w.Node = &e.Node
		w.Text = &e.Text
	case Swipe:
		w.Direction = string(e.Direction)
	case Key:
		w.Key = string(e.Name)
	case StartApp:
		w.App = e.App
	default:
		return w, fmt.Errorf("%w: %T", ErrUnknownType, e)
	}
	return w, nil
}

func fromWire(w wireEvent) (Event, error) {
	var node uitree.Attributes
	if w.Node != nil {
		node = *w.Node
	}
	switch w.Type {
	case "Click":
		return Click{Node: node}, nil
	case "LongClick":
		return LongClick{Node: node}, nil
	case "Input":
		text := node.Text
		if w.Text != nil {
			text = *w.Text
		}
		return Input{Node: node, Text: text}, nil
	case "SwipeExt":
		dir, err := device.ParseDirection(w.Direction)
		if err != nil {
			return nil, err
		}
		return Swipe{Direction: dir}, nil
	case "Key":
		return Key{Name: device.Key(w.Key)}, nil
	case "StartApp":
		return StartApp{App: w.App}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
}

func Marshal(e Event) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func Unmarshal(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return fromWire(w)
}

// List is an ordered event sequence with a JSON array form.
type List []Event

func (l List) MarshalJSON() ([]byte, error) {
	out := make([]wireEvent, 0, len(l))
	for _, e := range l {
		w, err := toWire(e)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []wireEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode events: %w", err)
	}
	out := make(List, 0, len(raw))
	for i, w := range raw {
		e, err := fromWire(w)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, e)
	}
	*l = out
	return nil
}
