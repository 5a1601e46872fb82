package uitree

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Attribute keys shared by device dumps, persisted trees and query predicates.
const (
	KeyType          = "type"
	KeyID            = "id"
	KeyText          = "text"
	KeyBounds        = "bounds"
	KeyClickable     = "clickable"
	KeyLongClickable = "longClickable"
	KeyCheckable     = "checkable"
	KeyChecked       = "checked"
	KeySelected      = "selected"
	KeyEnabled       = "enabled"
	KeyFocused       = "focused"
)

// Attrs is an attribute predicate. Every key present must match exactly.
type Attrs map[string]string

// Attributes holds everything recorded about one UI element apart from its
// children. Events keep a detached copy so they can be replayed against a
// later capture.
type Attributes struct {
	Type          string
	ID            string
	Text          string
	Bounds        Rect
	Clickable     bool
	LongClickable bool
	Checkable     bool
	Checked       bool
	Selected      bool
	Enabled       bool
	Focused       bool
}

// Interactive reports whether the element carries user-facing identity.
func (a Attributes) Interactive() bool {
	return a.Clickable || a.ID != "" || a.Text != ""
}

func (a Attributes) Center() (int, int) { return a.Bounds.Center() }

// Get returns the string form of a single attribute, and false for unknown keys.
func (a Attributes) Get(key string) (string, bool) {
	switch key {
	case KeyType:
		return a.Type, true
	case KeyID:
		return a.ID, true
	case KeyText:
		return a.Text, true
	case KeyBounds:
		return a.Bounds.String(), true
	case KeyClickable:
		return strconv.FormatBool(a.Clickable), true
	case KeyLongClickable:
		return strconv.FormatBool(a.LongClickable), true
	case KeyCheckable:
		return strconv.FormatBool(a.Checkable), true
	case KeyChecked:
		return strconv.FormatBool(a.Checked), true
	case KeySelected:
		return strconv.FormatBool(a.Selected), true
	case KeyEnabled:
		return strconv.FormatBool(a.Enabled), true
	case KeyFocused:
		return strconv.FormatBool(a.Focused), true
	}
	return "", false
}

// Matches reports whether every key of pred is present with an equal value.
// An empty predicate matches nothing.
func (a Attributes) Matches(pred Attrs) bool {
	if len(pred) == 0 {
		return false
	}
	for k, want := range pred {
		got, ok := a.Get(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (a Attributes) flat() map[string]string {
	m := make(map[string]string, 11)
	for _, k := range []string{KeyType, KeyID, KeyText, KeyClickable, KeyLongClickable,
		KeyCheckable, KeyChecked, KeySelected, KeyEnabled, KeyFocused} {
		m[k], _ = a.Get(k)
	}
	if !a.Bounds.IsZero() {
		m[KeyBounds] = a.Bounds.String()
	} else {
		m[KeyBounds] = ""
	}
	return m
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.flat())
}

// UnmarshalJSON decodes a flat attribute object. Booleans may be JSON bools
// or the strings "true"/"false"; missing keys default to empty/false.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode attributes: %w", err)
	}

	var out Attributes
	str := func(key string) (string, error) {
		v, ok := raw[key]
		if !ok {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			var n json.Number
			if err2 := json.Unmarshal(v, &n); err2 == nil {
				return n.String(), nil
			}
			return "", fmt.Errorf("attribute %q: %w", key, err)
		}
		return s, nil
	}
	flag := func(key string) (bool, error) {
		v, ok := raw[key]
		if !ok {
			return false, nil
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return b, nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return false, fmt.Errorf("attribute %q: %w", key, err)
		}
		return s == "true", nil
	}

	var err error
	if out.Type, err = str(KeyType); err != nil {
		return err
	}
	if out.ID, err = str(KeyID); err != nil {
		return err
	}
	if out.Text, err = str(KeyText); err != nil {
		return err
	}
	if v, ok := raw[KeyBounds]; ok {
		if err := out.Bounds.UnmarshalJSON(v); err != nil {
			return err
		}
	}
	flags := []struct {
		key string
		dst *bool
	}{
		{KeyClickable, &out.Clickable},
		{KeyLongClickable, &out.LongClickable},
		{KeyCheckable, &out.Checkable},
		{KeyChecked, &out.Checked},
		{KeySelected, &out.Selected},
		{KeyEnabled, &out.Enabled},
		{KeyFocused, &out.Focused},
	}
	for _, f := range flags {
		if *f.dst, err = flag(f.key); err != nil {
			return err
		}
	}

	*a = out
	return nil
}

// Node is one element of a captured UI tree.
type Node struct {
	Attributes
	Children []*Node
}

// Tree is an immutable snapshot of one screen's UI hierarchy.
type Tree struct {
	root  *Node
	count int
}

func New(root *Node) *Tree {
	t := &Tree{root: root}
	t.Walk(func(*Node) bool {
		t.count++
		return true
	})
	return t
}

// Root gives access to the whole tree.
func (t *Tree) Root() *Node {
	if t == nil {
		return nil
	}
	return t.root
}

// Count is the number of nodes, used to normalise distances.
func (t *Tree) Count() int {
	if t == nil {
		return 0
	}
	return t.count
}

// Walk visits nodes in depth-first pre-order until fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	if t == nil || t.root == nil {
		return
	}
	walk(t.root, fn)
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// Query returns every node matching pred in pre-order. An empty predicate
// matches nothing; use Root for the whole tree.
func (t *Tree) Query(pred Attrs) []*Node {
	if len(pred) == 0 {
		return nil
	}
	var out []*Node
	t.Walk(func(n *Node) bool {
		if n.Matches(pred) {
			out = append(out, n)
		}
		return true
	})
	return out
}
