package event

import (
	"github.com/agenthands/ptgbot/internal/core/uitree"
)

// Resolve finds the live node for a recorded reference: first spatially at
// the recorded center, then by the reference's non-empty type, id and text.
func Resolve(tree *uitree.Tree, ref uitree.Attributes) (*uitree.Node, error) {
	if !ref.Bounds.IsZero() {
		x, y := ref.Bounds.Center()
		if n := NodeAt(tree, x, y); n != nil {
			return n, nil
		}
	}

	pred := uitree.Attrs{}
	if ref.Type != "" {
		pred[uitree.KeyType] = ref.Type
	}
	if ref.ID != "" {
		pred[uitree.KeyID] = ref.ID
	}
	if ref.Text != "" {
		pred[uitree.KeyText] = ref.Text
	}
	if found := tree.Query(pred); len(found) > 0 {
		return found[0], nil
	}
	return nil, ErrNodeNotFound
}

// NodeAt returns the smallest clickable or long-clickable node containing
// (x, y). Only containing subtrees are searched; nodes without bounds are
// transparent. On equal areas the earlier node in pre-order wins.
func NodeAt(tree *uitree.Tree, x, y int) *uitree.Node {
	var best *uitree.Node
	var search func(n *uitree.Node)
	search = func(n *uitree.Node) {
		if !n.Bounds.IsZero() {
			if !n.Bounds.Contains(x, y) {
				return
			}
			if (n.Clickable || n.LongClickable) && (best == nil || n.Bounds.Area() < best.Bounds.Area()) {
				best = n
			}
		}
		for _, c := range n.Children {
			search(c)
		}
	}
	if root := tree.Root(); root != nil {
		search(root)
	}
	return best
}

// Focused returns the first focused, enabled node in pre-order.
func Focused(tree *uitree.Tree) *uitree.Node {
	found := tree.Query(uitree.Attrs{uitree.KeyFocused: "true", uitree.KeyEnabled: "true"})
	if len(found) == 0 {
		return nil
	}
	return found[0]
}
