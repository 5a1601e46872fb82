// Package distance compares UI trees with ordered tree-edit distance.
package distance

import (
	"strconv"

	"github.com/agenthands/ptgbot/internal/core/uitree"
)

// Costs weights the edit operations of Weighted.
type Costs struct {
	Interactive float64 // insert/remove cost of an interactive node
	Plain       float64 // insert/remove cost of any other node

	Type      float64
	ID        float64 // charged only when both ids are non-empty
	Clickable float64
	Text      float64
	Bounds    float64
}

func DefaultCosts() Costs {
	return Costs{
		Interactive: 1.2,
		Plain:       1.0,
		Type:        2.0,
		ID:          1.5,
		Clickable:   1.0,
		Text:        0.8,
		Bounds:      0.5,
	}
}

// Result holds the raw edit cost and the cost normalised by the combined
// node count of both trees.
type Result struct {
	Raw        float64
	Normalized float64
}

func (c Costs) indel(n *uitree.Node) float64 {
	if n.Interactive() {
		return c.Interactive
	}
	return c.Plain
}

func (c Costs) update(a, b *uitree.Node) float64 {
	cost := 0.0
	if a.Type != b.Type {
		cost += c.Type
	}
	if a.ID != "" && b.ID != "" && a.ID != b.ID {
		cost += c.ID
	}
	if a.Clickable != b.Clickable {
		cost += c.Clickable
	}
	if a.Text != b.Text {
		cost += c.Text
	}
	if a.Bounds != b.Bounds {
		cost += c.Bounds
	}
	return cost
}

// Distance computes the weighted tree-edit distance between a and b.
func (c Costs) Distance(a, b *uitree.Tree) Result {
	raw := zhangShasha(a.Root(), b.Root(), c.indel, c.update)
	return Result{Raw: raw, Normalized: normalize(raw, a, b)}
}

// Weighted computes the tree-edit distance with DefaultCosts.
func Weighted(a, b *uitree.Tree) Result {
	return DefaultCosts().Distance(a, b)
}

// Label is the unit-cost edit distance over composite node labels. It is the
// cheap pre-filter used by page equivalence.
func Label(a, b *uitree.Tree) Result {
	unit := func(*uitree.Node) float64 { return 1 }
	relabel := func(x, y *uitree.Node) float64 {
		if label(x) == label(y) {
			return 0
		}
		return 1
	}
	raw := zhangShasha(a.Root(), b.Root(), unit, relabel)
	return Result{Raw: raw, Normalized: normalize(raw, a, b)}
}

func label(n *uitree.Node) string {
	return n.Type + "|" + n.ID + "|" + n.Text + "|" + strconv.FormatBool(n.Clickable)
}

func normalize(raw float64, a, b *uitree.Tree) float64 {
	total := a.Count() + b.Count()
	if total == 0 {
		return 0
	}
	return raw / float64(total)
}
