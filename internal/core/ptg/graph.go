// Package ptg holds the page transition graph: observed pages and the event
// sequences that move between them.
package ptg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/page"
)

// Ineffective is the destination recorded for operations that left the page
// unchanged.
const Ineffective = -1

var (
	ErrUnknownIndex = errors.New("unknown page index")
	ErrMalformed    = errors.New("malformed PTG")
)

// Operation is one explored operation out of a page.
type Operation struct {
	Description string `json:"operation"`
	Dest        int    `json:"dest_index"`
}

// PageNode is a graph vertex. Index never changes once assigned.
type PageNode struct {
	Index      int
	Record     *page.Record
	Summary    string
	Widgets    []string
	Functions  []string
	Operations []Operation
}

func (n *PageNode) clone() *PageNode {
	c := *n
	c.Widgets = append([]string(nil), n.Widgets...)
	c.Functions = append([]string(nil), n.Functions...)
	c.Operations = append([]Operation(nil), n.Operations...)
	return &c
}

type Edge struct {
	Src    int
	Dst    int
	Events []event.Event
}

type adjacency struct {
	order  []int
	events map[int][]event.Event
}

// Graph is safe for concurrent use. Accessors return copies so callers never
// observe a node mid-update.
type Graph struct {
	mu    sync.RWMutex
	nodes []*PageNode
	adj   map[int]*adjacency
}

func New() *Graph {
	return &Graph{adj: make(map[int]*adjacency)}
}

// AddPage appends a node for rec with the next dense index.
func (g *Graph) AddPage(rec *page.Record) *PageNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := &PageNode{Index: len(g.nodes), Record: rec}
	g.nodes = append(g.nodes, n)
	return n.clone()
}

func (g *Graph) Page(i int) (*PageNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(i) {
		return nil, false
	}
	return g.nodes[i].clone(), true
}

func (g *Graph) Pages() []*PageNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*PageNode, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.clone()
	}
	return out
}

// Records returns the representative record of every page, by index.
func (g *Graph) Records() []*page.Record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*page.Record, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Record
	}
	return out
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) valid(i int) bool { return i >= 0 && i < len(g.nodes) }

// SetEdge stores events as the only edge from src to dst, replacing any
// earlier sequence.
func (g *Graph) SetEdge(src, dst int, events []event.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(src) || !g.valid(dst) {
		return fmt.Errorf("%w: edge %d -> %d", ErrUnknownIndex, src, dst)
	}
	a := g.adj[src]
	if a == nil {
		a = &adjacency{events: make(map[int][]event.Event)}
		g.adj[src] = a
	}
	if _, ok := a.events[dst]; !ok {
		a.order = append(a.order, dst)
	}
	a.events[dst] = append([]event.Event(nil), events...)
	return nil
}

func (g *Graph) Edge(src, dst int) ([]event.Event, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a := g.adj[src]
	if a == nil {
		return nil, false
	}
	evs, ok := a.events[dst]
	if !ok {
		return nil, false
	}
	return append([]event.Event(nil), evs...), true
}

// Targets lists the destinations of src in insertion order.
func (g *Graph) Targets(src int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a := g.adj[src]
	if a == nil {
		return nil
	}
	return append([]int(nil), a.order...)
}

func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for src := range g.nodes {
		a := g.adj[src]
		if a == nil {
			continue
		}
		for _, dst := range a.order {
			out = append(out, Edge{Src: src, Dst: dst, Events: append([]event.Event(nil), a.events[dst]...)})
		}
	}
	return out
}

// AddOperation records an explored operation out of src. dst may be
// Ineffective.
func (g *Graph) AddOperation(src int, description string, dst int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(src) || (dst != Ineffective && !g.valid(dst)) {
		return fmt.Errorf("%w: operation %d -> %d", ErrUnknownIndex, src, dst)
	}
	n := g.nodes[src]
	n.Operations = append(n.Operations, Operation{Description: description, Dest: dst})
	return nil
}

// Refresh replaces the representative record of page i.
func (g *Graph) Refresh(i int, rec *page.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, i)
	}
	g.nodes[i].Record = rec
	return nil
}

func (g *Graph) Describe(i int, summary string, widgets, functions []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrUnknownIndex, i)
	}
	n := g.nodes[i]
	n.Summary = summary
	n.Widgets = append([]string(nil), widgets...)
	n.Functions = append([]string(nil), functions...)
	return nil
}
