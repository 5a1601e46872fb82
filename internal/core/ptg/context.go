package ptg

import (
	"fmt"
	"strings"

	"github.com/agenthands/ptgbot/internal/core/event"
)

type Neighbor struct {
	Index   int    `json:"index"`
	Summary string `json:"summary"`
	Via     string `json:"via"`
}

// LocalMap is the neighbourhood of one page, handed to the oracle as context.
type LocalMap struct {
	Index     int        `json:"index"`
	Summary   string     `json:"summary"`
	Functions []string   `json:"functions,omitempty"`
	Incoming  []Neighbor `json:"incoming"`
	Outgoing  []Neighbor `json:"outgoing"`
}

func (g *Graph) LocalMap(i int) (LocalMap, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(i) {
		return LocalMap{}, fmt.Errorf("%w: %d", ErrUnknownIndex, i)
	}
	cur := g.nodes[i]
	m := LocalMap{
		Index:     i,
		Summary:   cur.Summary,
		Functions: append([]string(nil), cur.Functions...),
	}

	seenOut := make(map[int]bool)
	if a := g.adj[i]; a != nil {
		for _, dst := range a.order {
			seenOut[dst] = true
			m.Outgoing = append(m.Outgoing, Neighbor{Index: dst, Summary: g.nodes[dst].Summary, Via: event.DescribeAll(a.events[dst])})
		}
	}
	for _, op := range cur.Operations {
		if op.Dest == Ineffective || seenOut[op.Dest] {
			continue
		}
		seenOut[op.Dest] = true
		m.Outgoing = append(m.Outgoing, Neighbor{Index: op.Dest, Summary: g.nodes[op.Dest].Summary, Via: op.Description})
	}

	seenIn := make(map[int]bool)
	for src, n := range g.nodes {
		if a := g.adj[src]; a != nil {
			if evs, ok := a.events[i]; ok && !seenIn[src] {
				seenIn[src] = true
				m.Incoming = append(m.Incoming, Neighbor{Index: src, Summary: n.Summary, Via: event.DescribeAll(evs)})
				continue
			}
		}
		for _, op := range n.Operations {
			if op.Dest == i && !seenIn[src] {
				seenIn[src] = true
				m.Incoming = append(m.Incoming, Neighbor{Index: src, Summary: n.Summary, Via: op.Description})
			}
		}
	}
	return m, nil
}

func (m LocalMap) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current page %d: %s\n", m.Index, m.Summary)
	if len(m.Functions) > 0 {
		fmt.Fprintf(&sb, "Functions: %s\n", strings.Join(m.Functions, "; "))
	}
	for _, n := range m.Incoming {
		fmt.Fprintf(&sb, "From page %d (%s) via %s\n", n.Index, n.Summary, n.Via)
	}
	for _, n := range m.Outgoing {
		fmt.Fprintf(&sb, "To page %d (%s) via %s\n", n.Index, n.Summary, n.Via)
	}
	return sb.String()
}
