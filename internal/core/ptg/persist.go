package ptg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/uitree"
)

const indexFile = "ptg.json"

type pageInfo struct {
	VHT     string        `json:"vht"`
	Img     string        `json:"img"`
	Rsc     page.Resource `json:"rsc"`
	Ability string        `json:"ability"`
	Bundle  string        `json:"bundle"`
	ID      int           `json:"id"`
}

type edgeRecord struct {
	TargetID int        `json:"target_id"`
	Events   event.List `json:"events"`
}

type pageRecord struct {
	Info       pageInfo     `json:"info"`
	Edge       []edgeRecord `json:"edge"`
	Summary    string       `json:"summary,omitempty"`
	Widgets    []string     `json:"widgets,omitempty"`
	Functions  []string     `json:"functions,omitempty"`
	Operations []Operation  `json:"operations,omitempty"`
}

// Save writes ptg.json plus one UI-tree file and one screenshot per page into
// dir. Paths inside ptg.json are relative to dir.
func Save(dir string, g *Graph) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	pages := g.Pages()
	out := make([]pageRecord, 0, len(pages))
	for _, n := range pages {
		rec := pageRecord{
			Info:       pageInfo{ID: n.Index},
			Edge:       []edgeRecord{},
			Summary:    n.Summary,
			Widgets:    n.Widgets,
			Functions:  n.Functions,
			Operations: n.Operations,
		}
		if r := n.Record; r != nil {
			rec.Info.Rsc = r.Resource
			rec.Info.Ability = r.Ability()
			rec.Info.Bundle = r.Bundle()
			if r.Tree.Root() != nil {
				data, err := uitree.MarshalLayoutJSON(r.Tree)
				if err != nil {
					return fmt.Errorf("page %d tree: %w", n.Index, err)
				}
				rec.Info.VHT = fmt.Sprintf("%d.json", n.Index)
				if err := os.WriteFile(filepath.Join(dir, rec.Info.VHT), data, 0o644); err != nil {
					return err
				}
			}
			if len(r.Screenshot) > 0 {
				rec.Info.Img = fmt.Sprintf("%d.png", n.Index)
				if err := os.WriteFile(filepath.Join(dir, rec.Info.Img), r.Screenshot, 0o644); err != nil {
					return err
				}
			}
		}
		for _, dst := range g.Targets(n.Index) {
			evs, _ := g.Edge(n.Index, dst)
			rec.Edge = append(rec.Edge, edgeRecord{TargetID: dst, Events: evs})
		}
		out = append(out, rec)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, indexFile), data, 0o644)
}

// Load reads a graph written by Save. Every structural problem is reported
// as ErrMalformed.
func Load(dir string) (*Graph, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var recs []pageRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	byID := make([]*pageRecord, len(recs))
	for i := range recs {
		id := recs[i].Info.ID
		if id < 0 || id >= len(recs) || byID[id] != nil {
			return nil, fmt.Errorf("%w: page ids must be dense and unique, got %d", ErrMalformed, id)
		}
		byID[id] = &recs[i]
	}

	g := New()
	for id, r := range byID {
		var tree *uitree.Tree
		if r.Info.VHT != "" {
			raw, err := os.ReadFile(filepath.Join(dir, r.Info.VHT))
			if err != nil {
				return nil, fmt.Errorf("%w: page %d tree: %v", ErrMalformed, id, err)
			}
			if tree, err = uitree.ParseLayoutJSON(raw); err != nil {
				return nil, fmt.Errorf("%w: page %d tree: %v", ErrMalformed, id, err)
			}
		}
		var shot []byte
		if r.Info.Img != "" {
			shot, err = os.ReadFile(filepath.Join(dir, r.Info.Img))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: page %d screenshot: %v", ErrMalformed, id, err)
			}
		}
		var info *page.Info
		if r.Info.Ability != "" || r.Info.Bundle != "" {
			info = &page.Info{Bundle: r.Info.Bundle, Ability: r.Info.Ability, Name: r.Info.Ability}
		}
		g.AddPage(page.NewRecord(tree, shot, info, r.Info.Rsc))
		if r.Summary != "" || len(r.Widgets) > 0 || len(r.Functions) > 0 {
			_ = g.Describe(id, r.Summary, r.Widgets, r.Functions)
		}
	}

	for id, r := range byID {
		for _, e := range r.Edge {
			if err := g.SetEdge(id, e.TargetID, e.Events); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		for _, op := range r.Operations {
			if err := g.AddOperation(id, op.Description, op.Dest); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
	}
	return g, nil
}
