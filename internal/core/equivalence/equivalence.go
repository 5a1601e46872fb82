// Package equivalence decides whether two observations are the same page.
package equivalence

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/config"
	"github.com/agenthands/ptgbot/internal/core/distance"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/metrics"
)

const (
	MetricLabel    = "label"
	MetricWeighted = "weighted"
)

// Thresholds bound the structural band. With MetricLabel they apply to the
// raw label distance, with MetricWeighted to the normalized weighted one.
// A negative HashCutoff disables the perceptual hash layer.
type Thresholds struct {
	Metric     string
	Low        float64
	High       float64
	HashCutoff int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Metric: MetricLabel, Low: 3, High: 30, HashCutoff: 5}
}

func ThresholdsFrom(cfg config.EquivalenceConfig) Thresholds {
	return Thresholds{Metric: cfg.Metric, Low: cfg.Low, High: cfg.High, HashCutoff: cfg.HashCutoff}
}

// Judge is the oracle fallback for the ambiguous band.
type Judge interface {
	JudgeNovelty(ctx context.Context, rec *page.Record, candidates []oracle.Candidate) (oracle.Novelty, error)
}

type decision int

const (
	different decision = iota
	same
	ambiguous
)

const (
	layerTag      = "tag"
	layerDistance = "distance"
	layerHash     = "hash"
	layerOracle   = "oracle"
)

// Comparator applies the equivalence layers cheapest first. Oracle failures
// resolve to "different": a spurious new page is preferred over a wrong
// merge. A nil Judge treats the ambiguous band as different.
type Comparator struct {
	Judge      Judge
	Thresholds Thresholds
	Logger     *zap.Logger
	Metrics    *metrics.Registry
}

func New(judge Judge, th Thresholds, logger *zap.Logger, m *metrics.Registry) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{Judge: judge, Thresholds: th, Logger: logger, Metrics: m}
}

func (c *Comparator) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// decide runs the deterministic layers.
func (c *Comparator) decide(a, b *page.Record) (decision, string) {
	if !page.SameTag(a, b) || a.Resource != b.Resource {
		return different, layerTag
	}

	var d float64
	if c.Thresholds.Metric == MetricWeighted {
		d = distance.Weighted(a.Tree, b.Tree).Normalized
	} else {
		d = distance.Label(a.Tree, b.Tree).Raw
	}
	switch {
	case d == 0 || d < c.Thresholds.Low:
		return same, layerDistance
	case d > c.Thresholds.High:
		return different, layerDistance
	}

	if c.Thresholds.HashCutoff >= 0 {
		if hd, ok := page.HashDistance(a, b); ok && hd <= c.Thresholds.HashCutoff {
			return same, layerHash
		}
	}
	return ambiguous, ""
}

// Same reports whether a and b are observations of the same page.
func (c *Comparator) Same(ctx context.Context, a, b *page.Record) bool {
	d, layer := c.decide(a, b)
	if d != ambiguous {
		c.Metrics.RecordEquivalence(layer, d == same)
		return d == same
	}
	if c.Judge == nil {
		c.Metrics.RecordEquivalence(layerOracle, false)
		return false
	}
	n, err := c.Judge.JudgeNovelty(ctx, a, []oracle.Candidate{{Index: 0, Record: b}})
	if err != nil {
		c.log().Warn("novelty judgment failed, treating pages as different", zap.Error(err))
		c.Metrics.RecordEquivalence(layerOracle, false)
		return false
	}
	ok := !n.IsNew && n.ExistingIndex == 0
	c.Metrics.RecordEquivalence(layerOracle, ok)
	return ok
}

// Resolve finds the known page rec belongs to. Candidates are scanned newest
// first and the first certain match wins; the ambiguous survivors go to a
// single oracle call. isNew is true when no candidate matches.
func (c *Comparator) Resolve(ctx context.Context, rec *page.Record, candidates []oracle.Candidate) (index int, isNew bool) {
	var survivors []oracle.Candidate
	rejectedBy := layerTag
	for i := len(candidates) - 1; i >= 0; i-- {
		cand := candidates[i]
		d, layer := c.decide(rec, cand.Record)
		switch d {
		case same:
			c.Metrics.RecordEquivalence(layer, true)
			return cand.Index, false
		case ambiguous:
			survivors = append(survivors, cand)
		default:
			rejectedBy = layer
		}
	}
	if len(survivors) == 0 {
		c.Metrics.RecordEquivalence(rejectedBy, false)
		return -1, true
	}
	if c.Judge == nil {
		c.Metrics.RecordEquivalence(layerOracle, false)
		return -1, true
	}

	n, err := c.Judge.JudgeNovelty(ctx, rec, survivors)
	if err != nil {
		c.log().Warn("novelty judgment failed, treating page as new", zap.Int("candidates", len(survivors)), zap.Error(err))
		c.Metrics.RecordEquivalence(layerOracle, false)
		return -1, true
	}
	if !n.IsNew {
		for _, s := range survivors {
			if s.Index == n.ExistingIndex {
				c.Metrics.RecordEquivalence(layerOracle, true)
				return s.Index, false
			}
		}
		c.log().Debug("oracle named a page outside the candidates", zap.Int("existing_index", n.ExistingIndex))
	}
	c.Metrics.RecordEquivalence(layerOracle, false)
	return -1, true
}

// FromGraph lists the pages of g as candidates, leaving out exclude.
func FromGraph(g *ptg.Graph, exclude ...int) []oracle.Candidate {
	skip := make(map[int]bool, len(exclude))
	for _, i := range exclude {
		skip[i] = true
	}
	var out []oracle.Candidate
	for _, n := range g.Pages() {
		if !skip[n.Index] {
			out = append(out, oracle.Candidate{Index: n.Index, Record: n.Record})
		}
	}
	return out
}
