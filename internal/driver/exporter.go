package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/ptg"
)

// Exporter mirrors a PTG into a graph database. Every export is tagged with a
// run id so several runs can share one database.
type Exporter struct {
	Driver GraphDriver
	Logger *zap.Logger

	now func() time.Time
}

type Summary struct {
	RunID       string
	Pages       int
	Transitions int
}

func NewExporter(d GraphDriver, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{Driver: d, Logger: logger, now: time.Now}
}

// Export writes g under runID, generating one when empty. Re-exporting the
// same run id overwrites the earlier properties.
func (e *Exporter) Export(ctx context.Context, runID string, g *ptg.Graph) (Summary, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	pages := g.Pages()
	edges := g.Edges()

	bundle := ""
	for _, n := range pages {
		if n.Record != nil && n.Record.Bundle() != "" {
			bundle = n.Record.Bundle()
			break
		}
	}
	_, err := e.Driver.ExecuteQuery(ctx, SaveRunQuery, map[string]interface{}{
		"uuid":        runID,
		"bundle":      bundle,
		"created_at":  e.now().UTC().Format(time.RFC3339),
		"pages":       len(pages),
		"transitions": len(edges),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to save run: %w", err)
	}

	area := make(map[int]int)
	for i, members := range g.Areas() {
		for _, m := range members {
			area[m] = i
		}
	}

	for _, n := range pages {
		a, ok := area[n.Index]
		if !ok {
			a = -1
		}
		params := map[string]interface{}{
			"run_id":     runID,
			"index":      n.Index,
			"ability":    "",
			"bundle":     "",
			"summary":    n.Summary,
			"widgets":    orEmpty(n.Widgets),
			"functions":  orEmpty(n.Functions),
			"operations": operations(n.Operations),
			"area":       a,
		}
		if n.Record != nil {
			params["ability"] = n.Record.Ability()
			params["bundle"] = n.Record.Bundle()
		}
		if _, err := e.Driver.ExecuteQuery(ctx, SavePageQuery, params); err != nil {
			return Summary{}, fmt.Errorf("failed to save page %d: %w", n.Index, err)
		}
	}

	for _, edge := range edges {
		data, err := json.Marshal(event.List(edge.Events))
		if err != nil {
			return Summary{}, fmt.Errorf("failed to encode edge %d->%d: %w", edge.Src, edge.Dst, err)
		}
		_, err = e.Driver.ExecuteQuery(ctx, SaveTransitionQuery, map[string]interface{}{
			"run_id":      runID,
			"src":         edge.Src,
			"dst":         edge.Dst,
			"events":      string(data),
			"description": event.DescribeAll(edge.Events),
		})
		if err != nil {
			return Summary{}, fmt.Errorf("failed to save transition %d->%d: %w", edge.Src, edge.Dst, err)
		}
	}

	e.Logger.Info("graph exported",
		zap.String("run_id", runID),
		zap.Int("pages", len(pages)),
		zap.Int("transitions", len(edges)),
	)
	return Summary{RunID: runID, Pages: len(pages), Transitions: len(edges)}, nil
}

// Count reads back how many pages and transitions a run holds.
func (e *Exporter) Count(ctx context.Context, runID string) (Summary, error) {
	res, err := e.Driver.ExecuteQuery(ctx, CountRunQuery, map[string]interface{}{"run_id": runID})
	if err != nil {
		return Summary{}, err
	}
	out := Summary{RunID: runID}
	if len(res.Records) == 0 {
		return out, nil
	}
	rec := res.Records[0]
	if v, ok := rec.Get("pages"); ok {
		if n, ok := v.(int64); ok {
			out.Pages = int(n)
		}
	}
	if v, ok := rec.Get("transitions"); ok {
		if n, ok := v.(int64); ok {
			out.Transitions = int(n)
		}
	}
	return out, nil
}

func (e *Exporter) Delete(ctx context.Context, runID string) error {
	_, err := e.Driver.ExecuteQuery(ctx, DeleteRunQuery, map[string]interface{}{"run_id": runID})
	return err
}

func operations(ops []ptg.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		if op.Dest == ptg.Ineffective {
			out = append(out, op.Description+" -> none")
			continue
		}
		out = append(out, fmt.Sprintf("%s -> %d", op.Description, op.Dest))
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
