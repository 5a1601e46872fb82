package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/config"
	"github.com/agenthands/ptgbot/internal/core/common"
	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/llm"
	"github.com/agenthands/ptgbot/internal/metrics"
)

// caller runs one oracle operation against a model with a bounded retry
// budget.
type caller struct {
	Client  llm.LLMClient
	Retries int
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

func (c *caller) attempts() int {
	if c.Retries < 1 {
		return 1
	}
	return c.Retries
}

func (c *caller) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *caller) generate(ctx context.Context, op string, parts []llm.Part) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := c.Client.GenerateParts(ctx, parts)
	c.Metrics.RecordOracleCall(op, err == nil, time.Since(start))
	return resp, err
}

// ask generates and parses a JSON reply, retrying until check accepts it.
func ask[T any](ctx context.Context, c *caller, op string, parts []llm.Part, check func(*T) error) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < c.attempts(); i++ {
		resp, err := c.generate(ctx, op, parts)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			lastErr = err
			c.log().Warn("oracle call failed", zap.String("op", op), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		v, err := common.ParseJSON[T](resp)
		if err == nil && check != nil {
			err = check(&v)
		}
		if err != nil {
			lastErr = err
			c.Metrics.RecordOracleRetry(op)
			c.log().Debug("malformed oracle reply", zap.String("op", op), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		return v, nil
	}
	return zero, fmt.Errorf("%s: no usable reply after %d attempts: %w", op, c.attempts(), lastErr)
}

// line generates a reply and returns its first non-empty line.
func (c *caller) line(ctx context.Context, op string, parts []llm.Part) (string, error) {
	var lastErr error = errors.New("empty reply")
	for i := 0; i < c.attempts(); i++ {
		resp, err := c.generate(ctx, op, parts)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		for _, l := range strings.Split(resp, "\n") {
			if l = strings.TrimSpace(strings.Trim(strings.TrimSpace(l), "`")); l != "" {
				return l, nil
			}
		}
		c.Metrics.RecordOracleRetry(op)
	}
	return "", fmt.Errorf("%s: no usable reply after %d attempts: %w", op, c.attempts(), lastErr)
}

// LLM implements every oracle interface on a multimodal model.
type LLM struct {
	caller
	Reranker      llm.RerankerClient
	Prompts       Prompts
	MaxCandidates int
}

func NewLLM(client llm.LLMClient, cfg config.OracleConfig, prompts config.PromptsConfig, logger *zap.Logger, m *metrics.Registry) *LLM {
	return &LLM{
		caller: caller{
			Client:  client,
			Retries: cfg.Retries,
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Logger:  logger,
			Metrics: m,
		},
		Reranker:      llm.NewSimpleLLMReranker(client),
		Prompts:       PromptsFrom(prompts),
		MaxCandidates: cfg.MaxCandidates,
	}
}

func withImage(parts []llm.Part, rec *page.Record) []llm.Part {
	if rec != nil && len(rec.Screenshot) > 0 {
		parts = append(parts, llm.PNGPart(rec.Screenshot))
	}
	return parts
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	var sb strings.Builder
	for _, s := range items {
		sb.WriteString("- ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (o *LLM) NextInstruction(ctx context.Context, req InstructionRequest) (string, error) {
	ops := make([]string, 0, len(req.ExploredOps))
	for _, op := range req.ExploredOps {
		if op.Dest == ptg.Ineffective {
			ops = append(ops, op.Description+" (no effect)")
		} else {
			ops = append(ops, fmt.Sprintf("%s -> page %d", op.Description, op.Dest))
		}
	}
	feedback := req.Feedback
	if feedback == "" {
		feedback = "none"
	}
	prompt := fmt.Sprintf(o.Prompts.Instruction, req.Map.String(), bullets(ops), bullets(req.Instructions), bullets(req.Actions), feedback)
	parts := withImage([]llm.Part{llm.TextPart(prompt)}, req.Current)
	if req.Target != nil {
		parts = append(parts, llm.TextPart("Goal: reach the page shown in the next image."))
		parts = withImage(parts, req.Target)
	}
	return o.line(ctx, "next_instruction", parts)
}

func (o *LLM) JudgeNovelty(ctx context.Context, rec *page.Record, candidates []Candidate) (Novelty, error) {
	if len(candidates) == 0 {
		return Novelty{IsNew: true, ExistingIndex: -1}, nil
	}
	known := make(map[int]bool, len(candidates))
	labels := make([]string, 0, len(candidates))
	for _, c := range candidates {
		known[c.Index] = true
		labels = append(labels, fmt.Sprintf("page %d", c.Index))
	}
	parts := withImage([]llm.Part{llm.TextPart(fmt.Sprintf(o.Prompts.Novelty, strings.Join(labels, ", ")))}, rec)
	for _, c := range candidates {
		parts = append(parts, llm.TextPart(fmt.Sprintf("Known page %d:", c.Index)))
		parts = withImage(parts, c.Record)
	}
	reply, err := ask(ctx, &o.caller, "judge_novelty", parts, func(r *noveltyReply) error {
		switch {
		case r.IsNew == nil:
			return errors.New("is_new missing")
		case *r.IsNew:
			return nil
		case r.ExistingIndex == nil:
			return errors.New("existing_index missing for a known page")
		case !known[*r.ExistingIndex]:
			return fmt.Errorf("existing_index %d is not a candidate", *r.ExistingIndex)
		}
		return nil
	})
	if err != nil {
		return Novelty{}, err
	}
	if *reply.IsNew {
		return Novelty{IsNew: true, ExistingIndex: -1}, nil
	}
	return Novelty{ExistingIndex: *reply.ExistingIndex}, nil
}

// noveltyReply keeps absent fields distinguishable from false and 0.
type noveltyReply struct {
	IsNew         *bool `json:"is_new"`
	ExistingIndex *int  `json:"existing_index"`
}

func (o *LLM) VerifyTransition(ctx context.Context, before, expected, actual *page.Record) (Verdict, error) {
	parts := []llm.Part{llm.TextPart(o.Prompts.Verify)}
	parts = withImage(parts, before)
	parts = withImage(parts, expected)
	parts = withImage(parts, actual)
	return ask(ctx, &o.caller, "verify_transition", parts, func(v *Verdict) error {
		if v.Matched {
			v.ErrorType = ErrorNone
			return nil
		}
		switch t := strings.ToUpper(strings.TrimSpace(v.ErrorType)); t {
		case ErrorNoChange, ErrorWrongPage:
			v.ErrorType = t
		default:
			v.ErrorType = ErrorWrongPage
		}
		return nil
	})
}

func (o *LLM) ReturnInstruction(ctx context.Context, target, current *page.Record, via []event.Event) (string, error) {
	desc := event.DescribeAll(via)
	if desc == "" {
		desc = "none"
	}
	parts := []llm.Part{llm.TextPart(fmt.Sprintf(o.Prompts.Return, desc))}
	if target != nil && len(target.Screenshot) > 0 {
		parts = append(parts, llm.PNGPart(markEvents(target.Screenshot, target.Tree, via)))
	}
	parts = withImage(parts, current)
	return o.line(ctx, "return_instruction", parts)
}

func (o *LLM) Candidates(ctx context.Context, rec *page.Record) ([]string, error) {
	prompt := fmt.Sprintf(o.Prompts.Candidates, layoutSummary(rec.Tree))
	type reply struct {
		Events []string `json:"clickable_events"`
	}
	r, err := ask(ctx, &o.caller, "candidates", withImage([]llm.Part{llm.TextPart(prompt)}, rec), func(r *reply) error {
		kept := r.Events[:0]
		for _, e := range r.Events {
			if e = strings.TrimSpace(e); e != "" {
				kept = append(kept, e)
			}
		}
		r.Events = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	events := r.Events
	if o.MaxCandidates > 0 && len(events) > o.MaxCandidates {
		if o.Reranker != nil {
			order, err := o.Reranker.Rank(ctx, "reach functions of this page that are not explored yet", events)
			if err == nil {
				ranked := make([]string, 0, len(order))
				for _, i := range order {
					ranked = append(ranked, events[i])
				}
				events = ranked
			}
		}
		events = events[:o.MaxCandidates]
	}
	return events, nil
}

func (o *LLM) Describe(ctx context.Context, rec *page.Record) (Description, error) {
	prompt := fmt.Sprintf(o.Prompts.Describe, layoutSummary(rec.Tree))
	return ask[Description](ctx, &o.caller, "describe", withImage([]llm.Part{llm.TextPart(prompt)}, rec), nil)
}

func (o *LLM) Review(ctx context.Context, instruction string, before, after *page.Record, actions []string) (Review, error) {
	prompt := fmt.Sprintf(o.Prompts.Review, instruction, bullets(actions))
	parts := withImage(withImage([]llm.Part{llm.TextPart(prompt)}, before), after)
	return ask(ctx, &o.caller, "review", parts, func(r *Review) error {
		r.Status = strings.ToLower(strings.TrimSpace(r.Status))
		if r.Status != "success" && r.Status != "error" {
			return fmt.Errorf("unknown review status %q", r.Status)
		}
		return nil
	})
}

const maxLayoutLines = 60

// layoutSummary lists the interactive nodes of a tree for text-only context.
func layoutSummary(t *uitree.Tree) string {
	var lines []string
	t.Walk(func(n *uitree.Node) bool {
		if !n.Clickable && !n.LongClickable {
			return true
		}
		l := n.Type
		if n.Text != "" {
			l += fmt.Sprintf(" %q", n.Text)
		}
		if n.ID != "" {
			l += " #" + n.ID
		}
		lines = append(lines, l)
		return len(lines) < maxLayoutLines
	})
	return bullets(lines)
}

// VisionGrounder asks a UI grounding model for the next action.
type VisionGrounder struct {
	caller
	Prompt string
}

func NewVisionGrounder(client llm.LLMClient, cfg config.OracleConfig, prompts config.PromptsConfig, logger *zap.Logger, m *metrics.Registry) *VisionGrounder {
	return &VisionGrounder{
		caller: caller{
			Client:  client,
			Retries: cfg.Retries,
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Logger:  logger,
			Metrics: m,
		},
		Prompt: PromptsFrom(prompts).Grounding,
	}
}

func (g *VisionGrounder) NextAction(ctx context.Context, instruction string, rec *page.Record, history []string) (Action, error) {
	w, h := screenSize(rec)
	parts := withImage([]llm.Part{llm.TextPart(fmt.Sprintf(g.Prompt, instruction, bullets(history)))}, rec)
	var lastErr error
	for i := 0; i < g.attempts(); i++ {
		resp, err := g.generate(ctx, "grounding", parts)
		if err != nil {
			if ctx.Err() != nil {
				return Action{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		a, err := ParseAction(resp, w, h)
		if err != nil {
			lastErr = err
			g.Metrics.RecordOracleRetry("grounding")
			g.log().Debug("unparseable grounding reply", zap.Int("attempt", i+1), zap.Error(err))
			continue
		}
		return a, nil
	}
	return Action{}, fmt.Errorf("grounding: no usable reply after %d attempts: %w", g.attempts(), lastErr)
}

// screenSize prefers the layout root, which is in device pixels, over the
// screenshot size.
func screenSize(rec *page.Record) (int, int) {
	if root := rec.Tree.Root(); root != nil && root.Bounds.X2 > 0 && root.Bounds.Y2 > 0 {
		return root.Bounds.X2, root.Bounds.Y2
	}
	return rec.Size()
}

var (
	_ Oracle    = (*LLM)(nil)
	_ Explorer  = (*LLM)(nil)
	_ Describer = (*LLM)(nil)
	_ Reviewer  = (*LLM)(nil)
	_ Grounder  = (*VisionGrounder)(nil)
)
