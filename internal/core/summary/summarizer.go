// Package summary names and describes the functional areas of an explored
// app from the descriptions of their pages.
package summary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/config"
	"github.com/agenthands/ptgbot/internal/core/common"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/llm"
)

// ChunkSize bounds how many page lines go into one prompt. Larger areas are
// summarized in parts and the parts summarized again.
const ChunkSize = 20

// Area is a group of pages that serve one function of the app.
type Area struct {
	Pages   []int  `json:"pages"`
	Name    string `json:"name,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type Prompts struct {
	Area string
	Name string
}

type Summarizer struct {
	LLM     llm.LLMClient
	Prompts Prompts
	Logger  *zap.Logger
}

func NewSummarizer(client llm.LLMClient, prompts config.PromptsConfig, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := Prompts{Area: defaultArea, Name: defaultName}
	if prompts.Area != "" {
		p.Area = prompts.Area
	}
	if prompts.AreaName != "" {
		p.Name = prompts.AreaName
	}
	return &Summarizer{LLM: client, Prompts: p, Logger: logger}
}

type areaSummary struct {
	Summary string `json:"summary"`
}

type areaName struct {
	Name string `json:"name"`
}

// SummarizeArea condenses page descriptions into one paragraph.
func (s *Summarizer) SummarizeArea(ctx context.Context, lines []string) (string, error) {
	// 1. Base Case: small enough for one prompt
	if len(lines) <= ChunkSize {
		if len(lines) == 0 {
			return "No significant information.", nil
		}
		prompt := fmt.Sprintf(s.Prompts.Area, "- "+strings.Join(lines, "\n- "))
		response, err := s.LLM.Generate(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("failed to generate area summary: %w", err)
		}
		result, err := common.ParseJSON[areaSummary](response)
		if err == nil && result.Summary != "" {
			return result.Summary, nil
		}
		return strings.TrimSpace(response), nil
	}

	// 2. Recursive Case: summarize chunks, then the chunk summaries
	var parts []string
	for i := 0; i < len(lines); i += ChunkSize {
		end := min(i+ChunkSize, len(lines))
		part, err := s.SummarizeArea(ctx, lines[i:end])
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.Logger.Warn("area chunk summary failed", zap.Int("offset", i), zap.Error(err))
			continue
		}
		parts = append(parts, fmt.Sprintf("Part %d: %s", len(parts)+1, part))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("every chunk of the area failed to summarize")
	}
	return s.SummarizeArea(ctx, parts)
}

// NameArea turns a summary into a short label.
func (s *Summarizer) NameArea(ctx context.Context, summary string) (string, error) {
	response, err := s.LLM.Generate(ctx, fmt.Sprintf(s.Prompts.Name, summary))
	if err != nil {
		return "", fmt.Errorf("failed to generate area name: %w", err)
	}
	result, err := common.ParseJSON[areaName](response)
	if err == nil && result.Name != "" {
		return result.Name, nil
	}
	return strings.Trim(strings.TrimSpace(response), `"`), nil
}

// Areas describes every functional area of g. An area whose summary fails
// is kept without one.
func (s *Summarizer) Areas(ctx context.Context, g *ptg.Graph) []Area {
	areas := Plain(g)
	for i := range areas {
		var lines []string
		for _, idx := range areas[i].Pages {
			if line := pageLine(g, idx); line != "" {
				lines = append(lines, line)
			}
		}
		sum, err := s.SummarizeArea(ctx, lines)
		if err != nil {
			s.Logger.Warn("area summary failed", zap.Ints("pages", areas[i].Pages), zap.Error(err))
			continue
		}
		areas[i].Summary = sum
		if name, err := s.NameArea(ctx, sum); err == nil {
			areas[i].Name = name
		} else {
			s.Logger.Warn("area naming failed", zap.Ints("pages", areas[i].Pages), zap.Error(err))
		}
	}
	return areas
}

// Plain lists the areas of g without descriptions.
func Plain(g *ptg.Graph) []Area {
	groups := g.Areas()
	out := make([]Area, 0, len(groups))
	for _, pages := range groups {
		out = append(out, Area{Pages: pages})
	}
	return out
}

func pageLine(g *ptg.Graph, idx int) string {
	n, ok := g.Page(idx)
	if !ok {
		return ""
	}
	label := n.Summary
	if label == "" {
		label = n.Record.Ability()
	}
	if label == "" {
		return ""
	}
	if len(n.Functions) > 0 {
		label += " (" + strings.Join(n.Functions, ", ") + ")"
	}
	return fmt.Sprintf("page %d: %s", idx, label)
}

const defaultArea = `The following pages of a mobile app belong to one functional area.

%s

Describe in two or three sentences what a user can do in this area.
Respond in JSON: {"summary": "..."}`

const defaultName = `Give a short name (at most four words) for this area of a mobile app:

%s

Respond in JSON: {"name": "..."}`
