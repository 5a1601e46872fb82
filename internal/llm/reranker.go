package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

var indexRe = regexp.MustCompile(`\d+`)

// SimpleLLMReranker orders documents by asking the model for a ranking.
type SimpleLLMReranker struct {
	LLM LLMClient
}

func NewSimpleLLMReranker(client LLMClient) *SimpleLLMReranker {
	return &SimpleLLMReranker{LLM: client}
}

// Rank returns document indices, most relevant first. Every index appears
// exactly once; indices the model leaves out keep their original order at the
// end. A failed call yields the original order.
func (r *SimpleLLMReranker) Rank(ctx context.Context, query string, docs []string) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) == 1 {
		return []int{0}, nil
	}

	docList := ""
	for i, d := range docs {
		content := d
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		docList += fmt.Sprintf("[%d] %s\n", i, content)
	}

	prompt := fmt.Sprintf(`You are a UI exploration planner.
Goal: %s

Candidate operations:
%s

Rank the candidates above by how likely they are to reach an unexplored part of the app.
Output ONLY the indices of the candidates in order, separated by commas.
Example: 0, 2, 1
Do not output any other text.`, query, docList)

	resp, err := r.LLM.Generate(ctx, prompt)
	if err != nil {
		return completeRanking(nil, len(docs)), nil
	}
	return completeRanking(parseIndices(resp), len(docs)), nil
}

func parseIndices(s string) []int {
	matches := indexRe.FindAllString(s, -1)
	var indices []int
	for _, m := range matches {
		if i, err := strconv.Atoi(m); err == nil {
			indices = append(indices, i)
		}
	}
	return indices
}

func completeRanking(ranked []int, n int) []int {
	seen := make([]bool, n)
	out := make([]int, 0, n)
	for _, i := range ranked {
		if i >= 0 && i < n && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}
