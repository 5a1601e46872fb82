package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/ptgbot/internal/config"
	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/llm"
)

type MockLLMClient struct {
	mu      sync.Mutex
	Respond func(prompt string) (string, error)
	Prompts []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	return m.Respond(prompt)
}

func (m *MockLLMClient) GenerateParts(ctx context.Context, parts []llm.Part) (string, error) {
	return "", errors.New("text only")
}

func reply(prompt string) (string, error) {
	if strings.Contains(prompt, "short name") {
		return `{"name": "Settings"}`, nil
	}
	return `{"summary": "Configure the app."}`, nil
}

func TestSummarizeAreaChunks(t *testing.T) {
	m := &MockLLMClient{Respond: reply}
	s := NewSummarizer(m, config.PromptsConfig{}, nil)

	var lines []string
	for i := 0; i < 45; i++ {
		lines = append(lines, fmt.Sprintf("page %d: screen", i))
	}
	sum, err := s.SummarizeArea(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, "Configure the app.", sum)
	// three chunks and one reduce
	require.Len(t, m.Prompts, 4)
	assert.Contains(t, m.Prompts[3], "Part 3: Configure the app.")
}

func TestSummarizeAreaFallsBackToText(t *testing.T) {
	m := &MockLLMClient{Respond: func(string) (string, error) { return "Plain words.\n", nil }}
	s := NewSummarizer(m, config.PromptsConfig{AreaName: "name %s"}, nil)

	sum, err := s.SummarizeArea(context.Background(), []string{"page 0: home"})
	require.NoError(t, err)
	assert.Equal(t, "Plain words.", sum)

	name, err := s.NameArea(context.Background(), sum)
	require.NoError(t, err)
	assert.Equal(t, "Plain words.", name)
	assert.Equal(t, "name Plain words.", m.Prompts[1])
}

func TestSummarizeAreaAllChunksFail(t *testing.T) {
	m := &MockLLMClient{Respond: func(string) (string, error) { return "", errors.New("down") }}
	s := NewSummarizer(m, config.PromptsConfig{}, nil)
	lines := make([]string, 25)
	for i := range lines {
		lines[i] = "page"
	}
	_, err := s.SummarizeArea(context.Background(), lines)
	assert.Error(t, err)
}

func areaGraph(t *testing.T) *ptg.Graph {
	g := ptg.New()
	for _, a := range []string{"Home", "Settings", "Lonely"} {
		g.AddPage(page.NewRecord(uitree.New(&uitree.Node{}), nil, &page.Info{Ability: a}, page.Resource{}))
	}
	require.NoError(t, g.Describe(1, "wifi and display toggles", nil, []string{"toggle wifi"}))
	require.NoError(t, g.SetEdge(0, 1, []event.Event{event.Key{Name: "back"}}))
	require.NoError(t, g.SetEdge(1, 0, []event.Event{event.Key{Name: "back"}}))
	return g
}

func TestAreas(t *testing.T) {
	m := &MockLLMClient{Respond: reply}
	areas := NewSummarizer(m, config.PromptsConfig{}, nil).Areas(context.Background(), areaGraph(t))

	require.Len(t, areas, 1)
	assert.Equal(t, Area{Pages: []int{0, 1}, Name: "Settings", Summary: "Configure the app."}, areas[0])
	assert.Contains(t, m.Prompts[0], "page 0: Home")
	assert.Contains(t, m.Prompts[0], "page 1: wifi and display toggles (toggle wifi)")
}

func TestAreasKeepsFailedArea(t *testing.T) {
	m := &MockLLMClient{Respond: func(string) (string, error) { return "", errors.New("down") }}
	areas := NewSummarizer(m, config.PromptsConfig{}, nil).Areas(context.Background(), areaGraph(t))
	assert.Equal(t, []Area{{Pages: []int{0, 1}}}, areas)
	assert.Empty(t, Plain(ptg.New()))
}
