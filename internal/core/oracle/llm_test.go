package oracle

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
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

type MockLLM struct {
	Response      string
	Err           error
	ResponseQueue []string
	Calls         [][]llm.Part
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return m.GenerateParts(ctx, []llm.Part{llm.TextPart(prompt)})
}

func (m *MockLLM) GenerateParts(ctx context.Context, parts []llm.Part) (string, error) {
	m.Calls = append(m.Calls, parts)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

func newOracle(mock *MockLLM, retries int) *LLM {
	return NewLLM(mock, config.OracleConfig{Retries: retries, MaxCandidates: 8}, config.PromptsConfig{}, nil, nil)
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func screen(t *testing.T, ability string) *page.Record {
	root := &uitree.Node{Attributes: uitree.Attributes{Type: "root", Bounds: uitree.Rect{X2: 1000, Y2: 2000}}}
	root.Children = []*uitree.Node{{Attributes: uitree.Attributes{Type: "Button", Text: "OK", Clickable: true, Bounds: uitree.Rect{X1: 100, Y1: 100, X2: 500, Y2: 400}}}}
	return page.NewRecord(uitree.New(root), pngOf(t, 100, 200), &page.Info{Bundle: "com.demo", Ability: ability}, page.Resource{})
}

func imageCount(parts []llm.Part) int {
	n := 0
	for _, p := range parts {
		if len(p.Image) > 0 {
			n++
		}
	}
	return n
}

func TestJudgeNoveltyRetriesMalformed(t *testing.T) {
	mock := &MockLLM{ResponseQueue: []string{
		"I think it is new",
		`{"is_new": false, "existing_index": 7}`,
		"```json\n{\"is_new\": false, \"existing_index\": 2}\n```",
	}}
	o := newOracle(mock, 3)
	got, err := o.JudgeNovelty(context.Background(), screen(t, "A"), []Candidate{
		{Index: 0, Record: screen(t, "A")},
		{Index: 2, Record: screen(t, "A")},
	})
	require.NoError(t, err)
	assert.Equal(t, Novelty{IsNew: false, ExistingIndex: 2}, got)
	require.Len(t, mock.Calls, 3)
	assert.Equal(t, 3, imageCount(mock.Calls[0]))
}

func TestJudgeNoveltyFailsAfterBudget(t *testing.T) {
	mock := &MockLLM{Response: "no idea"}
	_, err := newOracle(mock, 2).JudgeNovelty(context.Background(), screen(t, "A"), []Candidate{{Index: 0, Record: screen(t, "A")}})
	assert.Error(t, err)
	assert.Len(t, mock.Calls, 2)

	mock = &MockLLM{Err: errors.New("timeout")}
	_, err = newOracle(mock, 3).JudgeNovelty(context.Background(), screen(t, "A"), []Candidate{{Index: 0, Record: screen(t, "A")}})
	assert.Error(t, err)
	assert.Len(t, mock.Calls, 3)
}

func TestJudgeNoveltyRejectsMissingFields(t *testing.T) {
	cands := func() []Candidate {
		return []Candidate{{Index: 0, Record: screen(t, "A")}, {Index: 1, Record: screen(t, "A")}}
	}
	for _, reply := range []string{`{"is_new": false}`, `{}`, `{"existing_index": 0}`} {
		t.Run(reply, func(t *testing.T) {
			mock := &MockLLM{Response: reply}
			_, err := newOracle(mock, 3).JudgeNovelty(context.Background(), screen(t, "A"), cands())
			assert.Error(t, err)
			assert.Len(t, mock.Calls, 3)
		})
	}

	mock := &MockLLM{ResponseQueue: []string{`{"is_new": false}`, `{"is_new": true}`}}
	got, err := newOracle(mock, 3).JudgeNovelty(context.Background(), screen(t, "A"), cands())
	require.NoError(t, err)
	assert.Equal(t, Novelty{IsNew: true, ExistingIndex: -1}, got)
	assert.Len(t, mock.Calls, 2)
}

func TestJudgeNoveltyWithoutCandidates(t *testing.T) {
	mock := &MockLLM{}
	got, err := newOracle(mock, 3).JudgeNovelty(context.Background(), screen(t, "A"), nil)
	require.NoError(t, err)
	assert.True(t, got.IsNew)
	assert.Empty(t, mock.Calls)
}

func TestVerifyTransitionNormalizesErrorType(t *testing.T) {
	tests := []struct {
		reply string
		want  Verdict
	}{
		{`{"think": "still on list", "result": false, "error_type": "no_change"}`, Verdict{Think: "still on list", ErrorType: ErrorNoChange}},
		{`{"result": false, "error_type": "popup"}`, Verdict{ErrorType: ErrorWrongPage}},
		{`{"result": true, "error_type": "WRONG_PAGE"}`, Verdict{Matched: true}},
	}
	for _, tt := range tests {
		mock := &MockLLM{Response: tt.reply}
		got, err := newOracle(mock, 1).VerifyTransition(context.Background(), screen(t, "A"), screen(t, "B"), screen(t, "C"))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, 3, imageCount(mock.Calls[0]))
	}
}

func TestNextInstructionTakesFirstLine(t *testing.T) {
	mock := &MockLLM{Response: "\n```\nTap \"Settings\"\n```"}
	got, err := newOracle(mock, 3).NextInstruction(context.Background(), InstructionRequest{
		Current:     screen(t, "A"),
		Map:         ptg.LocalMap{Index: 4, Summary: "home"},
		ExploredOps: []ptg.Operation{{Description: "tap logo", Dest: ptg.Ineffective}, {Description: "open list", Dest: 5}},
		Feedback:    "the list opened",
	})
	require.NoError(t, err)
	assert.Equal(t, `Tap "Settings"`, got)

	prompt := mock.Calls[0][0].Text
	assert.Contains(t, prompt, "Current page 4: home")
	assert.Contains(t, prompt, "- tap logo (no effect)")
	assert.Contains(t, prompt, "- open list -> page 5")
	assert.Contains(t, prompt, "the list opened")
}

func TestCandidatesRankedAndTruncated(t *testing.T) {
	mock := &MockLLM{ResponseQueue: []string{
		`{"clickable_events": ["tap a", "tap b", " ", "tap c"]}`,
		"2, 0",
	}}
	o := newOracle(mock, 3)
	o.MaxCandidates = 2
	got, err := o.Candidates(context.Background(), screen(t, "A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"tap c", "tap a"}, got)
	assert.Contains(t, mock.Calls[0][0].Text, `Button "OK"`)
}

func TestReviewRejectsUnknownStatus(t *testing.T) {
	mock := &MockLLM{ResponseQueue: []string{
		`{"status": "maybe"}`,
		`{"status": "ERROR", "feedback": "app crashed"}`,
	}}
	r, err := newOracle(mock, 3).Review(context.Background(), "open cart", screen(t, "A"), screen(t, "B"), []string{"click(10, 10)"})
	require.NoError(t, err)
	assert.True(t, r.Failed())
	assert.Equal(t, "app crashed", r.Feedback)
}

func TestDescribe(t *testing.T) {
	mock := &MockLLM{Response: `{"page_description": "login form", "page_functions": ["sign in"], "clickable_elements": ["OK"]}`}
	d, err := newOracle(mock, 1).Describe(context.Background(), screen(t, "A"))
	require.NoError(t, err)
	assert.Equal(t, Description{Summary: "login form", Functions: []string{"sign in"}, Widgets: []string{"OK"}}, d)
}

func TestReturnInstructionMarksTarget(t *testing.T) {
	mock := &MockLLM{Response: "Press the back button"}
	target := screen(t, "A")
	via := []event.Event{event.Click{Node: uitree.Attributes{Type: "Button", Text: "OK", Bounds: uitree.Rect{X1: 100, Y1: 100, X2: 500, Y2: 400}}}}

	got, err := newOracle(mock, 3).ReturnInstruction(context.Background(), target, screen(t, "B"), via)
	require.NoError(t, err)
	assert.Equal(t, "Press the back button", got)

	parts := mock.Calls[0]
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, `click Button "OK"`)
	img, err := png.Decode(bytes.NewReader(parts[1].Image))
	require.NoError(t, err)
	r, g, b, _ := img.At(10, 20).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b})
	r, g, b, _ = img.At(30, 25).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})

	orig, err := png.Decode(bytes.NewReader(target.Screenshot))
	require.NoError(t, err)
	r, g, b, _ = orig.At(10, 20).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
}

func TestMarkEventsWithoutNodesKeepsImage(t *testing.T) {
	shot := pngOf(t, 10, 10)
	assert.Equal(t, shot, markEvents(shot, nil, []event.Event{event.Key{Name: "back"}}))
	assert.Equal(t, []byte("junk"), markEvents([]byte("junk"), nil, []event.Event{event.Click{Node: uitree.Attributes{Bounds: uitree.Rect{X2: 5, Y2: 5}}}}))
}

func TestVisionGrounderRetriesParse(t *testing.T) {
	mock := &MockLLM{ResponseQueue: []string{
		"I would tap OK",
		"Thought: ok\nDescription: confirm\nStatus: success\nAction: click(point='<point>250 500</point>')",
	}}
	g := NewVisionGrounder(mock, config.OracleConfig{Retries: 3}, config.PromptsConfig{}, nil, nil)
	a, err := g.NextAction(context.Background(), "confirm the dialog", screen(t, "A"), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionClick, a.Type)
	assert.Equal(t, 250, a.X)
	assert.Equal(t, 1000, a.Y)
	assert.Contains(t, mock.Calls[0][0].Text, "confirm the dialog")
}

func TestPromptsFromOverridesNonEmpty(t *testing.T) {
	p := PromptsFrom(config.PromptsConfig{Review: "custom %s %s"})
	assert.Equal(t, "custom %s %s", p.Review)
	assert.Equal(t, DefaultPrompts().Novelty, p.Novelty)
}
