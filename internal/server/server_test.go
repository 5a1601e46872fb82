package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/core/uitree"
	"github.com/agenthands/ptgbot/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 8))))
	return buf.Bytes()
}

func testGraph(t *testing.T) *ptg.Graph {
	g := ptg.New()
	root := &uitree.Node{Attributes: uitree.Attributes{Type: "root"}}
	root.Children = []*uitree.Node{{Attributes: uitree.Attributes{Type: "Button", Text: "Settings", Clickable: true}}}
	g.AddPage(page.NewRecord(uitree.New(root), pngBytes(t), &page.Info{Bundle: "com.demo", Ability: "Home"}, page.Resource{}))
	g.AddPage(page.NewRecord(uitree.New(&uitree.Node{}), nil, &page.Info{Bundle: "com.demo", Ability: "Settings"}, page.Resource{}))
	require.NoError(t, g.Describe(0, "home", []string{"Settings"}, []string{"navigate"}))
	require.NoError(t, g.SetEdge(0, 1, []event.Event{event.Click{Node: uitree.Attributes{Type: "Button", Text: "Settings"}}}))
	require.NoError(t, g.AddOperation(0, "open settings", 1))
	return g
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestPages(t *testing.T) {
	r := NewServer(testGraph(t), "", nil, nil).SetupRouter()

	w := get(t, r, "/pages")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Pages []PageSummary `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Pages, 2)
	assert.Equal(t, "Home", list.Pages[0].Ability)
	assert.Equal(t, []ptg.Operation{{Description: "open settings", Dest: 1}}, list.Pages[0].Operations)
	assert.Empty(t, list.Pages[1].Operations)

	w = get(t, r, "/pages/0")
	require.Equal(t, http.StatusOK, w.Code)
	var detail PageDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "home", detail.Summary)
	assert.Equal(t, []int{1}, detail.Targets)
	assert.Equal(t, 2, detail.Nodes)
	assert.Equal(t, []string{"navigate"}, detail.Functions)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/pages/7").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/pages/x").Code)
}

func TestScreenshot(t *testing.T) {
	r := NewServer(testGraph(t), "", nil, nil).SetupRouter()

	w := get(t, r, "/pages/0/screenshot")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(w.Body)
	assert.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/pages/1/screenshot").Code)
}

func TestEdgesAndAreas(t *testing.T) {
	r := NewServer(testGraph(t), "", nil, nil).SetupRouter()

	w := get(t, r, "/edges")
	require.Equal(t, http.StatusOK, w.Code)
	var edges struct {
		Edges []EdgeView `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &edges))
	require.Len(t, edges.Edges, 1)
	assert.Equal(t, `click Button "Settings"`, edges.Edges[0].Description)
	require.Len(t, edges.Edges[0].Events, 1)
	assert.IsType(t, event.Click{}, edges.Edges[0].Events[0])

	w = get(t, r, "/areas")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"areas":[[0,1]]}`, w.Body.String())
}

func TestReportFiles(t *testing.T) {
	g := testGraph(t)
	assert.Equal(t, http.StatusNotFound, get(t, NewServer(g, "", nil, nil).SetupRouter(), "/report").Code)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bug_report.txt"), []byte("No bugs found.\n"), 0644))
	r := NewServer(g, dir, nil, nil).SetupRouter()

	w := get(t, r, "/report/bugs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No bugs found.\n", w.Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, r, "/report/verify").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewRegistry()
	m.RecordOutcome("MATCH")
	r := NewServer(ptg.New(), "", m, nil).SetupRouter()

	w := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ptgbot_verify_outcomes_total{outcome="MATCH"} 1`)

	assert.Equal(t, http.StatusNotFound, get(t, NewServer(ptg.New(), "", nil, nil).SetupRouter(), "/metrics").Code)
}
