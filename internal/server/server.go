// Package server exposes a PTG and the reports of a run over HTTP. The API is
// read-only; during a live run it reflects the graph as the builder grows it.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/metrics"
)

type Server struct {
	Graph *ptg.Graph
	// Dir holds the report files of a finished run. Empty while a run is in
	// progress.
	Dir     string
	Metrics *metrics.Registry
	Logger  *zap.Logger
}

func NewServer(g *ptg.Graph, dir string, m *metrics.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Graph: g, Dir: dir, Metrics: m, Logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/pages", s.ListPages)
	r.GET("/pages/:index", s.GetPage)
	r.GET("/pages/:index/screenshot", s.GetScreenshot)
	r.GET("/edges", s.ListEdges)
	r.GET("/areas", s.Areas)
	r.GET("/report", s.reportFile("exploration_path_report.json"))
	r.GET("/report/bugs", s.reportFile("bug_report.txt"))
	r.GET("/report/verify", s.reportFile("verify_result.json"))
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.SetupRouter()}
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("serving graph", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

type PageSummary struct {
	Index      int             `json:"index"`
	Bundle     string          `json:"bundle"`
	Ability    string          `json:"ability"`
	Summary    string          `json:"summary"`
	Operations []ptg.Operation `json:"operations"`
}

type PageDetail struct {
	PageSummary
	Widgets   []string `json:"widgets"`
	Functions []string `json:"functions"`
	Targets   []int    `json:"targets"`
	Nodes     int      `json:"nodes"`
}

type EdgeView struct {
	Src         int        `json:"src"`
	Dst         int        `json:"dst"`
	Description string     `json:"description"`
	Events      event.List `json:"events"`
}

func summarize(n *ptg.PageNode) PageSummary {
	out := PageSummary{Index: n.Index, Summary: n.Summary, Operations: n.Operations}
	if out.Operations == nil {
		out.Operations = []ptg.Operation{}
	}
	if n.Record != nil {
		out.Bundle = n.Record.Bundle()
		out.Ability = n.Record.Ability()
	}
	return out
}

func (s *Server) ListPages(c *gin.Context) {
	pages := s.Graph.Pages()
	out := make([]PageSummary, 0, len(pages))
	for _, n := range pages {
		out = append(out, summarize(n))
	}
	c.JSON(http.StatusOK, gin.H{"pages": out})
}

func (s *Server) page(c *gin.Context) (*ptg.PageNode, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page index"})
		return nil, false
	}
	n, ok := s.Graph.Page(i)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page not found"})
		return nil, false
	}
	return n, true
}

func (s *Server) GetPage(c *gin.Context) {
	n, ok := s.page(c)
	if !ok {
		return
	}
	d := PageDetail{
		PageSummary: summarize(n),
		Widgets:     n.Widgets,
		Functions:   n.Functions,
		Targets:     s.Graph.Targets(n.Index),
	}
	if d.Targets == nil {
		d.Targets = []int{}
	}
	if n.Record != nil {
		d.Nodes = n.Record.Tree.Count()
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) GetScreenshot(c *gin.Context) {
	n, ok := s.page(c)
	if !ok {
		return
	}
	if n.Record == nil || len(n.Record.Screenshot) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No screenshot"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(n.Record.Screenshot), n.Record.Screenshot)
}

func (s *Server) ListEdges(c *gin.Context) {
	edges := s.Graph.Edges()
	out := make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		out = append(out, EdgeView{Src: e.Src, Dst: e.Dst, Description: event.DescribeAll(e.Events), Events: e.Events})
	}
	c.JSON(http.StatusOK, gin.H{"edges": out})
}

func (s *Server) Areas(c *gin.Context) {
	areas := s.Graph.Areas()
	if areas == nil {
		areas = [][]int{}
	}
	c.JSON(http.StatusOK, gin.H{"areas": areas})
}

func (s *Server) reportFile(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Dir == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "No report available"})
			return
		}
		path := filepath.Join(s.Dir, name)
		if _, err := os.Stat(path); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No report available"})
			return
		}
		c.File(path)
	}
}
