package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/config"
	"github.com/agenthands/ptgbot/internal/core/equivalence"
	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/explore"
	"github.com/agenthands/ptgbot/internal/core/oracle"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/core/summary"
	"github.com/agenthands/ptgbot/internal/device"
	"github.com/agenthands/ptgbot/internal/driver"
	"github.com/agenthands/ptgbot/internal/journal"
	"github.com/agenthands/ptgbot/internal/llm"
	"github.com/agenthands/ptgbot/internal/metrics"
)

// Seams for tests.
var (
	openDevice = func(ctx context.Context, c *config.Config, l *zap.Logger) (device.Device, error) {
		return device.Open(ctx, device.Options{
			OS:      c.Device.OS,
			Serial:  c.Device.Serial,
			ADBPath: c.Device.ADBPath,
			HDCPath: c.Device.HDCPath,
			Logger:  l,
		})
	}
	newClient = llm.NewClient
)

// session wires the collaborators explore and verify share.
type session struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Registry
	client     llm.LLMClient
	device     device.Device
	oracle     *oracle.LLM
	comparator *equivalence.Comparator
	player     *event.Player
	executor   *explore.Executor
	journal    *journal.Journal
}

func newSession(ctx context.Context, c *config.Config, l *zap.Logger, output string) (*session, error) {
	dev, err := openDevice(ctx, c, l)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	client, err := newClient(ctx, c.LLM, l)
	if err != nil {
		return nil, fmt.Errorf("oracle model: %w", err)
	}
	grounderClient, err := newClient(ctx, c.Grounder, l)
	if err != nil {
		return nil, fmt.Errorf("grounding model: %w", err)
	}

	m := metrics.DefaultRegistry()
	o := oracle.NewLLM(client, c.Oracle, c.Prompts, l, m)
	g := oracle.NewVisionGrounder(grounderClient, c.Oracle, c.Prompts, l, m)
	player := event.NewPlayer(dev, c.Settle())

	s := &session{
		cfg:        c,
		logger:     l,
		metrics:    m,
		client:     client,
		device:     dev,
		oracle:     o,
		comparator: equivalence.New(o, equivalence.ThresholdsFrom(c.Equivalence), l, m),
		player:     player,
		executor:   explore.NewExecutor(dev, g, player, c.Explore.MaxActions, l),
	}

	if c.Journal.Enabled {
		path := c.Journal.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(output, path)
		}
		j, err := journal.Open(path, "")
		if err != nil {
			return nil, err
		}
		s.journal = j
		if n, damage := j.Recovered(); damage != nil {
			l.Warn("journal tail was damaged and cut off", zap.String("path", path), zap.Int64("bytes", n), zap.Error(damage))
		}
		l.Info("journal opened", zap.String("path", path), zap.String("run_id", j.RunID()))
	}
	return s, nil
}

// journalSink keeps a disabled journal a true nil interface.
func (s *session) journalSink() explore.Journal {
	if s.journal == nil {
		return nil
	}
	return s.journal
}

func (s *session) runID() string {
	if s.journal == nil {
		return ""
	}
	return s.journal.RunID()
}

func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("failed to close journal", zap.Error(err))
		}
	}
}

// areas names the functional areas of g. Without a working model the areas
// are reported undescribed.
func (s *session) areas(ctx context.Context, g *ptg.Graph) []summary.Area {
	return summary.NewSummarizer(s.client, s.cfg.Prompts, s.logger).Areas(ctx, g)
}

// export mirrors g into the configured graph database. Export failures are
// logged; the reports on disk are the primary output.
func (s *session) export(ctx context.Context, g *ptg.Graph) {
	if !s.cfg.Graph.Enabled {
		return
	}
	d, err := driver.NewBoltDriver(ctx, s.cfg.Graph.URI, s.cfg.Graph.User, s.cfg.Graph.Password, s.logger)
	if err != nil {
		s.logger.Error("graph export skipped", zap.Error(err))
		return
	}
	defer d.Close(ctx)
	if err := d.BuildIndices(ctx); err != nil {
		s.logger.Warn("failed to build indices", zap.Error(err))
	}
	if _, err := driver.NewExporter(d, s.logger).Export(ctx, s.runID(), g); err != nil {
		s.logger.Error("graph export failed", zap.Error(err))
	}
}
