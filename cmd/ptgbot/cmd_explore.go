package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/ptgbot/internal/core/explore"
	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/server"
)

var (
	exploreOS         string
	exploreSerial     string
	exploreOutput     string
	exploreMaxSteps   int
	exploreMaxMinutes int
	exploreApp        string
	exploreServe      string
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Explore an app and record its page transition graph",
	Long: `Drives the device step by step: the oracle proposes an instruction, the
grounding model turns it into taps, and a background builder folds every
observed screen into the PTG. A reviewer checks each instruction and reports
bugs. Reports and the PTG are written to --output.`,
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().StringVar(&exploreOS, "os", "", "Device OS: android or harmony")
	exploreCmd.Flags().StringVarP(&exploreSerial, "serial", "s", "", "Device serial")
	exploreCmd.Flags().StringVarP(&exploreOutput, "output", "o", "output", "Report directory")
	exploreCmd.Flags().IntVarP(&exploreMaxSteps, "max-steps", "m", -1, "Step budget (0 is unbounded)")
	exploreCmd.Flags().IntVarP(&exploreMaxMinutes, "max-minutes", "t", -1, "Wall-clock budget in minutes (0 is unbounded)")
	exploreCmd.Flags().StringVar(&exploreApp, "app", "", "Bundle to start before exploring")
	exploreCmd.Flags().StringVar(&exploreServe, "serve", "", "Serve the live graph on this address")
}

// applyExploreFlags lays explicitly set flags over the loaded configuration.
func applyExploreFlags() error {
	if exploreOS != "" {
		cfg.Device.OS = exploreOS
	}
	if exploreSerial != "" {
		cfg.Device.Serial = exploreSerial
	}
	if exploreApp != "" {
		cfg.Device.App = exploreApp
	}
	if exploreMaxSteps >= 0 {
		cfg.Explore.MaxSteps = exploreMaxSteps
	}
	if exploreMaxMinutes >= 0 {
		cfg.Explore.MaxMinutes = exploreMaxMinutes
	}
	return cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runExplore(cmd *cobra.Command, args []string) error {
	if err := applyExploreFlags(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, cfg, logger, exploreOutput)
	if err != nil {
		return err
	}
	defer s.Close()

	graph := ptg.New()
	builder := explore.NewBuilder(graph, s.comparator, s.oracle, s.journalSink(), logger, s.metrics)
	explorer := &explore.Explorer{
		Device:   s.device,
		Graph:    graph,
		Oracle:   s.oracle,
		Reviewer: s.oracle,
		Executor: s.executor,
		Builder:  builder,
		Options: explore.Options{
			MaxSteps:           cfg.Explore.MaxSteps,
			MaxDuration:        cfg.RunLimit(),
			InstructionHistory: cfg.Explore.InstrHistory,
			ActionHistory:      cfg.Explore.ActionHistory,
			App:                cfg.Device.App,
		},
		Logger:  logger,
		Metrics: s.metrics,
	}

	runCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	eg, egCtx := errgroup.WithContext(runCtx)
	if exploreServe != "" {
		srv := server.NewServer(graph, "", s.metrics, logger)
		eg.Go(func() error { return srv.Run(egCtx, exploreServe) })
	}
	eg.Go(func() error {
		defer stopServing()
		return explorer.Run(egCtx)
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	reports := explore.Reports{
		Graph:     graph,
		Bugs:      explorer.Bugs(),
		Abilities: builder.Abilities(),
		Areas:     s.areas(context.Background(), graph),
	}
	if err := reports.Write(exploreOutput); err != nil {
		return err
	}
	s.export(context.Background(), graph)
	logger.Info("exploration reports written",
		zap.String("dir", exploreOutput),
		zap.Int("pages", graph.Len()),
		zap.Int("bugs", len(reports.Bugs)),
	)
	return nil
}
