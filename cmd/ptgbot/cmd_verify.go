package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/explore"
	"github.com/agenthands/ptgbot/internal/core/ptg"
)

var (
	verifyPTG    string
	verifyOutput string
	verifyAnchor int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay a recorded PTG on the device and repair it",
	Long: `Walks the recorded graph depth first from the anchor page, replaying every
transition. Transitions that land elsewhere are repaired with fresh
instructions from the oracle, and pages without recorded transitions are
explored. The updated PTG and verify_result.json are written to --output.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPTG, "ptg", "", "Directory holding ptg.json (required)")
	verifyCmd.Flags().StringVarP(&verifyOutput, "output", "o", "output", "Report directory")
	verifyCmd.Flags().IntVar(&verifyAnchor, "anchor", -1, "Page to start from (default from config)")
	_ = verifyCmd.MarkFlagRequired("ptg")
}

func runVerify(cmd *cobra.Command, args []string) error {
	graph, err := ptg.Load(verifyPTG)
	if err != nil {
		return fmt.Errorf("failed to load PTG: %w", err)
	}
	anchor := cfg.Verify.Anchor
	if verifyAnchor >= 0 {
		anchor = verifyAnchor
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, cfg, logger, verifyOutput)
	if err != nil {
		return err
	}
	defer s.Close()

	v := &explore.Verifier{
		Device:     s.device,
		Graph:      graph,
		Oracle:     s.oracle,
		Explorer:   s.oracle,
		Describer:  s.oracle,
		Comparator: s.comparator,
		Player:     s.player,
		Executor:   s.executor,
		Retries:    cfg.Verify.Retries,
		MaxDepth:   cfg.Verify.MaxExploreDepth,
		Journal:    s.journalSink(),
		Logger:     logger,
		Metrics:    s.metrics,
	}
	res, err := v.Verify(ctx, anchor)
	if err != nil {
		return err
	}

	reports := explore.Reports{
		Graph:     graph,
		Abilities: abilities(graph),
		Result:    res,
		Areas:     s.areas(context.Background(), graph),
	}
	if err := reports.Write(verifyOutput); err != nil {
		return err
	}
	s.export(context.Background(), graph)
	logger.Info("verification finished",
		zap.Int("match", res.Count(explore.Match)),
		zap.Int("no_change", res.Count(explore.NoChange)),
		zap.Int("wrong_page", res.Count(explore.WrongPage)),
		zap.Int("failed", res.Count(explore.Failed)),
		zap.Int("added_pages", len(res.Added)),
	)
	return nil
}

func abilities(g *ptg.Graph) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.Pages() {
		a := n.Record.Ability()
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
