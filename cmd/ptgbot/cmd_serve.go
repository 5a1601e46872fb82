package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/metrics"
	"github.com/agenthands/ptgbot/internal/server"
)

var (
	serveDir  string
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the PTG and reports of a finished run",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDir, "dir", "output", "Report directory of a run")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

// loadRun loads the PTG of a report directory, or of a bare PTG directory.
func loadRun(dir string) (*ptg.Graph, error) {
	if _, err := os.Stat(filepath.Join(dir, "ptg", "ptg.json")); err == nil {
		return ptg.Load(filepath.Join(dir, "ptg"))
	}
	return ptg.Load(dir)
}

func runServe(cmd *cobra.Command, args []string) error {
	graph, err := loadRun(serveDir)
	if err != nil {
		return fmt.Errorf("failed to load PTG: %w", err)
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	ctx, cancel := signalContext()
	defer cancel()
	return server.NewServer(graph, serveDir, metrics.DefaultRegistry(), logger).Run(ctx, addr)
}
