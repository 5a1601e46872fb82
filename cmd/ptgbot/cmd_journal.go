package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenthands/ptgbot/internal/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal [path]",
	Short: "Print the transitions recorded in a run journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournal,
}

func runJournal(cmd *cobra.Command, args []string) error {
	entries, err := journal.ReadAll(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		r := e.Record
		ts := time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
		detail := r.Operation
		if e.Kind == journal.KindOutcome {
			detail = r.Outcome
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%d -> %d\t%s\n", e.Seq, ts, e.Kind, r.Src, r.Dst, detail)
	}
	fmt.Fprintf(out, "%d entries\n", len(entries))
	return nil
}
