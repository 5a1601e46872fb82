package explore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agenthands/ptgbot/internal/core/ptg"
	"github.com/agenthands/ptgbot/internal/core/summary"
)

// Reports are the artifacts written at the end of a run.
type Reports struct {
	Graph     *ptg.Graph
	Bugs      []Bug
	Abilities []string
	Result    *Result
	// Areas defaults to the undescribed areas of Graph.
	Areas []summary.Area
}

// PathEntry is one page of the exploration path report.
type PathEntry struct {
	PageIndex          int             `json:"page_index"`
	ScreenshotPath     string          `json:"screenshot_path"`
	Summary            string          `json:"summary,omitempty"`
	ExploredOperations []ptg.Operation `json:"explored_operations"`
}

// Write lays the reports out under dir:
//
//	screenshots/page_N.png
//	bug_report.txt
//	explored_abilities.txt
//	exploration_path_report.json
//	areas.json
//	verify_result.json (verification runs only)
//	ptg/
func (r Reports) Write(dir string) error {
	shots := filepath.Join(dir, "screenshots")
	if err := os.MkdirAll(shots, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	var path []PathEntry
	for _, n := range r.Graph.Pages() {
		name := filepath.Join("screenshots", fmt.Sprintf("page_%d.png", n.Index))
		if n.Record != nil && len(n.Record.Screenshot) > 0 {
			if err := os.WriteFile(filepath.Join(dir, name), n.Record.Screenshot, 0644); err != nil {
				return fmt.Errorf("failed to write screenshot: %w", err)
			}
		} else {
			name = ""
		}
		ops := n.Operations
		if ops == nil {
			ops = []ptg.Operation{}
		}
		path = append(path, PathEntry{PageIndex: n.Index, ScreenshotPath: name, Summary: n.Summary, ExploredOperations: ops})
	}
	if path == nil {
		path = []PathEntry{}
	}
	if err := writeJSON(filepath.Join(dir, "exploration_path_report.json"), path); err != nil {
		return err
	}

	areas := r.Areas
	if areas == nil {
		areas = summary.Plain(r.Graph)
	}
	if err := writeJSON(filepath.Join(dir, "areas.json"), areas); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, "bug_report.txt"), []byte(bugReport(r.Bugs)), 0644); err != nil {
		return fmt.Errorf("failed to write bug report: %w", err)
	}
	abilities := strings.Join(r.Abilities, "\n")
	if abilities != "" {
		abilities += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "explored_abilities.txt"), []byte(abilities), 0644); err != nil {
		return fmt.Errorf("failed to write abilities: %w", err)
	}

	if r.Result != nil {
		if err := writeJSON(filepath.Join(dir, "verify_result.json"), r.Result); err != nil {
			return err
		}
	}
	return ptg.Save(filepath.Join(dir, "ptg"), r.Graph)
}

func bugReport(bugs []Bug) string {
	if len(bugs) == 0 {
		return "No bugs found.\n"
	}
	var sb strings.Builder
	for i, b := range bugs {
		fmt.Fprintf(&sb, "Bug %d (page %d)\n", i+1, b.Page)
		fmt.Fprintf(&sb, "Instruction: %s\n", b.Instruction)
		if len(b.Actions) > 0 {
			fmt.Fprintf(&sb, "Actions: %s\n", strings.Join(b.Actions, "; "))
		}
		fmt.Fprintf(&sb, "Feedback: %s\n\n", b.Feedback)
	}
	return sb.String()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
