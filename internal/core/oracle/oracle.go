// Package oracle defines the decision services consulted during exploration
// and verification, and their LLM-backed implementation.
package oracle

import (
	"context"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/ptg"
)

// Error types reported by VerifyTransition.
const (
	ErrorNone      = ""
	ErrorNoChange  = "NO_CHANGE"
	ErrorWrongPage = "WRONG_PAGE"
)

// InstructionRequest is the context for choosing the driver's next step.
// Target, when set, asks for a step toward that page instead of a free
// exploration step.
type InstructionRequest struct {
	Current      *page.Record
	Target       *page.Record
	Map          ptg.LocalMap
	ExploredOps  []ptg.Operation
	Instructions []string
	Actions      []string
	Feedback     string
}

// Candidate is a known page offered to JudgeNovelty.
type Candidate struct {
	Index  int
	Record *page.Record
}

type Novelty struct {
	IsNew         bool `json:"is_new"`
	ExistingIndex int  `json:"existing_index"`
}

type Verdict struct {
	Think     string `json:"think"`
	Matched   bool   `json:"result"`
	ErrorType string `json:"error_type"`
}

// Description is the oracle's reading of a page.
type Description struct {
	Summary   string   `json:"page_description"`
	Functions []string `json:"page_functions"`
	Widgets   []string `json:"clickable_elements"`
}

type Review struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
}

// Failed reports whether the reviewer flagged a bug.
func (r Review) Failed() bool { return r.Status == "error" }

// Oracle answers the four questions the engine cannot decide on its own.
// Replies are unreliable; implementations retry malformed output and return
// an error once their budget is spent.
type Oracle interface {
	NextInstruction(ctx context.Context, req InstructionRequest) (string, error)
	JudgeNovelty(ctx context.Context, rec *page.Record, candidates []Candidate) (Novelty, error)
	VerifyTransition(ctx context.Context, before, expected, actual *page.Record) (Verdict, error)
	ReturnInstruction(ctx context.Context, target, current *page.Record, via []event.Event) (string, error)
}

// Explorer lists instructions for the important interactive elements of a
// page.
type Explorer interface {
	Candidates(ctx context.Context, rec *page.Record) ([]string, error)
}

type Describer interface {
	Describe(ctx context.Context, rec *page.Record) (Description, error)
}

// Reviewer checks an executed instruction for functional bugs.
type Reviewer interface {
	Review(ctx context.Context, instruction string, before, after *page.Record, actions []string) (Review, error)
}

// Grounder turns an instruction and the current screen into one device
// action.
type Grounder interface {
	NextAction(ctx context.Context, instruction string, rec *page.Record, history []string) (Action, error)
}
