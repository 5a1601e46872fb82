package oracle

import "github.com/agenthands/ptgbot/internal/config"

// Prompts are fmt templates. Overrides must keep the verbs of the default
// they replace.
type Prompts struct {
	Instruction string
	Novelty     string
	Verify      string
	Return      string
	Candidates  string
	Describe    string
	Review      string
	Grounding   string
}

func DefaultPrompts() Prompts {
	return Prompts{
		Instruction: defaultInstruction,
		Novelty:     defaultNovelty,
		Verify:      defaultVerify,
		Return:      defaultReturn,
		Candidates:  defaultCandidates,
		Describe:    defaultDescribe,
		Review:      defaultReview,
		Grounding:   defaultGrounding,
	}
}

// PromptsFrom overlays the non-empty configured prompts on the defaults.
func PromptsFrom(cfg config.PromptsConfig) Prompts {
	p := DefaultPrompts()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.Instruction, cfg.Instruction)
	set(&p.Novelty, cfg.Novelty)
	set(&p.Verify, cfg.Verify)
	set(&p.Return, cfg.Return)
	set(&p.Candidates, cfg.Candidates)
	set(&p.Describe, cfg.Describe)
	set(&p.Review, cfg.Review)
	set(&p.Grounding, cfg.Grounding)
	return p
}

const defaultInstruction = `You are testing a mobile app and decide the next thing to try.
The screenshot shows the current page.

<MAP>
%s
</MAP>

<EXPLORED OPERATIONS ON THIS PAGE>
%s
</EXPLORED OPERATIONS ON THIS PAGE>

<RECENT INSTRUCTIONS>
%s
</RECENT INSTRUCTIONS>

<RECENT ACTIONS>
%s
</RECENT ACTIONS>

<FEEDBACK>
%s
</FEEDBACK>

Instructions:
Pick ONE operation that is likely to reach a page or function not explored yet.
Prefer operations not listed above. Avoid operations that leave the app.
Output only the instruction on a single line, for example: Tap the "Settings" tab`

const defaultNovelty = `You decide whether a mobile app screen is a page we have seen before.
The first image is the new screen. The following images are known pages, in this order: %s.

Two screens are the same page when they serve the same function with the same layout,
even if list contents, counters or text fields differ.

Return a JSON object:
{"is_new": true, "existing_index": -1}
or, when the new screen matches a known page,
{"is_new": false, "existing_index": <index of the known page>}`

const defaultVerify = `You verify a recorded transition of a mobile app.
Image 1 is the page before the operation. Image 2 is the page the operation is expected to reach.
Image 3 is the page the device actually shows now.

Decide whether the actual page is the expected page.
If not, error_type is "NO_CHANGE" when the actual page is still the page before the operation,
otherwise "WRONG_PAGE".

Return a JSON object:
{"think": "<short reasoning>", "result": true, "error_type": ""}`

const defaultReturn = `You navigate a mobile app back to a known page.
Image 1 is the target page; the red boxes mark the elements used to reach the next page from it: %s.
Image 2 is the page the device shows now.

Give ONE instruction that moves the device from the current page toward the target page,
for example: Press the back button
Output only the instruction on a single line.`

const defaultCandidates = `You plan exploration of a mobile app page shown in the screenshot.
Interactive elements found in the layout:
%s

List the interactive elements worth exploring, most important first, as short instructions.
Skip elements that leave the app or repeat another entry.

Return a JSON object:
{"clickable_events": ["Tap the \"Search\" button", "Open the first item in the list"]}`

const defaultDescribe = `Describe the mobile app page in the screenshot.
Interactive elements found in the layout:
%s

Return a JSON object:
{"page_description": "<one sentence>", "page_functions": ["<function>"], "clickable_elements": ["<element>"]}`

const defaultReview = `You review one step of a mobile app test for functional bugs.
Instruction: %s
Actions performed:
%s

Image 1 is the screen before the step, image 2 the screen after it.
Report "error" only if the app misbehaved (crash, wrong content, dead control). A step the
tester executed badly is not a bug.

Return a JSON object:
{"status": "success", "feedback": "<what happened and what to try next>"}`

const defaultGrounding = `You operate a mobile phone. Complete the instruction using the screenshot.
Instruction: %s
Previous actions:
%s

Action space:
click(point='<point>x y</point>')
long_click(point='<point>x y</point>')
type(content='text')  types into the focused field
scroll(point='<point>x y</point>', direction='down or up or right or left')
press_back()
finished(content='summary')  when the instruction is complete

Points are on a 0 to 1000 grid over the screenshot.
Reply exactly in this format:
Thought: <reasoning>
Description: <what the action does>
Status: success
Action: <one action>`
