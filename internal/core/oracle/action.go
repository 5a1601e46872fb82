package oracle

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agenthands/ptgbot/internal/device"
)

var ErrMalformedAction = errors.New("malformed action")

type ActionType string

const (
	ActionClick     ActionType = "click"
	ActionLongClick ActionType = "long_click"
	ActionInput     ActionType = "type"
	ActionScroll    ActionType = "scroll"
	ActionBack      ActionType = "press_back"
	ActionFinished  ActionType = "finished"
)

// Action is one grounded step. X and Y are device pixels.
type Action struct {
	Thought     string
	Description string
	Status      string
	Type        ActionType
	X, Y        int
	Content     string
	Direction   device.Direction
}

func (a Action) String() string {
	switch a.Type {
	case ActionClick, ActionLongClick:
		return fmt.Sprintf("%s(%d, %d)", a.Type, a.X, a.Y)
	case ActionInput, ActionFinished:
		return fmt.Sprintf("%s(%q)", a.Type, a.Content)
	case ActionScroll:
		return fmt.Sprintf("scroll(%s)", a.Direction)
	default:
		return string(a.Type) + "()"
	}
}

var (
	thoughtRe   = regexp.MustCompile(`(?s)Thought:(.*?)\nDescription:`)
	describeRe  = regexp.MustCompile(`(?s)Description:(.*?)\nStatus:`)
	statusRe    = regexp.MustCompile(`(?s)Status:(.*?)\nAction:`)
	actionRe    = regexp.MustCompile(`Action:(.*?)(?:\n|$)`)
	callRe      = regexp.MustCompile(`(\w+)\s*\(`)
	pointArgRe  = regexp.MustCompile(`point=['"](.*?)['"]`)
	pointTagRe  = regexp.MustCompile(`<point>(.*?)</point>`)
	numberRe    = regexp.MustCompile(`\d+`)
	contentRe   = regexp.MustCompile(`content='((?:[^'\\]|\\.)*)'|content="((?:[^"\\]|\\.)*)"`)
	directionRe = regexp.MustCompile(`direction=['"](.*?)['"]`)

	unescaper = strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\'`, `'`)
)

// ParseAction reads a grounding reply of the form
//
//	Thought: ...
//	Description: ...
//	Status: success
//	Action: click(point='<point>500 120</point>')
//
// Points are on a 0-1000 grid and are scaled to a w x h screen.
func ParseAction(text string, w, h int) (Action, error) {
	var a Action
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		a.Thought = strings.TrimSpace(m[1])
	}
	if m := describeRe.FindStringSubmatch(text); m != nil {
		a.Description = strings.TrimSpace(m[1])
	}
	a.Status = "success"
	if m := statusRe.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			a.Status = s
		}
	}

	m := actionRe.FindStringSubmatch(text)
	if m == nil {
		return Action{}, fmt.Errorf("%w: no Action line", ErrMalformedAction)
	}
	call := strings.TrimSpace(m[1])
	tm := callRe.FindStringSubmatch(call)
	if tm == nil {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, call)
	}
	a.Type = ActionType(tm[1])

	switch a.Type {
	case ActionClick, ActionLongClick:
		x, y, err := parsePoint(call)
		if err != nil {
			return Action{}, err
		}
		a.X, a.Y = scale(x, w), scale(y, h)
	case ActionInput:
		c, ok := parseContent(call)
		if !ok {
			return Action{}, fmt.Errorf("%w: type without content", ErrMalformedAction)
		}
		a.Content = c
	case ActionScroll:
		dm := directionRe.FindStringSubmatch(call)
		if dm == nil {
			return Action{}, fmt.Errorf("%w: scroll without direction", ErrMalformedAction)
		}
		dir, err := device.ParseDirection(strings.TrimSpace(dm[1]))
		if err != nil {
			return Action{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
		a.Direction = dir
		if x, y, err := parsePoint(call); err == nil {
			a.X, a.Y = scale(x, w), scale(y, h)
		}
	case ActionFinished:
		a.Content, _ = parseContent(call)
	case ActionBack:
	default:
		return Action{}, fmt.Errorf("%w: unsupported action %q", ErrMalformedAction, a.Type)
	}
	return a, nil
}

func parsePoint(call string) (int, int, error) {
	src := call
	if m := pointArgRe.FindStringSubmatch(call); m != nil {
		src = m[1]
	}
	if m := pointTagRe.FindStringSubmatch(src); m != nil {
		src = m[1]
	}
	nums := numberRe.FindAllString(src, 2)
	if len(nums) < 2 {
		return 0, 0, fmt.Errorf("%w: missing point in %q", ErrMalformedAction, call)
	}
	x, _ := strconv.Atoi(nums[0])
	y, _ := strconv.Atoi(nums[1])
	return x, y, nil
}

func parseContent(call string) (string, bool) {
	m := contentRe.FindStringSubmatch(call)
	if m == nil {
		return "", false
	}
	c := m[1]
	if c == "" {
		c = m[2]
	}
	return unescaper.Replace(c), true
}

func scale(v, size int) int {
	return int(float64(v) / 1000 * float64(size))
}
