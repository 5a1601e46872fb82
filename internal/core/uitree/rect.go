package uitree

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

var boundsRe = regexp.MustCompile(`\[(-?\d+),\s*(-?\d+)\]\[(-?\d+),\s*(-?\d+)\]`)

// Rect is an element's on-screen bounds with inclusive edges.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// ParseBounds parses the "[x1,y1][x2,y2]" form emitted by device dumps.
func ParseBounds(s string) (Rect, error) {
	m := boundsRe.FindStringSubmatch(s)
	if len(m) < 5 {
		return Rect{}, fmt.Errorf("invalid bounds format: %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Rect{}, fmt.Errorf("invalid bounds coordinate %q: %w", m[i+1], err)
		}
		v[i] = n
	}
	return Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

func (r Rect) IsZero() bool { return r == Rect{} }

func (r Rect) Center() (int, int) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

func (r Rect) Area() int {
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

func (r Rect) Contains(x, y int) bool {
	return r.X1 <= x && x <= r.X2 && r.Y1 <= y && y <= r.Y2
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.X1, r.Y1, r.X2, r.Y2)
}

// MarshalJSON writes the nested-array form [[x1,y1],[x2,y2]].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]int{{r.X1, r.Y1}, {r.X2, r.Y2}})
}

// UnmarshalJSON accepts the nested-array form, the "[x1,y1][x2,y2]" string
// form, or an empty string for absent bounds.
func (r *Rect) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*r = Rect{}
			return nil
		}
		parsed, err := ParseBounds(s)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}

	var pts [][]int
	if err := json.Unmarshal(data, &pts); err != nil {
		return fmt.Errorf("failed to decode bounds %s: %w", string(data), err)
	}
	if len(pts) != 2 || len(pts[0]) != 2 || len(pts[1]) != 2 {
		return fmt.Errorf("bounds must hold two points, got %s", string(data))
	}
	*r = Rect{X1: pts[0][0], Y1: pts[0][1], X2: pts[1][0], Y2: pts[1][1]}
	return nil
}
