// Package device drives a physical or emulated handset over its debug bridge.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/page"
)

var (
	ErrUnsupportedOS = errors.New("unsupported operating system")
	ErrUnreachable   = errors.New("device unreachable")
)

type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up"
	Down  Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Left, Right, Up, Down:
		return d, nil
	}
	return "", fmt.Errorf("unknown swipe direction %q", s)
}

type Key string

const (
	KeyBack   Key = "back"
	KeyHome   Key = "home"
	KeyRecent Key = "recent"
)

// Device is the handset collaborator. Every call is synchronous; callers add
// a settle delay before sampling the effect of an action.
type Device interface {
	Capture(ctx context.Context) (*page.Record, error)
	Click(ctx context.Context, x, y int) error
	LongClick(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, dir Direction) error
	Input(ctx context.Context, x, y int, text string) error
	PressKey(ctx context.Context, key Key) error
	StartApp(ctx context.Context, app string) error
}

type Options struct {
	OS      string
	Serial  string
	ADBPath string
	HDCPath string
	Runner  Runner
	Logger  *zap.Logger
}

// Open connects to the device named by opts. Unknown operating systems and
// unlisted serials are fatal.
func Open(ctx context.Context, opts Options) (Device, error) {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch strings.ToLower(opts.OS) {
	case "android":
		bin := opts.ADBPath
		if bin == "" {
			bin = "adb"
		}
		d := NewADB(bin, opts.Serial, opts.Runner, opts.Logger)
		if err := d.verify(ctx); err != nil {
			return nil, err
		}
		return d, nil
	case "harmony":
		bin := opts.HDCPath
		if bin == "" {
			bin = "hdc"
		}
		d := NewHDC(bin, opts.Serial, opts.Runner, opts.Logger)
		if err := d.verify(ctx); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOS, opts.OS)
	}
}
