package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Runner executes a bridge command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// bridge holds what the adb and hdc adapters share. mu serializes device I/O
// so at most one command is in flight.
type bridge struct {
	bin        string
	serialFlag string
	serial     string
	runner     Runner
	logger     *zap.Logger

	mu            sync.Mutex
	width, height int
}

func (b *bridge) run(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if b.serial != "" {
		full = append([]string{b.serialFlag, b.serial}, args...)
	}
	b.logger.Debug("bridge command", zap.String("bin", b.bin), zap.Strings("args", full))
	out, err := b.runner.Run(ctx, b.bin, full...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *bridge) shell(ctx context.Context, command string) (string, error) {
	out, err := b.run(ctx, "shell", command)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// swipeVector returns start and end points for a full-screen swipe.
func swipeVector(dir Direction, w, h int) (x1, y1, x2, y2 int, err error) {
	cx, cy := w/2, h/2
	switch dir {
	case Up:
		return cx, h * 3 / 4, cx, h / 4, nil
	case Down:
		return cx, h / 4, cx, h * 3 / 4, nil
	case Left:
		return w * 3 / 4, cy, w / 4, cy, nil
	case Right:
		return w / 4, cy, w * 3 / 4, cy, nil
	}
	return 0, 0, 0, 0, fmt.Errorf("unknown swipe direction %q", dir)
}

func grepLines(out, needle string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, needle) {
			lines = append(lines, strings.TrimSpace(l))
		}
	}
	return lines
}
