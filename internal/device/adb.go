package device

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/uitree"
)

const (
	adbDumpPath   = "/data/local/tmp/view.xml"
	dumpRetries   = 3
	longPressMs   = 1000
	swipeDuration = 300
)

var (
	focusRe    = regexp.MustCompile(`.*u0 (.*)/(.*)}`)
	wmSizeRe   = regexp.MustCompile(`(\d+)x(\d+)`)
	userIDRe   = regexp.MustCompile(`userId=(\d+)`)
	playbackRe = regexp.MustCompile(`u/pid:(\d+)/\d+.*state:(\w+)`)
)

var adbKeys = map[Key]string{
	KeyBack:   "4",
	KeyHome:   "3",
	KeyRecent: "187",
}

// ADB drives an Android handset through the adb bridge.
type ADB struct {
	bridge
	retryDelay time.Duration
}

func NewADB(bin, serial string, runner Runner, logger *zap.Logger) *ADB {
	return &ADB{
		bridge: bridge{
			bin:        bin,
			serialFlag: "-s",
			serial:     serial,
			runner:     runner,
			logger:     logger.Named("adb"),
		},
		retryDelay: time.Second,
	}
}

func (d *ADB) verify(ctx context.Context) error {
	out, err := d.runner.Run(ctx, d.bin, "devices")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "device" {
			continue
		}
		if d.serial == "" || fields[0] == d.serial {
			return nil
		}
	}
	return fmt.Errorf("%w: serial %q not listed by adb", ErrUnreachable, d.serial)
}

func (d *ADB) Capture(ctx context.Context) (*page.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tree, err := d.hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	shot, err := d.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("screencap: %w", err)
	}
	info := d.foreground(ctx)
	rec := page.NewRecord(tree, shot, info, d.resource(ctx, info))
	if w, h := rec.Size(); w > 0 {
		d.width, d.height = w, h
	}
	return rec, nil
}

// hierarchy dumps the view tree, killing a wedged uiautomator between tries.
func (d *ADB) hierarchy(ctx context.Context) (*uitree.Tree, error) {
	var lastErr error
	for attempt := 0; attempt < dumpRetries; attempt++ {
		out, err := d.shell(ctx, fmt.Sprintf("uiautomator dump %s && cat %s", adbDumpPath, adbDumpPath))
		if err == nil {
			tree, perr := uitree.ParseUIAutomatorXML(out)
			if perr == nil {
				return tree, nil
			}
			err = perr
		}
		lastErr = err
		d.logger.Warn("hierarchy dump failed", zap.Int("attempt", attempt+1), zap.Error(err))
		_, _ = d.shell(ctx, "pkill uiautomator")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
	return nil, fmt.Errorf("dump hierarchy: %w", lastErr)
}

func (d *ADB) foreground(ctx context.Context) *page.Info {
	out, err := d.shell(ctx, "dumpsys window")
	if err != nil {
		d.logger.Warn("dumpsys window failed", zap.Error(err))
		return nil
	}
	for _, line := range grepLines(out, "mCurrentFocus") {
		m := focusRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ability := strings.TrimSpace(m[2])
		return &page.Info{Bundle: strings.TrimSpace(m[1]), Ability: ability, Name: ability}
	}
	return nil
}

// resource reports audio playback for the foreground package. The camera is
// not probed on Android.
func (d *ADB) resource(ctx context.Context, info *page.Info) page.Resource {
	rsc := page.Resource{
		Audio:  page.AudioInfo{Type: "music", Status: page.Stopped},
		Camera: page.CameraInfo{Type: "front", Status: page.Stopped},
	}
	if info == nil {
		return rsc
	}
	pkg, err := d.shell(ctx, "dumpsys package "+info.Bundle)
	if err != nil {
		return rsc
	}
	m := userIDRe.FindStringSubmatch(pkg)
	if m == nil {
		return rsc
	}
	uid := m[1]
	audio, err := d.shell(ctx, "dumpsys audio")
	if err != nil {
		return rsc
	}
	for _, line := range grepLines(audio, "AudioPlaybackConfiguration") {
		pm := playbackRe.FindStringSubmatch(line)
		if pm != nil && pm[1] == uid && pm[2] == "started" {
			rsc.Audio.Status = page.Running
			break
		}
	}
	return rsc
}

func (d *ADB) size(ctx context.Context) (int, int, error) {
	if d.width > 0 && d.height > 0 {
		return d.width, d.height, nil
	}
	out, err := d.shell(ctx, "wm size")
	if err != nil {
		return 0, 0, err
	}
	m := wmSizeRe.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, fmt.Errorf("unexpected wm size output %q", out)
	}
	d.width, _ = strconv.Atoi(m[1])
	d.height, _ = strconv.Atoi(m[2])
	return d.width, d.height, nil
}

func (d *ADB) Click(ctx context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

func (d *ADB) LongClick(ctx context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.shell(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, longPressMs))
	return err
}

func (d *ADB) Swipe(ctx context.Context, dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, h, err := d.size(ctx)
	if err != nil {
		return err
	}
	x1, y1, x2, y2, err := swipeVector(dir, w, h)
	if err != nil {
		return err
	}
	_, err = d.shell(ctx, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, swipeDuration))
	return err
}

// Input focuses the field at (x, y) and types text. Spaces are escaped for
// the input tool.
func (d *ADB) Input(ctx context.Context, x, y int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.shell(ctx, fmt.Sprintf("input tap %d %d", x, y)); err != nil {
		return err
	}
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := d.shell(ctx, fmt.Sprintf("input text %q", escaped))
	return err
}

func (d *ADB) PressKey(ctx context.Context, key Key) error {
	code, ok := adbKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.shell(ctx, "input keyevent "+code)
	return err
}

// StartApp launches the package's launcher activity. app may be "bundle" or
// "bundle/activity".
func (d *ADB) StartApp(ctx context.Context, app string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.Contains(app, "/") {
		_, err := d.shell(ctx, "am start -n "+app)
		return err
	}
	_, err := d.shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", app))
	return err
}
