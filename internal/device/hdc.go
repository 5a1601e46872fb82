package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/ptgbot/internal/core/page"
	"github.com/agenthands/ptgbot/internal/core/uitree"
)

const (
	hdcLayoutPath = "/data/local/tmp/layout.json"
	hdcShotPath   = "/data/local/tmp/screen.jpeg"
)

var (
	missionRe = regexp.MustCompile(`(?s).*app name \[(.*)\].*main name \[(.*)\].*bundle name \[(.*)\].*ability type.*`)
	sessionRe = regexp.MustCompile(`sessionId: (\d+).*appUid: (\d+)`)
	streamRe  = regexp.MustCompile(`Stream Id: (\d+)`)
	statusRe  = regexp.MustCompile(`Status:\s*(\w+)`)
)

var hdcKeys = map[Key]string{
	KeyBack: "Back",
	KeyHome: "Home",
}

// HDC drives a HarmonyOS handset through the hdc bridge and the uitest tool.
type HDC struct {
	bridge
	tmpDir string
}

func NewHDC(bin, serial string, runner Runner, logger *zap.Logger) *HDC {
	return &HDC{
		bridge: bridge{
			bin:        bin,
			serialFlag: "-t",
			serial:     serial,
			runner:     runner,
			logger:     logger.Named("hdc"),
		},
		tmpDir: os.TempDir(),
	}
}

func (d *HDC) verify(ctx context.Context) error {
	out, err := d.runner.Run(ctx, d.bin, "list", "targets")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "[Empty]") {
			continue
		}
		if d.serial == "" || line == d.serial {
			return nil
		}
	}
	return fmt.Errorf("%w: serial %q not listed by hdc", ErrUnreachable, d.serial)
}

func (d *HDC) Capture(ctx context.Context) (*page.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.shell(ctx, "uitest dumpLayout -p "+hdcLayoutPath); err != nil {
		return nil, fmt.Errorf("dump layout: %w", err)
	}
	raw, err := d.run(ctx, "shell", "cat "+hdcLayoutPath)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	tree, err := uitree.ParseLayoutJSON(raw)
	if err != nil {
		return nil, err
	}
	shot, err := d.screenshot(ctx)
	if err != nil {
		return nil, err
	}
	info := d.foreground(ctx)
	rec := page.NewRecord(tree, shot, info, d.resource(ctx, info))
	if w, h := rec.Size(); w > 0 {
		d.width, d.height = w, h
	}
	return rec, nil
}

// screenshot pulls the device snapshot and re-encodes it as PNG.
func (d *HDC) screenshot(ctx context.Context) ([]byte, error) {
	if _, err := d.shell(ctx, "snapshot_display -f "+hdcShotPath); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	local := filepath.Join(d.tmpDir, fmt.Sprintf("ptgbot-%s.jpeg", strings.ReplaceAll(d.serial, ":", "_")))
	defer os.Remove(local)
	if _, err := d.run(ctx, "file", "recv", hdcShotPath, local); err != nil {
		return nil, fmt.Errorf("pull snapshot: %w", err)
	}
	f, err := os.Open(local)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *HDC) foreground(ctx context.Context) *page.Info {
	out, err := d.shell(ctx, "hidumper -s AbilityManagerService -a -l")
	if err != nil {
		d.logger.Warn("hidumper failed", zap.Error(err))
		return nil
	}
	for _, mission := range strings.Split(out, "}") {
		if !strings.Contains(mission, "state #FOREGROUND  start time") || !strings.Contains(mission, "app state #FOREGROUND") {
			continue
		}
		if m := missionRe.FindStringSubmatch(mission); m != nil {
			return &page.Info{Bundle: m[3], Ability: m[2]}
		}
	}
	return nil
}

// resource pairs the app's audio session with the stream table. The camera
// is not probed.
func (d *HDC) resource(ctx context.Context, info *page.Info) page.Resource {
	rsc := page.Resource{
		Audio:  page.AudioInfo{Type: "music", Status: page.Stopped},
		Camera: page.CameraInfo{Type: "front", Status: page.Stopped},
	}
	if info == nil {
		return rsc
	}
	ps, err := d.shell(ctx, "ps -ef")
	if err != nil {
		return rsc
	}
	var uid string
	for _, line := range grepLines(ps, info.Bundle) {
		if f := strings.Fields(line); len(f) > 2 {
			uid = f[0]
			break
		}
	}
	if uid == "" {
		return rsc
	}
	dump, err := d.shell(ctx, "hidumper -s AudioDistributed")
	if err != nil {
		return rsc
	}

	var session string
	for _, line := range grepLines(dump, "sessionId") {
		if m := sessionRe.FindStringSubmatch(line); m != nil && m[2] == uid {
			session = m[1]
		}
	}
	var streams, states []string
	for _, line := range grepLines(dump, "Stream Id") {
		if m := streamRe.FindStringSubmatch(line); m != nil {
			streams = append(streams, m[1])
		}
	}
	for _, line := range grepLines(dump, "Status") {
		if m := statusRe.FindStringSubmatch(line); m != nil {
			states = append(states, m[1])
		}
	}
	for i, s := range streams {
		if s == session && i < len(states) && states[i] == string(page.Running) {
			rsc.Audio.Status = page.Running
		}
	}
	return rsc
}

func (d *HDC) size(ctx context.Context) (int, int, error) {
	if d.width > 0 && d.height > 0 {
		return d.width, d.height, nil
	}
	shot, err := d.screenshot(ctx)
	if err != nil {
		return 0, 0, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(shot))
	if err != nil {
		return 0, 0, err
	}
	d.width, d.height = cfg.Width, cfg.Height
	return d.width, d.height, nil
}

func (d *HDC) uiInput(ctx context.Context, args string) error {
	_, err := d.shell(ctx, "uitest uiInput "+args)
	return err
}

func (d *HDC) Click(ctx context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uiInput(ctx, fmt.Sprintf("click %d %d", x, y))
}

func (d *HDC) LongClick(ctx context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uiInput(ctx, fmt.Sprintf("longClick %d %d", x, y))
}

func (d *HDC) Swipe(ctx context.Context, dir Direction) error {
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
	return d.uiInput(ctx, fmt.Sprintf("swipe %d %d %d %d %d", x1, y1, x2, y2, 600))
}

func (d *HDC) Input(ctx context.Context, x, y int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uiInput(ctx, fmt.Sprintf("inputText %d %d %q", x, y, text))
}

func (d *HDC) PressKey(ctx context.Context, key Key) error {
	name, ok := hdcKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uiInput(ctx, "keyEvent "+name)
}

// StartApp starts "bundle/ability", or the bundle's EntryAbility when no
// ability is named.
func (d *HDC) StartApp(ctx context.Context, app string) error {
	bundle, ability, ok := strings.Cut(app, "/")
	if !ok || ability == "" {
		ability = "EntryAbility"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.shell(ctx, fmt.Sprintf("aa start -b %s -a %s", bundle, ability))
	return err
}
