package oracle

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/agenthands/ptgbot/internal/core/event"
	"github.com/agenthands/ptgbot/internal/core/uitree"
)

var markColor = color.RGBA{R: 255, A: 255}

const markWidth = 4

// markEvents outlines the nodes targeted by events on a screenshot. Bounds
// are device pixels and are scaled when the screenshot is smaller than the
// layout. The input is returned unchanged when it cannot be decoded.
func markEvents(screenshot []byte, tree *uitree.Tree, events []event.Event) []byte {
	var boxes []uitree.Rect
	for _, e := range events {
		switch e := e.(type) {
		case event.Click:
			boxes = append(boxes, e.Node.Bounds)
		case event.LongClick:
			boxes = append(boxes, e.Node.Bounds)
		case event.Input:
			boxes = append(boxes, e.Node.Bounds)
		}
	}
	if len(boxes) == 0 || len(screenshot) == 0 {
		return screenshot
	}
	src, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return screenshot
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	sx, sy := 1.0, 1.0
	if root := tree.Root(); root != nil {
		if rw, rh := root.Bounds.X2-root.Bounds.X1, root.Bounds.Y2-root.Bounds.Y1; rw > 0 && rh > 0 {
			sx = float64(dst.Bounds().Dx()) / float64(rw)
			sy = float64(dst.Bounds().Dy()) / float64(rh)
		}
	}
	fill := image.NewUniform(markColor)
	for _, b := range boxes {
		if b.IsZero() {
			continue
		}
		r := image.Rect(int(float64(b.X1)*sx), int(float64(b.Y1)*sy), int(float64(b.X2)*sx), int(float64(b.Y2)*sy))
		w := markWidth
		for _, edge := range []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
			image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
			image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
		} {
			draw.Draw(dst, edge.Intersect(dst.Bounds()), fill, image.Point{}, draw.Src)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return screenshot
	}
	return buf.Bytes()
}
