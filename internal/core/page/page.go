package page

import (
	"bytes"
	"image/png"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/agenthands/ptgbot/internal/core/uitree"
)

// Info is the platform identity of the foreground screen.
type Info struct {
	Bundle  string `json:"bundle"`
	Ability string `json:"ability"`
	Name    string `json:"name"`
}

type Status string

const (
	Running Status = "RUNNING"
	Stopped Status = "STOPPED"
)

type AudioInfo struct {
	Type   string `json:"type"`
	Status Status `json:"stat"`
}

type CameraInfo struct {
	Type   string `json:"type"`
	Status Status `json:"stat"`
}

// Resource is the hardware resource snapshot taken with a capture.
type Resource struct {
	Audio  AudioInfo  `json:"audio"`
	Camera CameraInfo `json:"camera"`
}

// Record is one observation of the device. A nil Info means the platform
// could not name the foreground screen, e.g. a system popup.
type Record struct {
	Tree       *uitree.Tree
	Screenshot []byte
	Info       *Info
	Resource   Resource
	Hash       *goimagehash.ImageHash
	CapturedAt time.Time

	width, height int
}

// NewRecord builds a record and computes its perceptual signature. An
// undecodable screenshot leaves Hash nil, which disables the hash layer.
func NewRecord(tree *uitree.Tree, screenshot []byte, info *Info, rsc Resource) *Record {
	r := &Record{
		Tree:       tree,
		Screenshot: screenshot,
		Info:       info,
		Resource:   rsc,
		CapturedAt: time.Now().UTC(),
	}
	if len(screenshot) == 0 {
		return r
	}
	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return r
	}
	r.width, r.height = img.Bounds().Dx(), img.Bounds().Dy()
	if h, err := goimagehash.PerceptionHash(img); err == nil {
		r.Hash = h
	}
	return r
}

// Size is the screenshot size in pixels, or zero when unknown.
func (r *Record) Size() (int, int) {
	return r.width, r.height
}

func (r *Record) Ability() string {
	if r == nil || r.Info == nil {
		return ""
	}
	return r.Info.Ability
}

func (r *Record) Bundle() string {
	if r == nil || r.Info == nil {
		return ""
	}
	return r.Info.Bundle
}

// SameTag compares the bundle/ability tags of two records. Two unnamed
// screens share a tag.
func SameTag(a, b *Record) bool {
	if a.Info == nil || b.Info == nil {
		return a.Info == nil && b.Info == nil
	}
	return a.Info.Bundle == b.Info.Bundle && a.Info.Ability == b.Info.Ability
}

// HashDistance is the Hamming distance between perceptual signatures. ok is
// false when either side has no signature.
func HashDistance(a, b *Record) (int, bool) {
	if a.Hash == nil || b.Hash == nil {
		return 0, false
	}
	d, err := a.Hash.Distance(b.Hash)
	if err != nil {
		return 0, false
	}
	return d, true
}
