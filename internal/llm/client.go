package llm

import (
	"context"
)

// Part is one piece of a multimodal prompt. Exactly one of Text or Image is set.
type Part struct {
	Text  string
	Image []byte
	MIME  string
}

func TextPart(s string) Part { return Part{Text: s} }

// PNGPart wraps a PNG screenshot.
func PNGPart(data []byte) Part { return Part{Image: data, MIME: "image/png"} }

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateParts(ctx context.Context, parts []Part) (string, error)
}

type RerankerClient interface {
	Rank(ctx context.Context, query string, documents []string) ([]int, error)
}

func mimeOf(p Part) string {
	if p.MIME != "" {
		return p.MIME
	}
	return "image/png"
}
