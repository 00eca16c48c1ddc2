package gemini

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/easel-bot/easel/internal/convo"
)

// Mock provides deterministic local results when no API key is configured,
// and lets tests script gateway behavior through the override funcs.
type Mock struct {
	GenerateFunc func(ctx context.Context, prompt string, history []convo.Turn) GenerateResult
	EditFunc     func(ctx context.Context, prompt string, source []byte, history []convo.Turn) EditResult
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Generate(ctx context.Context, prompt string, history []convo.Turn) GenerateResult {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, history)
	}
	select {
	case <-ctx.Done():
		return GenerateResult{Texts: []string{fmt.Sprintf("图片生成失败: %v", ctx.Err())}}
	default:
	}
	return GenerateResult{
		Images: [][]byte{nil, PlaceholderPNG()},
		Texts:  []string{fmt.Sprintf("rendered: %s", prompt), ""},
	}
}

func (m *Mock) Edit(ctx context.Context, prompt string, source []byte, history []convo.Turn) EditResult {
	if m.EditFunc != nil {
		return m.EditFunc(ctx, prompt, source, history)
	}
	select {
	case <-ctx.Done():
		return EditResult{Text: fmt.Sprintf("图片编辑失败: %v", ctx.Err())}
	default:
	}
	return EditResult{
		Image: PlaceholderPNG(),
		Text:  fmt.Sprintf("edited: %s", prompt),
	}
}

// PlaceholderPNG returns a small valid PNG, usable wherever real generated
// bytes are expected.
func PlaceholderPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
