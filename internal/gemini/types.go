package gemini

import (
	"context"

	"github.com/easel-bot/easel/internal/convo"
)

// GenerateResult carries the ordered response parts as parallel lists: at
// each index exactly one of Images[i] (nil when absent) and Texts[i] (""
// when absent) is set. Preserving the upstream ordering lets the caller
// interleave text and image replies the way the model emitted them.
//
// A transport failure or policy rejection yields no images and a
// non-empty diagnostic text; callers inspect emptiness, never errors.
type GenerateResult struct {
	Images [][]byte
	Texts  []string
}

// HasImage reports whether any part carried image bytes.
func (r GenerateResult) HasImage() bool {
	for _, img := range r.Images {
		if img != nil {
			return true
		}
	}
	return false
}

// EditResult narrows a response to its first image and first text. Edit
// semantics are single-result.
type EditResult struct {
	Image []byte
	Text  string
}

// Adapter is the gateway to the multimodal generation backend.
type Adapter interface {
	Generate(ctx context.Context, prompt string, history []convo.Turn) GenerateResult
	Edit(ctx context.Context, prompt string, source []byte, history []convo.Turn) EditResult
}

// Wire shapes for the generateContent endpoint.

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generationConfig struct {
	ResponseModalities []string `json:"response_modalities"`
}

type wireRequest struct {
	Contents         []wireContent    `json:"contents"`
	GenerationConfig generationConfig `json:"generation_config"`
}

type wireCandidate struct {
	FinishReason string `json:"finishReason"`
	Content      struct {
		Parts []wirePart `json:"parts"`
	} `json:"content"`
}

type wireResponse struct {
	Candidates []wireCandidate `json:"candidates"`
}
