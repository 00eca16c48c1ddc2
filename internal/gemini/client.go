package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/easel-bot/easel/internal/convo"
)

// FinishReasonImageSafety is the completion reason signalling a
// content-safety refusal. It is a defined outcome, not an error.
const FinishReasonImageSafety = "IMAGE_SAFETY"

// Config controls client construction.
type Config struct {
	APIKey   string
	Model    string
	BaseURL  string
	ProxyURL string
	// Timeout covers the whole request. Mixed image+text responses are
	// slow; anything under two minutes produces spurious failures.
	Timeout time.Duration
}

// Client talks to the Gemini generateContent endpoint. It is stateless:
// history is passed in on every call and serialized into the request, with
// image references inlined as base64 at send time.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash-exp-image-generation"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	transport := http.DefaultTransport
	if strings.TrimSpace(cfg.ProxyURL) != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// Generate renders images for a prompt, continuing the given history. All
// response parts are returned in order, supporting multi-image output.
func (c *Client) Generate(ctx context.Context, prompt string, history []convo.Turn) GenerateResult {
	contents := serializeHistory(history)
	contents = append(contents, wireContent{
		Role:  "user",
		Parts: []wirePart{{Text: prompt}},
	})

	resp, err := c.call(ctx, contents)
	if err != nil {
		log.Printf("gemini: generate call failed: %v", err)
		return GenerateResult{Texts: []string{fmt.Sprintf("图片生成失败: %v", err)}}
	}
	return parseGenerate(resp)
}

// Edit applies a prompt to a source image, continuing the given history.
func (c *Client) Edit(ctx context.Context, prompt string, source []byte, history []convo.Turn) EditResult {
	if len(source) == 0 {
		return EditResult{}
	}
	contents := serializeHistory(history)
	contents = append(contents, wireContent{
		Role: "user",
		Parts: []wirePart{
			{Text: prompt},
			{InlineData: &inlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(source),
			}},
		},
	})

	resp, err := c.call(ctx, contents)
	if err != nil {
		log.Printf("gemini: edit call failed: %v", err)
		return EditResult{Text: fmt.Sprintf("图片编辑失败: %v", err)}
	}
	return parseEdit(resp)
}

func (c *Client) call(ctx context.Context, contents []wireContent) (*wireResponse, error) {
	body, err := json.Marshal(wireRequest{
		Contents:         contents,
		GenerationConfig: generationConfig{ResponseModalities: []string{"Text", "Image"}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("gemini status %d: %s", res.StatusCode, string(snippet))
	}

	var parsed wireResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

// serializeHistory converts stored turns into wire contents, reading each
// referenced image at send time. A historical image that can no longer be
// read drops that one part; the rest of the request is unaffected.
func serializeHistory(history []convo.Turn) []wireContent {
	var out []wireContent
	for _, turn := range history {
		role := string(turn.Role)
		if role == "assistant" {
			role = "model"
		}
		content := wireContent{Role: role}
		for _, part := range turn.Parts {
			switch {
			case part.Text != "":
				content.Parts = append(content.Parts, wirePart{Text: part.Text})
			case part.ImagePath != "":
				data, err := os.ReadFile(part.ImagePath)
				if err != nil {
					log.Printf("gemini: dropping unreadable history image %s: %v", part.ImagePath, err)
					continue
				}
				content.Parts = append(content.Parts, wirePart{InlineData: &inlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(data),
				}})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func parseGenerate(resp *wireResponse) GenerateResult {
	candidate, ok := firstCandidate(resp)
	if !ok {
		return GenerateResult{}
	}
	if rejected, diag := policyRejection(candidate); rejected {
		return GenerateResult{Texts: []string{diag}}
	}
	images, texts := splitParts(candidate.Content.Parts)
	return GenerateResult{Images: images, Texts: texts}
}

func parseEdit(resp *wireResponse) EditResult {
	candidate, ok := firstCandidate(resp)
	if !ok {
		return EditResult{}
	}
	if rejected, diag := policyRejection(candidate); rejected {
		return EditResult{Text: diag}
	}

	images, texts := splitParts(candidate.Content.Parts)
	var out EditResult
	for _, img := range images {
		if img != nil {
			out.Image = img
			break
		}
	}
	for _, text := range texts {
		if text != "" {
			out.Text = text
			break
		}
	}
	return out
}

func firstCandidate(resp *wireResponse) (wireCandidate, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return wireCandidate{}, false
	}
	return resp.Candidates[0], true
}

// policyRejection returns the raw candidate JSON as the diagnostic payload;
// the router translates it into a user-facing apology.
func policyRejection(candidate wireCandidate) (bool, string) {
	if candidate.FinishReason != FinishReasonImageSafety {
		return false, ""
	}
	raw, err := json.Marshal(map[string]any{"finishReason": candidate.FinishReason})
	if err != nil {
		return true, fmt.Sprintf(`{"finishReason":%q}`, candidate.FinishReason)
	}
	return true, string(raw)
}

// splitParts builds the equal-length parallel lists: each response part
// contributes one index holding either its text or its decoded image bytes.
func splitParts(parts []wirePart) ([][]byte, []string) {
	var images [][]byte
	var texts []string
	for _, part := range parts {
		switch {
		case part.Text != "":
			texts = append(texts, part.Text)
			images = append(images, nil)
		case part.InlineData != nil && part.InlineData.Data != "":
			decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				log.Printf("gemini: dropping undecodable inline image: %v", err)
				continue
			}
			images = append(images, decoded)
			texts = append(texts, "")
		}
	}
	return images, texts
}
