package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/easel-bot/easel/internal/convo"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

func partsResponse(parts []wirePart, finishReason string) []byte {
	resp := map[string]any{
		"candidates": []map[string]any{
			{
				"finishReason": finishReason,
				"content":      map[string]any{"parts": parts},
			},
		},
	}
	raw, _ := json.Marshal(resp)
	return raw
}

func TestGeneratePreservesMixedPartOrder(t *testing.T) {
	imgBytes := []byte{0x89, 0x50, 0x4E, 0x47}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(partsResponse([]wirePart{
			{Text: "A"},
			{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(imgBytes)}},
			{Text: "B"},
		}, "STOP"))
	})

	res := client.Generate(context.Background(), "a cat", nil)
	if len(res.Images) != 3 || len(res.Texts) != 3 {
		t.Fatalf("parallel list lengths = %d/%d, want 3/3", len(res.Images), len(res.Texts))
	}
	if res.Images[0] != nil || res.Images[2] != nil {
		t.Fatalf("text-only indexes carry image bytes")
	}
	if !bytes.Equal(res.Images[1], imgBytes) {
		t.Fatalf("Images[1] = %v, want decoded inline data", res.Images[1])
	}
	if res.Texts[0] != "A" || res.Texts[1] != "" || res.Texts[2] != "B" {
		t.Fatalf("Texts = %v, want [A, , B]", res.Texts)
	}
}

func TestEditReturnsFirstImageAndFirstText(t *testing.T) {
	first := []byte("image-one")
	second := []byte("image-two")
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(partsResponse([]wirePart{
			{Text: "first text"},
			{InlineData: &inlineData{Data: base64.StdEncoding.EncodeToString(first)}},
			{Text: "second text"},
			{InlineData: &inlineData{Data: base64.StdEncoding.EncodeToString(second)}},
		}, "STOP"))
	})

	res := client.Edit(context.Background(), "brighter", []byte("src"), nil)
	if !bytes.Equal(res.Image, first) {
		t.Fatalf("Edit() image = %q, want first inline image", res.Image)
	}
	if res.Text != "first text" {
		t.Fatalf("Edit() text = %q, want %q", res.Text, "first text")
	}
}

func TestPolicyRejectionYieldsDiagnosticText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(partsResponse(nil, FinishReasonImageSafety))
	})

	gen := client.Generate(context.Background(), "something disallowed", nil)
	if gen.HasImage() {
		t.Fatalf("policy rejection returned an image")
	}
	if len(gen.Texts) != 1 || !strings.Contains(gen.Texts[0], FinishReasonImageSafety) {
		t.Fatalf("Texts = %v, want a diagnostic naming the finish reason", gen.Texts)
	}

	edit := client.Edit(context.Background(), "something disallowed", []byte("src"), nil)
	if edit.Image != nil || !strings.Contains(edit.Text, FinishReasonImageSafety) {
		t.Fatalf("edit rejection = %+v, want diagnostic text only", edit)
	}
}

func TestTransportFailureNeverPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := NewClient(Config{APIKey: "k", BaseURL: server.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	gen := client.Generate(context.Background(), "a cat", nil)
	if gen.HasImage() {
		t.Fatalf("failed call produced an image")
	}
	if len(gen.Texts) != 1 || gen.Texts[0] == "" {
		t.Fatalf("Texts = %v, want one diagnostic message", gen.Texts)
	}

	edit := client.Edit(context.Background(), "fix", []byte("src"), nil)
	if edit.Image != nil || edit.Text == "" {
		t.Fatalf("edit failure = %+v, want diagnostic text only", edit)
	}
}

func TestUpstreamErrorStatusBecomesDiagnostic(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	res := client.Generate(context.Background(), "a cat", nil)
	if res.HasImage() || len(res.Texts) != 1 {
		t.Fatalf("result = %+v, want a single diagnostic text", res)
	}
	if !strings.Contains(res.Texts[0], "429") {
		t.Fatalf("diagnostic %q does not name the status", res.Texts[0])
	}
}

func TestHistorySerializationInlinesImagesAndDropsUnreadable(t *testing.T) {
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.png")
	goodBytes := []byte("pretend-png-bytes")
	if err := os.WriteFile(goodPath, goodBytes, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var captured wireRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(partsResponse([]wirePart{{Text: "ok"}}, "STOP"))
	})

	history := []convo.Turn{
		{Role: convo.RoleUser, Parts: []convo.Part{{Text: "draw a cat"}}},
		{Role: convo.RoleModel, Parts: []convo.Part{
			{Text: "here"},
			{ImagePath: goodPath},
			{ImagePath: filepath.Join(dir, "missing.png")},
		}},
	}
	client.Generate(context.Background(), "make it blue", history)

	if len(captured.Contents) != 3 {
		t.Fatalf("serialized contents = %d, want history(2) + prompt(1)", len(captured.Contents))
	}
	if captured.Contents[1].Role != "model" {
		t.Fatalf("second content role = %q, want model", captured.Contents[1].Role)
	}
	// The readable image is inlined; the missing one is dropped, not fatal.
	modelParts := captured.Contents[1].Parts
	if len(modelParts) != 2 {
		t.Fatalf("model parts = %d, want text + one surviving image", len(modelParts))
	}
	if modelParts[1].InlineData == nil {
		t.Fatalf("surviving image part lacks inline data")
	}
	decoded, err := base64.StdEncoding.DecodeString(modelParts[1].InlineData.Data)
	if err != nil || !bytes.Equal(decoded, goodBytes) {
		t.Fatalf("inlined image bytes do not round-trip")
	}
	last := captured.Contents[2]
	if last.Role != "user" || len(last.Parts) != 1 || last.Parts[0].Text != "make it blue" {
		t.Fatalf("final content = %+v, want the new user prompt", last)
	}
	if len(captured.GenerationConfig.ResponseModalities) != 2 {
		t.Fatalf("response modalities = %v, want Text and Image", captured.GenerationConfig.ResponseModalities)
	}
}

func TestAssistantRoleNormalizedToModel(t *testing.T) {
	history := []convo.Turn{{Role: convo.Role("assistant"), Parts: []convo.Part{{Text: "hi"}}}}
	contents := serializeHistory(history)
	if len(contents) != 1 || contents[0].Role != "model" {
		t.Fatalf("serialized role = %+v, want model", contents)
	}
}
