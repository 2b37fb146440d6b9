package vlllm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainimage "shravan-server-go/internal/domain/image"
	"shravan-server-go/internal/domain/reasoning"
	"shravan-server-go/internal/platform/config"
	platformtesting "shravan-server-go/internal/platform/testing"
)

var testFrame = &domainimage.Frame{Data: []byte{0xff, 0xd8, 0xff}, Base64: "/9j/", Format: "jpeg", Width: 640, Height: 480}

func TestOpenAI_SendsSystemPromptAndImage(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"<think>hmm</think> A chair is just ahead on your left."},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewProvider(config.VLLLMConfig{Type: "openai", ModelName: "gpt-4o", BaseURL: srv.URL + "/v1", APIKey: "sk-test"},
		platformtesting.SetupTestLogger(t))
	require.NoError(t, p.Initialize(context.Background()))

	resp, err := p.Invoke(context.Background(), reasoning.Request{
		SystemPrompt: "persona", Prompt: "Camera sees: chair", Frame: testFrame, MaxTokens: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, "A chair is just ahead on your left.", resp.Text)

	assert.EqualValues(t, 300, captured["max_tokens"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "persona", system["content"])

	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", image["url"])
}

func TestOpenAI_TextOnlyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content any `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, ok := req.Messages[1].Content.(string); !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	p := NewProvider(config.VLLLMConfig{Type: "openai", ModelName: "gpt-4o", BaseURL: srv.URL + "/v1", APIKey: "k"},
		platformtesting.SetupTestLogger(t))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Invoke(context.Background(), reasoning.Request{SystemPrompt: "s", Prompt: "p", MaxTokens: 150})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOllama_NonStreamingChat(t *testing.T) {
	var got OllamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"model":"llava","message":{"role":"assistant","content":"Door on your right."},"done":true}`)
	}))
	defer srv.Close()

	p := NewProvider(config.VLLLMConfig{Type: "ollama", ModelName: "llava", BaseURL: srv.URL + "/"}, platformtesting.SetupTestLogger(t))
	require.NoError(t, p.Initialize(context.Background()))

	resp, err := p.Invoke(context.Background(), reasoning.Request{SystemPrompt: "persona", Prompt: "ctx", Frame: testFrame, MaxTokens: 300})
	require.NoError(t, err)
	assert.Equal(t, "Door on your right.", resp.Text)

	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, []string{"/9j/"}, got.Messages[1].Images)
	assert.EqualValues(t, 300, got.Options["num_predict"])
}

func TestOllama_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewProvider(config.VLLLMConfig{Type: "ollama", ModelName: "llava", BaseURL: srv.URL}, platformtesting.SetupTestLogger(t))
	require.NoError(t, p.Initialize(context.Background()))

	_, err := p.Invoke(context.Background(), reasoning.Request{Prompt: "ctx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestInitialize_Validation(t *testing.T) {
	logger := platformtesting.SetupTestLogger(t)
	tests := []struct {
		name string
		cfg  config.VLLLMConfig
	}{
		{"openai without key", config.VLLLMConfig{Type: "openai", ModelName: "gpt-4o"}},
		{"gemini without key", config.VLLLMConfig{Type: "gemini", ModelName: "gemini-1.5-flash"}},
		{"unknown type", config.VLLLMConfig{Type: "bard", ModelName: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewProvider(tt.cfg, logger).Initialize(context.Background()))
		})
	}

	p := NewProvider(config.VLLLMConfig{Type: "ollama", ModelName: "llava"}, logger)
	require.NoError(t, p.Initialize(context.Background()))
	assert.Equal(t, defaultOllamaURL, p.Config().BaseURL)
}

func TestGeminiParts(t *testing.T) {
	parts := geminiParts(reasoning.Request{Prompt: "ctx", Frame: testFrame})
	require.Len(t, parts, 2)
	assert.Equal(t, genai.Text("ctx"), parts[0])
	blob, ok := parts[1].(*genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)

	assert.Len(t, geminiParts(reasoning.Request{Prompt: "ctx"}), 1)
}

func TestFirstText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: nil},
		{Content: &genai.Content{Parts: []genai.Part{&genai.Blob{}, genai.Text("Step left.")}}},
	}}
	assert.Equal(t, "Step left.", firstText(resp))
	assert.Equal(t, "", firstText(nil))
}

func TestStripThinking(t *testing.T) {
	tests := map[string]string{
		"plain":                          "plain",
		"<think>x</think>answer":         "answer",
		"a <think>x</think> b <think>y":  "a  b",
		"  <think></think>\n Go ahead. ": "Go ahead.",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripThinking(in), strings.ReplaceAll(in, "\n", `\n`))
	}
}
