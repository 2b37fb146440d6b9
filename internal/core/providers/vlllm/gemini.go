package vlllm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"shravan-server-go/internal/domain/reasoning"
)

func (p *Provider) invokeGemini(ctx context.Context, req reasoning.Request) (string, error) {
	if p.geminiClient == nil {
		return "", fmt.Errorf("gemini client not initialised")
	}

	// Models carry per-call settings, so each request gets its own handle.
	m := p.geminiClient.GenerativeModel(p.config.ModelName)
	p.configureGemini(m, req)

	resp, err := m.GenerateContent(ctx, geminiParts(req)...)
	if err != nil {
		return "", fmt.Errorf("gemini call: %w", err)
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini call: empty response")
	}
	return text, nil
}

func (p *Provider) configureGemini(m *genai.GenerativeModel, req reasoning.Request) {
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(float32(p.config.Temperature)),
		MaxOutputTokens: ptrInt32(int32(req.MaxTokens)),
	}
	if p.config.TopP > 0 {
		m.GenerationConfig.TopP = ptrFloat32(float32(p.config.TopP))
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}
}

func geminiParts(req reasoning.Request) []genai.Part {
	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Frame != nil && len(req.Frame.Data) > 0 {
		parts = append(parts, &genai.Blob{MIMEType: req.Frame.MIMEType(), Data: req.Frame.Data})
	}
	return parts
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
