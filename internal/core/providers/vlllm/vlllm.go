package vlllm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"shravan-server-go/internal/domain/reasoning"
	"shravan-server-go/internal/platform/config"
	"shravan-server-go/internal/platform/logging"
)

const defaultOllamaURL = "http://localhost:11434"

// Provider talks to a vision-capable language model. One Provider is created
// at startup and shared by all requests.
type Provider struct {
	config config.VLLLMConfig
	logger *logging.Logger

	openaiClient *openai.Client
	geminiClient *genai.Client
	httpClient   *http.Client
}

func NewProvider(cfg config.VLLLMConfig, logger *logging.Logger) *Provider {
	return &Provider{
		config:     cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// Initialize builds the backend client. The provider is unusable until it
// returns nil.
func (p *Provider) Initialize(ctx context.Context) error {
	switch strings.ToLower(p.config.Type) {
	case "openai":
		if p.config.APIKey == "" {
			return fmt.Errorf("openai api key is required")
		}
		clientConfig := openai.DefaultConfig(p.config.APIKey)
		if p.config.BaseURL != "" {
			clientConfig.BaseURL = p.config.BaseURL
		}
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	case "ollama":
		if p.config.BaseURL == "" {
			p.config.BaseURL = defaultOllamaURL
		}

	case "gemini":
		if p.config.APIKey == "" {
			return fmt.Errorf("gemini api key is required")
		}
		opts := []option.ClientOption{option.WithAPIKey(p.config.APIKey)}
		if p.config.BaseURL != "" {
			opts = append(opts, option.WithEndpoint(p.config.BaseURL))
		}
		client, err := genai.NewClient(ctx, opts...)
		if err != nil {
			return fmt.Errorf("create gemini client: %w", err)
		}
		p.geminiClient = client

	default:
		return fmt.Errorf("unsupported vlllm type: %s", p.config.Type)
	}

	p.logger.InfoTag("REASONING", "vlllm ready: type=%s model=%s", p.config.Type, p.config.ModelName)
	return nil
}

func (p *Provider) Cleanup() error {
	if p.geminiClient != nil {
		return p.geminiClient.Close()
	}
	return nil
}

func (p *Provider) Config() config.VLLLMConfig {
	return p.config
}

// Invoke sends one non-streaming completion request.
func (p *Provider) Invoke(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	p.logger.DebugTag("REASONING", "invoke: type=%s model=%s prompt_chars=%d image=%t max_tokens=%d",
		p.config.Type, p.config.ModelName, len(req.Prompt), req.Frame != nil, req.MaxTokens)

	var (
		text string
		err  error
	)
	switch strings.ToLower(p.config.Type) {
	case "openai":
		text, err = p.invokeOpenAI(ctx, req)
	case "ollama":
		text, err = p.invokeOllama(ctx, req)
	case "gemini":
		text, err = p.invokeGemini(ctx, req)
	default:
		err = fmt.Errorf("unsupported vlllm type: %s", p.config.Type)
	}
	if err != nil {
		return nil, err
	}
	return &reasoning.Response{Text: stripThinking(text), Model: p.config.ModelName}, nil
}

func (p *Provider) invokeOpenAI(ctx context.Context, req reasoning.Request) (string, error) {
	if p.openaiClient == nil {
		return "", fmt.Errorf("openai client not initialised")
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Frame != nil {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    req.Frame.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	} else {
		user.Content = req.Prompt
	}

	resp, err := p.openaiClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.config.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			user,
		},
		MaxTokens:   req.MaxTokens,
		Temperature: float32(p.config.Temperature),
		TopP:        float32(p.config.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("openai vision call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai vision call: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripThinking drops <think>...</think> blocks some reasoning models emit
// before their answer. An unterminated block hides everything after it.
func stripThinking(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "<think>")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		end := strings.Index(rest[start:], "</think>")
		if end < 0 {
			break
		}
		rest = rest[start+end+len("</think>"):]
	}
	return strings.TrimSpace(b.String())
}
