package whisper

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sashabaranov/go-openai"

	"shravan-server-go/internal/domain/speech"
	"shravan-server-go/internal/platform/config"
	"shravan-server-go/internal/platform/logging"
)

// Provider transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint.
type Provider struct {
	config config.ASRConfig
	client *openai.Client
	logger *logging.Logger
}

func NewProvider(cfg config.ASRConfig, logger *logging.Logger) *Provider {
	if cfg.ModelName == "" {
		cfg.ModelName = openai.Whisper1
	}
	return &Provider{config: cfg, logger: logger}
}

func (p *Provider) Initialize() error {
	if p.config.APIKey == "" {
		return fmt.Errorf("whisper api key is required")
	}
	clientConfig := openai.DefaultConfig(p.config.APIKey)
	if p.config.BaseURL != "" {
		clientConfig.BaseURL = p.config.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)
	p.logger.InfoTag("SPEECH", "whisper ready: model=%s", p.config.ModelName)
	return nil
}

func (p *Provider) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.TranscribeResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("whisper client not initialised")
	}
	if req.FilePath == "" {
		return nil, fmt.Errorf("no audio to transcribe")
	}

	language := req.Language
	if language == "" {
		language = p.config.Language
	}

	audioReq := openai.AudioRequest{
		Model:    p.config.ModelName,
		FilePath: req.FilePath,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	}

	resp, err := p.client.CreateTranscription(ctx, audioReq)
	if err != nil {
		return nil, fmt.Errorf("whisper transcription of %s: %w", filepath.Base(audioReq.FilePath), err)
	}

	return &speech.TranscribeResponse{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}
