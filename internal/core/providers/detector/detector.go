package detector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shravan-server-go/internal/domain/scene"
	"shravan-server-go/internal/platform/config"
	"shravan-server-go/internal/platform/logging"
)

const maxResponseBytes = 1 << 20

// Provider posts staged frames to an object-detection inference sidecar
// (a YOLO server or anything speaking the same JSON).
type Provider struct {
	config     config.DetectorConfig
	httpClient *http.Client
	logger     *logging.Logger
}

func NewProvider(cfg config.DetectorConfig, logger *logging.Logger) *Provider {
	return &Provider{
		config:     cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (p *Provider) Initialize() error {
	if strings.TrimSpace(p.config.BaseURL) == "" {
		return fmt.Errorf("detector url is required")
	}
	p.logger.InfoTag("SCENE", "detector ready: url=%s model=%s", p.config.BaseURL, p.config.Model)
	return nil
}

func (p *Provider) Detect(ctx context.Context, req scene.DetectRequest) (*scene.DetectResponse, error) {
	data, name, err := p.imageBytes(req)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if p.config.Model != "" {
		if err := writer.WriteField("model", p.config.Model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, body)
	if err != nil {
		return nil, fmt.Errorf("create detector request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("detector call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	out, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	p.logger.DebugTag("SCENE", "detector returned %d raw detections for %s", len(out.Detections), name)
	return out, nil
}

func (p *Provider) imageBytes(req scene.DetectRequest) ([]byte, string, error) {
	if req.Frame != nil && len(req.Frame.Data) > 0 {
		name := "frame.jpg"
		if req.ImagePath != "" {
			name = filepath.Base(req.ImagePath)
		}
		return req.Frame.Data, name, nil
	}
	if req.ImagePath == "" {
		return nil, "", fmt.Errorf("no image to detect")
	}
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("read staged image: %w", err)
	}
	return data, filepath.Base(req.ImagePath), nil
}
