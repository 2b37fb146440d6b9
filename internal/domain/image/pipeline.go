package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"shravan-server-go/internal/platform/config"
	"shravan-server-go/internal/platform/logging"
)

// Pipeline streams an image payload through size limiting, validation and
// base64 encoding in one pass.
type Pipeline struct {
	validator *SecurityValidator
	logger    *logging.Logger
	security  *config.SecurityConfig
}

// Options configures the pipeline behaviour.
type Options struct {
	Security *config.SecurityConfig
	Logger   *logging.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader         io.Reader
	DeclaredFormat string
	Source         string
}

// Output contains the sanitised artefacts produced by the pipeline.
type Output struct {
	Frame      *Frame
	Validation ValidationResult
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security == nil {
		return nil, fmt.Errorf("security config is required")
	}

	return &Pipeline{
		validator: NewSecurityValidator(opts.Security, opts.Logger),
		logger:    opts.Logger,
		security:  opts.Security,
	}, nil
}

// Process reads at most MaxFileSize bytes, validates them and returns the frame.
func (p *Pipeline) Process(ctx context.Context, input Input) (*Output, error) {
	if input.Reader == nil {
		return nil, fmt.Errorf("image reader is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if p.security.ValidationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.security.ValidationTimeout)
		defer cancel()
	}

	maxSize := p.security.MaxFileSize
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024
	}

	limited := &io.LimitedReader{R: input.Reader, N: maxSize + 1}

	rawBuf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	base64Buf := bytes.NewBuffer(make([]byte, 0, 64*1024))
	encoder := base64.NewEncoder(base64.StdEncoding, base64Buf)

	if _, err := io.Copy(io.MultiWriter(rawBuf, encoder), limited); err != nil {
		return nil, fmt.Errorf("stream image bytes: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("finalise base64 encoding: %w", err)
	}
	if limited.N <= 0 {
		return nil, fmt.Errorf("image exceeds maximum size of %d bytes", maxSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("image validation: %w", err)
	}

	validation := p.validator.ValidateBytes(rawBuf.Bytes(), input.DeclaredFormat)
	if !validation.IsValid {
		if validation.Error != nil {
			return nil, validation.Error
		}
		return nil, fmt.Errorf("image validation failed")
	}

	p.logger.DebugTag("STAGING", "image accepted source=%s format=%s %dx%d size=%d",
		input.Source, validation.Format, validation.Width, validation.Height, validation.FileSize)

	return &Output{
		Frame: &Frame{
			Data:   rawBuf.Bytes(),
			Base64: base64Buf.String(),
			Format: validation.Format,
			Width:  validation.Width,
			Height: validation.Height,
		},
		Validation: validation,
	}, nil
}
