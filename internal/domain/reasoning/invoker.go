package reasoning

import (
	"context"
	"errors"
	"strings"
	"time"

	domainimage "shravan-server-go/internal/domain/image"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
)

var errEmptyReply = errors.New("reasoning returned no text")

type Options struct {
	SystemPrompt string
	// ImageMaxTokens applies when a frame is attached, TextMaxTokens otherwise.
	ImageMaxTokens int
	TextMaxTokens  int
	Timeout        time.Duration
	Logger         *logging.Logger
}

// Reasoner issues the single reasoning call of a request and reports every
// failure, timeouts included, as KindReasoning.
type Reasoner struct {
	invoker Invoker
	opts    Options
	logger  *logging.Logger
}

func NewReasoner(invoker Invoker, opts Options) (*Reasoner, error) {
	const op = "reasoning:new-reasoner"
	if invoker == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, op, "reasoning invoker is required")
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, op, "system prompt is required")
	}
	if opts.ImageMaxTokens <= 0 {
		opts.ImageMaxTokens = 300
	}
	if opts.TextMaxTokens <= 0 {
		opts.TextMaxTokens = 150
	}
	return &Reasoner{invoker: invoker, opts: opts, logger: opts.Logger}, nil
}

func (r *Reasoner) Invoke(ctx context.Context, prompt string, frame *domainimage.Frame) (string, error) {
	const op = "reasoning:invoke"

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	budget := r.opts.TextMaxTokens
	if frame != nil {
		budget = r.opts.ImageMaxTokens
	}

	resp, err := r.invoker.Invoke(ctx, Request{
		SystemPrompt: r.opts.SystemPrompt,
		Prompt:       prompt,
		Frame:        frame,
		MaxTokens:    budget,
	})
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindReasoning, op, "reasoning failed", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", platformerrors.Wrap(platformerrors.KindReasoning, op, "reasoning failed", errEmptyReply)
	}

	reply := strings.TrimSpace(resp.Text)
	r.logger.InfoTag("REASONING", "model=%s image=%t budget=%d reply_chars=%d", resp.Model, frame != nil, budget, len(reply))
	return reply, nil
}
