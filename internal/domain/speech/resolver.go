package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"shravan-server-go/internal/domain/staging"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
)

var errEmptyTranscript = errors.New("transcription returned no text")

type Options struct {
	DefaultPrompt string
	Language      string
	Timeout       time.Duration
	Logger        *logging.Logger
}

// Resolver decides the effective utterance: supplied text, then transcribed
// audio, then the default prompt.
type Resolver struct {
	transcriber   Transcriber
	defaultPrompt string
	language      string
	timeout       time.Duration
	logger        *logging.Logger
}

func NewResolver(transcriber Transcriber, opts Options) (*Resolver, error) {
	if transcriber == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "speech:new-resolver", "transcriber is required")
	}
	if strings.TrimSpace(opts.DefaultPrompt) == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "speech:new-resolver", "default prompt is required")
	}
	return &Resolver{
		transcriber:   transcriber,
		defaultPrompt: opts.DefaultPrompt,
		language:      opts.Language,
		timeout:       opts.Timeout,
		logger:        opts.Logger,
	}, nil
}

// DefaultPrompt is the utterance used when nothing usable was supplied.
func (r *Resolver) DefaultPrompt() string { return r.defaultPrompt }

// Resolve never fails: transcription problems degrade to the default prompt.
func (r *Resolver) Resolve(ctx context.Context, text string, audio *staging.Asset) Utterance {
	if strings.TrimSpace(text) != "" {
		return Utterance{Text: text, Source: SourceText}
	}

	var degraded error
	if audio != nil {
		transcript, err := r.Transcribe(ctx, audio)
		if err == nil {
			return Utterance{Text: transcript, Source: SourceTranscription}
		}
		degraded = err
		r.logger.WarnTag("SPEECH", "stage=speech degraded to default prompt: %v", err)
	}

	return Utterance{Text: r.defaultPrompt, Source: SourceDefault, Degraded: degraded}
}

// Transcribe runs only the transcription path. Failures, timeouts and blank
// transcripts are reported as KindTranscription.
func (r *Resolver) Transcribe(ctx context.Context, audio *staging.Asset) (string, error) {
	const op = "speech:transcribe"
	if audio == nil {
		return "", platformerrors.New(platformerrors.KindTranscription, op, "no audio asset")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.transcriber.Transcribe(ctx, TranscribeRequest{
		FilePath: audio.Path,
		Format:   audio.MIME,
		Language: r.language,
	})
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindTranscription, op, "transcription failed", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", platformerrors.Wrap(platformerrors.KindTranscription, op, "transcription failed", errEmptyTranscript)
	}

	text := strings.TrimSpace(resp.Text)
	r.logger.InfoTag("SPEECH", "transcribed %s: %q", audio.Name, text)
	return text, nil
}
