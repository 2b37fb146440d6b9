package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainimage "shravan-server-go/internal/domain/image"
	"shravan-server-go/internal/domain/guidance"
	"shravan-server-go/internal/domain/location"
	"shravan-server-go/internal/domain/reasoning"
	"shravan-server-go/internal/domain/scene"
	"shravan-server-go/internal/domain/speech"
	"shravan-server-go/internal/domain/staging"
	"shravan-server-go/internal/platform/config"
	platformerrors "shravan-server-go/internal/platform/errors"
	platformtesting "shravan-server-go/internal/platform/testing"
)

// --- collaborator stubs ---

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.TranscribeResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*speech.TranscribeResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubDetector struct {
	resp  *scene.DetectResponse
	err   error
	panic bool
}

func (d *stubDetector) Detect(context.Context, scene.DetectRequest) (*scene.DetectResponse, error) {
	if d.panic {
		panic("detector exploded")
	}
	return d.resp, d.err
}

type stubGeo struct {
	name    string
	payload map[string]any
	err     error
}

func (s stubGeo) Name() string { return s.name }
func (s stubGeo) Attempt(context.Context) (map[string]any, error) {
	return s.payload, s.err
}
func (s stubGeo) Valid(p map[string]any) bool             { return location.ValidPayload(p) }
func (s stubGeo) Extract(p map[string]any) location.Result { return location.ExtractPayload(p) }

type stubInvoker struct {
	mu    sync.Mutex
	reply string
	err   error
	block bool
	last  reasoning.Request
}

func (s *stubInvoker) Invoke(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &reasoning.Response{Text: s.reply, Model: "stub"}, nil
}

// countingStager records Release calls for staged assets.
type countingStager struct {
	*staging.Stager
	mu       sync.Mutex
	released map[string]int
}

func (c *countingStager) Release(asset *staging.Asset) {
	if asset != nil {
		c.mu.Lock()
		c.released[asset.Name]++
		c.mu.Unlock()
	}
	c.Stager.Release(asset)
}

// --- fixture ---

type fixture struct {
	pipeline    *Pipeline
	stager      *countingStager
	transcriber *mockTranscriber
	detector    *stubDetector
	invoker     *stubInvoker
	dir         string
}

var (
	chairResponse = &scene.DetectResponse{Detections: []scene.Detection{
		{Label: "cup", Confidence: 0.3, Box: scene.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}},
		{Label: "chair", Confidence: 0.92, Box: scene.Box{X1: 50, Y1: 300, X2: 350, Y2: 470}},
	}}
	puneProvider = stubGeo{name: "ok", payload: map[string]any{"city": "Pune", "regionName": "Maharashtra", "country": "India", "status": "success"}}
	bogon        = stubGeo{name: "bogon", payload: map[string]any{"bogon": true}}
	failing      = stubGeo{name: "down", err: errors.New("connection refused")}
)

func newFixture(t *testing.T, geo ...location.Provider) *fixture {
	t.Helper()
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTestLogger(t)

	images, err := domainimage.NewPipeline(domainimage.Options{Security: &cfg.Security, Logger: logger})
	require.NoError(t, err)
	inner, err := staging.NewStager(cfg.Staging, images, logger)
	require.NoError(t, err)
	stager := &countingStager{Stager: inner, released: map[string]int{}}

	transcriber := &mockTranscriber{}
	resolver, err := speech.NewResolver(transcriber, speech.Options{DefaultPrompt: config.DefaultPrompt, Logger: logger})
	require.NoError(t, err)

	detector := &stubDetector{resp: chairResponse}
	detectorStage, err := scene.NewSceneDetector(detector, scene.Options{
		MinConfidence: cfg.Scene.MinConfidence,
		MaxObjects:    cfg.Scene.MaxObjects,
		FrameWidth:    cfg.Scene.FrameWidth,
		FrameHeight:   cfg.Scene.FrameHeight,
		SmallArea:     cfg.Scene.SmallArea,
		LargeArea:     cfg.Scene.LargeArea,
		Logger:        logger,
	})
	require.NoError(t, err)

	if len(geo) == 0 {
		geo = []location.Provider{puneProvider}
	}
	locator := location.NewResolver(geo, location.Options{Logger: logger})

	invoker := &stubInvoker{reply: "There is a chair ahead on your left."}
	reasoner, err := reasoning.NewReasoner(invoker, reasoning.Options{
		SystemPrompt: config.DefaultSystemPrompt,
		Timeout:      100 * time.Millisecond,
		Logger:       logger,
	})
	require.NoError(t, err)

	pipeline, err := NewPipeline(PipelineDeps{
		Stager:    stager,
		Speech:    resolver,
		Scene:     detectorStage,
		Location:  locator,
		Assembler: guidance.NewAssembler(config.DefaultTaskInstruction),
		Reasoner:  reasoner,
		Logger:    logger,
	})
	require.NoError(t, err)

	return &fixture{
		pipeline:    pipeline,
		stager:      stager,
		transcriber: transcriber,
		detector:    detector,
		invoker:     invoker,
		dir:         cfg.Staging.Dir,
	}
}

func (f *fixture) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged files must be removed once the run ends")
	for name, n := range f.stager.released {
		assert.Equal(t, 1, n, "asset %s released %d times", name, n)
	}
}

func photo(t *testing.T) string {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 640, 480))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

var wavAudio = base64.StdEncoding.EncodeToString([]byte("RIFF\x24\x00\x00\x00WAVEfmt "))

// --- scenarios ---

func TestProcess_TextAndPhoto(t *testing.T) {
	f := newFixture(t)

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "What's in front of me?", Image: photo(t)})
	require.NoError(t, err)

	assert.Equal(t, "There is a chair ahead on your left.", reply.Text)
	assert.Equal(t, scene.StatusDetected, reply.Scene.Status)
	require.Len(t, reply.Scene.Detections, 1)
	assert.Equal(t, "chair", reply.Scene.Detections[0].Label)
	assert.True(t, reply.Location.Available)
	assert.Equal(t, "You are in Pune, Maharashtra, India", reply.Location.Sentence)
	assert.Equal(t, speech.SourceText, reply.Utterance.Source)

	assert.Equal(t, []State{StateStart, StateStaged, StateSpeechResolved, StateDetected, StateLocated,
		StateAssembled, StateReplied, StateDone}, reply.Trace)

	assert.Contains(t, f.invoker.last.Prompt, "Camera sees: chair (large, left-bottom)")
	assert.Contains(t, f.invoker.last.Prompt, "User asked: 'What's in front of me?'")
	require.NotNil(t, f.invoker.last.Frame)
	assert.Equal(t, 300, f.invoker.last.MaxTokens)
	assert.Equal(t, config.DefaultSystemPrompt, f.invoker.last.SystemPrompt)

	f.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
	f.assertStagingEmpty(t)
}

func TestProcess_TextWinsOverAudio(t *testing.T) {
	f := newFixture(t)

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "Where am I?", Audio: wavAudio, Image: photo(t)})
	require.NoError(t, err)
	assert.Equal(t, "Where am I?", reply.Utterance.Text)
	f.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
	f.assertStagingEmpty(t)
}

func TestProcess_TranscriptionFailureUsesDefaultPrompt(t *testing.T) {
	f := newFixture(t)
	f.transcriber.On("Transcribe", mock.Anything, mock.Anything).Return(nil, errors.New("asr offline")).Once()

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Audio: wavAudio, Image: photo(t)})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPrompt, reply.Utterance.Text)
	assert.Equal(t, speech.SourceDefault, reply.Utterance.Source)
	assert.Error(t, reply.Utterance.Degraded)
	f.transcriber.AssertExpectations(t)
	f.assertStagingEmpty(t)
}

func TestProcess_TranscribedAudio(t *testing.T) {
	f := newFixture(t)
	f.transcriber.On("Transcribe", mock.Anything, mock.MatchedBy(func(req speech.TranscribeRequest) bool {
		_, err := os.Stat(req.FilePath)
		return err == nil
	})).Return(&speech.TranscribeResponse{Text: "Is the door open?"}, nil).Once()

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Audio: wavAudio, Image: photo(t)})
	require.NoError(t, err)
	assert.Equal(t, "Is the door open?", reply.Utterance.Text)
	assert.Equal(t, speech.SourceTranscription, reply.Utterance.Source)
	f.assertStagingEmpty(t)
}

func TestProcess_ReasoningTimeout(t *testing.T) {
	f := newFixture(t)
	f.invoker.block = true

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "What's ahead?", Image: photo(t)})
	require.Error(t, err)
	assert.Nil(t, reply)
	assert.True(t, platformerrors.IsKind(err, platformerrors.KindReasoning))
	f.assertStagingEmpty(t)
	assert.Len(t, f.stager.released, 1)
}

func TestProcess_ReasoningError(t *testing.T) {
	f := newFixture(t)
	f.invoker.err = errors.New("upstream 500")
	f.transcriber.On("Transcribe", mock.Anything, mock.Anything).Return(&speech.TranscribeResponse{Text: "help"}, nil).Once()

	_, err := f.pipeline.Process(context.Background(), QueryRequest{Audio: wavAudio, Image: photo(t)})
	require.Error(t, err)
	assert.Equal(t, platformerrors.KindReasoning, platformerrors.KindOf(err))
	f.assertStagingEmpty(t)
}

func TestProcess_LocationUnavailable(t *testing.T) {
	f := newFixture(t, bogon, failing, stubGeo{name: "empty", payload: map[string]any{"status": "fail"}})

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "hi", Image: photo(t)})
	require.NoError(t, err)
	assert.False(t, reply.Location.Available)
	assert.Equal(t, location.UnavailableText, reply.Location.Sentence)
	assert.NotContains(t, f.invoker.last.Prompt, location.UnavailableText)
}

func TestProcess_DetectorFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.detector.resp, f.detector.err = nil, errors.New("gpu gone")

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "hi", Image: photo(t)})
	require.NoError(t, err)
	assert.Equal(t, scene.StatusFailed, reply.Scene.Status)
	assert.Equal(t, scene.LabelFailed, reply.Scene.Label())
	assert.Contains(t, f.invoker.last.Prompt, "Camera cannot identify any objects clearly")
}

func TestProcess_NoImageDegrades(t *testing.T) {
	f := newFixture(t)

	reply, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "Where am I?"})
	require.NoError(t, err)
	assert.Equal(t, scene.StatusNoImage, reply.Scene.Status)
	assert.Equal(t, scene.LabelNoImage, reply.Scene.Label())
	assert.Nil(t, f.invoker.last.Frame)
	assert.Equal(t, 150, f.invoker.last.MaxTokens)
}

func TestProcess_InputRejected(t *testing.T) {
	tests := []struct {
		name string
		req  QueryRequest
	}{
		{"nothing supplied", QueryRequest{Text: "  "}},
		{"image not base64", QueryRequest{Text: "hi", Image: "data:image/png;base64,%%%"}},
		{"image not an image", QueryRequest{Text: "hi", Image: base64.StdEncoding.EncodeToString([]byte("plain text, not pixels"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline.Process(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, platformerrors.KindDecode, platformerrors.KindOf(err))
			f.assertStagingEmpty(t)
		})
	}
}

func TestProcess_PanicBecomesInternal(t *testing.T) {
	f := newFixture(t)
	f.detector.panic = true

	_, err := f.pipeline.Process(context.Background(), QueryRequest{Text: "hi", Image: photo(t)})
	require.Error(t, err)
	assert.Equal(t, platformerrors.KindInternal, platformerrors.KindOf(err))
	f.assertStagingEmpty(t)
}

func TestProcess_IgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := f.pipeline.Process(ctx, QueryRequest{Text: "hi", Image: photo(t)})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
}

func TestTranscribe(t *testing.T) {
	f := newFixture(t)
	f.transcriber.On("Transcribe", mock.Anything, mock.Anything).Return(&speech.TranscribeResponse{Text: "hello"}, nil).Once()

	text, err := f.pipeline.Transcribe(context.Background(), wavAudio)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	f.assertStagingEmpty(t)

	f.transcriber.On("Transcribe", mock.Anything, mock.Anything).Return(nil, errors.New("asr offline")).Once()
	_, err = f.pipeline.TranscribeBytes(context.Background(), []byte("RIFF\x24\x00\x00\x00WAVEfmt "))
	require.Error(t, err)
	assert.Equal(t, platformerrors.KindTranscription, platformerrors.KindOf(err))
	f.assertStagingEmpty(t)

	_, err = f.pipeline.Transcribe(context.Background(), "")
	assert.Equal(t, platformerrors.KindDecode, platformerrors.KindOf(err))
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(PipelineDeps{})
	require.Error(t, err)
	assert.Equal(t, platformerrors.KindConfig, platformerrors.KindOf(err))
	assert.Contains(t, err.Error(), "reasoner")
}
