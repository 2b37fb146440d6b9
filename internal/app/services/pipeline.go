package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	domainimage "shravan-server-go/internal/domain/image"
	"shravan-server-go/internal/domain/guidance"
	"shravan-server-go/internal/domain/location"
	"shravan-server-go/internal/domain/scene"
	"shravan-server-go/internal/domain/speech"
	"shravan-server-go/internal/domain/staging"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
	"shravan-server-go/internal/platform/observability"
)

// Stage collaborators. Each degrading stage reports its outcome as a value;
// only staging and reasoning return errors.
type (
	AssetStager interface {
		Stage(ctx context.Context, kind staging.Kind, encoded string) (*staging.Asset, error)
		StageBytes(ctx context.Context, kind staging.Kind, raw []byte) (*staging.Asset, error)
		Release(asset *staging.Asset)
	}

	UtteranceResolver interface {
		Resolve(ctx context.Context, text string, audio *staging.Asset) speech.Utterance
		Transcribe(ctx context.Context, audio *staging.Asset) (string, error)
	}

	SceneAnalyzer interface {
		Detect(ctx context.Context, image *staging.Asset) scene.Scene
	}

	Locator interface {
		Resolve(ctx context.Context) location.Result
	}

	ContextBuilder interface {
		Assemble(sc scene.Scene, loc location.Result, utt speech.Utterance) guidance.Context
	}

	ReplyGenerator interface {
		Invoke(ctx context.Context, prompt string, frame *domainimage.Frame) (string, error)
	}
)

// State is a step of one pipeline run.
type State string

const (
	StateStart          State = "start"
	StateStaged         State = "staged"
	StateSpeechResolved State = "speech_resolved"
	StateDetected       State = "detected"
	StateLocated        State = "located"
	StateAssembled      State = "assembled"
	StateReplied        State = "replied"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Stage outcome labels for metrics.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeFailed   = "failed"
)

type QueryRequest struct {
	Text  string
	Audio string
	Image string
}

// Reply is the immutable result of a successful run.
type Reply struct {
	Text      string
	Scene     scene.Scene
	Location  location.Result
	Utterance speech.Utterance
	// Trace lists the states the run passed through, Done included.
	Trace []State
}

type PipelineDeps struct {
	Stager    AssetStager
	Speech    UtteranceResolver
	Scene     SceneAnalyzer
	Location  Locator
	Assembler ContextBuilder
	Reasoner  ReplyGenerator
	Logger    *logging.Logger
}

// Pipeline sequences the stages of a query. It holds no per-request state and
// is shared by all requests.
type Pipeline struct {
	deps   PipelineDeps
	logger *logging.Logger
}

func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	const op = "pipeline:new"
	missing := []string{}
	if deps.Stager == nil {
		missing = append(missing, "stager")
	}
	if deps.Speech == nil {
		missing = append(missing, "speech")
	}
	if deps.Scene == nil {
		missing = append(missing, "scene")
	}
	if deps.Location == nil {
		missing = append(missing, "location")
	}
	if deps.Assembler == nil {
		missing = append(missing, "assembler")
	}
	if deps.Reasoner == nil {
		missing = append(missing, "reasoner")
	}
	if len(missing) > 0 {
		return nil, platformerrors.New(platformerrors.KindConfig, op, "missing collaborators: "+strings.Join(missing, ", "))
	}
	return &Pipeline{deps: deps, logger: deps.Logger}, nil
}

// run tracks one request's progress through the state machine.
type run struct {
	id     string
	mu     sync.Mutex
	state  State
	trace  []State
	failed State
}

func newRun() *run {
	return &run{id: uuid.NewString()[:8], state: StateStart, trace: []State{StateStart}}
}

func (r *run) to(next State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = next
	r.trace = append(r.trace, next)
}

func (r *run) fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = r.state
	r.state = StateFailed
	r.trace = append(r.trace, StateFailed)
}

func (r *run) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.trace...)
}

// Process runs one query to a terminal state. Staged assets are released
// exactly once after that state is reached, on every path. Collaborator calls
// are detached from the caller's cancellation; each stage applies its own
// timeout.
func (p *Pipeline) Process(ctx context.Context, req QueryRequest) (reply *Reply, err error) {
	ctx = context.WithoutCancel(ctx)
	r := newRun()
	ctx, endSpan := observability.StartSpan(ctx, "pipeline", "query")

	var imageAsset, audioAsset *staging.Asset
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorTag("PIPELINE", "req=%s panic in state %s: %v\n%s", r.id, r.state, rec, debug.Stack())
			reply = nil
			err = platformerrors.New(platformerrors.KindInternal, "pipeline:process", fmt.Sprintf("internal error: %v", rec))
		}

		if err != nil {
			r.fail()
			p.logger.WarnTag("PIPELINE", "req=%s failed after %s (kind=%s): %v", r.id, r.failed, platformerrors.KindOf(err), err)
			observability.ObserveStage("query", outcomeFailed, time.Since(started))
		} else {
			r.to(StateDone)
			reply.Trace = r.snapshot()
			observability.ObserveStage("query", outcomeOK, time.Since(started))
		}

		p.deps.Stager.Release(imageAsset)
		p.deps.Stager.Release(audioAsset)
		endSpan(err)
	}()

	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.Audio) == "" && strings.TrimSpace(req.Image) == "" {
		return nil, platformerrors.New(platformerrors.KindDecode, "pipeline:validate", "request must include text, audio or image")
	}

	stageStart := time.Now()
	if strings.TrimSpace(req.Image) != "" {
		if imageAsset, err = p.deps.Stager.Stage(ctx, staging.KindImage, req.Image); err != nil {
			observability.ObserveStage("stage", outcomeFailed, time.Since(stageStart))
			return nil, err
		}
	}
	if strings.TrimSpace(req.Audio) != "" && strings.TrimSpace(req.Text) == "" {
		if audioAsset, err = p.deps.Stager.Stage(ctx, staging.KindAudio, req.Audio); err != nil {
			observability.ObserveStage("stage", outcomeFailed, time.Since(stageStart))
			return nil, err
		}
	}
	observability.ObserveStage("stage", outcomeOK, time.Since(stageStart))
	r.to(StateStaged)

	speechStart := time.Now()
	utterance := p.deps.Speech.Resolve(ctx, req.Text, audioAsset)
	observability.ObserveStage("speech", speechOutcome(utterance), time.Since(speechStart))
	r.to(StateSpeechResolved)

	// Detection and location have no data dependency and are joined before
	// assembly.
	var (
		sc  scene.Scene
		loc location.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard("detect", func() {
		start := time.Now()
		sc = p.deps.Scene.Detect(gctx, imageAsset)
		observability.ObserveStage("detect", sceneOutcome(sc), time.Since(start))
	}))
	g.Go(guard("locate", func() {
		start := time.Now()
		loc = p.deps.Location.Resolve(gctx)
		outcome := outcomeOK
		if !loc.Available {
			outcome = outcomeDegraded
		}
		observability.ObserveStage("locate", outcome, time.Since(start))
	}))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.to(StateDetected)
	r.to(StateLocated)

	assembled := p.deps.Assembler.Assemble(sc, loc, utterance)
	r.to(StateAssembled)
	p.logger.DebugTag("PIPELINE", "req=%s context: %s", r.id, assembled.Text)

	var frame *domainimage.Frame
	if imageAsset != nil {
		frame = imageAsset.Frame
	}

	reasonStart := time.Now()
	text, err := p.deps.Reasoner.Invoke(ctx, assembled.Text, frame)
	if err != nil {
		observability.ObserveStage("reason", outcomeFailed, time.Since(reasonStart))
		return nil, err
	}
	observability.ObserveStage("reason", outcomeOK, time.Since(reasonStart))
	r.to(StateReplied)

	p.logger.InfoTag("PIPELINE", "req=%s scene=%s location=%t speech=%s in %s",
		r.id, sc.Status, loc.Available, utterance.Source, time.Since(started).Round(time.Millisecond))

	return &Reply{Text: text, Scene: sc, Location: loc, Utterance: utterance}, nil
}

// Transcribe stages a base64 audio payload and runs only the transcription
// path.
func (p *Pipeline) Transcribe(ctx context.Context, encoded string) (string, error) {
	if strings.TrimSpace(encoded) == "" {
		return "", platformerrors.New(platformerrors.KindDecode, "pipeline:transcribe", "No audio file")
	}
	ctx = context.WithoutCancel(ctx)
	asset, err := p.deps.Stager.Stage(ctx, staging.KindAudio, encoded)
	if err != nil {
		return "", err
	}
	defer p.deps.Stager.Release(asset)
	return p.transcribe(ctx, asset)
}

// TranscribeBytes is Transcribe for an already decoded upload.
func (p *Pipeline) TranscribeBytes(ctx context.Context, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", platformerrors.New(platformerrors.KindDecode, "pipeline:transcribe", "No audio file")
	}
	ctx = context.WithoutCancel(ctx)
	asset, err := p.deps.Stager.StageBytes(ctx, staging.KindAudio, raw)
	if err != nil {
		return "", err
	}
	defer p.deps.Stager.Release(asset)
	return p.transcribe(ctx, asset)
}

func (p *Pipeline) transcribe(ctx context.Context, asset *staging.Asset) (text string, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorTag("PIPELINE", "panic during transcription: %v", rec)
			err = platformerrors.New(platformerrors.KindInternal, "pipeline:transcribe", fmt.Sprintf("internal error: %v", rec))
		}
		outcome := outcomeOK
		if err != nil {
			outcome = outcomeFailed
		}
		observability.ObserveStage("transcribe", outcome, time.Since(start))
	}()
	return p.deps.Speech.Transcribe(ctx, asset)
}

// guard turns a panic inside an errgroup goroutine into a KindInternal error,
// since the caller's recover cannot see it.
func guard(stage string, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = platformerrors.New(platformerrors.KindInternal, "pipeline:"+stage, fmt.Sprintf("internal error: %v", rec))
			}
		}()
		fn()
		return nil
	}
}

func speechOutcome(u speech.Utterance) string {
	if u.Degraded != nil {
		return outcomeDegraded
	}
	return outcomeOK
}

func sceneOutcome(sc scene.Scene) string {
	if sc.Status == scene.StatusFailed {
		return outcomeDegraded
	}
	return outcomeOK
}
