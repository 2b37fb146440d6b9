package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"shravan-server-go/internal/app/services"
	"shravan-server-go/internal/core/providers/asr/whisper"
	"shravan-server-go/internal/core/providers/detector"
	"shravan-server-go/internal/core/providers/vlllm"
	"shravan-server-go/internal/domain/guidance"
	domainimage "shravan-server-go/internal/domain/image"
	"shravan-server-go/internal/domain/location"
	"shravan-server-go/internal/domain/reasoning"
	"shravan-server-go/internal/domain/scene"
	"shravan-server-go/internal/domain/speech"
	"shravan-server-go/internal/domain/staging"
	platformconfig "shravan-server-go/internal/platform/config"
	platformerrors "shravan-server-go/internal/platform/errors"
	platformlogging "shravan-server-go/internal/platform/logging"
	platformobservability "shravan-server-go/internal/platform/observability"
	httptransport "shravan-server-go/internal/transport/http"
	"shravan-server-go/internal/transport/http/assist"
)

// ConfigEnv names the variable consulted when no -config flag is given.
const ConfigEnv = "SHRAVAN_CONFIG"

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

// Options carries command line settings into Run.
type Options struct {
	ConfigPath string
}

type appState struct {
	configPath            string
	loadedFrom            string
	config                *platformconfig.Config
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	stager   *staging.Stager
	whisper  *whisper.Provider
	detector *detector.Provider
	vlllm    *vlllm.Provider
	geoCache location.Cache
	locator  *location.Resolver

	pipeline *services.Pipeline
}

// Run loads configuration, wires the pipeline, serves HTTP and blocks until
// SIGINT or SIGTERM.
func Run(ctx context.Context, opts Options) error {
	state := &appState{configPath: resolveConfigPath(opts.ConfigPath)}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.cleanup()
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil || state.pipeline == nil {
		state.cleanup()
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/pipeline not initialised",
		)
	}
	defer state.cleanup()

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state.config, logger, state.pipeline, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("start http server: %w", err)
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func resolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(ConfigEnv)); env != "" {
		return env
	}
	return platformconfig.DefaultPath
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "  %s (%s)", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "  %s (%s) <- %s", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "staging:init-dir",
			Title:     "Prepare staging directory",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStagingStep,
		},
		{
			ID:        "collaborators:init",
			Title:     "Initialise model and lookup providers",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initCollaboratorsStep,
		},
		{
			ID:        "pipeline:init",
			Title:     "Assemble query pipeline",
			DependsOn: []string{"observability:setup-hooks", "staging:init-dir", "collaborators:init"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	res, err := platformconfig.NewLoader(state.configPath).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load config", err)
	}
	state.config = res.Config
	state.loadedFrom = res.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger

	source := state.loadedFrom
	if source == "" {
		source = "defaults"
	}
	logger.InfoTag("BOOT", "logging ready [%s] config=%s", state.config.Log.Level, source)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state.logger == nil || state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "observability:setup-hooks", "config/logger not initialised")
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled || strings.EqualFold(state.config.Log.Level, "debug"),
		Metrics: state.config.Observability.Metrics,
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initStagingStep(_ context.Context, state *appState) error {
	images, err := domainimage.NewPipeline(domainimage.Options{
		Security: &state.config.Security,
		Logger:   state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "staging:init-dir", "failed to create image pipeline", err)
	}

	stager, err := staging.NewStager(state.config.Staging, images, state.logger)
	if err != nil {
		return err
	}
	state.stager = stager
	state.logger.InfoTag("STAGING", "staging dir %s", stager.Dir())
	return nil
}

func initCollaboratorsStep(ctx context.Context, state *appState) error {
	const op = "collaborators:init"
	cfg := state.config
	logger := state.logger

	asrCfg, ok := cfg.ASR[cfg.Selected.ASR]
	if !ok {
		return platformerrors.New(platformerrors.KindConfig, op, "selected ASR "+cfg.Selected.ASR+" is not configured")
	}
	asr := whisper.NewProvider(asrCfg, logger)
	if err := asr.Initialize(); err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, op, "init ASR "+cfg.Selected.ASR, err)
	}
	state.whisper = asr

	detCfg, ok := cfg.Detector[cfg.Selected.Detector]
	if !ok {
		return platformerrors.New(platformerrors.KindConfig, op, "selected detector "+cfg.Selected.Detector+" is not configured")
	}
	det := detector.NewProvider(detCfg, logger)
	if err := det.Initialize(); err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, op, "init detector "+cfg.Selected.Detector, err)
	}
	state.detector = det

	vlCfg, ok := cfg.VLLLM[cfg.Selected.VLLLM]
	if !ok {
		return platformerrors.New(platformerrors.KindConfig, op, "selected VLLLM "+cfg.Selected.VLLLM+" is not configured")
	}
	vl := vlllm.NewProvider(vlCfg, logger)
	if err := vl.Initialize(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, op, "init VLLLM "+cfg.Selected.VLLLM, err)
	}
	state.vlllm = vl

	cache, err := location.NewCache(cfg.Geolocation.Cache)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, op, "init geolocation cache", err)
	}
	state.geoCache = cache

	client := &http.Client{}
	providers := make([]location.Provider, 0, len(cfg.Geolocation.Providers))
	for _, p := range cfg.Geolocation.Providers {
		providers = append(providers, location.NewHTTPProvider(p.Name, p.URL, p.Timeout, client))
	}
	state.locator = location.NewResolver(providers, location.Options{
		Cache:   cache,
		Breaker: cfg.Geolocation.Breaker,
		Logger:  logger,
	})

	logger.InfoTag("BOOT", "providers ready: asr=%s detector=%s vlllm=%s geo=%v cache=%s",
		cfg.Selected.ASR, cfg.Selected.Detector, cfg.Selected.VLLLM, state.locator.Providers(), cfg.Geolocation.Cache.Driver)
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	const op = "pipeline:init"
	cfg := state.config
	logger := state.logger

	resolver, err := speech.NewResolver(state.whisper, speech.Options{
		DefaultPrompt: cfg.Pipeline.DefaultPrompt,
		Language:      cfg.ASR[cfg.Selected.ASR].Language,
		Timeout:       cfg.Pipeline.TranscriptionTimeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	detectorStage, err := scene.NewSceneDetector(state.detector, scene.Options{
		MinConfidence: cfg.Scene.MinConfidence,
		MaxObjects:    cfg.Scene.MaxObjects,
		FrameWidth:    cfg.Scene.FrameWidth,
		FrameHeight:   cfg.Scene.FrameHeight,
		SmallArea:     cfg.Scene.SmallArea,
		LargeArea:     cfg.Scene.LargeArea,
		Timeout:       cfg.Pipeline.DetectionTimeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	vlCfg := state.vlllm.Config()
	reasoner, err := reasoning.NewReasoner(state.vlllm, reasoning.Options{
		SystemPrompt:   cfg.Pipeline.SystemPrompt,
		ImageMaxTokens: vlCfg.MaxTokens,
		TextMaxTokens:  vlCfg.TextMaxTokens,
		Timeout:        cfg.Pipeline.ReasoningTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	pipeline, err := services.NewPipeline(services.PipelineDeps{
		Stager:    state.stager,
		Speech:    resolver,
		Scene:     detectorStage,
		Location:  state.locator,
		Assembler: guidance.NewAssembler(cfg.Pipeline.TaskInstruction),
		Reasoner:  reasoner,
		Logger:    logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, op, "failed to assemble pipeline", err)
	}
	state.pipeline = pipeline
	return nil
}

// cleanup releases whatever the init steps managed to create. Safe to call on
// a partially initialised state.
func (s *appState) cleanup() {
	if s.vlllm != nil {
		if err := s.vlllm.Cleanup(); err != nil && s.logger != nil {
			s.logger.WarnTag("BOOT", "vlllm cleanup: %v", err)
		}
	}
	if closer, ok := s.geoCache.(io.Closer); ok {
		if err := closer.Close(); err != nil && s.logger != nil {
			s.logger.WarnTag("BOOT", "geolocation cache close: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(shutdownCtx); err != nil && s.logger != nil {
			s.logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
		}
		cancel()
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

func startHTTPServer(
	config *platformconfig.Config,
	logger *platformlogging.Logger,
	pipeline *services.Pipeline,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	assistService, err := assist.NewService(pipeline, logger, config.Staging.MaxAudioBytes)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "assist:new-service", "failed to create assist service", err)
	}
	for _, group := range []*gin.RouterGroup{router.Root, router.API} {
		if err := assistService.Register(groupCtx, group); err != nil {
			return nil, err
		}
	}

	addr := net.JoinHostPort(config.Server.IP, strconv.Itoa(config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", addr)
		logger.InfoTag("HTTP", "docs at http://%s/docs", addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "http shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "http server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "http server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return errors.New("shutdown timed out")
	}
	return nil
}
