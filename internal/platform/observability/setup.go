package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	// Enabled turns on span and metric debug records.
	Enabled bool
	// Metrics exposes the Prometheus collectors on /metrics.
	Metrics bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger used by spans and metric records.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		logger.InfoContext(ctx, "[OBSERVABILITY] setup",
			slog.Bool("spans", cfg.Enabled),
			slog.Bool("metrics", cfg.Metrics),
		)
	}
	return func(context.Context) error {
		loggerMu.Lock()
		instrumentationLog = nil
		loggerMu.Unlock()
		return nil
	}, nil
}
