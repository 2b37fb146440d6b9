package location

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"shravan-server-go/internal/platform/config"
	platformerrors "shravan-server-go/internal/platform/errors"
	"shravan-server-go/internal/platform/logging"
)

type Options struct {
	Cache   Cache
	Breaker config.BreakerConfig
	Logger  *logging.Logger
}

type link struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Resolver walks the provider chain in order and returns the first valid
// result. It never returns an error; exhaustion yields Unavailable().
type Resolver struct {
	chain  []link
	cache  Cache
	logger *logging.Logger
}

func NewResolver(providers []Provider, opts Options) *Resolver {
	r := &Resolver{cache: opts.Cache, logger: opts.Logger}
	for _, p := range providers {
		if p == nil {
			continue
		}
		l := link{provider: p}
		if opts.Breaker.Enabled {
			l.breaker = newBreaker(p.Name(), opts.Breaker, opts.Logger)
		}
		r.chain = append(r.chain, l)
	}
	return r
}

// newBreaker opens after a run of consecutive failures so a provider that is
// down or rate limiting us is skipped without waiting for its timeout.
func newBreaker(name string, cfg config.BreakerConfig, logger *logging.Logger) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geo:" + name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WarnTag("LOCATION", "circuit %s %s -> %s", name, from, to)
		},
	})
}

// Providers returns the provider names in chain order.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.chain))
	for _, l := range r.chain {
		names = append(names, l.provider.Name())
	}
	return names
}

func (r *Resolver) Resolve(ctx context.Context) Result {
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx)
		if err != nil {
			r.logger.WarnTag("LOCATION", "cache read failed: %v", err)
		} else if ok {
			return cached
		}
	}

	for _, l := range r.chain {
		name := l.provider.Name()
		start := time.Now()

		payload, err := r.attempt(ctx, l)
		if err != nil {
			r.logger.WarnTag("LOCATION", "provider %s skipped after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
			continue
		}

		res := l.provider.Extract(payload)
		res.Provider = name
		res.Available = true
		res.Sentence = Describe(res)

		if r.cache != nil {
			if err := r.cache.Set(ctx, res); err != nil {
				r.logger.WarnTag("LOCATION", "cache write failed: %v", err)
			}
		}
		r.logger.InfoTag("LOCATION", "%s via %s", res.Sentence, name)
		return res
	}

	r.logger.WarnTag("LOCATION", "stage=locate degraded: all %d providers exhausted", len(r.chain))
	return Unavailable()
}

// attempt runs one provider and its validity check, through the provider's
// breaker when one is configured.
func (r *Resolver) attempt(ctx context.Context, l link) (map[string]any, error) {
	call := func() (interface{}, error) {
		payload, err := l.provider.Attempt(ctx)
		if err != nil {
			return nil, err
		}
		if !l.provider.Valid(payload) {
			return nil, errInvalidPayload
		}
		return payload, nil
	}

	var (
		out interface{}
		err error
	)
	if l.breaker != nil {
		out, err = l.breaker.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = platformerrors.Wrap(platformerrors.KindLocation, "location:"+l.provider.Name(), "circuit open", err)
		}
		return nil, err
	}
	return out.(map[string]any), nil
}
