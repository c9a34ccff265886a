// Package recommend turns a selection of liked titles into ranked catalog
// records through an opaque, lazily constructed ranking model.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"osusume/pkg/metrics"
	"osusume/pkg/models"
)

var (
	// ErrModelUnavailable is returned for the rest of the process once model
	// construction has failed.
	ErrModelUnavailable = errors.New("recommendation model unavailable")
	// ErrModelInferenceFailed wraps a failed prediction call.
	ErrModelInferenceFailed = errors.New("recommendation inference failed")
)

// Resolver maps ranked ids back to catalog records, preserving order.
type Resolver interface {
	ResolveByIDs(ctx context.Context, ids []int64) ([]models.Anime, error)
}

type Config struct {
	// Weight is assigned to every selected id.
	Weight float64
	// K caps the ranked result.
	K int

	// BreakerFailures consecutive prediction failures open the breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weight:          10,
		K:               20,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

type Status int

const (
	StatusIdle Status = iota
	StatusReady
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      Config
	factory  Factory
	resolver Resolver
	log      zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[[]int64]

	mu       sync.Mutex
	model    Ranker
	status   Status
	buildErr error
	building chan struct{} // non-nil while the factory runs
}

func NewEngine(factory Factory, resolver Resolver, cfg Config, log zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Weight <= 0 {
		cfg.Weight = def.Weight
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	e := &Engine{
		cfg:      cfg,
		factory:  factory,
		resolver: resolver,
		log:      log.With().Str("component", "recommend").Logger(),
	}
	e.breaker = gobreaker.NewCircuitBreaker[[]int64](gobreaker.Settings{
		Name:    "ranking-model",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// superseded requests say nothing about model health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("prediction breaker state changed")
		},
	})
	metrics.ModelStatus.Set(float64(StatusIdle))
	return e
}

// Status reports whether the model has been built.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Recommend ranks catalog records for selection. An empty selection returns
// an empty result without touching the model. Model and storage failures
// return an empty result together with the error; only context cancellation
// returns a nil result.
func (e *Engine) Recommend(ctx context.Context, selection []models.Anime) ([]models.Anime, error) {
	if len(selection) == 0 {
		return []models.Anime{}, nil
	}

	model, err := e.ensureModel(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.Recommendations.WithLabelValues("unavailable").Inc()
		return []models.Anime{}, err
	}

	in := Input{Items: make(map[int64]float64, len(selection)), K: e.cfg.K}
	for _, a := range selection {
		in.Items[a.ID] = e.cfg.Weight
	}

	ranked, err := e.breaker.Execute(func() ([]int64, error) {
		return predict(ctx, model, in)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.Recommendations.WithLabelValues("inference_failed").Inc()
		e.log.Warn().Err(err).Int("selected", len(selection)).Msg("prediction failed")
		return []models.Anime{}, fmt.Errorf("%w: %w", ErrModelInferenceFailed, err)
	}

	if len(ranked) == 0 {
		metrics.Recommendations.WithLabelValues("empty").Inc()
		return []models.Anime{}, nil
	}
	if len(ranked) > e.cfg.K {
		ranked = ranked[:e.cfg.K]
	}

	out, err := e.resolver.ResolveByIDs(ctx, ranked)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.Recommendations.WithLabelValues("resolve_failed").Inc()
		e.log.Error().Err(err).Int("ranked", len(ranked)).Msg("resolve recommendations failed")
		return []models.Anime{}, fmt.Errorf("resolve recommendations: %w", err)
	}

	metrics.Recommendations.WithLabelValues("ok").Inc()
	e.log.Debug().Int("selected", len(selection)).Int("ranked", len(ranked)).Int("resolved", len(out)).
		Msg("recommendations ready")
	return out, nil
}

// ensureModel builds the model on first use. A failed build is sticky; a
// build interrupted by the caller's context is not. The factory runs without
// holding mu, so Status stays responsive; concurrent callers wait on the
// build in flight instead of starting another.
func (e *Engine) ensureModel(ctx context.Context) (Ranker, error) {
	for {
		e.mu.Lock()
		switch e.status {
		case StatusReady:
			model := e.model
			e.mu.Unlock()
			return model, nil
		case StatusUnavailable:
			err := e.buildErr
			e.mu.Unlock()
			return nil, err
		}
		if building := e.building; building != nil {
			e.mu.Unlock()
			select {
			case <-building:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		e.building = done
		e.mu.Unlock()

		model, err := e.build(ctx)

		e.mu.Lock()
		e.building = nil
		close(done)
		if err != nil && ctx.Err() != nil {
			// leave the engine idle so the next caller retries
			e.mu.Unlock()
			return nil, ctx.Err()
		}
		if err != nil {
			buildErr := fmt.Errorf("%w: %w", ErrModelUnavailable, err)
			e.status = StatusUnavailable
			e.buildErr = buildErr
			e.mu.Unlock()
			metrics.ModelStatus.Set(float64(StatusUnavailable))
			e.log.Error().Err(err).Msg("model construction failed; recommendations disabled")
			return nil, buildErr
		}
		e.model = model
		e.status = StatusReady
		e.mu.Unlock()
		metrics.ModelStatus.Set(float64(StatusReady))
		e.log.Info().Msg("ranking model loaded")
		return model, nil
	}
}

func (e *Engine) build(ctx context.Context) (Ranker, error) {
	if e.factory == nil {
		return nil, errors.New("no model factory configured")
	}
	model, err := e.factory(ctx)
	if err == nil && model == nil {
		err = errors.New("model factory returned nil")
	}
	return model, err
}

func predict(ctx context.Context, model Ranker, in Input) (ids []int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, fmt.Errorf("model panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return model.Rank(ctx, in)
}
