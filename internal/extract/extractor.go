package extract

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/profile"
)

// DefaultStrategyTimeout bounds a single strategy run. Rules and lexical
// finish in microseconds; this exists for the completion-backed strategy.
const DefaultStrategyTimeout = 8 * time.Second

// Result is the outcome of one extraction pass. Extraction never fails:
// strategies that errored are listed in Degraded and the rest proceed.
type Result struct {
	Profile  profile.Profile
	Evidence []profile.Evidence
	Degraded []string
}

// Config wires an Extractor.
type Config struct {
	Strategies []Strategy
	// Timeout per strategy; DefaultStrategyTimeout when zero.
	Timeout time.Duration
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
}

// Extractor fans the utterance out to every registered strategy and
// fuses the evidence into the prior profile.
type Extractor struct {
	strategies []Strategy
	timeout    time.Duration
	log        logging.Logger
	metrics    *observability.MetricsCollector
}

// NewExtractor builds an Extractor from config.
func NewExtractor(config Config) *Extractor {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultStrategyTimeout
	}
	return &Extractor{
		strategies: config.Strategies,
		timeout:    timeout,
		log:        logging.OrNop(config.Logger),
		metrics:    config.Metrics,
	}
}

// Extract runs every strategy concurrently and merges the fused evidence
// into prior. Strategy order never affects the result: fusion sorts
// evidence by confidence and strategy priority before applying it.
func (e *Extractor) Extract(ctx context.Context, utterance string, prior profile.Profile) Result {
	log := logging.FromContext(ctx, e.log)

	type strategyOutcome struct {
		evidence []profile.Evidence
		err      error
	}
	outcomes := make([]strategyOutcome, len(e.strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, strategy := range e.strategies {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, e.timeout)
			defer cancel()

			start := time.Now()
			evidence, err := strategy.Extract(sctx, utterance)
			duration := time.Since(start)

			status := "success"
			if err != nil {
				status = "degraded"
			}
			if e.metrics != nil {
				e.metrics.RecordStrategy(ctx, strategy.Name(), status, duration)
			}

			// Failures stay local to the slot so sibling strategies
			// keep running.
			outcomes[i] = strategyOutcome{evidence: evidence, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var evidence []profile.Evidence
	var degraded []string
	for i, strategy := range e.strategies {
		outcome := outcomes[i]
		if outcome.err != nil {
			log.Warn("extraction strategy %s degraded: %v", strategy.Name(), outcome.err)
			degraded = append(degraded, strategy.Name())
			continue
		}
		log.Debug("strategy %s produced %d evidence items", strategy.Name(), len(outcome.evidence))
		evidence = append(evidence, outcome.evidence...)
	}

	fused := Fuse(prior, evidence)
	return Result{Profile: fused, Evidence: evidence, Degraded: degraded}
}
