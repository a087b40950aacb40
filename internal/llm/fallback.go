package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var attemptTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "llm_model_attempts_total",
		Help: "Generation attempts per model and outcome.",
	},
	[]string{"model", "outcome"},
)

func init() {
	prometheus.MustRegister(attemptTotal)
}

// FallbackCaller tries an ordered list of models against one Provider until
// an attempt succeeds. Each model is tried exactly once per call, bounded by
// PerModelTimeout; the first usable reply short-circuits the rest.
type FallbackCaller struct {
	Provider        Provider
	Models          []string
	PerModelTimeout time.Duration
}

// NewFallbackCaller wires a caller with the given preference order.
func NewFallbackCaller(p Provider, models []string, perModelTimeout time.Duration) *FallbackCaller {
	return &FallbackCaller{
		Provider:        p,
		Models:          models,
		PerModelTimeout: perModelTimeout,
	}
}

// Generate returns the reply text and the model that produced it. When every
// model fails (errors or timeouts) it returns an aggregate error naming the
// models tried and wrapping the last failure, so callers can match the
// underlying cause.
func (f *FallbackCaller) Generate(ctx context.Context, turns []Turn, systemPrompt string) (string, string, error) {
	if len(f.Models) == 0 {
		return "", "", fmt.Errorf("no models configured")
	}

	var lastErr error
	for _, model := range f.Models {
		attemptCtx := ctx
		cancel := func() {}
		if f.PerModelTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.PerModelTimeout)
		}
		text, err := f.Provider.Generate(attemptCtx, model, turns, systemPrompt)
		cancel()

		if err == nil && text != "" {
			attemptTotal.WithLabelValues(model, "success").Inc()
			return text, model, nil
		}
		if err == nil {
			err = fmt.Errorf("empty reply")
		}
		attemptTotal.WithLabelValues(model, "failure").Inc()
		log.Warn().Err(err).Str("model", model).Msg("generation attempt failed, trying next model")
		lastErr = fmt.Errorf("model %s: %w", model, err)

		// The parent request is gone; further attempts would be wasted work.
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	return "", "", fmt.Errorf("all models failed (%s): %w", strings.Join(f.Models, ", "), lastErr)
}
