// Package scoring rates redacted transcripts on professionalism, friendliness
// and resolution effectiveness.
package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cxqa-go/internal/llm"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

// Scorer produces a ScoreResult for a redacted transcript.
type Scorer interface {
	Score(ctx context.Context, transcript string) (types.ScoreResult, error)
	ModelVersion() string
}

// Strategy selects the scoring implementation.
type Strategy string

const (
	StrategyHeuristic Strategy = "heuristic"
	StrategyLLM       Strategy = "llm"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyHeuristic:
		return StrategyHeuristic, nil
	case StrategyLLM:
		return StrategyLLM, nil
	}
	return "", fmt.Errorf("unknown scorer backend %q", s)
}

type Options struct {
	Strategy Strategy
	// Provider is required for StrategyLLM.
	Provider        llm.Provider
	Timeout         time.Duration
	MaxRetryElapsed time.Duration
	// Fallback wraps the LLM strategy so provider failures are scored by the heuristic.
	Fallback bool
	Logger   *logger.Logger
}

// New builds the scorer for opts.Strategy.
func New(opts Options) (Scorer, error) {
	log := opts.Logger
	if log == nil {
		log = logger.New()
	}
	switch opts.Strategy {
	case "", StrategyHeuristic:
		return NewHeuristic(), nil
	case StrategyLLM:
		if opts.Provider == nil {
			return nil, fmt.Errorf("scorer backend %q requires an llm provider", opts.Strategy)
		}
		s := NewLLM(opts.Provider, LLMOptions{
			Timeout:         opts.Timeout,
			MaxRetryElapsed: opts.MaxRetryElapsed,
			Logger:          log,
		})
		if opts.Fallback {
			return WithFallback(s, NewHeuristic(), log), nil
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown scorer backend %q", opts.Strategy)
}
