// Package pipeline runs one transcript through redaction, scoring and
// calibration.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"cxqa-go/internal/calibration"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/metrics"
	"cxqa-go/internal/redact"
	"cxqa-go/internal/scoring"
	"cxqa-go/internal/types"
)

const defaultConcurrency = 4

type Result struct {
	Redacted       string            `json:"redacted"`
	RedactionCount int               `json:"redaction_count"`
	Score          types.ScoreResult `json:"score"`
	Calibrated     *types.Scores     `json:"calibrated,omitempty"`
}

// BatchItem is one entry of a batch run. Err is set instead of Result when
// that transcript failed.
type BatchItem struct {
	Result Result
	Err    error
}

type Options struct {
	Scorer scoring.Scorer
	// Calibrator is optional. A nil or identity calibrator leaves Calibrated unset.
	Calibrator  *calibration.Calibrator
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

type Pipeline struct {
	scorer      scoring.Scorer
	calibrator  *calibration.Calibrator
	concurrency int
	metrics     *metrics.Metrics
	log         *logger.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		scorer:      opts.Scorer,
		calibrator:  opts.Calibrator,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	if p.metrics == nil {
		p.metrics = metrics.Default
	}
	if p.log == nil {
		p.log = logger.New()
	}
	return p
}

// Run redacts the transcript and scores the redacted text. Raw text never
// reaches the scorer.
func (p *Pipeline) Run(ctx context.Context, transcript string) (Result, error) {
	log := p.log.WithComponent("pipeline")

	redacted, entities := redact.RedactDetailed(transcript)
	p.metrics.RecordRedactions(redact.CountByLabel(entities))

	start := time.Now()
	score, err := p.scorer.Score(ctx, redacted)
	if err != nil {
		kind := types.KindOf(err)
		p.metrics.RecordFailure(string(kind))
		log.WithError(err).WithField("kind", kind).Warn("scoring failed")
		return Result{}, err
	}
	p.metrics.RecordScore(score.ModelVersion, time.Since(start).Seconds(), score.Degraded, score.FallbackFrom != "")

	res := Result{Redacted: redacted, RedactionCount: len(entities), Score: score}
	if p.calibrator != nil && !p.calibrator.IsIdentity() {
		if p.calibrator.ModelVersion != "" && p.calibrator.ModelVersion != score.ModelVersion {
			log.WithField("calibrator_version", p.calibrator.ModelVersion).
				WithField("model_version", score.ModelVersion).
				Debug("calibrator fitted for another model version, skipping")
		} else {
			c := p.calibrator.ApplyOne(score.Scores)
			res.Calibrated = &c
		}
	}
	return res, nil
}

// RunBatch scores transcripts in parallel, at most Concurrency at a time.
// Items keep input order. A failed transcript does not cancel the others.
func (p *Pipeline) RunBatch(ctx context.Context, transcripts []string) []BatchItem {
	out := make([]BatchItem, len(transcripts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, t := range transcripts {
		i, t := i, t
		g.Go(func() error {
			res, err := p.Run(gctx, t)
			out[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
