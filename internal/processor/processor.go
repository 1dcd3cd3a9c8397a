// Package processor takes ingest records end to end: transcription,
// scoring, persistence and event publishing.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cxqa-go/internal/dataset"
	"cxqa-go/internal/events"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/metrics"
	"cxqa-go/internal/pipeline"
	"cxqa-go/internal/store"
	"cxqa-go/internal/types"
)

const (
	OutcomeScored  = "scored"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

type Publisher interface {
	PublishScored(ctx context.Context, ev events.ScoredEvent) error
}

type Options struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	// Transcriber is needed only for records that carry an audio URL.
	Transcriber Transcriber
	Publisher   Publisher
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

type Processor struct {
	pipeline    *pipeline.Pipeline
	store       store.Store
	transcriber Transcriber
	publisher   Publisher
	concurrency int
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// Outcome is what Process returns for one stored conversation.
type Outcome struct {
	ConversationID string                     `json:"conversation_id"`
	AgentID        string                     `json:"agent_id"`
	Scores         types.Scores               `json:"scores"`
	Explanation    map[types.Dimension]string `json:"explanation"`
	Calibrated     *types.Scores              `json:"calibrated,omitempty"`
	ModelVersion   string                     `json:"model_version"`
	Degraded       bool                       `json:"degraded,omitempty"`
	FallbackFrom   string                     `json:"fallback_from,omitempty"`
	RedactionCount int                        `json:"redaction_count"`
	DurationMs     int64                      `json:"duration_ms"`
}

type RecordError struct {
	File           string `json:"file"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error"`
}

type BatchReport struct {
	Files  int           `json:"files"`
	Total  int           `json:"total"`
	Scored int           `json:"scored"`
	Failed int           `json:"failed"`
	Errors []RecordError `json:"errors,omitempty"`
}

func New(opts Options) *Processor {
	p := &Processor{
		pipeline:    opts.Pipeline,
		store:       opts.Store,
		transcriber: opts.Transcriber,
		publisher:   opts.Publisher,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	if p.metrics == nil {
		p.metrics = metrics.Default
	}
	if p.log == nil {
		p.log = logger.New()
	}
	return p
}

// Process scores one record and stores it. Publishing failures are logged
// and do not fail the record.
func (p *Processor) Process(ctx context.Context, rec types.ConversationRecord) (Outcome, error) {
	log := p.log.WithComponent("processor").
		WithField("conversation_id", rec.ConversationID).
		WithField("agent_id", rec.AgentID)
	start := time.Now()

	out, err := p.process(ctx, &rec)
	if err != nil {
		outcome := OutcomeFailed
		if types.KindOf(err) == types.KindValidation {
			outcome = OutcomeInvalid
		}
		p.metrics.RecordOutcome(outcome)
		log.WithError(err).WithField("outcome", outcome).Warn("record not processed")
		return Outcome{}, err
	}
	out.DurationMs = time.Since(start).Milliseconds()
	p.metrics.RecordOutcome(OutcomeScored)
	log.WithField("model_version", out.ModelVersion).
		WithField("duration_ms", out.DurationMs).
		Info("record processed")
	return out, nil
}

func (p *Processor) process(ctx context.Context, rec *types.ConversationRecord) (Outcome, error) {
	if err := rec.Validate(); err != nil {
		return Outcome{}, err
	}
	started, err := rec.StartedTime()
	if err != nil {
		return Outcome{}, err
	}

	transcript := rec.Transcript
	if strings.TrimSpace(transcript) == "" {
		if p.transcriber == nil {
			return Outcome{}, &types.ValidationError{Field: "audio_url", Message: "transcription is not configured"}
		}
		if transcript, err = p.transcriber.Transcribe(ctx, rec.AudioURL); err != nil {
			return Outcome{}, err
		}
		if err := types.CheckTranscript(transcript); err != nil {
			return Outcome{}, err
		}
	}

	res, err := p.pipeline.Run(ctx, transcript)
	if err != nil {
		return Outcome{}, err
	}

	if _, err := p.store.UpsertAgent(ctx, rec.AgentID, rec.AgentName); err != nil {
		return Outcome{}, err
	}
	if _, err := p.store.SaveConversation(ctx, store.Conversation{
		ExtID:        rec.ConversationID,
		AgentExtID:   rec.AgentID,
		StartedAt:    started,
		Channel:      rec.Channel,
		Language:     rec.Language,
		RawText:      transcript,
		RedactedText: res.Redacted,
	}); err != nil {
		return Outcome{}, err
	}
	if err := p.store.SaveScore(ctx, rec.ConversationID, store.ScoreRecord{Result: res.Score, Calibrated: res.Calibrated}); err != nil {
		return Outcome{}, err
	}

	if p.publisher != nil {
		ev := events.ScoredEvent{
			ConversationID: rec.ConversationID,
			AgentID:        rec.AgentID,
			ModelVersion:   res.Score.ModelVersion,
			Scores:         res.Score.Scores,
			Calibrated:     res.Calibrated,
			Degraded:       res.Score.Degraded,
			FallbackFrom:   res.Score.FallbackFrom,
			ScoredAt:       time.Now().UTC(),
		}
		if err := p.publisher.PublishScored(ctx, ev); err != nil {
			p.log.WithComponent("processor").WithError(err).
				WithField("conversation_id", rec.ConversationID).
				Warn("scored event not published")
		}
	}

	return Outcome{
		ConversationID: rec.ConversationID,
		AgentID:        rec.AgentID,
		Scores:         res.Score.Scores,
		Explanation:    res.Score.Explanation,
		Calibrated:     res.Calibrated,
		ModelVersion:   res.Score.ModelVersion,
		Degraded:       res.Score.Degraded,
		FallbackFrom:   res.Score.FallbackFrom,
		RedactionCount: res.RedactionCount,
	}, nil
}

// ProcessDir processes every record file in dir. A bad file or record is
// counted in the report and the batch continues.
func (p *Processor) ProcessDir(ctx context.Context, dir string) (BatchReport, error) {
	log := p.log.WithComponent("processor").WithField("dir", dir)
	files, err := dataset.ListRecordFiles(dir)
	if err != nil {
		return BatchReport{}, err
	}

	var (
		mu     sync.Mutex
		report = BatchReport{Files: len(files)}
	)
	fail := func(file, convID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.Errors = append(report.Errors, RecordError{File: file, ConversationID: convID, Error: err.Error()})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, file := range files {
		recs, err := dataset.LoadRecords(file)
		if err != nil {
			mu.Lock()
			report.Total++
			mu.Unlock()
			fail(file, "", err)
			p.metrics.RecordOutcome(OutcomeInvalid)
			log.WithError(err).WithField("file", file).Warn("record file unreadable")
			continue
		}
		for _, rec := range recs {
			file, rec := file, rec
			mu.Lock()
			report.Total++
			mu.Unlock()
			g.Go(func() error {
				if _, err := p.Process(gctx, rec); err != nil {
					fail(file, rec.ConversationID, err)
					return nil
				}
				mu.Lock()
				report.Scored++
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	log.WithField("files", report.Files).
		WithField("total", report.Total).
		WithField("scored", report.Scored).
		WithField("failed", report.Failed).
		Info("batch finished")
	return report, nil
}
