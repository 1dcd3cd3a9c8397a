package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"cxqa-go/internal/calibration"
	"cxqa-go/internal/config"
	"cxqa-go/internal/events"
	"cxqa-go/internal/llm"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/metrics"
	"cxqa-go/internal/pipeline"
	"cxqa-go/internal/processor"
	"cxqa-go/internal/scoring"
	"cxqa-go/internal/store"
	"cxqa-go/internal/transcription"
)

// app holds the dependencies shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	store   store.Store
	closers []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.New(), metrics: metrics.Default}
	a.log.WithField("environment", cfg.Environment).Debug("config loaded")
	return a, nil
}

// openStore connects and migrates the configured store.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := store.Open(ctx, store.Options{
		Driver:      a.cfg.StoreDriver,
		DatabaseURL: a.cfg.DatabaseURL,
		SQLitePath:  a.cfg.SQLitePath,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	a.log.WithComponent("store").WithField("driver", a.cfg.StoreDriver).Info("store ready")
	return st, nil
}

func (a *app) scorer(ctx context.Context) (scoring.Scorer, error) {
	strategy, err := scoring.ParseStrategy(a.cfg.ScorerBackend)
	if err != nil {
		return nil, err
	}
	opts := scoring.Options{
		Strategy:        strategy,
		Timeout:         a.cfg.LLMTimeout,
		MaxRetryElapsed: a.cfg.LLMMaxRetryElapsed,
		Fallback:        a.cfg.ScorerFallback,
		Logger:          a.log,
	}
	if strategy == scoring.StrategyLLM {
		provider, err := llm.NewProvider(ctx, llm.Config{
			Provider: llm.ProviderName(a.cfg.LLMProvider),
			Model:    a.cfg.LLMModel,
			APIKey:   a.cfg.LLMAPIKey(),
			BaseURL:  a.cfg.OpenAIBaseURL,
			Timeout:  a.cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		a.closers = append(a.closers, provider.Close)
		opts.Provider = provider
	}
	s, err := scoring.New(opts)
	if err != nil {
		return nil, err
	}
	a.log.WithComponent("scoring").WithField("model_version", s.ModelVersion()).Info("scorer ready")
	return s, nil
}

// calibrator loads the saved calibrator. A missing file means scores stay raw.
func (a *app) calibrator() (*calibration.Calibrator, error) {
	c, err := calibration.Load(a.cfg.CalibratorPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.log.WithComponent("calibration").WithField("path", a.cfg.CalibratorPath).
				Info("no calibrator found, scores stay uncalibrated")
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	s, err := a.scorer(ctx)
	if err != nil {
		return nil, err
	}
	c, err := a.calibrator()
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Options{
		Scorer:      s,
		Calibrator:  c,
		Concurrency: a.cfg.PipelineConcurrency,
		Metrics:     a.metrics,
		Logger:      a.log,
	}), nil
}

func (a *app) processor(ctx context.Context) (*processor.Processor, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	p, err := a.pipeline(ctx)
	if err != nil {
		return nil, err
	}
	pub := events.New(&events.Config{
		Brokers: a.cfg.KafkaBrokers,
		Topic:   a.cfg.KafkaTopic,
		Enabled: a.cfg.KafkaEnabled,
	}, a.log, a.metrics)
	a.closers = append(a.closers, pub.Close)

	tr := transcription.NewClient(transcription.Config{
		BaseURL: a.cfg.TranscribeURL,
		Mock:    a.cfg.UseMockTranscribe,
	}, a.log)

	return processor.New(processor.Options{
		Pipeline:    p,
		Store:       st,
		Transcriber: tr,
		Publisher:   pub,
		Concurrency: a.cfg.PipelineConcurrency,
		Metrics:     a.metrics,
		Logger:      a.log,
	}), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
