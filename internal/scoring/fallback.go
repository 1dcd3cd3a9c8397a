package scoring

import (
	"context"

	"github.com/sirupsen/logrus"

	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

// Fallback scores with primary and, when primary fails with a provider
// error, with secondary instead.
type Fallback struct {
	primary   Scorer
	secondary Scorer
	log       *logrus.Entry
}

func WithFallback(primary, secondary Scorer, log *logger.Logger) *Fallback {
	if log == nil {
		log = logger.New()
	}
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		log:       log.WithComponent("scoring.fallback"),
	}
}

func (f *Fallback) ModelVersion() string {
	return f.primary.ModelVersion()
}

func (f *Fallback) Score(ctx context.Context, transcript string) (types.ScoreResult, error) {
	res, err := f.primary.Score(ctx, transcript)
	if err == nil {
		return res, nil
	}
	if types.KindOf(err) != types.KindProvider {
		return types.ScoreResult{}, err
	}

	f.log.WithField("error", err.Error()).
		WithField("fallback", f.secondary.ModelVersion()).
		Warn("primary scorer failed, falling back")

	res, ferr := f.secondary.Score(ctx, transcript)
	if ferr != nil {
		return types.ScoreResult{}, ferr
	}
	res.FallbackFrom = f.primary.ModelVersion()
	return res, nil
}
