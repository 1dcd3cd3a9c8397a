package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"cxqa-go/internal/llm"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

const systemPrompt = "You output only valid JSON."

const instructionPrompt = "You are a QA evaluator. Read the conversation and rate 3 aspects from 1 (poor) to 5 (excellent):\n" +
	"1) Professionalism 2) Friendliness 3) Resolution Effectiveness.\n" +
	"Return strict JSON with keys: professionalism, friendliness, resolution_effectiveness, explanation (object with 3 short strings).\n" +
	"Conversation:\n"

// BuildPrompt returns the user prompt for one transcript.
func BuildPrompt(transcript string) string {
	return instructionPrompt + transcript
}

type LLMOptions struct {
	// Timeout bounds one Score call including retries.
	Timeout time.Duration
	// MaxRetryElapsed bounds the retry loop for transient provider errors.
	MaxRetryElapsed time.Duration
	// InitialInterval is the first backoff delay; zero uses the backoff default.
	InitialInterval time.Duration
	Logger          *logger.Logger
}

// LLM delegates scoring to a text-generation provider.
type LLM struct {
	provider llm.Provider
	opts     LLMOptions
	log      *logrus.Entry
}

func NewLLM(provider llm.Provider, opts LLMOptions) *LLM {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetryElapsed <= 0 {
		opts.MaxRetryElapsed = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	return &LLM{
		provider: provider,
		opts:     opts,
		log:      opts.Logger.WithComponent("scoring.llm").WithField("provider", provider.Name()),
	}
}

func (s *LLM) ModelVersion() string {
	return fmt.Sprintf("llm-%s-v1", s.provider.Name())
}

func (s *LLM) Score(ctx context.Context, transcript string) (types.ScoreResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var raw string
	op := func() error {
		out, err := s.provider.GenerateJSON(ctx, systemPrompt, BuildPrompt(transcript))
		if err != nil {
			if ctx.Err() != nil || !llm.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		raw = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.opts.MaxRetryElapsed
	if s.opts.InitialInterval > 0 {
		b.InitialInterval = s.opts.InitialInterval
	}
	notify := func(err error, wait time.Duration) {
		s.log.WithField("retry_in", wait.String()).WithField("error", err.Error()).Warn("llm call failed, retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return types.ScoreResult{}, &types.ProviderError{
			Provider:  s.provider.Name(),
			Message:   "generate scores",
			Retryable: llm.IsTransient(err),
			Cause:     err,
		}
	}

	res, err := ParseResponse(raw)
	if err != nil {
		return types.ScoreResult{}, &types.ProviderError{
			Provider:  s.provider.Name(),
			Message:   "malformed response",
			Retryable: true,
			Cause:     err,
		}
	}
	res.ModelVersion = s.ModelVersion()
	if res.Degraded {
		s.log.WithField("defaulted", res.DefaultedFields).Warn("llm response missing fields, defaulted to neutral")
	}
	return res, nil
}

// ParseResponse turns provider JSON into a ScoreResult. Text that is not a
// JSON object is an error; missing or mistyped score fields default to the
// neutral score and mark the result degraded. Scores sent as numeric strings
// ("4", " 3.5 ") are read as numbers.
func ParseResponse(raw string) (types.ScoreResult, error) {
	raw = llm.CleanJSONBlock(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return types.ScoreResult{}, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if obj == nil {
		return types.ScoreResult{}, fmt.Errorf("response is not a JSON object: null")
	}

	coerceNumericStrings(obj)
	invalid, err := invalidFields(obj)
	if err != nil {
		return types.ScoreResult{}, err
	}

	res := types.ScoreResult{Explanation: make(map[types.Dimension]string, len(types.Dimensions))}
	explanation, _ := obj["explanation"].(map[string]any)
	if invalid["explanation"] {
		explanation = nil
	}

	for _, d := range types.Dimensions {
		name := string(d)
		v, ok := obj[name].(float64)
		if !ok || invalid[name] {
			res.Scores = res.Scores.With(d, types.NeutralScore)
			res.DefaultedFields = append(res.DefaultedFields, d)
		} else {
			res.Scores = res.Scores.With(d, types.Clip(v))
		}

		text, _ := explanation[name].(string)
		if invalid["explanation."+name] {
			text = ""
		}
		res.Explanation[d] = text
	}
	res.Degraded = len(res.DefaultedFields) > 0
	return res, nil
}

// coerceNumericStrings replaces finite numeric strings in the score fields
// with their float value.
func coerceNumericStrings(obj map[string]any) {
	for _, d := range types.Dimensions {
		str, ok := obj[string(d)].(string)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		obj[string(d)] = v
	}
}
