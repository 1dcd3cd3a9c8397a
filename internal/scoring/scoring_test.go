package scoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxqa-go/internal/llm"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

func TestHeuristicScore_PoliteResolved(t *testing.T) {
	res := HeuristicScore("Thank you so much, I understand this is frustrating and I apologize. Your refund has been issued and the ticket closed.")

	assert.Equal(t, HeuristicVersion, res.ModelVersion)
	assert.Greater(t, res.Scores.Friendliness, 3.0)
	assert.Greater(t, res.Scores.ResolutionEffectiveness, 3.0)
	assert.InDelta(t, 3.0, res.Scores.Professionalism, 1e-9)
	assert.InDelta(t, 4.9, res.Scores.Friendliness, 1e-9)
	assert.InDelta(t, 4.1, res.Scores.ResolutionEffectiveness, 1e-9)
	assert.Equal(t, "Resolution cues: 2", res.Explanation[types.ResolutionEffectiveness])
	assert.Equal(t, "Politeness markers: 1, empathy markers: 3", res.Explanation[types.Friendliness])
}

func TestHeuristicScore_Informal(t *testing.T) {
	res := HeuristicScore("yo bro lol wtf is this")

	assert.Less(t, res.Scores.Professionalism, 3.0)
	assert.Less(t, res.Scores.Friendliness, 3.0)
	assert.InDelta(t, 1.2, res.Scores.Professionalism, 1e-9)
	assert.InDelta(t, 2.1, res.Scores.Friendliness, 1e-9)
	assert.Equal(t, "Protocol refs: 0, informal terms: 3", res.Explanation[types.Professionalism])
}

func TestHeuristicScore_Bounds(t *testing.T) {
	inputs := []string{
		"",
		strings.Repeat("dude bro lol wtf ain't ", 100),
		strings.Repeat("please thank you I apologize, I understand, refund resolved fixed replacement escalated ticket closed, verify account security policy steps ", 100),
		"I Can Imagine how that feels",
	}
	for _, in := range inputs {
		res := HeuristicScore(in)
		for _, d := range types.Dimensions {
			v := res.Scores.Get(d)
			assert.GreaterOrEqual(t, v, types.MinScore, "dimension %s", d)
			assert.LessOrEqual(t, v, types.MaxScore, "dimension %s", d)
		}
	}
}

func TestCountMarkers_CaseInsensitive(t *testing.T) {
	c := CountMarkers("I CAN IMAGINE, please VERIFY the Account")
	assert.Equal(t, 1, c.Empathy)
	assert.Equal(t, 1, c.Politeness)
	assert.Equal(t, 2, c.Protocol)
}

type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	fail      error
	calls     int
	prompts   []string
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Close() error  { return nil }

func (f *fakeProvider) GenerateJSON(_ context.Context, _ string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.fail != nil {
		return "", f.fail
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func newTestLLM(p llm.Provider) *LLM {
	return NewLLM(p, LLMOptions{
		Timeout:         2 * time.Second,
		MaxRetryElapsed: 500 * time.Millisecond,
		InitialInterval: time.Millisecond,
		Logger:          logger.Discard(),
	})
}

func TestLLM_Score(t *testing.T) {
	p := &fakeProvider{responses: []string{"```json\n" + `{
		"professionalism": 4,
		"friendliness": 4.5,
		"resolution_effectiveness": 7,
		"explanation": {"professionalism": "calm", "friendliness": "warm", "resolution_effectiveness": "solved"}
	}` + "\n```"}}
	s := newTestLLM(p)

	res, err := s.Score(context.Background(), "agent: hello there, how can I help")
	require.NoError(t, err)

	assert.Equal(t, "llm-fake-v1", res.ModelVersion)
	assert.Equal(t, types.Scores{Professionalism: 4, Friendliness: 4.5, ResolutionEffectiveness: 5}, res.Scores)
	assert.Equal(t, "warm", res.Explanation[types.Friendliness])
	assert.False(t, res.Degraded)
	assert.Empty(t, res.DefaultedFields)
	require.Len(t, p.prompts, 1)
	assert.True(t, strings.HasSuffix(p.prompts[0], "agent: hello there, how can I help"))
}

func TestLLM_MissingFieldsDefaultToNeutral(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"friendliness": 2, "resolution_effectiveness": "high", "explanation": {"friendliness": 5}}`}}
	s := newTestLLM(p)

	res, err := s.Score(context.Background(), "some transcript text")
	require.NoError(t, err)

	assert.Equal(t, 3.0, res.Scores.Professionalism)
	assert.Equal(t, 2.0, res.Scores.Friendliness)
	assert.Equal(t, 3.0, res.Scores.ResolutionEffectiveness)
	assert.True(t, res.Degraded)
	assert.Equal(t, []types.Dimension{types.Professionalism, types.ResolutionEffectiveness}, res.DefaultedFields)
	assert.Equal(t, "", res.Explanation[types.Friendliness])
}

func TestLLM_RetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{
		errs:      []error{&llm.StatusError{Provider: "fake", StatusCode: 503}, errors.New("connection reset")},
		responses: []string{"", "", `{"professionalism": 5, "friendliness": 5, "resolution_effectiveness": 5}`},
	}
	s := newTestLLM(p)

	res, err := s.Score(context.Background(), "some transcript text")
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, 5.0, res.Scores.Professionalism)
}

func TestLLM_PermanentErrorIsNotRetried(t *testing.T) {
	p := &fakeProvider{errs: []error{&llm.StatusError{Provider: "fake", StatusCode: 401, Message: "bad key"}}, responses: []string{""}}
	s := newTestLLM(p)

	_, err := s.Score(context.Background(), "some transcript text")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, types.KindProvider, types.KindOf(err))
	assert.False(t, types.IsRetryable(err))

	var se *llm.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestLLM_OutageIsRetryable(t *testing.T) {
	p := &fakeProvider{fail: &llm.StatusError{Provider: "fake", StatusCode: 503}}
	s := NewLLM(p, LLMOptions{
		Timeout:         time.Second,
		MaxRetryElapsed: 20 * time.Millisecond,
		InitialInterval: time.Millisecond,
		Logger:          logger.Discard(),
	})

	_, err := s.Score(context.Background(), "some transcript text")
	require.Error(t, err)
	assert.Equal(t, types.KindProvider, types.KindOf(err))
	assert.True(t, types.IsRetryable(err))
}

func TestLLM_MalformedResponse(t *testing.T) {
	p := &fakeProvider{responses: []string{"I cannot score this conversation."}}
	s := newTestLLM(p)

	_, err := s.Score(context.Background(), "some transcript text")
	require.Error(t, err)
	assert.Equal(t, types.KindProvider, types.KindOf(err))
	assert.True(t, types.IsRetryable(err))
}

func TestParseResponse_ExplanationWrongType(t *testing.T) {
	res, err := ParseResponse(`{"professionalism": 1, "friendliness": 0, "resolution_effectiveness": 2, "explanation": "n/a"}`)
	require.NoError(t, err)

	assert.Equal(t, types.Scores{Professionalism: 1, Friendliness: 1, ResolutionEffectiveness: 2}, res.Scores)
	assert.False(t, res.Degraded)
	for _, d := range types.Dimensions {
		assert.Equal(t, "", res.Explanation[d])
	}
}

func TestParseResponse_NumericStrings(t *testing.T) {
	res, err := ParseResponse(`{"professionalism": "4", "friendliness": " 2.5 ", "resolution_effectiveness": "NaN"}`)
	require.NoError(t, err)

	assert.Equal(t, 4.0, res.Scores.Professionalism)
	assert.Equal(t, 2.5, res.Scores.Friendliness)
	assert.Equal(t, types.NeutralScore, res.Scores.ResolutionEffectiveness)
	assert.Equal(t, []types.Dimension{types.ResolutionEffectiveness}, res.DefaultedFields)
	assert.True(t, res.Degraded)
}

func TestFallback_UsesHeuristicOnProviderError(t *testing.T) {
	p := &fakeProvider{errs: []error{&llm.StatusError{Provider: "fake", StatusCode: 400}}, responses: []string{""}}
	s := WithFallback(newTestLLM(p), NewHeuristic(), logger.Discard())

	res, err := s.Score(context.Background(), "yo bro lol wtf is this")
	require.NoError(t, err)
	assert.Equal(t, HeuristicVersion, res.ModelVersion)
	assert.Equal(t, "llm-fake-v1", res.FallbackFrom)
	assert.Equal(t, "llm-fake-v1", s.ModelVersion())
}

type failingScorer struct{ err error }

func (f failingScorer) Score(context.Context, string) (types.ScoreResult, error) {
	return types.ScoreResult{}, f.err
}
func (f failingScorer) ModelVersion() string { return "failing" }

func TestFallback_PassesThroughNonProviderErrors(t *testing.T) {
	s := WithFallback(failingScorer{err: &types.InternalError{Message: "boom"}}, NewHeuristic(), logger.Discard())

	_, err := s.Score(context.Background(), "some transcript text")
	require.Error(t, err)
	assert.Equal(t, types.KindInternal, types.KindOf(err))
}

func TestNew(t *testing.T) {
	s, err := New(Options{Strategy: StrategyHeuristic, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, HeuristicVersion, s.ModelVersion())

	_, err = New(Options{Strategy: StrategyLLM, Logger: logger.Discard()})
	assert.Error(t, err)

	s, err = New(Options{Strategy: StrategyLLM, Provider: &fakeProvider{responses: []string{"{}"}}, Fallback: true, Logger: logger.Discard()})
	require.NoError(t, err)
	_, ok := s.(*Fallback)
	assert.True(t, ok)

	s, err = New(Options{Strategy: StrategyLLM, Provider: &fakeProvider{responses: []string{"{}"}}, Logger: logger.Discard()})
	require.NoError(t, err)
	_, ok = s.(*LLM)
	assert.True(t, ok)
}

func TestParseStrategy(t *testing.T) {
	got, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyHeuristic, got)

	got, err = ParseStrategy(" LLM ")
	require.NoError(t, err)
	assert.Equal(t, StrategyLLM, got)

	_, err = ParseStrategy("oracle")
	assert.Error(t, err)
}
