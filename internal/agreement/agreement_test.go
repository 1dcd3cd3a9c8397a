package agreement

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxqa-go/internal/types"
)

func TestEvaluate_StrongAgreement(t *testing.T) {
	a, err := Evaluate([]int{1, 2, 3, 4, 5}, []float64{1.2, 2.0, 3.2, 3.9, 4.8})
	require.NoError(t, err)

	assert.Equal(t, 5, a.N)
	assert.InDelta(t, 1.0, a.Kappa, 1e-9)
	assert.Greater(t, a.PearsonR, 0.99)
	assert.LessOrEqual(t, a.PearsonR, 1.0)
	assert.InDelta(t, 0.14, a.MAE, 1e-9)
	assert.False(t, a.Degenerate)
}

func TestEvaluate_BoundsHoldForArbitraryInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 500; trial++ {
		n := 2 + rng.Intn(30)
		human := make([]int, n)
		model := make([]float64, n)
		for i := range human {
			human[i] = 1 + rng.Intn(5)
			model[i] = -10 + 20*rng.Float64()
		}
		a, err := Evaluate(human, model)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Kappa, -1.0)
		assert.LessOrEqual(t, a.Kappa, 1.0)
		assert.GreaterOrEqual(t, a.PearsonR, -1.0)
		assert.LessOrEqual(t, a.PearsonR, 1.0)
	}
}

func TestEvaluate_PerfectDisagreement(t *testing.T) {
	a, err := Evaluate([]int{1, 5, 1, 5}, []float64{5, 1, 5, 1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, a.Kappa, 1e-9)
	assert.InDelta(t, -1.0, a.PearsonR, 1e-9)
}

func TestEvaluate_ExtremeMagnitudes(t *testing.T) {
	a, err := Evaluate([]int{1, 2, 3}, []float64{1e200, 2e200, 3e200})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.PearsonR, 1e-9)
	assert.False(t, a.Degenerate)

	a, err = Evaluate([]int{1, 2, 3}, []float64{-1e200, 1e200, 3e200})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.PearsonR, 1e-9)

	for _, model := range [][]float64{
		{1e308, 1.7e308, -1e308},
		{-1.7e308, 1.7e308, -1.7e308},
		{1e-320, 2e-320, 3e-320},
	} {
		a, err := Evaluate([]int{1, 2, 3}, model)
		require.NoError(t, err)
		for _, v := range []float64{a.Kappa, a.PearsonR, a.MAE} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%v", model)
		}
		assert.GreaterOrEqual(t, a.Kappa, -1.0)
		assert.LessOrEqual(t, a.Kappa, 1.0)
		assert.GreaterOrEqual(t, a.PearsonR, -1.0)
		assert.LessOrEqual(t, a.PearsonR, 1.0)
	}
}

func TestClamp_NaN(t *testing.T) {
	assert.Zero(t, clamp(math.NaN()))
	assert.Equal(t, 1.0, clamp(math.Inf(1)))
	assert.Equal(t, -1.0, clamp(math.Inf(-1)))
}

func TestEvaluate_RoundsHalfToEven(t *testing.T) {
	a, err := Evaluate([]int{2, 4, 2, 4}, []float64{2.5, 3.5, 2.5, 3.5})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, a.Kappa, 1e-9)
}

func TestEvaluate_Degenerate(t *testing.T) {
	tests := []struct {
		name  string
		human []int
		model []float64
	}{
		{"empty", nil, nil},
		{"single", []int{3}, []float64{3}},
		{"constant model", []int{1, 2, 3}, []float64{3, 3, 3}},
		{"constant both", []int{4, 4, 4}, []float64{4, 4, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Evaluate(tt.human, tt.model)
			require.NoError(t, err)
			assert.True(t, a.Degenerate)
			assert.Equal(t, 0.0, a.PearsonR)
			assert.GreaterOrEqual(t, a.Kappa, -1.0)
			assert.LessOrEqual(t, a.Kappa, 1.0)
		})
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	_, err := Evaluate([]int{1, 2}, []float64{1})
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestEvaluateAll(t *testing.T) {
	human := []types.LabelScores{
		{Professionalism: 1, Friendliness: 5, ResolutionEffectiveness: 3},
		{Professionalism: 3, Friendliness: 3, ResolutionEffectiveness: 3},
		{Professionalism: 5, Friendliness: 1, ResolutionEffectiveness: 4},
	}
	model := []types.Scores{
		{Professionalism: 1.1, Friendliness: 1, ResolutionEffectiveness: 3},
		{Professionalism: 2.9, Friendliness: 3, ResolutionEffectiveness: 3},
		{Professionalism: 5, Friendliness: 5, ResolutionEffectiveness: 3},
	}
	out, err := EvaluateAll(human, model)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.InDelta(t, 1.0, out[types.Professionalism].Kappa, 1e-9)
	assert.Less(t, out[types.Friendliness].PearsonR, 0.0)
	assert.True(t, out[types.ResolutionEffectiveness].Degenerate)

	_, err = EvaluateAll(human, model[:2])
	assert.Error(t, err)
}
