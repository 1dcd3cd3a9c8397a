// Package agreement measures how closely model scores track human labels.
package agreement

import (
	"fmt"
	"math"

	"cxqa-go/internal/types"
)

// Agreement between human labels and model scores on one dimension.
// Statistics that are undefined for the input (fewer than two samples, a
// constant vector, chance agreement of 1) are reported as 0 with Degenerate set.
type Agreement struct {
	Kappa      float64 `json:"kappa"`
	PearsonR   float64 `json:"pearson_r"`
	MAE        float64 `json:"mae"`
	N          int     `json:"n"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// Evaluate computes Cohen's kappa on the model scores rounded to the nearest
// integer (half to even) and Pearson r on the raw scores.
func Evaluate(human []int, model []float64) (Agreement, error) {
	if len(human) != len(model) {
		return Agreement{}, &types.ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("length %d does not match %d human labels", len(model), len(human)),
		}
	}
	for i, v := range model {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Agreement{}, &types.ValidationError{Field: "model", Message: fmt.Sprintf("non-finite score at %d", i)}
		}
	}

	a := Agreement{N: len(human)}
	if a.N == 0 {
		a.Degenerate = true
		return a, nil
	}

	// Running mean so scores near the float64 limit cannot overflow the sum.
	for i := range human {
		a.MAE += (math.Abs(float64(human[i])-model[i]) - a.MAE) / float64(i+1)
	}

	kappa, kOK := cohenKappa(human, model)
	r, rOK := pearson(human, model)
	a.Kappa = clamp(kappa)
	a.PearsonR = clamp(r)
	a.Degenerate = !kOK || !rOK
	return a, nil
}

// EvaluateAll runs Evaluate for every dimension.
func EvaluateAll(human []types.LabelScores, model []types.Scores) (map[types.Dimension]Agreement, error) {
	if len(human) != len(model) {
		return nil, &types.ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("length %d does not match %d human labels", len(model), len(human)),
		}
	}
	out := make(map[types.Dimension]Agreement, len(types.Dimensions))
	for _, d := range types.Dimensions {
		h := make([]int, len(human))
		m := make([]float64, len(model))
		for i := range human {
			h[i] = human[i].Get(d)
			m[i] = model[i].Get(d)
		}
		a, err := Evaluate(h, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d, err)
		}
		out[d] = a
	}
	return out, nil
}

func cohenKappa(human []int, model []float64) (float64, bool) {
	n := float64(len(human))
	if len(human) < 2 {
		return 0, false
	}
	humanFreq := make(map[int]float64)
	modelFreq := make(map[int]float64)
	agree := 0.0
	for i, h := range human {
		m := roundToInt(model[i])
		humanFreq[h]++
		modelFreq[m]++
		if h == m {
			agree++
		}
	}

	observed := agree / n
	expected := 0.0
	for k, hf := range humanFreq {
		expected += (hf / n) * (modelFreq[k] / n)
	}
	if expected >= 1 {
		return 0, false
	}
	return (observed - expected) / (1 - expected), true
}

func pearson(human []int, model []float64) (float64, bool) {
	n := float64(len(human))
	if len(human) < 2 {
		return 0, false
	}
	// r is scale invariant; bring the model scores into [-1, 1] first so the
	// squared deviations stay finite.
	scale := 0.0
	for _, v := range model {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		return 0, false
	}

	var meanH, meanM float64
	for i := range human {
		meanH += float64(human[i])
		meanM += model[i] / scale
	}
	meanH /= n
	meanM /= n

	var cov, varH, varM float64
	for i := range human {
		dh := float64(human[i]) - meanH
		dm := model[i]/scale - meanM
		cov += dh * dm
		varH += dh * dh
		varM += dm * dm
	}
	if varH == 0 || varM == 0 {
		return 0, false
	}
	r := cov / (math.Sqrt(varH) * math.Sqrt(varM))
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// maxExactInt bounds rounded scores to the range where float64 holds every integer.
const maxExactInt = 1 << 53

func roundToInt(v float64) int {
	return int(math.Max(-maxExactInt, math.Min(maxExactInt, math.RoundToEven(v))))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
