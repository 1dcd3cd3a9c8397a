package calibration

import (
	"fmt"
	"math"
	"sort"
)

// Function is a monotone non-decreasing piecewise-linear map given by its
// breakpoints. Inputs outside [X[0], X[len-1]] take the boundary value. An
// empty Function is the identity.
type Function struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type block struct {
	xmin, xmax float64
	sum        float64
	weight     float64
}

func (b block) value() float64 { return b.sum / b.weight }

// FitIsotonic fits a non-decreasing function to (x, y) pairs with the
// pool-adjacent-violators algorithm. Pairs with a non-finite member are
// dropped; equal x values are pooled before fitting.
func FitIsotonic(x, y []float64) Function {
	type pair struct{ x, y float64 }
	pairs := make([]pair, 0, len(x))
	for i := range x {
		if i >= len(y) || !finite(x[i]) || !finite(y[i]) {
			continue
		}
		pairs = append(pairs, pair{x[i], y[i]})
	}
	if len(pairs) == 0 {
		return Function{}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].x < pairs[j].x })

	blocks := make([]block, 0, len(pairs))
	for _, p := range pairs {
		if n := len(blocks); n > 0 && blocks[n-1].xmax == p.x {
			blocks[n-1].sum += p.y
			blocks[n-1].weight++
			continue
		}
		blocks = append(blocks, block{xmin: p.x, xmax: p.x, sum: p.y, weight: 1})
	}

	stack := blocks[:0:0]
	for _, b := range blocks {
		stack = append(stack, b)
		for len(stack) > 1 {
			n := len(stack)
			prev, last := stack[n-2], stack[n-1]
			if prev.value() <= last.value() {
				break
			}
			stack[n-2] = block{
				xmin:   prev.xmin,
				xmax:   last.xmax,
				sum:    prev.sum + last.sum,
				weight: prev.weight + last.weight,
			}
			stack = stack[:n-1]
		}
	}

	f := Function{}
	for _, b := range stack {
		v := b.value()
		f.X = append(f.X, b.xmin)
		f.Y = append(f.Y, v)
		if b.xmax != b.xmin {
			f.X = append(f.X, b.xmax)
			f.Y = append(f.Y, v)
		}
	}
	return f
}

// Apply evaluates f at v.
func (f Function) Apply(v float64) float64 {
	n := len(f.X)
	if n == 0 || math.IsNaN(v) {
		return v
	}
	if v <= f.X[0] {
		return f.Y[0]
	}
	if v >= f.X[n-1] {
		return f.Y[n-1]
	}
	i := sort.SearchFloat64s(f.X, v)
	if f.X[i] == v {
		return f.Y[i]
	}
	x0, x1 := f.X[i-1], f.X[i]
	y0, y1 := f.Y[i-1], f.Y[i]
	return y0 + (v-x0)*(y1-y0)/(x1-x0)
}

// IsIdentity reports whether f was fitted on no data.
func (f Function) IsIdentity() bool {
	return len(f.X) == 0
}

func (f Function) validate() error {
	if len(f.X) != len(f.Y) {
		return fmt.Errorf("breakpoint length mismatch: %d x, %d y", len(f.X), len(f.Y))
	}
	for i := range f.X {
		if !finite(f.X[i]) || !finite(f.Y[i]) {
			return fmt.Errorf("non-finite breakpoint at %d", i)
		}
		if i == 0 {
			continue
		}
		if f.X[i] <= f.X[i-1] {
			return fmt.Errorf("x not strictly increasing at %d", i)
		}
		if f.Y[i] < f.Y[i-1] {
			return fmt.Errorf("y decreasing at %d", i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
