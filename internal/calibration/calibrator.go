// Package calibration maps raw model scores onto the human label scale with
// one isotonic function per dimension.
package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cxqa-go/internal/types"
)

const formatVersion = 1

// Calibrator holds one fitted Function per dimension. It is not modified
// after Fit or Load, so Apply is safe for concurrent use.
type Calibrator struct {
	ModelVersion string
	FittedAt     time.Time
	Samples      int
	funcs        map[types.Dimension]Function
}

// Identity returns a calibrator that leaves scores unchanged.
func Identity() *Calibrator {
	return &Calibrator{funcs: map[types.Dimension]Function{}}
}

// Fit fits each dimension independently on aligned model and human scores.
func Fit(model, human []types.Scores) (*Calibrator, error) {
	if len(model) != len(human) {
		return nil, &types.ValidationError{
			Field:   "human",
			Message: fmt.Sprintf("length %d does not match %d model scores", len(human), len(model)),
		}
	}

	c := &Calibrator{
		FittedAt: time.Now().UTC(),
		Samples:  len(model),
		funcs:    make(map[types.Dimension]Function, len(types.Dimensions)),
	}
	for _, d := range types.Dimensions {
		x := make([]float64, len(model))
		y := make([]float64, len(human))
		for i := range model {
			x[i] = model[i].Get(d)
			y[i] = human[i].Get(d)
		}
		c.funcs[d] = FitIsotonic(x, y)
	}
	return c, nil
}

// FitPairs fits on stored (model, human) pairs, which must share one model version.
func FitPairs(pairs []types.LabeledPair) (*Calibrator, error) {
	model := make([]types.Scores, len(pairs))
	human := make([]types.Scores, len(pairs))
	version := ""
	for i, p := range pairs {
		if version == "" {
			version = p.ModelVersion
		} else if p.ModelVersion != version {
			return nil, &types.ValidationError{
				Field:   "model_version",
				Message: fmt.Sprintf("pairs mix %q and %q", version, p.ModelVersion),
			}
		}
		model[i] = p.Model
		human[i] = p.Human.Scores()
	}
	c, err := Fit(model, human)
	if err != nil {
		return nil, err
	}
	c.ModelVersion = version
	return c, nil
}

// Function returns the fitted function for d.
func (c *Calibrator) Function(d types.Dimension) Function {
	return c.funcs[d]
}

// IsIdentity reports whether every dimension passes scores through unchanged.
func (c *Calibrator) IsIdentity() bool {
	for _, d := range types.Dimensions {
		if !c.funcs[d].IsIdentity() {
			return false
		}
	}
	return true
}

func (c *Calibrator) ApplyOne(s types.Scores) types.Scores {
	out := s
	for _, d := range types.Dimensions {
		out = out.With(d, c.funcs[d].Apply(s.Get(d)))
	}
	return out
}

func (c *Calibrator) Apply(batch []types.Scores) []types.Scores {
	out := make([]types.Scores, len(batch))
	for i, s := range batch {
		out[i] = c.ApplyOne(s)
	}
	return out
}

type document struct {
	Version      int                          `json:"version"`
	ModelVersion string                       `json:"model_version,omitempty"`
	FittedAt     time.Time                    `json:"fitted_at"`
	Samples      int                          `json:"samples"`
	Dimensions   map[types.Dimension]Function `json:"dimensions"`
}

func (c *Calibrator) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		Version:      formatVersion,
		ModelVersion: c.ModelVersion,
		FittedAt:     c.FittedAt,
		Samples:      c.Samples,
		Dimensions:   c.funcs,
	})
}

func (c *Calibrator) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Version != formatVersion {
		return fmt.Errorf("unsupported calibrator version %d", doc.Version)
	}
	funcs := make(map[types.Dimension]Function, len(doc.Dimensions))
	for d, f := range doc.Dimensions {
		if !d.Valid() {
			return fmt.Errorf("unknown dimension %q", d)
		}
		if err := f.validate(); err != nil {
			return fmt.Errorf("dimension %s: %w", d, err)
		}
		funcs[d] = f
	}
	c.ModelVersion = doc.ModelVersion
	c.FittedAt = doc.FittedAt
	c.Samples = doc.Samples
	c.funcs = funcs
	return nil
}

// Save writes c as JSON to path.
func (c *Calibrator) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibrator: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create calibrator dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibrator: %w", err)
	}
	return nil
}

// Load reads a calibrator written by Save.
func Load(path string) (*Calibrator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibrator: %w", err)
	}
	c := &Calibrator{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode calibrator %s: %w", path, err)
	}
	return c, nil
}
