package types

import (
	"math"
	"time"
)

type Dimension string

const (
	Professionalism         Dimension = "professionalism"
	Friendliness            Dimension = "friendliness"
	ResolutionEffectiveness Dimension = "resolution_effectiveness"
)

// Dimensions is the closed set of scored dimensions in their fixed order.
var Dimensions = []Dimension{Professionalism, Friendliness, ResolutionEffectiveness}

const (
	MinScore     = 1.0
	MaxScore     = 5.0
	NeutralScore = 3.0
)

func (d Dimension) Valid() bool {
	switch d {
	case Professionalism, Friendliness, ResolutionEffectiveness:
		return true
	}
	return false
}

// Scores holds one real-valued score per dimension.
type Scores struct {
	Professionalism         float64 `json:"professionalism"`
	Friendliness            float64 `json:"friendliness"`
	ResolutionEffectiveness float64 `json:"resolution_effectiveness"`
}

func (s Scores) Get(d Dimension) float64 {
	switch d {
	case Professionalism:
		return s.Professionalism
	case Friendliness:
		return s.Friendliness
	case ResolutionEffectiveness:
		return s.ResolutionEffectiveness
	}
	return math.NaN()
}

// With returns a copy of s with dimension d set to v.
func (s Scores) With(d Dimension, v float64) Scores {
	switch d {
	case Professionalism:
		s.Professionalism = v
	case Friendliness:
		s.Friendliness = v
	case ResolutionEffectiveness:
		s.ResolutionEffectiveness = v
	}
	return s
}

// Clip bounds a score to [MinScore, MaxScore].
func Clip(x float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, x))
}

// LabelScores are the integer 1-5 scores a human rater assigns.
type LabelScores struct {
	Professionalism         int `json:"professionalism" validate:"min=1,max=5"`
	Friendliness            int `json:"friendliness" validate:"min=1,max=5"`
	ResolutionEffectiveness int `json:"resolution_effectiveness" validate:"min=1,max=5"`
}

func (l LabelScores) Get(d Dimension) int {
	switch d {
	case Professionalism:
		return l.Professionalism
	case Friendliness:
		return l.Friendliness
	case ResolutionEffectiveness:
		return l.ResolutionEffectiveness
	}
	return 0
}

func (l LabelScores) Scores() Scores {
	return Scores{
		Professionalism:         float64(l.Professionalism),
		Friendliness:            float64(l.Friendliness),
		ResolutionEffectiveness: float64(l.ResolutionEffectiveness),
	}
}

type ScoreResult struct {
	ModelVersion string               `json:"model_version"`
	Scores       Scores               `json:"scores"`
	Explanation  map[Dimension]string `json:"explanation"`
	// Degraded is set when the provider response was missing fields that were
	// replaced with NeutralScore. DefaultedFields names them.
	Degraded        bool        `json:"degraded,omitempty"`
	DefaultedFields []Dimension `json:"defaulted_fields,omitempty"`
	// FallbackFrom names the model version that failed before this result was produced.
	FallbackFrom string `json:"fallback_from,omitempty"`
}

type HumanLabel struct {
	ConversationID string `json:"conversation_id" validate:"required,max=64"`
	LabelScores
	LabeledBy string    `json:"labeled_by,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	LabeledAt time.Time `json:"labeled_at,omitempty"`
}

// LabeledPair joins the stored model score of a conversation with its human label.
type LabeledPair struct {
	ConversationID string
	ModelVersion   string
	Model          Scores
	Human          LabelScores
}
