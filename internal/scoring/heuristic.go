package scoring

import (
	"context"
	"fmt"
	"strings"

	"cxqa-go/internal/types"
)

const HeuristicVersion = "heuristic-v1"

var (
	politenessMarkers = []string{"please", "thank", "thanks", "appreciate", "happy to", "glad"}
	empathyMarkers    = []string{"sorry", "apologize", "understand", "frustrating", "i can imagine"}
	informalMarkers   = []string{"dude", "bro", "lol", "wtf", "ain't"}
	resolutionMarkers = []string{"resolved", "credit issued", "refund", "fixed", "replacement", "ticket closed", "escalated"}
	protocolMarkers   = []string{"verify", "account", "security", "policy", "steps"}
)

// MarkerCounts is the number of distinct markers of each set present in a transcript.
type MarkerCounts struct {
	Politeness int `json:"politeness"`
	Empathy    int `json:"empathy"`
	Informal   int `json:"informal"`
	Resolution int `json:"resolution"`
	Protocol   int `json:"protocol"`
}

// CountMarkers lower-cases text and counts how many markers of each set it contains.
func CountMarkers(text string) MarkerCounts {
	t := strings.ToLower(text)
	return MarkerCounts{
		Politeness: countPresent(t, politenessMarkers),
		Empathy:    countPresent(t, empathyMarkers),
		Informal:   countPresent(t, informalMarkers),
		Resolution: countPresent(t, resolutionMarkers),
		Protocol:   countPresent(t, protocolMarkers),
	}
}

func countPresent(text string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(text, m) {
			n++
		}
	}
	return n
}

// Heuristic scores transcripts from lexical marker counts. It needs no
// network and is the offline fallback for the LLM strategy.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) ModelVersion() string {
	return HeuristicVersion
}

func (h *Heuristic) Score(_ context.Context, transcript string) (types.ScoreResult, error) {
	return HeuristicScore(transcript), nil
}

// HeuristicScore is the pure scoring function behind Heuristic.
func HeuristicScore(transcript string) types.ScoreResult {
	c := CountMarkers(transcript)
	pro, unp := float64(c.Protocol), float64(c.Informal)
	pos, emp, res := float64(c.Politeness), float64(c.Empathy), float64(c.Resolution)

	return types.ScoreResult{
		ModelVersion: HeuristicVersion,
		Scores: types.Scores{
			Professionalism:         types.Clip(3 + 0.3*pro - 0.6*unp),
			Friendliness:            types.Clip(3 + 0.4*pos + 0.5*emp - 0.3*unp),
			ResolutionEffectiveness: types.Clip(2.5 + 0.8*res + 0.2*pro),
		},
		Explanation: map[types.Dimension]string{
			types.Professionalism:         fmt.Sprintf("Protocol refs: %d, informal terms: %d", c.Protocol, c.Informal),
			types.Friendliness:            fmt.Sprintf("Politeness markers: %d, empathy markers: %d", c.Politeness, c.Empathy),
			types.ResolutionEffectiveness: fmt.Sprintf("Resolution cues: %d", c.Resolution),
		},
	}
}
