// Package actionable turns agent summaries into coaching cards.
package actionable

import (
	"fmt"

	"cxqa-go/internal/aggregator"
	"cxqa-go/internal/types"
)

// CoachingThreshold is the mean below which a dimension needs attention.
const CoachingThreshold = 3.0

type ActionCard struct {
	AgentID   string          `json:"agent_id"`
	Dimension types.Dimension `json:"dimension,omitempty"`
	Insight   string          `json:"insight"`
	Action    string          `json:"action"`
	Impact    string          `json:"impact"`
}

var actions = map[types.Dimension]struct{ action, impact string }{
	types.Professionalism: {
		action: "Review verification and policy steps; replace informal phrasing with the standard script",
		impact: "Fewer compliance misses and more consistent customer experience",
	},
	types.Friendliness: {
		action: "Coach on acknowledging the customer's frustration and closing with thanks",
		impact: "Higher satisfaction on otherwise resolved contacts",
	},
	types.ResolutionEffectiveness: {
		action: "Pair with a senior agent on resolution paths; confirm the outcome before closing the ticket",
		impact: "Reduce repeat contacts and escalations",
	},
}

// Generate targets the agent's weakest dimension when its mean is below CoachingThreshold.
func Generate(s aggregator.AgentSummary) ActionCard {
	if s.Conversations == 0 {
		return ActionCard{
			AgentID: s.AgentID,
			Insight: "No scored conversations",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		}
	}
	d, mean := s.Weakest()
	if mean < CoachingThreshold {
		a := actions[d]
		return ActionCard{
			AgentID:   s.AgentID,
			Dimension: d,
			Insight:   fmt.Sprintf("Low %s (%.1f across %d conversations)", d, mean, s.Conversations),
			Action:    a.action,
			Impact:    a.impact,
		}
	}
	return ActionCard{
		AgentID: s.AgentID,
		Insight: "No dimension below target",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}

// GenerateAll returns one card per agent in the insight.
func GenerateAll(ins aggregator.Insight) []ActionCard {
	cards := make([]ActionCard, 0, len(ins.Agents))
	for _, s := range ins.Agents {
		cards = append(cards, Generate(s))
	}
	return cards
}
