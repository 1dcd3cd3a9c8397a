// Package aggregator rolls stored scores up per agent for the summary view.
package aggregator

import (
	"sort"

	"cxqa-go/internal/store"
	"cxqa-go/internal/types"
)

type AgentSummary struct {
	AgentID       string                      `json:"agent_id"`
	AgentName     string                      `json:"agent_name,omitempty"`
	Conversations int                         `json:"conversations"`
	Degraded      int                         `json:"degraded"`
	Mean          map[types.Dimension]float64 `json:"mean"`
	ByChannel     map[string]int              `json:"by_channel"`
}

type Insight struct {
	Agents        []AgentSummary              `json:"agents"`
	Conversations int                         `json:"conversations"`
	OverallMean   map[types.Dimension]float64 `json:"overall_mean"`
}

// Aggregate averages each agent's scores, preferring calibrated values when
// present. Agents are sorted by id.
func Aggregate(rows []store.ScoredConversation) Insight {
	type acc struct {
		summary AgentSummary
		sums    map[types.Dimension]float64
	}
	byAgent := map[string]*acc{}
	overall := map[types.Dimension]float64{}

	for _, r := range rows {
		a, ok := byAgent[r.AgentID]
		if !ok {
			a = &acc{
				summary: AgentSummary{AgentID: r.AgentID, AgentName: r.AgentName, ByChannel: map[string]int{}},
				sums:    map[types.Dimension]float64{},
			}
			byAgent[r.AgentID] = a
		}
		s := r.Scores
		if r.Calibrated != nil {
			s = *r.Calibrated
		}
		for _, d := range types.Dimensions {
			a.sums[d] += s.Get(d)
			overall[d] += s.Get(d)
		}
		a.summary.Conversations++
		if r.Degraded {
			a.summary.Degraded++
		}
		channel := r.Channel
		if channel == "" {
			channel = "unknown"
		}
		a.summary.ByChannel[channel]++
	}

	ins := Insight{Conversations: len(rows), OverallMean: map[types.Dimension]float64{}}
	for _, a := range byAgent {
		a.summary.Mean = make(map[types.Dimension]float64, len(types.Dimensions))
		for _, d := range types.Dimensions {
			a.summary.Mean[d] = a.sums[d] / float64(a.summary.Conversations)
		}
		ins.Agents = append(ins.Agents, a.summary)
	}
	if len(rows) > 0 {
		for _, d := range types.Dimensions {
			ins.OverallMean[d] = overall[d] / float64(len(rows))
		}
	}
	sort.Slice(ins.Agents, func(i, j int) bool { return ins.Agents[i].AgentID < ins.Agents[j].AgentID })
	return ins
}

// Weakest returns the dimension with the lowest mean, first in fixed order on ties.
func (s AgentSummary) Weakest() (types.Dimension, float64) {
	weakest := types.Dimensions[0]
	low := s.Mean[weakest]
	for _, d := range types.Dimensions[1:] {
		if s.Mean[d] < low {
			weakest, low = d, s.Mean[d]
		}
	}
	return weakest, low
}
