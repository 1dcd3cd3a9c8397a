package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxqa-go/internal/store"
	"cxqa-go/internal/types"
)

func row(agent, channel string, p, f, r float64) store.ScoredConversation {
	return store.ScoredConversation{
		AgentID: agent,
		Channel: channel,
		Scores:  types.Scores{Professionalism: p, Friendliness: f, ResolutionEffectiveness: r},
	}
}

func TestAggregate(t *testing.T) {
	calibrated := types.Scores{Professionalism: 5, Friendliness: 5, ResolutionEffectiveness: 5}
	withCal := row("b", "chat", 1, 1, 1)
	withCal.Calibrated = &calibrated
	withCal.Degraded = true

	ins := Aggregate([]store.ScoredConversation{
		row("b", "voice", 3, 3, 3),
		row("a", "chat", 2, 4, 3),
		row("a", "", 4, 2, 5),
		withCal,
	})

	require.Len(t, ins.Agents, 2)
	assert.Equal(t, 4, ins.Conversations)

	a := ins.Agents[0]
	assert.Equal(t, "a", a.AgentID)
	assert.Equal(t, 2, a.Conversations)
	assert.Equal(t, 3.0, a.Mean[types.Professionalism])
	assert.Equal(t, 4.0, a.Mean[types.ResolutionEffectiveness])
	assert.Equal(t, map[string]int{"chat": 1, "unknown": 1}, a.ByChannel)

	b := ins.Agents[1]
	assert.Equal(t, 4.0, b.Mean[types.Friendliness])
	assert.Equal(t, 1, b.Degraded)

	assert.Equal(t, 3.5, ins.OverallMean[types.Professionalism])
}

func TestAggregate_Empty(t *testing.T) {
	ins := Aggregate(nil)
	assert.Empty(t, ins.Agents)
	assert.Equal(t, 0, ins.Conversations)
}

func TestWeakest(t *testing.T) {
	s := AgentSummary{Mean: map[types.Dimension]float64{
		types.Professionalism:         3,
		types.Friendliness:            2.5,
		types.ResolutionEffectiveness: 2.5,
	}}
	d, v := s.Weakest()
	assert.Equal(t, types.Friendliness, d)
	assert.Equal(t, 2.5, v)
}
