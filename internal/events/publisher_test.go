package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxqa-go/internal/logger"
	"cxqa-go/internal/metrics"
	"cxqa-go/internal/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, logger.Discard(), metrics.New())
			require.NotNil(t, p)
			assert.False(t, p.Enabled())
			assert.Nil(t, p.writer)
			assert.NoError(t, p.PublishScored(context.Background(), ScoredEvent{ConversationID: "c-1"}))
			assert.NoError(t, p.Close())
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "cxqa.scored"}, logger.Discard(), metrics.New())
	assert.True(t, p.Enabled())
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "cxqa.scored", w.Topic)
	assert.NoError(t, p.Close())
}

func TestPublishScored(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "cxqa.scored", enabled: true, log: logger.Discard().WithComponent("events"), metrics: metrics.New()}

	ev := ScoredEvent{
		ConversationID: "c-42",
		AgentID:        "a-1",
		ModelVersion:   "heuristic-v1",
		Scores:         types.Scores{Professionalism: 3, Friendliness: 4.9, ResolutionEffectiveness: 4.1},
		ScoredAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.PublishScored(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "c-42", string(msg.Key))
	var got ScoredEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, ev, got)
	assert.Equal(t, "eventType", msg.Headers[0].Key)
	assert.Equal(t, eventTypeScored, string(msg.Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishScored_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Publisher{writer: w, topic: "cxqa.scored", enabled: true, log: logger.Discard().WithComponent("events"), metrics: metrics.New()}

	err := p.PublishScored(context.Background(), ScoredEvent{ConversationID: "c-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
