// Package events publishes scored-conversation events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"cxqa-go/internal/logger"
	"cxqa-go/internal/metrics"
	"cxqa-go/internal/types"
)

const eventTypeScored = "conversation.scored"

// ScoredEvent is emitted once per stored score.
type ScoredEvent struct {
	ConversationID string        `json:"conversation_id"`
	AgentID        string        `json:"agent_id"`
	ModelVersion   string        `json:"model_version"`
	Scores         types.Scores  `json:"scores"`
	Calibrated     *types.Scores `json:"calibrated,omitempty"`
	Degraded       bool          `json:"degraded,omitempty"`
	FallbackFrom   string        `json:"fallback_from,omitempty"`
	ScoredAt       time.Time     `json:"scored_at"`
}

type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events keyed by conversation id. When Kafka is disabled
// it only logs, so ingestion never depends on a broker being present.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	log     *logrus.Entry
	metrics *metrics.Metrics
}

func New(cfg *Config, log *logger.Logger, m *metrics.Metrics) *Publisher {
	if log == nil {
		log = logger.New()
	}
	if m == nil {
		m = metrics.Default
	}
	entry := log.WithComponent("events")

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		entry.Info("kafka disabled, using log-only mode")
		p := &Publisher{log: entry, metrics: m}
		if cfg != nil {
			p.topic = cfg.Topic
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	entry.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka publisher initialized")

	return &Publisher{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		log:     entry,
		metrics: m,
	}
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishScored sends ev to the configured topic.
func (p *Publisher) PublishScored(ctx context.Context, ev ScoredEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal scored event: %w", err)
	}

	entry := p.log.WithFields(logrus.Fields{
		"topic":           p.topic,
		"conversation_id": ev.ConversationID,
	})
	entry.WithField("payload", string(payload)).Debug("publishing event")

	if !p.enabled || p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventTypeScored)},
			{Key: "modelVersion", Value: []byte(ev.ModelVersion)},
		},
	}
	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.RecordKafkaPublish(err)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to write to kafka")
		return fmt.Errorf("publish scored event %s: %w", ev.ConversationID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.log.WithField("error", err.Error()).Error("error closing kafka writer")
		return err
	}
	return nil
}
