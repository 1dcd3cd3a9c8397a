// Package store persists agents, conversations, scores and human labels.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cxqa-go/internal/types"
)

var ErrNotFound = errors.New("store: not found")

// Conversation is the stored form of one ingested record.
type Conversation struct {
	ExtID        string
	AgentExtID   string
	StartedAt    *time.Time
	Channel      string
	Language     string
	RawText      string
	RedactedText string
}

// ScoreRecord is one scoring outcome for a conversation.
type ScoreRecord struct {
	Result     types.ScoreResult
	Calibrated *types.Scores
}

// ScoredConversation is the latest score of a conversation joined with its agent.
type ScoredConversation struct {
	ConversationID string        `json:"conversation_id"`
	AgentID        string        `json:"agent_id"`
	AgentName      string        `json:"agent_name,omitempty"`
	Channel        string        `json:"channel,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	ModelVersion   string        `json:"model_version"`
	Scores         types.Scores  `json:"scores"`
	Calibrated     *types.Scores `json:"calibrated,omitempty"`
	Degraded       bool          `json:"degraded,omitempty"`
	ScoredAt       time.Time     `json:"scored_at"`
}

// Filter narrows ScoredConversations. Zero fields match everything.
type Filter struct {
	AgentID      string
	ModelVersion string
	Since        time.Time
	Limit        int
}

const defaultLimit = 1000

type Store interface {
	Migrate(ctx context.Context) error
	// UpsertAgent creates the agent or refreshes its name and returns its row id.
	UpsertAgent(ctx context.Context, extID, name string) (int64, error)
	// SaveConversation upserts by conversation external id. The agent must exist.
	SaveConversation(ctx context.Context, c Conversation) (int64, error)
	SaveScore(ctx context.Context, conversationExtID string, s ScoreRecord) error
	// SaveHumanLabel returns ErrNotFound when the conversation was never ingested.
	SaveHumanLabel(ctx context.Context, label types.HumanLabel) error
	// LabeledPairs joins the latest score of modelVersion (any version when
	// empty) with the latest human label of each labeled conversation.
	LabeledPairs(ctx context.Context, modelVersion string) ([]types.LabeledPair, error)
	ScoredConversations(ctx context.Context, f Filter) ([]ScoredConversation, error)
	Close() error
}

// Options selects and configures a Store implementation.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// Open connects to the configured backend. It does not migrate.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "postgres":
		return OpenPostgres(ctx, opts.DatabaseURL)
	case "sqlite", "":
		return OpenSQLite(ctx, opts.SQLitePath)
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCalibrated(raw []byte) (*types.Scores, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s types.Scores
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode calibrated scores: %w", err)
	}
	return &s, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
