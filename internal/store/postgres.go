package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cxqa-go/internal/types"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id BIGSERIAL PRIMARY KEY,
		agent_ext_id VARCHAR(64) NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		conv_ext_id VARCHAR(64) NOT NULL UNIQUE,
		agent_id BIGINT NOT NULL REFERENCES agents(id),
		started_at TIMESTAMPTZ,
		channel VARCHAR(16) NOT NULL DEFAULT '',
		language VARCHAR(16) NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL,
		redacted_text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		model_version TEXT NOT NULL,
		professionalism DOUBLE PRECISION NOT NULL,
		friendliness DOUBLE PRECISION NOT NULL,
		resolution_effectiveness DOUBLE PRECISION NOT NULL,
		explanation JSONB NOT NULL DEFAULT '{}',
		calibrated JSONB,
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		fallback_from TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS human_labels (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		professionalism INTEGER NOT NULL,
		friendliness INTEGER NOT NULL,
		resolution_effectiveness INTEGER NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		labeled_by TEXT NOT NULL DEFAULT '',
		labeled_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_conversation_version ON scores(conversation_id, model_version)`,
	`CREATE INDEX IF NOT EXISTS idx_human_labels_conversation ON human_labels(conversation_id)`,
}

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres establishes a connection pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) UpsertAgent(ctx context.Context, extID, name string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO agents (agent_ext_id, name) VALUES ($1, $2)
		 ON CONFLICT (agent_ext_id) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), agents.name)
		 RETURNING id`,
		extID, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert agent %s: %w", extID, err)
	}
	return id, nil
}

func (p *Postgres) SaveConversation(ctx context.Context, c Conversation) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO conversations (conv_ext_id, agent_id, started_at, channel, language, raw_text, redacted_text)
		 SELECT $1, a.id, $3, $4, $5, $6, $7 FROM agents a WHERE a.agent_ext_id = $2
		 ON CONFLICT (conv_ext_id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id, started_at = EXCLUDED.started_at, channel = EXCLUDED.channel,
			language = EXCLUDED.language, raw_text = EXCLUDED.raw_text, redacted_text = EXCLUDED.redacted_text
		 RETURNING id`,
		c.ExtID, c.AgentExtID, c.StartedAt, c.Channel, c.Language, c.RawText, c.RedactedText,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("agent %s: %w", c.AgentExtID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to save conversation %s: %w", c.ExtID, err)
	}
	return id, nil
}

func (p *Postgres) conversationID(ctx context.Context, extID string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `SELECT id FROM conversations WHERE conv_ext_id = $1`, extID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("conversation %s: %w", extID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to look up conversation %s: %w", extID, err)
	}
	return id, nil
}

func (p *Postgres) SaveScore(ctx context.Context, conversationExtID string, s ScoreRecord) error {
	convID, err := p.conversationID(ctx, conversationExtID)
	if err != nil {
		return err
	}
	explanation, err := encodeJSON(s.Result.Explanation)
	if err != nil {
		return fmt.Errorf("failed to encode explanation: %w", err)
	}
	var calibrated any
	if s.Calibrated != nil {
		if calibrated, err = encodeJSON(s.Calibrated); err != nil {
			return fmt.Errorf("failed to encode calibrated scores: %w", err)
		}
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO scores (conversation_id, model_version, professionalism, friendliness,
			resolution_effectiveness, explanation, calibrated, degraded, fallback_from)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		convID, s.Result.ModelVersion, s.Result.Scores.Professionalism, s.Result.Scores.Friendliness,
		s.Result.Scores.ResolutionEffectiveness, explanation, calibrated, s.Result.Degraded, s.Result.FallbackFrom,
	)
	if err != nil {
		return fmt.Errorf("failed to save score for %s: %w", conversationExtID, err)
	}
	return nil
}

func (p *Postgres) SaveHumanLabel(ctx context.Context, label types.HumanLabel) error {
	convID, err := p.conversationID(ctx, label.ConversationID)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO human_labels (conversation_id, professionalism, friendliness, resolution_effectiveness, notes, labeled_by, labeled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		convID, label.Professionalism, label.Friendliness, label.ResolutionEffectiveness,
		label.Notes, label.LabeledBy, nullTime(label.LabeledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save human label for %s: %w", label.ConversationID, err)
	}
	return nil
}

func (p *Postgres) LabeledPairs(ctx context.Context, modelVersion string) ([]types.LabeledPair, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT c.conv_ext_id, s.model_version, s.professionalism, s.friendliness, s.resolution_effectiveness,
			h.professionalism, h.friendliness, h.resolution_effectiveness
		 FROM conversations c
		 JOIN scores s ON s.id = (
			SELECT MAX(s2.id) FROM scores s2
			WHERE s2.conversation_id = c.id AND ($1 = '' OR s2.model_version = $1))
		 JOIN human_labels h ON h.id = (
			SELECT MAX(h2.id) FROM human_labels h2 WHERE h2.conversation_id = c.id)
		 ORDER BY c.id`,
		modelVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query labeled pairs: %w", err)
	}
	defer rows.Close()

	var pairs []types.LabeledPair
	for rows.Next() {
		var lp types.LabeledPair
		if err := rows.Scan(&lp.ConversationID, &lp.ModelVersion,
			&lp.Model.Professionalism, &lp.Model.Friendliness, &lp.Model.ResolutionEffectiveness,
			&lp.Human.Professionalism, &lp.Human.Friendliness, &lp.Human.ResolutionEffectiveness,
		); err != nil {
			return nil, fmt.Errorf("failed to scan labeled pair: %w", err)
		}
		pairs = append(pairs, lp)
	}
	return pairs, rows.Err()
}

func (p *Postgres) ScoredConversations(ctx context.Context, f Filter) ([]ScoredConversation, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	latest := `SELECT MAX(id) FROM scores GROUP BY conversation_id`
	if f.ModelVersion != "" {
		latest = `SELECT MAX(id) FROM scores WHERE model_version = ` + arg(f.ModelVersion) + ` GROUP BY conversation_id`
	}
	where = append(where, "s.id IN ("+latest+")")
	if f.AgentID != "" {
		where = append(where, "a.agent_ext_id = "+arg(f.AgentID))
	}
	if !f.Since.IsZero() {
		where = append(where, "s.created_at >= "+arg(f.Since))
	}
	query := `SELECT c.conv_ext_id, a.agent_ext_id, a.name, c.channel, c.started_at, s.model_version,
			s.professionalism, s.friendliness, s.resolution_effectiveness, s.calibrated, s.degraded, s.created_at
		FROM scores s
		JOIN conversations c ON c.id = s.conversation_id
		JOIN agents a ON a.id = c.agent_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.id DESC LIMIT ` + arg(limitOrDefault(f.Limit))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored conversations: %w", err)
	}
	defer rows.Close()

	var out []ScoredConversation
	for rows.Next() {
		var (
			sc         ScoredConversation
			calibrated []byte
		)
		if err := rows.Scan(&sc.ConversationID, &sc.AgentID, &sc.AgentName, &sc.Channel, &sc.StartedAt, &sc.ModelVersion,
			&sc.Scores.Professionalism, &sc.Scores.Friendliness, &sc.Scores.ResolutionEffectiveness,
			&calibrated, &sc.Degraded, &sc.ScoredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scored conversation: %w", err)
		}
		if sc.Calibrated, err = decodeCalibrated(calibrated); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
