package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cxqa-go/internal/types"
)

// Fixed-width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_ext_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conv_ext_id TEXT NOT NULL UNIQUE,
		agent_id INTEGER NOT NULL REFERENCES agents(id),
		started_at_utc TEXT,
		channel TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL,
		redacted_text TEXT NOT NULL,
		created_at_utc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		model_version TEXT NOT NULL,
		professionalism REAL NOT NULL,
		friendliness REAL NOT NULL,
		resolution_effectiveness REAL NOT NULL,
		explanation TEXT NOT NULL DEFAULT '{}',
		calibrated TEXT,
		degraded INTEGER NOT NULL DEFAULT 0,
		fallback_from TEXT NOT NULL DEFAULT '',
		created_at_utc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS human_labels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		professionalism INTEGER NOT NULL,
		friendliness INTEGER NOT NULL,
		resolution_effectiveness INTEGER NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		labeled_by TEXT NOT NULL DEFAULT '',
		labeled_at_utc TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_conversation_version ON scores(conversation_id, model_version)`,
	`CREATE INDEX IF NOT EXISTS idx_human_labels_conversation ON human_labels(conversation_id)`,
}

// SQLite is the single-file Store used for local runs and tests.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps concurrent batch workers from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func (s *SQLite) UpsertAgent(ctx context.Context, extID, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO agents (agent_ext_id, name) VALUES (?, ?)
		 ON CONFLICT (agent_ext_id) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), agents.name)
		 RETURNING id`,
		extID, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert agent %s: %w", extID, err)
	}
	return id, nil
}

func (s *SQLite) SaveConversation(ctx context.Context, c Conversation) (int64, error) {
	var agentID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM agents WHERE agent_ext_id = ?`, c.AgentExtID).Scan(&agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("agent %s: %w", c.AgentExtID, ErrNotFound)
		}
		return 0, fmt.Errorf("look up agent %s: %w", c.AgentExtID, err)
	}

	var startedAt any
	if c.StartedAt != nil {
		startedAt = c.StartedAt.UTC().Format(sqliteTimeLayout)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO conversations (conv_ext_id, agent_id, started_at_utc, channel, language, raw_text, redacted_text, created_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (conv_ext_id) DO UPDATE SET
			agent_id = excluded.agent_id, started_at_utc = excluded.started_at_utc, channel = excluded.channel,
			language = excluded.language, raw_text = excluded.raw_text, redacted_text = excluded.redacted_text
		 RETURNING id`,
		c.ExtID, agentID, startedAt, c.Channel, c.Language, c.RawText, c.RedactedText, nowUTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save conversation %s: %w", c.ExtID, err)
	}
	return id, nil
}

func (s *SQLite) conversationID(ctx context.Context, extID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE conv_ext_id = ?`, extID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("conversation %s: %w", extID, ErrNotFound)
		}
		return 0, fmt.Errorf("look up conversation %s: %w", extID, err)
	}
	return id, nil
}

func (s *SQLite) SaveScore(ctx context.Context, conversationExtID string, rec ScoreRecord) error {
	convID, err := s.conversationID(ctx, conversationExtID)
	if err != nil {
		return err
	}
	explanation, err := encodeJSON(rec.Result.Explanation)
	if err != nil {
		return fmt.Errorf("encode explanation: %w", err)
	}
	var calibrated any
	if rec.Calibrated != nil {
		if calibrated, err = encodeJSON(rec.Calibrated); err != nil {
			return fmt.Errorf("encode calibrated scores: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (conversation_id, model_version, professionalism, friendliness,
			resolution_effectiveness, explanation, calibrated, degraded, fallback_from, created_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		convID, rec.Result.ModelVersion, rec.Result.Scores.Professionalism, rec.Result.Scores.Friendliness,
		rec.Result.Scores.ResolutionEffectiveness, explanation, calibrated, rec.Result.Degraded,
		rec.Result.FallbackFrom, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("save score for %s: %w", conversationExtID, err)
	}
	return nil
}

func (s *SQLite) SaveHumanLabel(ctx context.Context, label types.HumanLabel) error {
	convID, err := s.conversationID(ctx, label.ConversationID)
	if err != nil {
		return err
	}
	labeledAt := label.LabeledAt
	if labeledAt.IsZero() {
		labeledAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO human_labels (conversation_id, professionalism, friendliness, resolution_effectiveness, notes, labeled_by, labeled_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		convID, label.Professionalism, label.Friendliness, label.ResolutionEffectiveness,
		label.Notes, label.LabeledBy, labeledAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("save human label for %s: %w", label.ConversationID, err)
	}
	return nil
}

func (s *SQLite) LabeledPairs(ctx context.Context, modelVersion string) ([]types.LabeledPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.conv_ext_id, s.model_version, s.professionalism, s.friendliness, s.resolution_effectiveness,
			h.professionalism, h.friendliness, h.resolution_effectiveness
		 FROM conversations c
		 JOIN scores s ON s.id = (
			SELECT MAX(s2.id) FROM scores s2
			WHERE s2.conversation_id = c.id AND (? = '' OR s2.model_version = ?))
		 JOIN human_labels h ON h.id = (
			SELECT MAX(h2.id) FROM human_labels h2 WHERE h2.conversation_id = c.id)
		 ORDER BY c.id`,
		modelVersion, modelVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("query labeled pairs: %w", err)
	}
	defer rows.Close()

	var pairs []types.LabeledPair
	for rows.Next() {
		var lp types.LabeledPair
		if err := rows.Scan(&lp.ConversationID, &lp.ModelVersion,
			&lp.Model.Professionalism, &lp.Model.Friendliness, &lp.Model.ResolutionEffectiveness,
			&lp.Human.Professionalism, &lp.Human.Friendliness, &lp.Human.ResolutionEffectiveness,
		); err != nil {
			return nil, fmt.Errorf("scan labeled pair: %w", err)
		}
		pairs = append(pairs, lp)
	}
	return pairs, rows.Err()
}

func (s *SQLite) ScoredConversations(ctx context.Context, f Filter) ([]ScoredConversation, error) {
	var (
		where []string
		args  []any
	)
	latest := `SELECT MAX(id) FROM scores GROUP BY conversation_id`
	if f.ModelVersion != "" {
		latest = `SELECT MAX(id) FROM scores WHERE model_version = ? GROUP BY conversation_id`
		args = append(args, f.ModelVersion)
	}
	where = append(where, "s.id IN ("+latest+")")
	if f.AgentID != "" {
		where = append(where, "a.agent_ext_id = ?")
		args = append(args, f.AgentID)
	}
	if !f.Since.IsZero() {
		where = append(where, "s.created_at_utc >= ?")
		args = append(args, f.Since.UTC().Format(sqliteTimeLayout))
	}
	args = append(args, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.conv_ext_id, a.agent_ext_id, a.name, c.channel, c.started_at_utc, s.model_version,
			s.professionalism, s.friendliness, s.resolution_effectiveness, s.calibrated, s.degraded, s.created_at_utc
		FROM scores s
		JOIN conversations c ON c.id = s.conversation_id
		JOIN agents a ON a.id = c.agent_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY s.id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query scored conversations: %w", err)
	}
	defer rows.Close()

	var out []ScoredConversation
	for rows.Next() {
		var (
			sc         ScoredConversation
			startedAt  sql.NullString
			calibrated sql.NullString
			scoredAt   string
		)
		if err := rows.Scan(&sc.ConversationID, &sc.AgentID, &sc.AgentName, &sc.Channel, &startedAt, &sc.ModelVersion,
			&sc.Scores.Professionalism, &sc.Scores.Friendliness, &sc.Scores.ResolutionEffectiveness,
			&calibrated, &sc.Degraded, &scoredAt,
		); err != nil {
			return nil, fmt.Errorf("scan scored conversation: %w", err)
		}
		if startedAt.Valid {
			t, err := time.Parse(sqliteTimeLayout, startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse started_at_utc: %w", err)
			}
			sc.StartedAt = &t
		}
		if sc.ScoredAt, err = time.Parse(sqliteTimeLayout, scoredAt); err != nil {
			return nil, fmt.Errorf("parse created_at_utc: %w", err)
		}
		if sc.Calibrated, err = decodeCalibrated([]byte(calibrated.String)); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func nowUTC() string {
	return time.Now().UTC().Format(sqliteTimeLayout)
}
