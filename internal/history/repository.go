// Package history persists completed parses in PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ppiankov/coursework/internal/model"
)

// Entry is the summary row of one recorded parse
type Entry struct {
	ParseID          string             `json:"parseId"`
	Course           string             `json:"course"`
	DocumentType     model.DocumentType `json:"documentType"`
	Extractor        string             `json:"extractor"`
	Domain           string             `json:"domain"`
	Assignments      int                `json:"assignments"`
	Confidence       float64            `json:"confidence"`
	AIEnabled        bool               `json:"aiEnabled"`
	ValidationFailed bool               `json:"validationFailed"`
	Summary          string             `json:"summary"`
	ParsedAt         time.Time          `json:"parsedAt"`
	DurationMS       int64              `json:"durationMs"`
}

// Repository stores parse results. It implements pipeline.Recorder.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// OpenDB opens and pings a PostgreSQL database through the pgx driver
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, model.WrapError(model.ErrCollaborator, "db ping", err)
	}
	return db, nil
}

// EnsureSchema creates the history table when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize DDL across concurrent server starts
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025050701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS parse_history (
	parse_id TEXT PRIMARY KEY,
	course TEXT NOT NULL,
	document_type TEXT NOT NULL,
	extractor TEXT NOT NULL,
	domain TEXT NOT NULL,
	assignments INTEGER NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	ai_enabled BOOLEAN NOT NULL,
	validation_failed BOOLEAN NOT NULL,
	summary TEXT NOT NULL,
	result JSONB NOT NULL,
	parsed_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parse_history_course ON parse_history(course, parsed_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record stores res. Recording the same parse twice replaces the row.
func (r *Repository) Record(ctx context.Context, res *model.ParseResult) error {
	if res == nil {
		return model.WrapError(model.ErrInvalidInput, "record parse", errors.New("nil result"))
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	m := res.Metadata

	_, err = r.db.ExecContext(ctx, `
INSERT INTO parse_history (
	parse_id, course, document_type, extractor, domain, assignments, confidence,
	ai_enabled, validation_failed, summary, result, parsed_at, duration_ms
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (parse_id) DO UPDATE SET result = EXCLUDED.result, summary = EXCLUDED.summary
`,
		m.ParseID, m.Course, string(m.DocumentType), m.Extractor, m.Domain, len(res.Assignments), m.Confidence,
		m.AIEnabled, m.ValidationFailed, m.Summary, payload, m.ParsedAt, m.DurationMS,
	)
	if err != nil {
		return model.WrapError(model.ErrCollaborator, "insert parse history", err)
	}
	return nil
}

// ListByCourse returns the newest entries for course, at most limit
func (r *Repository) ListByCourse(ctx context.Context, course string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT parse_id, course, document_type, extractor, domain, assignments, confidence,
	ai_enabled, validation_failed, summary, parsed_at, duration_ms
FROM parse_history
WHERE course = $1
ORDER BY parsed_at DESC
LIMIT $2
`, course, limit)
	if err != nil {
		return nil, model.WrapError(model.ErrCollaborator, "list parse history", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var docType string
		if err := rows.Scan(
			&e.ParseID, &e.Course, &docType, &e.Extractor, &e.Domain, &e.Assignments, &e.Confidence,
			&e.AIEnabled, &e.ValidationFailed, &e.Summary, &e.ParsedAt, &e.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan parse history: %w", err)
		}
		e.DocumentType = model.DocumentType(docType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parse history: %w", err)
	}
	return out, nil
}

// Get returns the full stored result of one parse
func (r *Repository) Get(ctx context.Context, parseID string) (*model.ParseResult, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT result FROM parse_history WHERE parse_id = $1`, parseID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.WrapError(model.ErrNotFound, "get parse history", fmt.Errorf("parse %s", parseID))
		}
		return nil, model.WrapError(model.ErrCollaborator, "get parse history", err)
	}

	var res model.ParseResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode parse history: %w", err)
	}
	return &res, nil
}
