// Package history persists one record per orchestrated generation request.
package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/iconforge/iconforge/pkg/models"
)

// DefaultRecentLimit is used by Recent when limit <= 0.
const DefaultRecentLimit = 20

// Store records and queries generation history.
type Store struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS generations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	topic TEXT NOT NULL,
	colors TEXT NOT NULL DEFAULT '',
	style_id INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	cache_hit INTEGER NOT NULL DEFAULT 0,
	icon_count INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_generations_time ON generations(created_at);
CREATE INDEX IF NOT EXISTS idx_generations_request ON generations(request_id);
`

// New opens the history database at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if tableExists(db, "generations") && !columnExists(db, "generations", "request_id") {
		if err := migrateRequestIDKey(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate history db: %w", err)
		}
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// migrateRequestIDKey moves rows keyed by request id into the row-id schema.
func migrateRequestIDKey(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`ALTER TABLE generations RENAME TO generations_old`,
		`DROP INDEX IF EXISTS idx_generations_time`,
		createTable,
		`INSERT INTO generations
		 (request_id, topic, colors, style_id, outcome, failure_kind, cache_hit, icon_count, latency_ms, error, created_at)
		 SELECT id, topic, colors, style_id, outcome, failure_kind, cache_hit, icon_count, latency_ms, error, created_at
		 FROM generations_old ORDER BY created_at`,
		`DROP TABLE generations_old`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Record appends rec as a new row. rec.ID is ignored; records sharing a
// request id are kept side by side.
func (s *Store) Record(ctx context.Context, rec models.GenerationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations
		 (request_id, topic, colors, style_id, outcome, failure_kind, cache_hit, icon_count, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Topic, rec.Colors, rec.StyleID, string(rec.Outcome), rec.FailureKind,
		rec.CacheHit, rec.IconCount, rec.LatencyMs, rec.Error, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.GenerationRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, topic, colors, style_id, outcome, failure_kind, cache_hit, icon_count, latency_ms, error, created_at
		 FROM generations ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var r models.GenerationRecord
		var outcome string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Topic, &r.Colors, &r.StyleID, &outcome, &r.FailureKind,
			&r.CacheHit, &r.IconCount, &r.LatencyMs, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Outcome = models.Outcome(outcome)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns request counts grouped by style and outcome.
func (s *Store) Summary(ctx context.Context) ([]models.GenerationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT style_id, outcome, COUNT(*), COALESCE(SUM(cache_hit), 0), AVG(latency_ms)
		 FROM generations GROUP BY style_id, outcome ORDER BY style_id, outcome`,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.GenerationSummary
	for rows.Next() {
		var sm models.GenerationSummary
		var outcome string
		if err := rows.Scan(&sm.StyleID, &outcome, &sm.RequestCount, &sm.CacheHits, &sm.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sm.Outcome = models.Outcome(outcome)
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
