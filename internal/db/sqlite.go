package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// migrations tracks schema changes by version, applied in order and
// recorded in schema_versions so a restart never re-applies one.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS query_history (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    asked_at      DATETIME NOT NULL,
    pattern_hash  TEXT NOT NULL,
    target        TEXT NOT NULL DEFAULT '',
    reliability   REAL NOT NULL DEFAULT 0.0,
    case_id       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_query_history_pattern ON query_history(pattern_hash, asked_at DESC);
CREATE INDEX IF NOT EXISTS idx_query_history_asked_at ON query_history(asked_at DESC);
`,
	},
}

type sqliteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (or creates) the query-history index at path and
// runs any pending schema migrations. Pass ":memory:" for an ephemeral
// index.
func NewSQLiteIndex(path string) (Index, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	idx := &sqliteIndex{db: sqlDB}
	if err := idx.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (idx *sqliteIndex) migrate() error {
	_, err := idx.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := idx.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := idx.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := idx.db.Exec(`INSERT INTO schema_versions (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (idx *sqliteIndex) Append(ctx context.Context, rec QueryRecord) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO query_history (asked_at, pattern_hash, target, reliability, case_id)
		VALUES (?, ?, ?, ?, ?)
	`, rec.AskedAt, rec.PatternHash, rec.Target, rec.Reliability, rec.CaseID)
	if err != nil {
		return fmt.Errorf("append query record: %w", err)
	}
	return nil
}

func (idx *sqliteIndex) ByPattern(ctx context.Context, patternHash string, limit int) ([]QueryRecord, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT asked_at, pattern_hash, target, reliability, case_id
		FROM query_history WHERE pattern_hash = ?
		ORDER BY asked_at DESC LIMIT ?
	`, patternHash, limit)
	if err != nil {
		return nil, fmt.Errorf("query by pattern: %w", err)
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		if err := rows.Scan(&rec.AskedAt, &rec.PatternHash, &rec.Target, &rec.Reliability, &rec.CaseID); err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (idx *sqliteIndex) AverageReliability(ctx context.Context, patternHash string, lastN int) (float64, error) {
	records, err := idx.ByPattern(ctx, patternHash, lastN)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range records {
		sum += r.Reliability
	}
	return sum / float64(len(records)), nil
}

func (idx *sqliteIndex) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_history WHERE asked_at >= ?`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count since: %w", err)
	}
	return count, nil
}

func (idx *sqliteIndex) Close() error {
	return idx.db.Close()
}

// RebuildFromRecords appends every record of a caller-supplied set to idx,
// stopping at the first error. Rows already in idx are not removed.
func RebuildFromRecords(ctx context.Context, idx Index, records []QueryRecord) error {
	for _, rec := range records {
		if err := idx.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
