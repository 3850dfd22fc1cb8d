package trust

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trust_decisions (
	file_id    TEXT PRIMARY KEY,
	decision   TEXT NOT NULL,
	persistent INTEGER NOT NULL DEFAULT 1,
	decided_at DATETIME NOT NULL
);
`

// SQLiteStore persists trust decisions in a local SQLite database.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the decision database and applies the schema.
// The connection runs with synchronous=FULL so an acknowledged write survives
// a crash.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("trust: open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("trust: ping store: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("trust: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT file_id, decision, persistent, decided_at
		FROM trust_decisions
		ORDER BY file_id
	`)
	if err != nil {
		return nil, fmt.Errorf("trust: load decisions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			decision string
		)
		if err := rows.Scan(&rec.FileID, &decision, &rec.Persistent, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("trust: scan decision: %w", err)
		}
		parsed, err := ParseDecision(decision)
		if err != nil {
			return nil, fmt.Errorf("trust: record %s: %w", rec.FileID, err)
		}
		rec.Decision = parsed
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO trust_decisions (file_id, decision, persistent, decided_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			decision   = excluded.decision,
			persistent = excluded.persistent,
			decided_at = excluded.decided_at
	`, rec.FileID, rec.Decision.String(), rec.Persistent, rec.DecidedAt.UTC())
	if err != nil {
		return fmt.Errorf("trust: upsert decision: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, fileID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM trust_decisions WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("trust: delete decision: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
