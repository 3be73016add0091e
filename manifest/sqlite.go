package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dhcgn/mbox-to-json/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    document_index INTEGER NOT NULL,
    ordinal INTEGER NOT NULL,
    original_filename TEXT,
    resolved_filename TEXT,
    content_type TEXT,
    size_bytes INTEGER DEFAULT 0,
    is_inline BOOLEAN DEFAULT 0,
    truncated BOOLEAN DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attachments_document ON attachments(run_id, document_index);
CREATE INDEX IF NOT EXISTS idx_attachments_resolved ON attachments(resolved_filename);
`

// SQLite indexes attachment records of a run in a SQLite database.
type SQLite struct {
	db    *sql.DB
	runID string
}

// OpenSQLite opens (or creates) the database at dbPath and registers a run for source.
// An empty runID gets a fresh UUIDv7.
func OpenSQLite(dbPath, source, runID string) (*SQLite, error) {
	if dbPath == "" {
		return nil, ErrPathEmpty
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("run id: %w", err)
		}
		runID = id.String()
	}
	if _, err := sqlDB.Exec(`INSERT INTO runs (id, source) VALUES (?, ?)`, runID, source); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}

	return &SQLite{db: sqlDB, runID: runID}, nil
}

func (s *SQLite) RunID() string {
	return s.runID
}

// Append inserts one batch inside a single transaction.
func (s *SQLite) Append(records []model.AttachmentInfo) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO attachments (run_id, document_index, ordinal, original_filename,
			resolved_filename, content_type, size_bytes, is_inline, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(s.runID, r.SourceDocumentIndex, r.AttachmentOrdinal, r.OriginalFilename,
			r.ResolvedFilename, r.ContentType, r.SizeBytes, r.IsInline, r.Truncated); err != nil {
			return fmt.Errorf("insert attachment %d/%d: %w", r.SourceDocumentIndex, r.AttachmentOrdinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Attachments returns the records of this run ordered by document index and insertion.
func (s *SQLite) Attachments() ([]model.AttachmentInfo, error) {
	rows, err := s.db.Query(`
		SELECT document_index, ordinal, COALESCE(original_filename, ''), COALESCE(resolved_filename, ''),
			COALESCE(content_type, ''), size_bytes, is_inline, truncated
		FROM attachments
		WHERE run_id = ?
		ORDER BY document_index, id
	`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var records []model.AttachmentInfo
	for rows.Next() {
		var r model.AttachmentInfo
		if err := rows.Scan(&r.SourceDocumentIndex, &r.AttachmentOrdinal, &r.OriginalFilename, &r.ResolvedFilename,
			&r.ContentType, &r.SizeBytes, &r.IsInline, &r.Truncated); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
