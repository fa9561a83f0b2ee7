package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AnTengye/contractgraph/model"
)

// archiveTime has a fixed width so resolved_at sorts as text.
const archiveTime = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotArchived reports that no run was archived for a document id.
var ErrNotArchived = errors.New("document not archived")

// ArchiveEntry is the listing row of an archived run.
type ArchiveEntry struct {
	DocumentID     string           `json:"document_id"`
	SourceDocument string           `json:"source_document"`
	Title          string           `json:"title"`
	DocumentType   string           `json:"document_type"`
	Provenance     model.Provenance `json:"provenance"`
	ResolvedAt     time.Time        `json:"resolved_at"`
}

// Archive keeps every resolved extraction in SQLite. Re-archiving a
// document id replaces the earlier run.
type Archive struct {
	db *sql.DB
}

func OpenArchive(dbPath string) (*Archive, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// writes are serialized by SQLite anyway
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to archive: %w", err)
	}

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return a, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		document_id TEXT PRIMARY KEY,
		source_document TEXT NOT NULL,
		title TEXT,
		document_type TEXT,
		provenance TEXT NOT NULL,
		resolved_at TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_resolved_at ON runs(resolved_at);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Save archives res under its document id.
func (a *Archive) Save(ctx context.Context, res *model.ExtractionResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO runs (document_id, source_document, title, document_type, provenance, resolved_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			source_document = excluded.source_document,
			title = excluded.title,
			document_type = excluded.document_type,
			provenance = excluded.provenance,
			resolved_at = excluded.resolved_at,
			data = excluded.data`,
		res.DocumentID,
		res.SourceDocument,
		res.Metadata.Title,
		res.Metadata.DocumentType,
		string(res.Provenance),
		res.ResolvedAt.UTC().Format(archiveTime),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", res.DocumentID, err)
	}
	return nil
}

// Get loads the archived run of documentID.
func (a *Archive) Get(ctx context.Context, documentID string) (*model.ExtractionResult, error) {
	var data string
	err := a.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE document_id = ?`, documentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}

	var res model.ExtractionResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived run: %w", err)
	}
	return &res, nil
}

// List returns up to limit runs, most recent first. A limit of 0 lists all.
func (a *Archive) List(ctx context.Context, limit int) ([]ArchiveEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT document_id, source_document, title, document_type, provenance, resolved_at
		FROM runs ORDER BY resolved_at DESC, document_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	defer rows.Close()

	entries := []ArchiveEntry{}
	for rows.Next() {
		var (
			e          ArchiveEntry
			title, typ sql.NullString
			provenance string
			resolvedAt string
		)
		if err := rows.Scan(&e.DocumentID, &e.SourceDocument, &title, &typ, &provenance, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		e.Title = title.String
		e.DocumentType = typ.String
		e.Provenance = model.Provenance(provenance)
		e.ResolvedAt, _ = time.Parse(archiveTime, resolvedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the archived run of documentID, if any.
func (a *Archive) Delete(ctx context.Context, documentID string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete archived run: %w", err)
	}
	return nil
}
