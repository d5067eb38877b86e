package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/okulov/polyqa/internal/core/domain"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 10
	connMaxLifetime = 30 * time.Minute

	// Advisory lock key serializing bootstrap DDL across api/worker
	// startups.
	schemaLockKey = int64(2026083001)
)

// docColumns is the column list shared by INSERT and SELECT so the two
// cannot drift apart.
const docColumns = "id, filename, mime_type, storage_path, language, chunk_count, status, error_message, created_at, updated_at"

// DocumentRepository persists document metadata in postgres. Not-found
// conditions surface as domain.ErrNotFound so callers can map them
// without knowing about database/sql.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	language TEXT,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_language ON documents(language);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	query := "INSERT INTO documents (" + docColumns + ") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)"
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.Language, doc.ChunkCount,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := "SELECT " + docColumns + " FROM documents WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id)

	var (
		doc    domain.Document
		status string
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Language, &doc.ChunkCount,
		&status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", id))
	case err != nil:
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRowAffected(res, "update document status", id)
}

func (r *DocumentRepository) SaveLanguage(ctx context.Context, id, language string, chunkCount int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET language = $2, chunk_count = $3, updated_at = $4
WHERE id = $1
`, id, language, chunkCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document language: %w", err)
	}
	return requireRowAffected(res, "save document language", id)
}

func requireRowAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("document %s", id))
	}
	return nil
}
