package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"casebook/internal/document/models"
	"casebook/pkg/platform/sentinel"
	txcontext "casebook/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code raised when a concurrent
// upload wins the (owner, type, version) slot first.
const uniqueViolation = "23505"

// Postgres persists document versions in PostgreSQL. The documents table
// carries a unique index on (owner_type, owner_id, document_type, version)
// and a partial unique index on the current flag, so the single-current and
// contiguous-version invariants hold at the storage layer even if an
// application bug slips through.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside a single database transaction carried through
// the context.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const documentColumns = `
	id, owner_type, owner_id, document_type, version, status,
	is_current, is_ad_hoc, uploaded_by, verified_by, verified_at,
	rejection_reason, expiry_date, comments, filename, mime_type,
	size_bytes, created_at
`

func (s *Postgres) Insert(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			owner_type, owner_id, document_type, version, status,
			is_current, is_ad_hoc, uploaded_by, verified_by, verified_at,
			rejection_reason, expiry_date, comments, filename, mime_type,
			size_bytes, content, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		string(doc.Owner.Type),
		doc.Owner.ID,
		doc.DocumentType,
		doc.Version,
		string(doc.Status),
		doc.IsCurrent,
		doc.IsAdHoc,
		doc.UploadedBy,
		nullableString(doc.VerifiedBy),
		doc.VerifiedAt,
		nullableString(doc.RejectionReason),
		doc.ExpiryDate,
		nullableString(doc.Comments),
		doc.Filename,
		doc.MimeType,
		doc.SizeBytes,
		doc.Content,
		doc.CreatedAt,
	).Scan(&doc.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert document version %d: %w", doc.Version, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id int64) (*models.Document, error) {
	query := `SELECT ` + documentColumns + `, content FROM documents WHERE id = $1`
	doc, err := scanDocument(s.execer(ctx).QueryRowContext(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document %d: %w", id, err)
	}
	return doc, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner models.Owner) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY document_type, version DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(owner.Type), owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents by owner: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *Postgres) ListVersions(ctx context.Context, owner models.Owner, documentType string) ([]*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_type = $1 AND owner_id = $2 AND document_type = $3
		ORDER BY version DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(owner.Type), owner.ID, documentType)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *Postgres) CurrentVersion(ctx context.Context, owner models.Owner, documentType string) (*models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_type = $1 AND owner_id = $2 AND document_type = $3 AND is_current
	`
	doc, err := scanDocument(s.execer(ctx).QueryRowContext(ctx, query, string(owner.Type), owner.ID, documentType), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find current version: %w", err)
	}
	return doc, nil
}

func (s *Postgres) MaxVersion(ctx context.Context, owner models.Owner, documentType string) (int, error) {
	var max int
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM documents
		WHERE owner_type = $1 AND owner_id = $2 AND document_type = $3
	`
	err := s.execer(ctx).QueryRowContext(ctx, query, string(owner.Type), owner.ID, documentType).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max document version: %w", err)
	}
	return max, nil
}

func (s *Postgres) ClearCurrent(ctx context.Context, owner models.Owner, documentType string) error {
	query := `
		UPDATE documents SET is_current = FALSE
		WHERE owner_type = $1 AND owner_id = $2 AND document_type = $3 AND is_current
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, string(owner.Type), owner.ID, documentType); err != nil {
		return fmt.Errorf("clear current flags: %w", err)
	}
	return nil
}

func (s *Postgres) SetCurrent(ctx context.Context, id int64) error {
	result, err := s.execer(ctx).ExecContext(ctx, `UPDATE documents SET is_current = TRUE WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("set current flag: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("set current flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set current flag: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, doc *models.Document) error {
	query := `
		UPDATE documents
		SET status = $2, verified_by = $3, verified_at = $4, rejection_reason = $5
		WHERE id = $1
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		doc.ID,
		string(doc.Status),
		nullableString(doc.VerifiedBy),
		doc.VerifiedAt,
		nullableString(doc.RejectionReason),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) StatusSummary(ctx context.Context, owner models.Owner) (models.StatusSummary, error) {
	var summary models.StatusSummary
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'Verified'),
		       COUNT(*) FILTER (WHERE status = 'Submitted'),
		       COUNT(*) FILTER (WHERE status = 'Rejected'),
		       COUNT(*) FILTER (WHERE status = 'Expired')
		FROM documents
		WHERE owner_type = $1 AND owner_id = $2
	`
	err := s.execer(ctx).QueryRowContext(ctx, query, string(owner.Type), owner.ID).Scan(
		&summary.Total, &summary.Verified, &summary.Submitted, &summary.Rejected, &summary.Expired,
	)
	if err != nil {
		return models.StatusSummary{}, fmt.Errorf("document status summary: %w", err)
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, withContent bool) (*models.Document, error) {
	var (
		doc             models.Document
		ownerType       string
		status          string
		verifiedBy      sql.NullString
		verifiedAt      sql.NullTime
		rejectionReason sql.NullString
		expiryDate      sql.NullTime
		comments        sql.NullString
	)
	dest := []any{
		&doc.ID, &ownerType, &doc.Owner.ID, &doc.DocumentType, &doc.Version, &status,
		&doc.IsCurrent, &doc.IsAdHoc, &doc.UploadedBy, &verifiedBy, &verifiedAt,
		&rejectionReason, &expiryDate, &comments, &doc.Filename, &doc.MimeType,
		&doc.SizeBytes, &doc.CreatedAt,
	}
	if withContent {
		dest = append(dest, &doc.Content)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	doc.Owner.Type = models.OwnerType(ownerType)
	doc.Status = models.Status(status)
	doc.VerifiedBy = verifiedBy.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		doc.VerifiedAt = &t
	}
	doc.RejectionReason = rejectionReason.String
	if expiryDate.Valid {
		t := expiryDate.Time
		doc.ExpiryDate = &t
	}
	doc.Comments = comments.String
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*models.Document, error) {
	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
