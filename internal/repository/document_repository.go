package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-docs-api/internal/models"
)

// DocumentRepository persists uploaded documents and owns their status
// transitions. Approve and reject are conditional writes on the PENDING
// state so a transition happens exactly once under concurrent reviewers.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, document_type_id, title, file_name, file_path, mime_type, size_bytes, department, school_year,
       status, uploaded_by, uploaded_by_name, uploaded_at, reviewed_by, reviewed_by_name, reviewed_at, rejection_reason`

// Create inserts a new document row in PENDING state.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusPending
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents
	(id, document_type_id, title, file_name, file_path, mime_type, size_bytes, department, school_year, status, uploaded_by, uploaded_by_name, uploaded_at, reviewed_by, reviewed_by_name, reviewed_at, rejection_reason)
	VALUES (:id, :document_type_id, :title, :file_name, :file_path, :mime_type, :size_bytes, :department, :school_year, :status, :uploaded_by, :uploaded_by_name, :uploaded_at, :reviewed_by, :reviewed_by_name, :reviewed_at, :rejection_reason)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document by identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents matching the filter (latest first).
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM documents`, documentColumns))

	conditions := make([]string, 0, 5)
	if len(filter.DocumentTypeIDs) > 0 {
		placeholders := make([]string, len(filter.DocumentTypeIDs))
		for i, id := range filter.DocumentTypeIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("document_type_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)))
	}
	if filter.SchoolYear != "" {
		args = append(args, filter.SchoolYear)
		conditions = append(conditions, fmt.Sprintf("school_year = $%d", len(args)))
	}
	if filter.UploadedBy != "" {
		args = append(args, filter.UploadedBy)
		conditions = append(conditions, fmt.Sprintf("uploaded_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY uploaded_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CountByType reports how many documents still reference a type,
// used to guard document-type deletion.
func (r *DocumentRepository) CountByType(ctx context.Context, documentTypeID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM documents WHERE document_type_id = $1`, documentTypeID); err != nil {
		return 0, fmt.Errorf("count documents by type: %w", err)
	}
	return count, nil
}

// ReviewDocumentParams groups the columns stamped by approve/reject.
type ReviewDocumentParams struct {
	ID              string
	Status          models.DocumentStatus
	ReviewedBy      string
	ReviewedByName  string
	ReviewedAt      time.Time
	RejectionReason *string
}

// UpdateStatus transitions a document out of PENDING exactly once. The
// status predicate is part of the UPDATE so two concurrent reviewers
// cannot both succeed; the loser observes sql.ErrNoRows.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, params ReviewDocumentParams) error {
	query := fmt.Sprintf(`UPDATE documents SET status = :status, reviewed_by = :reviewed_by, reviewed_by_name = :reviewed_by_name, reviewed_at = :reviewed_at, rejection_reason = :rejection_reason
	WHERE id = :id AND status = '%s'`, models.DocumentStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"reviewed_by":      params.ReviewedBy,
		"reviewed_by_name": params.ReviewedByName,
		"reviewed_at":      params.ReviewedAt,
		"rejection_reason": params.RejectionReason,
	})
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApplyPatchTx applies the supplied fields of an approved edit request
// inside the caller's transaction, leaving other columns untouched.
func (r *DocumentRepository) ApplyPatchTx(ctx context.Context, tx *sqlx.Tx, id string, patch models.DocumentPatch) error {
	setParts := make([]string, 0, 5)
	args := map[string]interface{}{"id": id}
	if patch.Title != nil {
		setParts = append(setParts, "title = :title")
		args["title"] = *patch.Title
	}
	if patch.FileName != nil {
		setParts = append(setParts, "file_name = :file_name")
		args["file_name"] = *patch.FileName
	}
	if patch.FilePath != nil {
		setParts = append(setParts, "file_path = :file_path")
		args["file_path"] = *patch.FilePath
	}
	if patch.MimeType != nil {
		setParts = append(setParts, "mime_type = :mime_type")
		args["mime_type"] = *patch.MimeType
	}
	if patch.SizeBytes != nil {
		setParts = append(setParts, "size_bytes = :size_bytes")
		args["size_bytes"] = *patch.SizeBytes
	}
	if len(setParts) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE documents SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := tx.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("patch document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document patch rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTx removes a document row inside the caller's transaction.
func (r *DocumentRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
