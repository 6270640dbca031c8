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

// DocumentTypeRepository persists document categories and their
// visibility/upload rule sets.
type DocumentTypeRepository struct {
	db *sqlx.DB
}

// NewDocumentTypeRepository constructs the repository.
func NewDocumentTypeRepository(db *sqlx.DB) *DocumentTypeRepository {
	return &DocumentTypeRepository{db: db}
}

const documentTypeColumns = `id, name, description, icon, view_permission, viewer_ids, uploader_ids, view_mode, display_order, active, created_by, created_at, updated_at`

// Create inserts a new document type row.
func (r *DocumentTypeRepository) Create(ctx context.Context, docType *models.DocumentType) error {
	if docType.ID == "" {
		docType.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if docType.CreatedAt.IsZero() {
		docType.CreatedAt = now
	}
	docType.UpdatedAt = now
	const query = `INSERT INTO document_types
	(id, name, description, icon, view_permission, viewer_ids, uploader_ids, view_mode, display_order, active, created_by, created_at, updated_at)
	VALUES (:id, :name, :description, :icon, :view_permission, :viewer_ids, :uploader_ids, :view_mode, :display_order, :active, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, docType); err != nil {
		return fmt.Errorf("create document type: %w", err)
	}
	return nil
}

// GetByID fetches a document type by identifier.
func (r *DocumentTypeRepository) GetByID(ctx context.Context, id string) (*models.DocumentType, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_types WHERE id = $1`, documentTypeColumns)
	var docType models.DocumentType
	if err := r.db.GetContext(ctx, &docType, query, id); err != nil {
		return nil, err
	}
	return &docType, nil
}

// List returns document types matching the filter, in display order.
func (r *DocumentTypeRepository) List(ctx context.Context, filter models.DocumentTypeFilter) ([]models.DocumentType, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 2)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM document_types`, documentTypeColumns))

	conditions := make([]string, 0, 2)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.ViewMode != "" {
		args = append(args, filter.ViewMode)
		conditions = append(conditions, fmt.Sprintf("view_mode = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY display_order ASC, created_at ASC")

	var docTypes []models.DocumentType
	if err := r.db.SelectContext(ctx, &docTypes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	return docTypes, nil
}

// Update overwrites the mutable columns with the merged state produced
// by the service layer after invariant validation.
func (r *DocumentTypeRepository) Update(ctx context.Context, docType *models.DocumentType) error {
	docType.UpdatedAt = time.Now().UTC()
	const query = `UPDATE document_types SET
	name = :name, description = :description, icon = :icon,
	view_permission = :view_permission, viewer_ids = :viewer_ids, uploader_ids = :uploader_ids,
	view_mode = :view_mode, display_order = :display_order, active = :active, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, docType)
	if err != nil {
		return fmt.Errorf("update document type: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document type update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a document type row. The service layer guards against
// deleting a type still referenced by live documents.
func (r *DocumentTypeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM document_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document type: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document type delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
