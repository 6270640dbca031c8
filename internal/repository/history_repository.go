package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-docs-api/internal/models"
)

// HistoryRepository is the append-only store for governance audit
// entries. It exposes no update or delete operation.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, document_id, document_title, action, performed_by, performed_by_name, performed_at, details`

// Append inserts one audit entry.
func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now().UTC()
	}
	if len(entry.Details) == 0 {
		entry.Details = []byte("{}")
	}
	const query = `INSERT INTO document_history
	(id, document_id, document_title, action, performed_by, performed_by_name, performed_at, details)
	VALUES (:id, :document_id, :document_title, :action, :performed_by, :performed_by_name, :performed_at, :details)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// List returns audit entries matching the filter, most recent first,
// with the limit applied after sorting.
func (r *HistoryRepository) List(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM document_history`, historyColumns))

	conditions := make([]string, 0, 3)
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if filter.PerformedBy != "" {
		args = append(args, filter.PerformedBy)
		conditions = append(conditions, fmt.Sprintf("performed_by = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY performed_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var entries []models.HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	return entries, nil
}
