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

// ReviewRequestRepository persists post-approval change requests and
// resolves them atomically against the target document.
type ReviewRequestRepository struct {
	db   *sqlx.DB
	docs *DocumentRepository
}

// NewReviewRequestRepository constructs the repository.
func NewReviewRequestRepository(db *sqlx.DB) *ReviewRequestRepository {
	return &ReviewRequestRepository{db: db, docs: NewDocumentRepository(db)}
}

const reviewRequestColumns = `id, document_id, type, reason, proposed_file_name, proposed_file_path, status,
       requested_by, requested_by_name, requested_at, reviewed_by, reviewed_by_name, reviewed_at, review_note`

// Create inserts a new review request row in PENDING state.
func (r *ReviewRequestRepository) Create(ctx context.Context, request *models.ReviewRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ReviewRequestStatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO review_requests
	(id, document_id, type, reason, proposed_file_name, proposed_file_path, status, requested_by, requested_by_name, requested_at, reviewed_by, reviewed_by_name, reviewed_at, review_note)
	VALUES (:id, :document_id, :type, :reason, :proposed_file_name, :proposed_file_path, :status, :requested_by, :requested_by_name, :requested_at, :reviewed_by, :reviewed_by_name, :reviewed_at, :review_note)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create review request: %w", err)
	}
	return nil
}

// GetByID fetches a review request by identifier.
func (r *ReviewRequestRepository) GetByID(ctx context.Context, id string) (*models.ReviewRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM review_requests WHERE id = $1`, reviewRequestColumns)
	var request models.ReviewRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns review requests matching the filter (latest first).
func (r *ReviewRequestRepository) List(ctx context.Context, filter models.ReviewRequestFilter) ([]models.ReviewRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM review_requests`, reviewRequestColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		conditions = append(conditions, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ReviewRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list review requests: %w", err)
	}
	return requests, nil
}

// ResolveReviewRequestParams groups the reviewer stamp plus the document
// side effect an approval carries.
type ResolveReviewRequestParams struct {
	ID             string
	Status         models.ReviewRequestStatus
	ReviewedBy     string
	ReviewedByName string
	ReviewedAt     time.Time
	Note           *string

	// Exactly one of the following is set when Status is APPROVED.
	// Patch mutates the target document; DeleteDocumentID removes it.
	DocumentID       string
	Patch            *models.DocumentPatch
	DeleteDocumentID string
}

// Resolve finalises a request and applies its document side effect in a
// single transaction. The status predicate rides on the UPDATE so two
// concurrent resolutions of the same request yield exactly one success;
// the loser observes sql.ErrNoRows and nothing else happens.
func (r *ReviewRequestRepository) Resolve(ctx context.Context, params ResolveReviewRequestParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve transaction: %w", err)
	}

	if err := r.resolveTx(ctx, tx, params); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolve transaction: %w", err)
	}
	return nil
}

func (r *ReviewRequestRepository) resolveTx(ctx context.Context, tx *sqlx.Tx, params ResolveReviewRequestParams) error {
	query := fmt.Sprintf(`UPDATE review_requests SET status = :status, reviewed_by = :reviewed_by, reviewed_by_name = :reviewed_by_name, reviewed_at = :reviewed_at, review_note = :review_note
	WHERE id = :id AND status = '%s'`, models.ReviewRequestStatusPending)
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"reviewed_by":      params.ReviewedBy,
		"reviewed_by_name": params.ReviewedByName,
		"reviewed_at":      params.ReviewedAt,
		"review_note":      params.Note,
	})
	if err != nil {
		return fmt.Errorf("update review request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check review request rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if params.Status != models.ReviewRequestStatusApproved {
		return nil
	}
	if params.DeleteDocumentID != "" {
		return r.docs.DeleteTx(ctx, tx, params.DeleteDocumentID)
	}
	if params.Patch != nil {
		return r.docs.ApplyPatchTx(ctx, tx, params.DocumentID, *params.Patch)
	}
	return nil
}
