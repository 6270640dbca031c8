package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-docs-api/internal/models"
)

func newDocumentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDocumentRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{
		DocumentTypeID: "type-1",
		Title:          "Q1 Lesson Plan",
		FileName:       "plan.pdf",
		FilePath:       "documents/type-1/abc_plan.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      1024,
		UploadedBy:     "user-1",
		UploadedByName: "Teacher One",
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	require.NotEmpty(t, doc.ID)
	require.Equal(t, models.DocumentStatusPending, doc.Status)
	require.False(t, doc.UploadedAt.IsZero())

	rows := sqlmock.NewRows([]string{"id", "document_type_id", "title", "file_name", "file_path", "mime_type", "size_bytes", "department", "school_year", "status", "uploaded_by", "uploaded_by_name", "uploaded_at", "reviewed_by", "reviewed_by_name", "reviewed_at", "rejection_reason"}).
		AddRow(doc.ID, "type-1", "Q1 Lesson Plan", "plan.pdf", "documents/type-1/abc_plan.pdf", "application/pdf", 1024, "", "", "PENDING", "user-1", "Teacher One", time.Now(), nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, document_type_id, title")).
		WithArgs(doc.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "document_type_id", "title", "file_name", "file_path", "mime_type", "size_bytes", "department", "school_year", "status", "uploaded_by", "uploaded_by_name", "uploaded_at", "reviewed_by", "reviewed_by_name", "reviewed_at", "rejection_reason"}).
		AddRow("doc-1", "type-1", "Q1 Lesson Plan", "plan.pdf", "p", "application/pdf", 1, "Science", "", "APPROVED", "user-1", "Teacher One", time.Now(), nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, document_type_id, title")).
		WithArgs("type-1", "type-2", "APPROVED", "Science").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.DocumentFilter{
		DocumentTypeIDs: []string{"type-1", "type-2"},
		Status:          []models.DocumentStatus{models.DocumentStatusApproved},
		Department:      "Science",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "doc-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdateStatusExactlyOnce(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatus(context.Background(), ReviewDocumentParams{
		ID:             "doc-1",
		Status:         models.DocumentStatusApproved,
		ReviewedBy:     "admin-1",
		ReviewedByName: "Admin",
		ReviewedAt:     now,
	})
	require.NoError(t, err)

	// a second attempt matches no PENDING row
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), ReviewDocumentParams{
		ID:             "doc-1",
		Status:         models.DocumentStatusRejected,
		ReviewedBy:     "admin-2",
		ReviewedByName: "Admin Two",
		ReviewedAt:     now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCountByType(t *testing.T) {
	db, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents")).
		WithArgs("type-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByType(context.Background(), "type-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
