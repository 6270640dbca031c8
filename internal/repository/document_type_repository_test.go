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

func newDocumentTypeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDocumentTypeRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newDocumentTypeRepoMock(t)
	defer cleanup()

	repo := NewDocumentTypeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_types")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	docType := &models.DocumentType{
		Name:           "Lesson Plans",
		ViewPermission: models.ViewPermissionSpecific,
		ViewerIDs:      []string{"u1", "u2"},
		UploaderIDs:    []string{"u1"},
		ViewMode:       models.ViewModeShared,
		Active:         true,
		CreatedBy:      "admin-1",
	}
	require.NoError(t, repo.Create(context.Background(), docType))
	require.NotEmpty(t, docType.ID)
	require.False(t, docType.CreatedAt.IsZero())

	rows := sqlmock.NewRows([]string{"id", "name", "description", "icon", "view_permission", "viewer_ids", "uploader_ids", "view_mode", "display_order", "active", "created_by", "created_at", "updated_at"}).
		AddRow(docType.ID, "Lesson Plans", nil, nil, "SPECIFIC_USERS", "{u1,u2}", "{u1}", "SHARED", 0, true, "admin-1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description")).
		WithArgs(docType.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), docType.ID)
	require.NoError(t, err)
	require.Equal(t, docType.ID, found.ID)
	require.Equal(t, []string{"u1", "u2"}, []string(found.ViewerIDs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentTypeRepositoryListActiveOnly(t *testing.T) {
	db, mock, cleanup := newDocumentTypeRepoMock(t)
	defer cleanup()

	repo := NewDocumentTypeRepository(db)
	rows := sqlmock.NewRows([]string{"id", "name", "description", "icon", "view_permission", "viewer_ids", "uploader_ids", "view_mode", "display_order", "active", "created_by", "created_at", "updated_at"}).
		AddRow("type-1", "Certificates", nil, nil, "EVERYONE", "{}", "{u1}", "PERSONAL", 1, true, "admin-1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description")).
		WithArgs(true).
		WillReturnRows(rows)

	active := true
	list, err := repo.List(context.Background(), models.DocumentTypeFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, models.ViewModePersonal, list[0].ViewMode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentTypeRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newDocumentTypeRepoMock(t)
	defer cleanup()

	repo := NewDocumentTypeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE document_types SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.DocumentType{ID: "missing", Name: "X"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentTypeRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newDocumentTypeRepoMock(t)
	defer cleanup()

	repo := NewDocumentTypeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM document_types")).WithArgs("type-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "type-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM document_types")).WithArgs("type-1").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "type-1"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
