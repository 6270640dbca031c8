package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/repository"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type docStoreStub struct {
	docs   map[string]*models.Document
	filter models.DocumentFilter
}

func newDocStoreStub(docs ...*models.Document) *docStoreStub {
	stub := &docStoreStub{docs: make(map[string]*models.Document)}
	for _, doc := range docs {
		stub.docs[doc.ID] = doc
	}
	return stub
}

func (s *docStoreStub) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", len(s.docs)+1)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *docStoreStub) GetByID(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := s.docs[id]; ok {
		clone := *doc
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *docStoreStub) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	s.filter = filter
	allowed := make(map[string]struct{}, len(filter.DocumentTypeIDs))
	for _, id := range filter.DocumentTypeIDs {
		allowed[id] = struct{}{}
	}
	result := make([]models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if len(allowed) > 0 {
			if _, ok := allowed[doc.DocumentTypeID]; !ok {
				continue
			}
		}
		if filter.UploadedBy != "" && doc.UploadedBy != filter.UploadedBy {
			continue
		}
		result = append(result, *doc)
	}
	return result, nil
}

func (s *docStoreStub) UpdateStatus(ctx context.Context, params repository.ReviewDocumentParams) error {
	doc, ok := s.docs[params.ID]
	if !ok || doc.Status != models.DocumentStatusPending {
		return sql.ErrNoRows
	}
	doc.Status = params.Status
	doc.ReviewedBy = &params.ReviewedBy
	doc.ReviewedByName = &params.ReviewedByName
	doc.ReviewedAt = &params.ReviewedAt
	doc.RejectionReason = params.RejectionReason
	return nil
}

type typeResolverStub struct {
	types map[string]*models.DocumentType
}

func newTypeResolverStub(types ...*models.DocumentType) *typeResolverStub {
	stub := &typeResolverStub{types: make(map[string]*models.DocumentType)}
	for _, docType := range types {
		stub.types[docType.ID] = docType
	}
	return stub
}

func (s *typeResolverStub) Get(ctx context.Context, id string) (*models.DocumentType, error) {
	if docType, ok := s.types[id]; ok {
		return docType, nil
	}
	return nil, appErrors.ErrNotFound
}

func (s *typeResolverStub) VisibleTo(ctx context.Context, userID string) ([]models.DocumentType, error) {
	result := make([]models.DocumentType, 0, len(s.types))
	for _, docType := range s.types {
		if !docType.Active {
			continue
		}
		if docType.ViewPermission == models.ViewPermissionEveryone || docType.HasViewer(userID) {
			result = append(result, *docType)
		}
	}
	return result, nil
}

type historyStub struct {
	entries []*models.HistoryEntry
}

func (s *historyStub) Append(ctx context.Context, entry *models.HistoryEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

type storageStub struct {
	saved   map[string][]byte
	deleted []string
}

func newStorageStub() *storageStub {
	return &storageStub{saved: make(map[string][]byte)}
}

func (s *storageStub) SaveStream(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.saved[filename] = data
	return filename, nil
}

func (s *storageStub) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (s *storageStub) Delete(filename string) error {
	s.deleted = append(s.deleted, filename)
	delete(s.saved, filename)
	return nil
}

type signerStub struct{}

func (s signerStub) Generate(id, relPath string) (string, time.Time, error) {
	return "token-" + id, time.Now().Add(time.Minute), nil
}

func (s signerStub) Parse(token string, allowExpired bool) (string, string, time.Time, error) {
	return "", "", time.Time{}, fmt.Errorf("invalid token")
}

type notifierStub struct {
	events []models.NotificationEvent
}

func (s *notifierStub) Notify(event models.NotificationEvent) {
	s.events = append(s.events, event)
}

func reviewerClaims(role models.UserRole, department string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:     "reviewer-1",
		Role:       role,
		FullName:   "Reviewer One",
		Department: department,
	}
}

func uploaderClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleTeacher, FullName: "Teacher " + userID}
}

func newDocumentServiceForTest(store *docStoreStub, types *typeResolverStub) (*DocumentService, *historyStub, *storageStub, *notifierStub) {
	history := &historyStub{}
	storage := newStorageStub()
	notifier := &notifierStub{}
	permissions := NewPermissionService(newUserDirectoryStub(), nil)
	svc := NewDocumentService(store, types, permissions, history, storage, signerStub{}, notifier, nil, DocumentServiceConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf"},
		APIPrefix:    "/api/v1",
	})
	return svc, history, storage, notifier
}

func TestDocumentServiceUploadHappyPath(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	store := newDocStoreStub()
	svc, history, storage, notifier := newDocumentServiceForTest(store, newTypeResolverStub(docType))

	doc, err := svc.Upload(context.Background(), dto.CreateDocumentRequest{
		DocumentTypeID: docType.ID,
		Title:          "Q1 Lesson Plan",
	}, DocumentUpload{
		Filename: "plan.pdf",
		Size:     64,
		MimeType: "application/pdf",
		Content:  bytes.NewReader([]byte("%PDF-1.7")),
	}, uploaderClaims("u1"))
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusPending, doc.Status)
	require.Equal(t, "u1", doc.UploadedBy)
	require.Len(t, storage.saved, 1)
	require.Len(t, history.entries, 1)
	require.Equal(t, models.HistoryActionCreated, history.entries[0].Action)
	require.Len(t, notifier.events, 1)
	require.Equal(t, models.NotifyDocumentUploaded, notifier.events[0].Type)
}

func TestDocumentServiceUploadRequiresUploaderMembership(t *testing.T) {
	// u2 can view but was never granted upload
	docType := specificType([]string{"u1", "u2"}, []string{"u1"})
	store := newDocStoreStub()
	svc, _, storage, _ := newDocumentServiceForTest(store, newTypeResolverStub(docType))

	_, err := svc.Upload(context.Background(), dto.CreateDocumentRequest{
		DocumentTypeID: docType.ID,
		Title:          "Sneaky",
	}, DocumentUpload{
		Filename: "plan.pdf",
		Size:     10,
		MimeType: "application/pdf",
		Content:  bytes.NewReader([]byte("x")),
	}, uploaderClaims("u2"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	require.Empty(t, storage.saved)
}

func TestDocumentServiceUploadValidatesFile(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	svc, _, _, _ := newDocumentServiceForTest(newDocStoreStub(), newTypeResolverStub(docType))

	_, err := svc.Upload(context.Background(), dto.CreateDocumentRequest{
		DocumentTypeID: docType.ID,
		Title:          "Too big",
	}, DocumentUpload{
		Filename: "plan.pdf",
		Size:     4096,
		MimeType: "application/pdf",
		Content:  bytes.NewReader([]byte("x")),
	}, uploaderClaims("u1"))
	require.Error(t, err)

	_, err = svc.Upload(context.Background(), dto.CreateDocumentRequest{
		DocumentTypeID: docType.ID,
		Title:          "Wrong type",
	}, DocumentUpload{
		Filename: "virus.exe",
		Size:     10,
		MimeType: "application/octet-stream",
		Content:  bytes.NewReader([]byte("x")),
	}, uploaderClaims("u1"))
	require.Error(t, err)
}

func TestDocumentServiceApproveExactlyOnce(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := &models.Document{
		ID:             "doc-1",
		DocumentTypeID: docType.ID,
		Title:          "Q1 Lesson Plan",
		Status:         models.DocumentStatusPending,
		UploadedBy:     "u1",
	}
	store := newDocStoreStub(doc)
	svc, history, _, notifier := newDocumentServiceForTest(store, newTypeResolverStub(docType))

	reviewed, err := svc.Approve(context.Background(), "doc-1", reviewerClaims(models.RoleVicePrincipal, ""))
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	require.Len(t, history.entries, 1)
	require.Equal(t, models.HistoryActionApproved, history.entries[0].Action)
	require.Equal(t, models.NotifyDocumentApproved, notifier.events[0].Type)

	_, err = svc.Approve(context.Background(), "doc-1", reviewerClaims(models.RoleVicePrincipal, ""))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	require.Len(t, history.entries, 1)
}

func TestDocumentServiceRejectRequiresReason(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := &models.Document{
		ID:             "doc-1",
		DocumentTypeID: docType.ID,
		Status:         models.DocumentStatusPending,
		UploadedBy:     "u1",
	}
	svc, history, _, _ := newDocumentServiceForTest(newDocStoreStub(doc), newTypeResolverStub(docType))

	_, err := svc.Reject(context.Background(), "doc-1", "  ", reviewerClaims(models.RoleAdmin, ""))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	rejected, err := svc.Reject(context.Background(), "doc-1", "missing signature page", reviewerClaims(models.RoleAdmin, ""))
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	require.Equal(t, models.HistoryActionRejected, history.entries[0].Action)
}

func TestDocumentServiceDepartmentHeadScope(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := &models.Document{
		ID:             "doc-1",
		DocumentTypeID: docType.ID,
		Status:         models.DocumentStatusPending,
		Department:     "Science",
		UploadedBy:     "u1",
	}
	svc, _, _, _ := newDocumentServiceForTest(newDocStoreStub(doc), newTypeResolverStub(docType))

	_, err := svc.Approve(context.Background(), "doc-1", reviewerClaims(models.RoleDepartmentHead, "Arts"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Approve(context.Background(), "doc-1", reviewerClaims(models.RoleDepartmentHead, "Science"))
	require.NoError(t, err)
}

func TestDocumentServiceListVisibility(t *testing.T) {
	shared := specificType([]string{"u1", "u2"}, []string{"u1", "u2"})
	personal := &models.DocumentType{
		ID:             "type-personal",
		Name:           "Certificates",
		ViewPermission: models.ViewPermissionSpecific,
		ViewerIDs:      []string{"u1", "u2"},
		UploaderIDs:    []string{"u1", "u2"},
		ViewMode:       models.ViewModePersonal,
		Active:         true,
	}
	store := newDocStoreStub(
		&models.Document{ID: "d1", DocumentTypeID: shared.ID, Status: models.DocumentStatusApproved, UploadedBy: "u1"},
		&models.Document{ID: "d2", DocumentTypeID: shared.ID, Status: models.DocumentStatusPending, UploadedBy: "u1"},
		&models.Document{ID: "d3", DocumentTypeID: personal.ID, Status: models.DocumentStatusApproved, UploadedBy: "u1"},
	)
	svc, _, _, _ := newDocumentServiceForTest(store, newTypeResolverStub(shared, personal))

	// u2 sees the approved shared doc, not u1's pending doc or personal folder
	docs, err := svc.List(context.Background(), dto.DocumentQuery{}, uploaderClaims("u2"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "d1", docs[0].ID)

	// u1 sees everything they uploaded
	docs, err = svc.List(context.Background(), dto.DocumentQuery{}, uploaderClaims("u1"))
	require.NoError(t, err)
	require.Len(t, docs, 3)

	// reviewers see the pending queue and personal folders
	docs, err = svc.List(context.Background(), dto.DocumentQuery{}, &models.JWTClaims{UserID: "vp-1", Role: models.RoleVicePrincipal})
	require.NoError(t, err)
	require.Len(t, docs, 3)
}

func TestDocumentServiceGetDownloadURL(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := &models.Document{
		ID:             "doc-1",
		DocumentTypeID: docType.ID,
		Status:         models.DocumentStatusApproved,
		UploadedBy:     "u1",
		FilePath:       "documents/type-1/abc_plan.pdf",
	}
	svc, _, _, _ := newDocumentServiceForTest(newDocStoreStub(doc), newTypeResolverStub(docType))

	result, err := svc.GetDownloadURL(context.Background(), "doc-1", uploaderClaims("u1"))
	require.NoError(t, err)
	require.Contains(t, result.DownloadURL, "/api/v1/documents/doc-1/download?token=")

	_, err = svc.GetDownloadURL(context.Background(), "doc-1", uploaderClaims("u9"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDocumentServiceUploadCleansOrphanOnCreateFailure(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	store := &failingDocStore{}
	history := &historyStub{}
	storage := newStorageStub()
	permissions := NewPermissionService(newUserDirectoryStub(), nil)
	svc := NewDocumentService(store, newTypeResolverStub(docType), permissions, history, storage, signerStub{}, nil, nil, DocumentServiceConfig{MaxFileSize: 1024})

	_, err := svc.Upload(context.Background(), dto.CreateDocumentRequest{
		DocumentTypeID: docType.ID,
		Title:          "Doomed",
	}, DocumentUpload{
		Filename: "plan.pdf",
		Size:     10,
		MimeType: "application/pdf",
		Content:  bytes.NewReader([]byte("x")),
	}, uploaderClaims("u1"))
	require.Error(t, err)
	require.Len(t, storage.deleted, 1)
	require.Empty(t, history.entries)
}

type failingDocStore struct{}

func (s *failingDocStore) Create(ctx context.Context, doc *models.Document) error {
	return fmt.Errorf("constraint violation")
}

func (s *failingDocStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	return nil, sql.ErrNoRows
}

func (s *failingDocStore) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	return nil, nil
}

func (s *failingDocStore) UpdateStatus(ctx context.Context, params repository.ReviewDocumentParams) error {
	return sql.ErrNoRows
}
