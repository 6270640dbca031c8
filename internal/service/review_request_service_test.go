package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/repository"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type requestStoreStub struct {
	requests map[string]*models.ReviewRequest
	docs     *docStoreStub
	filter   models.ReviewRequestFilter
}

func newRequestStoreStub(docs *docStoreStub, requests ...*models.ReviewRequest) *requestStoreStub {
	stub := &requestStoreStub{requests: make(map[string]*models.ReviewRequest), docs: docs}
	for _, request := range requests {
		stub.requests[request.ID] = request
	}
	return stub
}

func (s *requestStoreStub) Create(ctx context.Context, request *models.ReviewRequest) error {
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", len(s.requests)+1)
	}
	s.requests[request.ID] = request
	return nil
}

func (s *requestStoreStub) GetByID(ctx context.Context, id string) (*models.ReviewRequest, error) {
	if request, ok := s.requests[id]; ok {
		clone := *request
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestStoreStub) List(ctx context.Context, filter models.ReviewRequestFilter) ([]models.ReviewRequest, error) {
	s.filter = filter
	result := make([]models.ReviewRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if filter.RequestedBy != "" && request.RequestedBy != filter.RequestedBy {
			continue
		}
		result = append(result, *request)
	}
	return result, nil
}

// Resolve mimics the transactional repository: the status flip and the
// document side effect either both happen or neither does.
func (s *requestStoreStub) Resolve(ctx context.Context, params repository.ResolveReviewRequestParams) error {
	request, ok := s.requests[params.ID]
	if !ok || request.Status != models.ReviewRequestStatusPending {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.ReviewedBy = &params.ReviewedBy
	request.ReviewedByName = &params.ReviewedByName
	request.ReviewedAt = &params.ReviewedAt
	request.ReviewNote = params.Note
	if params.DeleteDocumentID != "" {
		delete(s.docs.docs, params.DeleteDocumentID)
	}
	if params.Patch != nil {
		doc := s.docs.docs[params.DocumentID]
		if params.Patch.FileName != nil {
			doc.FileName = *params.Patch.FileName
		}
		if params.Patch.FilePath != nil {
			doc.FilePath = *params.Patch.FilePath
		}
	}
	return nil
}

func approvedDoc(docType *models.DocumentType) *models.Document {
	return &models.Document{
		ID:             "doc-1",
		DocumentTypeID: docType.ID,
		Title:          "Q1 Lesson Plan",
		FileName:       "plan.pdf",
		FilePath:       "documents/type-1/old_plan.pdf",
		Status:         models.DocumentStatusApproved,
		UploadedBy:     "u1",
	}
}

func newRequestServiceForTest(docs *docStoreStub, requests *requestStoreStub, types *typeResolverStub) (*ReviewRequestService, *historyStub, *storageStub) {
	history := &historyStub{}
	storage := newStorageStub()
	permissions := NewPermissionService(newUserDirectoryStub(), nil)
	svc := NewReviewRequestService(requests, docs, types, permissions, history, storage, nil, nil)
	return svc, history, storage
}

func TestReviewRequestCreateValidates(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	docs := newDocStoreStub(approvedDoc(docType))
	svc, _, _ := newRequestServiceForTest(docs, newRequestStoreStub(docs), newTypeResolverStub(docType))
	actor := uploaderClaims("u1")

	_, err := svc.Create(context.Background(), dto.CreateReviewRequestPayload{
		DocumentID: "doc-1",
		Type:       "RENAME",
		Reason:     "x",
	}, nil, actor)
	require.Error(t, err)

	_, err = svc.Create(context.Background(), dto.CreateReviewRequestPayload{
		DocumentID: "doc-1",
		Type:       models.ReviewRequestTypeEdit,
		Reason:     "  ",
	}, nil, actor)
	require.Error(t, err)

	// an edit with neither a proposed name nor a replacement file changes nothing
	_, err = svc.Create(context.Background(), dto.CreateReviewRequestPayload{
		DocumentID: "doc-1",
		Type:       models.ReviewRequestTypeEdit,
		Reason:     "outdated",
	}, nil, actor)
	require.Error(t, err)

	_, err = svc.Create(context.Background(), dto.CreateReviewRequestPayload{
		DocumentID: "doc-1",
		Type:       models.ReviewRequestTypeDelete,
		Reason:     "duplicate",
	}, &DocumentUpload{Filename: "new.pdf", Content: bytes.NewReader([]byte("x"))}, actor)
	require.Error(t, err)
}

func TestReviewRequestCreateRequiresApprovedDocument(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := approvedDoc(docType)
	doc.Status = models.DocumentStatusPending
	docs := newDocStoreStub(doc)
	svc, _, _ := newRequestServiceForTest(docs, newRequestStoreStub(docs), newTypeResolverStub(docType))

	_, err := svc.Create(context.Background(), dto.CreateReviewRequestPayload{
		DocumentID: "doc-1",
		Type:       models.ReviewRequestTypeDelete,
		Reason:     "duplicate",
	}, nil, uploaderClaims("u1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestReviewRequestCreateStoresReplacementFile(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	docs := newDocStoreStub(approvedDoc(docType))
	svc, history, storage := newRequestServiceForTest(docs, newRequestStoreStub(docs), newTypeResolverStub(docType))

	request, err := svc.Create(context.Background(), dto.CreateReviewRequestPayload{
		DocumentID: "doc-1",
		Type:       models.ReviewRequestTypeEdit,
		Reason:     "updated figures",
	}, &DocumentUpload{
		Filename: "plan-v2.pdf",
		Size:     16,
		MimeType: "application/pdf",
		Content:  bytes.NewReader([]byte("%PDF-1.7 v2")),
	}, uploaderClaims("u1"))
	require.NoError(t, err)
	require.Equal(t, models.ReviewRequestStatusPending, request.Status)
	require.NotNil(t, request.ProposedFilePath)
	require.NotNil(t, request.ProposedFileName)
	require.Equal(t, "plan-v2.pdf", *request.ProposedFileName)
	require.Contains(t, storage.saved, *request.ProposedFilePath)
	require.Len(t, history.entries, 1)
	require.Equal(t, models.HistoryActionEditRequested, history.entries[0].Action)
}

func TestReviewRequestApproveEditPatchesDocument(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := approvedDoc(docType)
	docs := newDocStoreStub(doc)
	newName := "plan-v2.pdf"
	newPath := "documents/type-1/abc_plan-v2.pdf"
	requests := newRequestStoreStub(docs, &models.ReviewRequest{
		ID:               "req-1",
		DocumentID:       "doc-1",
		Type:             models.ReviewRequestTypeEdit,
		Reason:           "updated figures",
		ProposedFileName: &newName,
		ProposedFilePath: &newPath,
		Status:           models.ReviewRequestStatusPending,
		RequestedBy:      "u1",
	})
	svc, history, storage := newRequestServiceForTest(docs, requests, newTypeResolverStub(docType))

	resolved, err := svc.Approve(context.Background(), "req-1", dto.ResolveReviewRequestPayload{Note: "looks good"}, reviewerClaims(models.RoleVicePrincipal, ""))
	require.NoError(t, err)
	require.Equal(t, models.ReviewRequestStatusApproved, resolved.Status)

	patched, err := docs.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, newName, patched.FileName)
	require.Equal(t, newPath, patched.FilePath)
	// the replaced bytes are cleaned up after the record flips
	require.Contains(t, storage.deleted, "documents/type-1/old_plan.pdf")
	require.Equal(t, models.HistoryActionEditApplied, history.entries[0].Action)
}

func TestReviewRequestApproveDeleteRemovesDocument(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	docs := newDocStoreStub(approvedDoc(docType))
	requests := newRequestStoreStub(docs, &models.ReviewRequest{
		ID:          "req-1",
		DocumentID:  "doc-1",
		Type:        models.ReviewRequestTypeDelete,
		Reason:      "superseded",
		Status:      models.ReviewRequestStatusPending,
		RequestedBy: "u1",
	})
	svc, history, storage := newRequestServiceForTest(docs, requests, newTypeResolverStub(docType))

	_, err := svc.Approve(context.Background(), "req-1", dto.ResolveReviewRequestPayload{}, reviewerClaims(models.RoleAdmin, ""))
	require.NoError(t, err)

	_, err = docs.GetByID(context.Background(), "doc-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.Contains(t, storage.deleted, "documents/type-1/old_plan.pdf")
	require.Equal(t, models.HistoryActionDeleted, history.entries[0].Action)
}

func TestReviewRequestResolveExactlyOnce(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	docs := newDocStoreStub(approvedDoc(docType))
	requests := newRequestStoreStub(docs, &models.ReviewRequest{
		ID:          "req-1",
		DocumentID:  "doc-1",
		Type:        models.ReviewRequestTypeDelete,
		Reason:      "superseded",
		Status:      models.ReviewRequestStatusPending,
		RequestedBy: "u1",
	})
	svc, _, _ := newRequestServiceForTest(docs, requests, newTypeResolverStub(docType))
	reviewer := reviewerClaims(models.RoleAdmin, "")

	_, err := svc.Approve(context.Background(), "req-1", dto.ResolveReviewRequestPayload{}, reviewer)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), "req-1", dto.ResolveReviewRequestPayload{}, reviewer)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestReviewRequestRejectCleansReplacementFile(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	docs := newDocStoreStub(approvedDoc(docType))
	newPath := "documents/type-1/abc_plan-v2.pdf"
	requests := newRequestStoreStub(docs, &models.ReviewRequest{
		ID:               "req-1",
		DocumentID:       "doc-1",
		Type:             models.ReviewRequestTypeEdit,
		Reason:           "updated figures",
		ProposedFilePath: &newPath,
		Status:           models.ReviewRequestStatusPending,
		RequestedBy:      "u1",
	})
	svc, history, storage := newRequestServiceForTest(docs, requests, newTypeResolverStub(docType))

	_, err := svc.Reject(context.Background(), "req-1", dto.ResolveReviewRequestPayload{}, reviewerClaims(models.RoleAdmin, ""))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	rejected, err := svc.Reject(context.Background(), "req-1", dto.ResolveReviewRequestPayload{Note: "keep the original"}, reviewerClaims(models.RoleAdmin, ""))
	require.NoError(t, err)
	require.Equal(t, models.ReviewRequestStatusRejected, rejected.Status)
	require.Contains(t, storage.deleted, newPath)

	doc, err := docs.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, "plan.pdf", doc.FileName)
	require.Equal(t, models.HistoryActionRequestRejected, history.entries[0].Action)
}

func TestReviewRequestDepartmentHeadScope(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	doc := approvedDoc(docType)
	doc.Department = "Science"
	docs := newDocStoreStub(doc)
	requests := newRequestStoreStub(docs, &models.ReviewRequest{
		ID:          "req-1",
		DocumentID:  "doc-1",
		Type:        models.ReviewRequestTypeDelete,
		Reason:      "superseded",
		Status:      models.ReviewRequestStatusPending,
		RequestedBy: "u1",
	})
	svc, _, _ := newRequestServiceForTest(docs, requests, newTypeResolverStub(docType))

	_, err := svc.Approve(context.Background(), "req-1", dto.ResolveReviewRequestPayload{}, reviewerClaims(models.RoleDepartmentHead, "Arts"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Approve(context.Background(), "req-1", dto.ResolveReviewRequestPayload{}, reviewerClaims(models.RoleDepartmentHead, "Science"))
	require.NoError(t, err)
}

func TestReviewRequestListScoping(t *testing.T) {
	docType := specificType([]string{"u1"}, []string{"u1"})
	docs := newDocStoreStub(approvedDoc(docType))
	requests := newRequestStoreStub(docs,
		&models.ReviewRequest{ID: "req-1", DocumentID: "doc-1", Type: models.ReviewRequestTypeEdit, Status: models.ReviewRequestStatusPending, RequestedBy: "u1"},
		&models.ReviewRequest{ID: "req-2", DocumentID: "doc-1", Type: models.ReviewRequestTypeDelete, Status: models.ReviewRequestStatusPending, RequestedBy: "u2"},
	)
	svc, _, _ := newRequestServiceForTest(docs, requests, newTypeResolverStub(docType))

	mine, err := svc.List(context.Background(), dto.ReviewRequestQuery{}, uploaderClaims("u1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "u1", requests.filter.RequestedBy)

	all, err := svc.List(context.Background(), dto.ReviewRequestQuery{}, reviewerClaims(models.RoleVicePrincipal, ""))
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Empty(t, requests.filter.RequestedBy)
}
