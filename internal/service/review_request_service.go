package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/repository"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type reviewRequestStore interface {
	Create(ctx context.Context, request *models.ReviewRequest) error
	GetByID(ctx context.Context, id string) (*models.ReviewRequest, error)
	List(ctx context.Context, filter models.ReviewRequestFilter) ([]models.ReviewRequest, error)
	Resolve(ctx context.Context, params repository.ResolveReviewRequestParams) error
}

type requestDocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

// ReviewRequestService runs the only sanctioned path to mutate or remove
// an approved document: an uploader proposes an edit or delete, a
// reviewer resolves it, and approval applies the change atomically with
// the request's own status flip.
type ReviewRequestService struct {
	repo        reviewRequestStore
	docs        requestDocumentReader
	types       documentTypeResolver
	permissions *PermissionService
	history     historyAppender
	storage     documentFileStorage
	notifier    eventNotifier
	logger      *zap.Logger
}

// NewReviewRequestService constructs the service.
func NewReviewRequestService(repo reviewRequestStore, docs requestDocumentReader, types documentTypeResolver, permissions *PermissionService, history historyAppender, storage documentFileStorage, notifier eventNotifier, logger *zap.Logger) *ReviewRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewRequestService{
		repo:        repo,
		docs:        docs,
		types:       types,
		permissions: permissions,
		history:     history,
		storage:     storage,
		notifier:    notifier,
		logger:      logger,
	}
}

// Create submits an edit or delete proposal against an approved
// document. The actor must be able to view the target. A replacement
// file, when supplied, is stored immediately so the reviewer inspects
// exactly the bytes that approval would publish.
func (s *ReviewRequestService) Create(ctx context.Context, payload dto.CreateReviewRequestPayload, upload *DocumentUpload, actor *models.JWTClaims) (*models.ReviewRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	requestType := models.ReviewRequestType(strings.ToUpper(string(payload.Type)))
	if requestType != models.ReviewRequestTypeEdit && requestType != models.ReviewRequestTypeDelete {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be EDIT or DELETE")
	}
	if strings.TrimSpace(payload.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}
	if requestType == models.ReviewRequestTypeEdit && payload.ProposedFileName == nil && upload == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "an edit request needs a proposed name or a replacement file")
	}
	if requestType == models.ReviewRequestTypeDelete && upload != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a delete request cannot carry a replacement file")
	}

	doc, err := s.docs.GetByID(ctx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	docType, err := s.types.Get(ctx, doc.DocumentTypeID)
	if err != nil {
		return nil, err
	}
	if !s.permissions.CanView(docType, actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not view this document")
	}
	if doc.Status != models.DocumentStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved documents accept change requests")
	}

	request := &models.ReviewRequest{
		DocumentID:       doc.ID,
		Type:             requestType,
		Reason:           strings.TrimSpace(payload.Reason),
		ProposedFileName: payload.ProposedFileName,
		Status:           models.ReviewRequestStatusPending,
		RequestedBy:      actor.UserID,
		RequestedByName:  actor.FullName,
	}
	if upload != nil {
		relPath := filepath.Join("documents", docType.ID, randomPrefix()+"_"+filepath.Base(upload.Filename))
		storedPath, err := s.storage.SaveStream(relPath, upload.Content)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store replacement file")
		}
		request.ProposedFilePath = &storedPath
		if request.ProposedFileName == nil {
			name := filepath.Base(upload.Filename)
			request.ProposedFileName = &name
		}
	}
	if err := s.repo.Create(ctx, request); err != nil {
		if request.ProposedFilePath != nil {
			if delErr := s.storage.Delete(*request.ProposedFilePath); delErr != nil {
				s.logger.Warn("failed to remove orphaned replacement file", zap.String("path", *request.ProposedFilePath), zap.Error(delErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create review request")
	}

	action := models.HistoryActionEditRequested
	if requestType == models.ReviewRequestTypeDelete {
		action = models.HistoryActionDeleteRequested
	}
	s.emitHistory(ctx, &models.HistoryEntry{
		DocumentID:      doc.ID,
		DocumentTitle:   doc.Title,
		Action:          action,
		PerformedBy:     actor.UserID,
		PerformedByName: actor.FullName,
		Details:         mustJSON(map[string]any{"requestId": request.ID, "reason": request.Reason}),
	})
	s.emitNotify(models.NotificationEvent{
		Type:          models.NotifyRequestSubmitted,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		ActorID:       actor.UserID,
		ActorName:     actor.FullName,
		Department:    doc.Department,
	})
	return request, nil
}

// Get returns a review request the actor may inspect.
func (s *ReviewRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ReviewRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review request")
	}
	if !actor.Role.IsReviewer() && request.RequestedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// List returns review requests, scoped to the actor's own submissions
// unless the actor has reviewer authority.
func (s *ReviewRequestService) List(ctx context.Context, query dto.ReviewRequestQuery, actor *models.JWTClaims) ([]models.ReviewRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ReviewRequestFilter{
		Status:     query.Status,
		Type:       query.Type,
		DocumentID: query.DocumentID,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	if !actor.Role.IsReviewer() {
		filter.RequestedBy = actor.UserID
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list review requests")
	}
	return requests, nil
}

// Approve resolves a pending request and applies its document side
// effect in one transaction: an edit patches only the proposed fields,
// a delete removes the document outright. A concurrent resolution of
// the same request fails with an invalid-state error and no side effect.
func (s *ReviewRequestService) Approve(ctx context.Context, id string, payload dto.ResolveReviewRequestPayload, reviewer *models.JWTClaims) (*models.ReviewRequest, error) {
	request, doc, err := s.loadForResolution(ctx, id, reviewer)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := repository.ResolveReviewRequestParams{
		ID:             request.ID,
		Status:         models.ReviewRequestStatusApproved,
		ReviewedBy:     reviewer.UserID,
		ReviewedByName: reviewer.FullName,
		ReviewedAt:     now,
		Note:           optionalNote(payload.Note),
		DocumentID:     doc.ID,
	}

	var details map[string]any
	var action string
	switch request.Type {
	case models.ReviewRequestTypeDelete:
		params.DeleteDocumentID = doc.ID
		action = models.HistoryActionDeleted
		details = map[string]any{
			"requestId": request.ID,
			"fileName":  doc.FileName,
			"filePath":  doc.FilePath,
		}
	case models.ReviewRequestTypeEdit:
		patch := &models.DocumentPatch{
			FileName: request.ProposedFileName,
			FilePath: request.ProposedFilePath,
		}
		params.Patch = patch
		action = models.HistoryActionEditApplied
		details = map[string]any{"requestId": request.ID}
		if request.ProposedFileName != nil {
			details["oldFileName"] = doc.FileName
			details["newFileName"] = *request.ProposedFileName
		}
		if request.ProposedFilePath != nil {
			details["oldFilePath"] = doc.FilePath
			details["newFilePath"] = *request.ProposedFilePath
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}

	if err := s.repo.Resolve(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "review request has already been resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve review request")
	}

	// The stored bytes go away only after the record is gone; a failed
	// cleanup leaves an orphan file, never a dangling reference.
	if request.Type == models.ReviewRequestTypeDelete && s.storage != nil {
		if err := s.storage.Delete(doc.FilePath); err != nil {
			s.logger.Warn("failed to delete stored file", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}
	if request.Type == models.ReviewRequestTypeEdit && request.ProposedFilePath != nil && *request.ProposedFilePath != doc.FilePath && s.storage != nil {
		if err := s.storage.Delete(doc.FilePath); err != nil {
			s.logger.Warn("failed to delete replaced file", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}

	request.Status = models.ReviewRequestStatusApproved
	request.ReviewedBy = &reviewer.UserID
	request.ReviewedByName = &reviewer.FullName
	request.ReviewedAt = &now
	request.ReviewNote = optionalNote(payload.Note)

	s.emitHistory(ctx, &models.HistoryEntry{
		DocumentID:      doc.ID,
		DocumentTitle:   doc.Title,
		Action:          action,
		PerformedBy:     reviewer.UserID,
		PerformedByName: reviewer.FullName,
		Details:         mustJSON(details),
	})
	s.emitNotify(models.NotificationEvent{
		Type:          models.NotifyRequestResolved,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		ActorID:       reviewer.UserID,
		ActorName:     reviewer.FullName,
		Department:    doc.Department,
	})
	return request, nil
}

// Reject resolves a pending request without touching the target document.
func (s *ReviewRequestService) Reject(ctx context.Context, id string, payload dto.ResolveReviewRequestPayload, reviewer *models.JWTClaims) (*models.ReviewRequest, error) {
	if strings.TrimSpace(payload.Note) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection note is required")
	}
	request, doc, err := s.loadForResolution(ctx, id, reviewer)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.repo.Resolve(ctx, repository.ResolveReviewRequestParams{
		ID:             request.ID,
		Status:         models.ReviewRequestStatusRejected,
		ReviewedBy:     reviewer.UserID,
		ReviewedByName: reviewer.FullName,
		ReviewedAt:     now,
		Note:           optionalNote(payload.Note),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "review request has already been resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve review request")
	}

	// A rejected edit never publishes its replacement file.
	if request.Type == models.ReviewRequestTypeEdit && request.ProposedFilePath != nil && s.storage != nil {
		if err := s.storage.Delete(*request.ProposedFilePath); err != nil {
			s.logger.Warn("failed to delete rejected replacement file", zap.String("path", *request.ProposedFilePath), zap.Error(err))
		}
	}

	request.Status = models.ReviewRequestStatusRejected
	request.ReviewedBy = &reviewer.UserID
	request.ReviewedByName = &reviewer.FullName
	request.ReviewedAt = &now
	request.ReviewNote = optionalNote(payload.Note)

	s.emitHistory(ctx, &models.HistoryEntry{
		DocumentID:      doc.ID,
		DocumentTitle:   doc.Title,
		Action:          models.HistoryActionRequestRejected,
		PerformedBy:     reviewer.UserID,
		PerformedByName: reviewer.FullName,
		Details:         mustJSON(map[string]any{"requestId": request.ID, "note": payload.Note}),
	})
	s.emitNotify(models.NotificationEvent{
		Type:          models.NotifyRequestResolved,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		ActorID:       reviewer.UserID,
		ActorName:     reviewer.FullName,
		Department:    doc.Department,
	})
	return request, nil
}

// loadForResolution fetches the request and its target document and runs
// the reviewer checks shared by approve and reject.
func (s *ReviewRequestService) loadForResolution(ctx context.Context, id string, reviewer *models.JWTClaims) (*models.ReviewRequest, *models.Document, error) {
	if reviewer == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !reviewer.Role.IsReviewer() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "reviewer authority required")
	}
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review request")
	}
	if request.Status != models.ReviewRequestStatusPending {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "review request has already been resolved")
	}
	doc, err := s.docs.GetByID(ctx, request.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "target document no longer exists")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if reviewer.Role == models.RoleDepartmentHead && doc.Department != "" && doc.Department != reviewer.Department {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "document belongs to another department")
	}
	return request, doc, nil
}

func (s *ReviewRequestService) emitHistory(ctx context.Context, entry *models.HistoryEntry) {
	if s.history == nil || entry == nil {
		return
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append history entry", zap.String("document_id", entry.DocumentID), zap.Error(err))
	}
}

func (s *ReviewRequestService) emitNotify(event models.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(event)
}

func optionalNote(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
