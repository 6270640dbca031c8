package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/repository"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	UpdateStatus(ctx context.Context, params repository.ReviewDocumentParams) error
}

type documentTypeResolver interface {
	Get(ctx context.Context, id string) (*models.DocumentType, error)
	VisibleTo(ctx context.Context, userID string) ([]models.DocumentType, error)
}

type historyAppender interface {
	Append(ctx context.Context, entry *models.HistoryEntry) error
}

type documentFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type downloadSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// DocumentDownload bundles an open file handle with streaming metadata.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

type eventNotifier interface {
	Notify(event models.NotificationEvent)
}

// DocumentUpload carries upload metadata and the byte stream.
type DocumentUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// DocumentServiceConfig holds upload validation parameters.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// DocumentService owns the document state machine: documents are created
// PENDING by an eligible uploader and transition exactly once to
// APPROVED or REJECTED. Approved documents change only through the
// review-request workflow.
type DocumentService struct {
	repo        documentStore
	types       documentTypeResolver
	permissions *PermissionService
	history     historyAppender
	storage     documentFileStorage
	signer      downloadSigner
	notifier    eventNotifier
	logger      *zap.Logger
	cfg         DocumentServiceConfig
	mimeSet     map[string]struct{}
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, types documentTypeResolver, permissions *PermissionService, history historyAppender, storage documentFileStorage, signer downloadSigner, notifier eventNotifier, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &DocumentService{
		repo:        repo,
		types:       types,
		permissions: permissions,
		history:     history,
		storage:     storage,
		signer:      signer,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		mimeSet:     mimeSet,
	}
}

// Upload stores the file and creates a PENDING document. The actor must
// be an explicit uploader of the target type.
func (s *DocumentService) Upload(ctx context.Context, req dto.CreateDocumentRequest, upload DocumentUpload, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if upload.Content == nil || upload.Filename == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
	}
	if len(s.mimeSet) > 0 {
		if _, ok := s.mimeSet[strings.ToLower(upload.MimeType)]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type")
		}
	}

	docType, err := s.types.Get(ctx, req.DocumentTypeID)
	if err != nil {
		return nil, err
	}
	if !docType.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document type is inactive")
	}
	if !s.permissions.CanUpload(docType, actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not an uploader for this document type")
	}

	relPath := filepath.Join("documents", docType.ID, randomPrefix()+"_"+filepath.Base(upload.Filename))
	storedPath, err := s.storage.SaveStream(relPath, upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	doc := &models.Document{
		DocumentTypeID: docType.ID,
		Title:          strings.TrimSpace(req.Title),
		FileName:       filepath.Base(upload.Filename),
		FilePath:       storedPath,
		MimeType:       upload.MimeType,
		SizeBytes:      upload.Size,
		Department:     strings.TrimSpace(req.Department),
		SchoolYear:     strings.TrimSpace(req.SchoolYear),
		Status:         models.DocumentStatusPending,
		UploadedBy:     actor.UserID,
		UploadedByName: actor.FullName,
	}
	if doc.Department == "" {
		doc.Department = actor.Department
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(storedPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", storedPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.emitHistory(ctx, &models.HistoryEntry{
		DocumentID:      doc.ID,
		DocumentTitle:   doc.Title,
		Action:          models.HistoryActionCreated,
		PerformedBy:     actor.UserID,
		PerformedByName: actor.FullName,
		Details:         mustJSON(map[string]any{"fileName": doc.FileName, "documentTypeId": doc.DocumentTypeID}),
	})
	s.emitNotify(models.NotificationEvent{
		Type:          models.NotifyDocumentUploaded,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		ActorID:       actor.UserID,
		ActorName:     actor.FullName,
		Department:    doc.Department,
	})
	return doc, nil
}

// Get returns a document the actor is allowed to view.
func (s *DocumentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if err := s.authorizeView(ctx, doc, actor); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the documents visible to the actor. Non-reviewers see
// approved documents of their visible types plus their own uploads in
// any state; reviewers additionally see the full pending queue.
func (s *DocumentService) List(ctx context.Context, query dto.DocumentQuery, actor *models.JWTClaims) ([]models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	visible, err := s.types.VisibleTo(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	visibleIDs := make(map[string]models.DocumentType, len(visible))
	typeIDs := make([]string, 0, len(visible))
	for _, t := range visible {
		visibleIDs[t.ID] = t
		typeIDs = append(typeIDs, t.ID)
	}
	if len(typeIDs) == 0 {
		return []models.Document{}, nil
	}

	filter := models.DocumentFilter{
		Status:     query.Status,
		Department: query.Department,
		SchoolYear: query.SchoolYear,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	if query.DocumentTypeID != "" {
		if _, ok := visibleIDs[query.DocumentTypeID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not view this document type")
		}
		filter.DocumentTypeIDs = []string{query.DocumentTypeID}
	} else {
		filter.DocumentTypeIDs = typeIDs
	}
	if query.Mine {
		filter.UploadedBy = actor.UserID
	}

	docs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	result := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		docType, ok := visibleIDs[doc.DocumentTypeID]
		if !ok {
			continue
		}
		if docType.ViewMode == models.ViewModePersonal && doc.UploadedBy != actor.UserID && !actor.Role.IsReviewer() {
			continue
		}
		if doc.Status != models.DocumentStatusApproved && doc.UploadedBy != actor.UserID && !actor.Role.IsReviewer() {
			continue
		}
		result = append(result, doc)
	}
	return result, nil
}

// Approve transitions a PENDING document to APPROVED exactly once.
func (s *DocumentService) Approve(ctx context.Context, id string, reviewer *models.JWTClaims) (*models.Document, error) {
	return s.review(ctx, id, models.DocumentStatusApproved, "", reviewer)
}

// Reject transitions a PENDING document to REJECTED exactly once,
// recording the mandatory reason.
func (s *DocumentService) Reject(ctx context.Context, id, reason string, reviewer *models.JWTClaims) (*models.Document, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	return s.review(ctx, id, models.DocumentStatusRejected, strings.TrimSpace(reason), reviewer)
}

func (s *DocumentService) review(ctx context.Context, id string, status models.DocumentStatus, reason string, reviewer *models.JWTClaims) (*models.Document, error) {
	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if err := s.authorizeReview(doc, reviewer); err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "document has already been reviewed")
	}

	now := time.Now().UTC()
	params := repository.ReviewDocumentParams{
		ID:             doc.ID,
		Status:         status,
		ReviewedBy:     reviewer.UserID,
		ReviewedByName: reviewer.FullName,
		ReviewedAt:     now,
	}
	if reason != "" {
		params.RejectionReason = &reason
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "document has already been reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document status")
	}

	doc.Status = status
	doc.ReviewedBy = &reviewer.UserID
	doc.ReviewedByName = &reviewer.FullName
	doc.ReviewedAt = &now
	if reason != "" {
		doc.RejectionReason = &reason
	}

	action := models.HistoryActionApproved
	notifyType := models.NotifyDocumentApproved
	details := map[string]any{"oldStatus": models.DocumentStatusPending, "newStatus": status}
	if status == models.DocumentStatusRejected {
		action = models.HistoryActionRejected
		notifyType = models.NotifyDocumentRejected
		details["reason"] = reason
	}
	s.emitHistory(ctx, &models.HistoryEntry{
		DocumentID:      doc.ID,
		DocumentTitle:   doc.Title,
		Action:          action,
		PerformedBy:     reviewer.UserID,
		PerformedByName: reviewer.FullName,
		Details:         mustJSON(details),
	})
	s.emitNotify(models.NotificationEvent{
		Type:          notifyType,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		ActorID:       reviewer.UserID,
		ActorName:     reviewer.FullName,
		Department:    doc.Department,
	})
	return doc, nil
}

// GetDownloadURL returns document metadata with a signed URL for the
// stored file.
func (s *DocumentService) GetDownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DocumentDownloadResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.DocumentDownloadResponse{
		Document:    *doc,
		DownloadURL: fmt.Sprintf("%s/documents/%s/download?token=%s", base, doc.ID, token),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Download validates the signed token and opens the stored file.
func (s *DocumentService) Download(ctx context.Context, id, token string, actor *models.JWTClaims) (*DocumentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	docID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if docID != doc.ID || relPath != doc.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document file")
	}
	return &DocumentDownload{
		File:      file,
		Filename:  doc.FileName,
		MimeType:  doc.MimeType,
		SizeBytes: doc.SizeBytes,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *DocumentService) authorizeView(ctx context.Context, doc *models.Document, actor *models.JWTClaims) error {
	docType, err := s.types.Get(ctx, doc.DocumentTypeID)
	if err != nil {
		return err
	}
	if !s.permissions.CanView(docType, actor.UserID) {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not view this document")
	}
	if docType.ViewMode == models.ViewModePersonal && doc.UploadedBy != actor.UserID && !actor.Role.IsReviewer() {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not view this document")
	}
	return nil
}

// authorizeReview applies the department scoping contract: department
// heads review only their own department; admins and vice principals
// review everything. Role membership itself is checked at the route.
func (s *DocumentService) authorizeReview(doc *models.Document, reviewer *models.JWTClaims) error {
	if !reviewer.Role.IsReviewer() {
		return appErrors.Clone(appErrors.ErrForbidden, "reviewer authority required")
	}
	if reviewer.Role == models.RoleDepartmentHead && doc.Department != "" && doc.Department != reviewer.Department {
		return appErrors.Clone(appErrors.ErrForbidden, "document belongs to another department")
	}
	return nil
}

func (s *DocumentService) emitNotify(event models.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(event)
}

func (s *DocumentService) emitHistory(ctx context.Context, entry *models.HistoryEntry) {
	if s.history == nil || entry == nil {
		return
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append history entry", zap.String("document_id", entry.DocumentID), zap.Error(err))
	}
}

func mustJSON(value map[string]any) []byte {
	payload, err := json.Marshal(value)
	if err != nil {
		return []byte("{}")
	}
	return payload
}

func randomPrefix() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
