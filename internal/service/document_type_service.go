package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type documentTypeStore interface {
	Create(ctx context.Context, docType *models.DocumentType) error
	GetByID(ctx context.Context, id string) (*models.DocumentType, error)
	List(ctx context.Context, filter models.DocumentTypeFilter) ([]models.DocumentType, error)
	Update(ctx context.Context, docType *models.DocumentType) error
	Delete(ctx context.Context, id string) error
}

type documentCounter interface {
	CountByType(ctx context.Context, documentTypeID string) (int, error)
}

type typeCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const typeCacheKeyPrefix = "document-types"

// DocumentTypeServiceConfig tunes read caching.
type DocumentTypeServiceConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DocumentTypeService owns document-category administration. Every
// create and update is validated against the merged candidate state by
// the permission service before anything is written.
type DocumentTypeService struct {
	repo        documentTypeStore
	docs        documentCounter
	permissions *PermissionService
	cache       typeCache
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         DocumentTypeServiceConfig
}

// NewDocumentTypeService constructs the service.
func NewDocumentTypeService(repo documentTypeStore, docs documentCounter, permissions *PermissionService, cache typeCache, metrics *MetricsService, logger *zap.Logger, cfg DocumentTypeServiceConfig) *DocumentTypeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &DocumentTypeService{repo: repo, docs: docs, permissions: permissions, cache: cache, metrics: metrics, logger: logger, cfg: cfg}
}

// Create validates and persists a new document type.
func (s *DocumentTypeService) Create(ctx context.Context, req dto.CreateDocumentTypeRequest, actorID string) (*models.DocumentType, error) {
	docType := &models.DocumentType{
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Icon:           req.Icon,
		ViewPermission: models.ViewPermission(strings.ToUpper(string(req.ViewPermission))),
		ViewerIDs:      append([]string(nil), req.ViewerIDs...),
		UploaderIDs:    append([]string(nil), req.UploaderIDs...),
		ViewMode:       models.ViewMode(strings.ToUpper(string(req.ViewMode))),
		DisplayOrder:   req.DisplayOrder,
		Active:         true,
		CreatedBy:      actorID,
	}
	if docType.ViewMode == "" {
		docType.ViewMode = models.ViewModeShared
	}
	if err := s.permissions.Validate(docType); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, docType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document type")
	}
	s.invalidateCache(ctx)
	return docType, nil
}

// Get returns a document type by id.
func (s *DocumentTypeService) Get(ctx context.Context, id string) (*models.DocumentType, error) {
	docType, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document type")
	}
	return docType, nil
}

// List returns document types in display order, optionally from cache.
func (s *DocumentTypeService) List(ctx context.Context, filter models.DocumentTypeFilter) ([]models.DocumentType, error) {
	cacheKey := s.cacheKey(filter)
	if s.cacheEnabled() {
		var cached []models.DocumentType
		start := time.Now()
		err := s.cache.Get(ctx, cacheKey, &cached)
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		if err == nil {
			return cached, nil
		}
	}
	start := time.Now()
	docTypes, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("document_types_list", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list document types")
	}
	if s.cacheEnabled() {
		start = time.Now()
		err := s.cache.Set(ctx, cacheKey, docTypes, s.cfg.CacheTTL)
		s.metrics.ObserveCacheWrite(time.Since(start))
		if err != nil {
			s.logger.Warn("failed to cache document types", zap.Error(err))
		}
	}
	return docTypes, nil
}

// VisibleTo returns the active types the user may view.
func (s *DocumentTypeService) VisibleTo(ctx context.Context, userID string) ([]models.DocumentType, error) {
	active := true
	docTypes, err := s.List(ctx, models.DocumentTypeFilter{Active: &active})
	if err != nil {
		return nil, err
	}
	visible := make([]models.DocumentType, 0, len(docTypes))
	for i := range docTypes {
		if s.permissions.CanView(&docTypes[i], userID) {
			visible = append(visible, docTypes[i])
		}
	}
	return visible, nil
}

// Update merges the patch over the stored record, re-validates the
// candidate, and only then commits. Removing a viewer cascades the same
// user out of the uploader set instead of failing the edit.
func (s *DocumentTypeService) Update(ctx context.Context, id string, req dto.UpdateDocumentTypeRequest) (*models.DocumentType, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := s.permissions.Merge(existing, req.Patch())
	if err := s.permissions.Validate(merged); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, merged); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document type")
	}
	s.invalidateCache(ctx)
	return merged, nil
}

// Delete removes a type that no live document references. A referenced
// type cannot be deleted; callers deactivate it instead.
func (s *DocumentTypeService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.docs.CountByType(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count referencing documents")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%d documents still reference this type", count))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document type")
	}
	s.invalidateCache(ctx)
	return nil
}

// AvailableUploaders resolves the uploader candidates for a type.
func (s *DocumentTypeService) AvailableUploaders(ctx context.Context, id string) ([]models.User, error) {
	docType, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.permissions.AvailableUploaders(ctx, docType)
}

func (s *DocumentTypeService) cacheEnabled() bool {
	return s.cfg.CacheEnabled && s.cache != nil
}

func (s *DocumentTypeService) cacheKey(filter models.DocumentTypeFilter) string {
	active := "any"
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	mode := string(filter.ViewMode)
	if mode == "" {
		mode = "any"
	}
	return fmt.Sprintf("%s:%s:%s", typeCacheKeyPrefix, active, mode)
}

func (s *DocumentTypeService) invalidateCache(ctx context.Context) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, typeCacheKeyPrefix+":*"); err != nil {
		s.logger.Warn("failed to invalidate document type cache", zap.Error(err))
	}
}
