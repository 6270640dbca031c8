package service

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type typeStoreStub struct {
	types   map[string]*models.DocumentType
	deleted []string
}

func newTypeStoreStub(types ...*models.DocumentType) *typeStoreStub {
	stub := &typeStoreStub{types: make(map[string]*models.DocumentType)}
	for _, docType := range types {
		stub.types[docType.ID] = docType
	}
	return stub
}

func (s *typeStoreStub) Create(ctx context.Context, docType *models.DocumentType) error {
	if docType.ID == "" {
		docType.ID = "type-generated"
	}
	s.types[docType.ID] = docType
	return nil
}

func (s *typeStoreStub) GetByID(ctx context.Context, id string) (*models.DocumentType, error) {
	if docType, ok := s.types[id]; ok {
		clone := *docType
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *typeStoreStub) List(ctx context.Context, filter models.DocumentTypeFilter) ([]models.DocumentType, error) {
	result := make([]models.DocumentType, 0, len(s.types))
	for _, docType := range s.types {
		if filter.Active != nil && docType.Active != *filter.Active {
			continue
		}
		result = append(result, *docType)
	}
	return result, nil
}

func (s *typeStoreStub) Update(ctx context.Context, docType *models.DocumentType) error {
	if _, ok := s.types[docType.ID]; !ok {
		return sql.ErrNoRows
	}
	s.types[docType.ID] = docType
	return nil
}

func (s *typeStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.types[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.types, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type docCounterStub struct {
	counts map[string]int
}

func (s *docCounterStub) CountByType(ctx context.Context, documentTypeID string) (int, error) {
	return s.counts[documentTypeID], nil
}

type typeCacheStub struct {
	entries       map[string][]models.DocumentType
	invalidations int
}

func (s *typeCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if out, ok := dest.(*[]models.DocumentType); ok {
		*out = cached
	}
	return nil
}

func (s *typeCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.entries == nil {
		s.entries = make(map[string][]models.DocumentType)
	}
	if docTypes, ok := value.([]models.DocumentType); ok {
		s.entries[key] = docTypes
	}
	return nil
}

func (s *typeCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.invalidations++
	s.entries = nil
	return nil
}

func newTypeService(store *typeStoreStub, counts map[string]int) (*DocumentTypeService, *typeCacheStub) {
	cache := &typeCacheStub{}
	permissions := NewPermissionService(newUserDirectoryStub(), nil)
	svc := NewDocumentTypeService(store, &docCounterStub{counts: counts}, permissions, cache, nil, nil, DocumentTypeServiceConfig{CacheEnabled: true})
	return svc, cache
}

func TestDocumentTypeServiceCreateValidates(t *testing.T) {
	store := newTypeStoreStub()
	svc, cache := newTypeService(store, nil)

	_, err := svc.Create(context.Background(), dto.CreateDocumentTypeRequest{
		Name:           "Reports",
		ViewPermission: models.ViewPermissionSpecific,
		ViewMode:       models.ViewModeShared,
	}, "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Zero(t, cache.invalidations)

	docType, err := svc.Create(context.Background(), dto.CreateDocumentTypeRequest{
		Name:           "Reports",
		ViewPermission: models.ViewPermissionSpecific,
		ViewerIDs:      []string{"u1"},
		UploaderIDs:    []string{"u1"},
		ViewMode:       models.ViewModeShared,
	}, "admin-1")
	require.NoError(t, err)
	require.True(t, docType.Active)
	require.Equal(t, "admin-1", docType.CreatedBy)
	require.Equal(t, 1, cache.invalidations)
}

func TestDocumentTypeServiceUpdateCascades(t *testing.T) {
	store := newTypeStoreStub(specificType([]string{"u1", "u2"}, []string{"u1", "u2"}))
	svc, _ := newTypeService(store, nil)

	viewers := []string{"u1"}
	updated, err := svc.Update(context.Background(), "type-1", dto.UpdateDocumentTypeRequest{ViewerIDs: &viewers})
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, []string(updated.ViewerIDs))
	require.Equal(t, []string{"u1"}, []string(updated.UploaderIDs))
}

func TestDocumentTypeServiceUpdateRejectsInvalidMerge(t *testing.T) {
	store := newTypeStoreStub(specificType([]string{"u1"}, []string{"u1"}))
	svc, _ := newTypeService(store, nil)

	uploaders := []string{"u1", "u9"}
	_, err := svc.Update(context.Background(), "type-1", dto.UpdateDocumentTypeRequest{UploaderIDs: &uploaders})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	stored, getErr := store.GetByID(context.Background(), "type-1")
	require.NoError(t, getErr)
	require.Equal(t, []string{"u1"}, []string(stored.UploaderIDs))
}

func TestDocumentTypeServiceDeleteGuardsReferences(t *testing.T) {
	store := newTypeStoreStub(specificType([]string{"u1"}, []string{"u1"}))
	svc, _ := newTypeService(store, map[string]int{"type-1": 3})

	err := svc.Delete(context.Background(), "type-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Empty(t, store.deleted)
}

func TestDocumentTypeServiceDeleteUnreferenced(t *testing.T) {
	store := newTypeStoreStub(specificType([]string{"u1"}, []string{"u1"}))
	svc, cache := newTypeService(store, nil)

	require.NoError(t, svc.Delete(context.Background(), "type-1"))
	require.Equal(t, []string{"type-1"}, store.deleted)
	require.Equal(t, 1, cache.invalidations)
}

func TestDocumentTypeServiceVisibleTo(t *testing.T) {
	shared := specificType([]string{"u1"}, nil)
	everyone := &models.DocumentType{
		ID:             "type-2",
		Name:           "Announcements",
		ViewPermission: models.ViewPermissionEveryone,
		ViewMode:       models.ViewModeShared,
		Active:         true,
	}
	inactive := &models.DocumentType{
		ID:             "type-3",
		Name:           "Archived",
		ViewPermission: models.ViewPermissionEveryone,
		ViewMode:       models.ViewModeShared,
		Active:         false,
	}
	store := newTypeStoreStub(shared, everyone, inactive)
	svc, _ := newTypeService(store, nil)

	visible, err := svc.VisibleTo(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "type-2", visible[0].ID)

	visible, err = svc.VisibleTo(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, visible, 2)
}

func TestDocumentTypeServiceListRecordsCacheMetrics(t *testing.T) {
	store := newTypeStoreStub(specificType([]string{"u1"}, nil))
	metrics := NewMetricsService()
	permissions := NewPermissionService(newUserDirectoryStub(), nil)
	svc := NewDocumentTypeService(store, &docCounterStub{}, permissions, &typeCacheStub{}, metrics, nil, DocumentTypeServiceConfig{CacheEnabled: true})

	_, err := svc.List(context.Background(), models.DocumentTypeFilter{})
	require.NoError(t, err)
	_, err = svc.List(context.Background(), models.DocumentTypeFilter{})
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadUint64(&metrics.cacheMissCount))
	require.EqualValues(t, 1, atomic.LoadUint64(&metrics.cacheHitCount))
}
