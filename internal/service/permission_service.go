package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-docs-api/internal/models"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
)

type permissionUserDirectory interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// PermissionService evaluates, for a document type, who may view and who
// may upload. Two invariants hold on every stored type:
//
//	I1: SPECIFIC_USERS types carry a non-empty viewer set.
//	I2: the uploader set is a subset of the viewer set when viewer
//	    membership is explicit.
type PermissionService struct {
	users  permissionUserDirectory
	logger *zap.Logger
}

// NewPermissionService constructs the service.
func NewPermissionService(users permissionUserDirectory, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{users: users, logger: logger}
}

// CanView reports whether the user may see documents of the type.
func (s *PermissionService) CanView(docType *models.DocumentType, userID string) bool {
	if docType == nil {
		return false
	}
	if docType.ViewPermission == models.ViewPermissionEveryone {
		return true
	}
	return docType.HasViewer(userID)
}

// CanUpload reports whether the user may create documents of the type.
// Uploader membership is always explicit, regardless of view permission.
func (s *PermissionService) CanUpload(docType *models.DocumentType, userID string) bool {
	if docType == nil {
		return false
	}
	return docType.HasUploader(userID)
}

// Validate enforces I1 and I2 on a candidate type. It is run against the
// fully merged state before any write; a violation carries the offending
// user ids so the caller can render a precise message.
func (s *PermissionService) Validate(docType *models.DocumentType) error {
	if docType == nil {
		return appErrors.Clone(appErrors.ErrValidation, "document type is required")
	}
	if strings.TrimSpace(docType.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	switch docType.ViewPermission {
	case models.ViewPermissionEveryone:
		if len(docType.ViewerIDs) > 0 {
			return appErrors.Clone(appErrors.ErrValidation, "viewer list must be empty when everyone can view")
		}
	case models.ViewPermissionSpecific:
		if len(docType.ViewerIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "at least one viewer is required for specific-user visibility")
		}
		if offending := missingFrom(docType.UploaderIDs, docType.ViewerIDs); len(offending) > 0 {
			return appErrors.WithDetails(appErrors.ErrValidation, "uploaders must be a subset of viewers", map[string]any{"offendingIds": offending})
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported view permission")
	}
	switch docType.ViewMode {
	case models.ViewModePersonal, models.ViewModeShared:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported view mode")
	}
	return nil
}

// Merge produces the candidate state for a partial update. When the patch
// narrows the viewer set without touching uploaders, users removed from
// the viewers are cascaded out of the uploader set rather than rejected.
// The result still goes through Validate before any write.
func (s *PermissionService) Merge(existing *models.DocumentType, patch models.DocumentTypePatch) *models.DocumentType {
	merged := *existing
	merged.ViewerIDs = append([]string(nil), existing.ViewerIDs...)
	merged.UploaderIDs = append([]string(nil), existing.UploaderIDs...)

	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Description != nil {
		merged.Description = patch.Description
	}
	if patch.Icon != nil {
		merged.Icon = patch.Icon
	}
	if patch.ViewPermission != nil {
		merged.ViewPermission = *patch.ViewPermission
	}
	if patch.ViewerIDs != nil {
		merged.ViewerIDs = append([]string(nil), (*patch.ViewerIDs)...)
	}
	if patch.UploaderIDs != nil {
		merged.UploaderIDs = append([]string(nil), (*patch.UploaderIDs)...)
	}
	if patch.ViewMode != nil {
		merged.ViewMode = *patch.ViewMode
	}
	if patch.DisplayOrder != nil {
		merged.DisplayOrder = *patch.DisplayOrder
	}
	if patch.Active != nil {
		merged.Active = *patch.Active
	}

	if merged.ViewPermission == models.ViewPermissionEveryone {
		// Inherited viewers are cleared; a viewer list the patch itself
		// supplies is kept so Validate rejects the contradiction, the
		// same answer Create gives.
		if patch.ViewerIDs == nil {
			merged.ViewerIDs = nil
		}
		return &merged
	}
	if patch.UploaderIDs == nil {
		merged.UploaderIDs = retainIn(merged.UploaderIDs, merged.ViewerIDs)
	}
	return &merged
}

// AvailableUploaders returns the users a type admin may pick as
// uploaders: the whole active directory for EVERYONE types, exactly the
// viewer set otherwise. This is a derived read, not stored state.
func (s *PermissionService) AvailableUploaders(ctx context.Context, docType *models.DocumentType) ([]models.User, error) {
	if docType == nil {
		return nil, appErrors.ErrNotFound
	}
	if docType.ViewPermission == models.ViewPermissionEveryone {
		return s.listActiveUsers(ctx)
	}
	users, err := s.users.FindByIDs(ctx, docType.ViewerIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve viewers")
	}
	return users, nil
}

// listActiveUsers walks the whole directory page by page. The repository
// clamps a single page at 100 rows, so one read is not enough once the
// school grows past that.
func (s *PermissionService) listActiveUsers(ctx context.Context) ([]models.User, error) {
	const pageSize = 100
	active := true
	var users []models.User
	for page := 1; ; page++ {
		batch, total, err := s.users.List(ctx, models.UserFilter{Active: &active, Page: page, PageSize: pageSize})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
		}
		users = append(users, batch...)
		if len(batch) == 0 || len(users) >= total {
			return users, nil
		}
	}
}

// missingFrom returns the members of subset that are absent from superset.
func missingFrom(subset, superset []string) []string {
	allowed := make(map[string]struct{}, len(superset))
	for _, id := range superset {
		allowed[id] = struct{}{}
	}
	var missing []string
	for _, id := range subset {
		if _, ok := allowed[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// retainIn keeps only the members of ids present in allowed, preserving order.
func retainIn(ids, allowed []string) []string {
	keep := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		keep[id] = struct{}{}
	}
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			result = append(result, id)
		}
	}
	return result
}
