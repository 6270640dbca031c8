package dto

import "github.com/noah-isme/sma-docs-api/internal/models"

// CreateDocumentTypeRequest is the admin payload for a new category.
type CreateDocumentTypeRequest struct {
	Name           string                `json:"name"`
	Description    *string               `json:"description"`
	Icon           *string               `json:"icon"`
	ViewPermission models.ViewPermission `json:"viewPermission"`
	ViewerIDs      []string              `json:"viewerIds"`
	UploaderIDs    []string              `json:"uploaderIds"`
	ViewMode       models.ViewMode       `json:"viewMode"`
	DisplayOrder   int                   `json:"displayOrder"`
}

// UpdateDocumentTypeRequest is a partial admin edit. Nil fields keep the
// stored value; invariants run against the merged candidate.
type UpdateDocumentTypeRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Icon           *string                `json:"icon"`
	ViewPermission *models.ViewPermission `json:"viewPermission"`
	ViewerIDs      *[]string              `json:"viewerIds"`
	UploaderIDs    *[]string              `json:"uploaderIds"`
	ViewMode       *models.ViewMode       `json:"viewMode"`
	DisplayOrder   *int                   `json:"displayOrder"`
	Active         *bool                  `json:"active"`
}

// Patch converts the request into the model-level patch form.
func (r UpdateDocumentTypeRequest) Patch() models.DocumentTypePatch {
	return models.DocumentTypePatch{
		Name:           r.Name,
		Description:    r.Description,
		Icon:           r.Icon,
		ViewPermission: r.ViewPermission,
		ViewerIDs:      r.ViewerIDs,
		UploaderIDs:    r.UploaderIDs,
		ViewMode:       r.ViewMode,
		DisplayOrder:   r.DisplayOrder,
		Active:         r.Active,
	}
}

// UploaderList enumerates the users eligible to upload under a type.
type UploaderList struct {
	DocumentTypeID string            `json:"documentTypeId"`
	Users          []models.UserInfo `json:"users"`
}
