package models

import (
	"time"

	"github.com/lib/pq"
)

// ViewPermission controls who may see documents of a type.
type ViewPermission string

const (
	ViewPermissionEveryone ViewPermission = "EVERYONE"
	ViewPermissionSpecific ViewPermission = "SPECIFIC_USERS"
)

// ViewMode distinguishes personal folders from shared ones.
type ViewMode string

const (
	ViewModePersonal ViewMode = "PERSONAL"
	ViewModeShared   ViewMode = "SHARED"
)

// DocumentType is a named document category carrying the visibility and
// upload rules evaluated by the permission service.
type DocumentType struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Description    *string        `db:"description" json:"description,omitempty"`
	Icon           *string        `db:"icon" json:"icon,omitempty"`
	ViewPermission ViewPermission `db:"view_permission" json:"view_permission"`
	ViewerIDs      pq.StringArray `db:"viewer_ids" json:"viewer_ids"`
	UploaderIDs    pq.StringArray `db:"uploader_ids" json:"uploader_ids"`
	ViewMode       ViewMode       `db:"view_mode" json:"view_mode"`
	DisplayOrder   int            `db:"display_order" json:"display_order"`
	Active         bool           `db:"active" json:"active"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// HasViewer reports explicit viewer membership. EVERYONE types treat any
// user as an implicit viewer; callers check ViewPermission first.
func (t *DocumentType) HasViewer(userID string) bool {
	for _, id := range t.ViewerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasUploader reports uploader membership, which is always explicit.
func (t *DocumentType) HasUploader(userID string) bool {
	for _, id := range t.UploaderIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DocumentTypePatch carries a partial admin update. Nil fields keep the
// stored value; invariants are validated against the merged result.
type DocumentTypePatch struct {
	Name           *string
	Description    *string
	Icon           *string
	ViewPermission *ViewPermission
	ViewerIDs      *[]string
	UploaderIDs    *[]string
	ViewMode       *ViewMode
	DisplayOrder   *int
	Active         *bool
}

// DocumentTypeFilter constrains listing queries.
type DocumentTypeFilter struct {
	Active   *bool
	ViewMode ViewMode
	Search   string
}
