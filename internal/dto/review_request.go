package dto

import "github.com/noah-isme/sma-docs-api/internal/models"

// CreateReviewRequestPayload submits an edit or delete proposal against
// an approved document. The proposed name applies to EDIT requests only;
// a replacement file travels as a multipart upload next to this payload.
type CreateReviewRequestPayload struct {
	DocumentID       string                   `form:"documentId" json:"documentId"`
	Type             models.ReviewRequestType `form:"type" json:"type"`
	Reason           string                   `form:"reason" json:"reason"`
	ProposedFileName *string                  `form:"proposedFileName" json:"proposedFileName"`
}

// ResolveReviewRequestPayload captures the reviewer decision note.
type ResolveReviewRequestPayload struct {
	Note string `json:"note"`
}

// ReviewRequestQuery mirrors supported listing filters.
type ReviewRequestQuery struct {
	Status     []models.ReviewRequestStatus
	Type       models.ReviewRequestType
	DocumentID string
	Limit      int
	Offset     int
}
