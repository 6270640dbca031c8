package models

import "time"

// ReviewRequestType enumerates supported post-approval change categories.
type ReviewRequestType string

const (
	ReviewRequestTypeEdit   ReviewRequestType = "EDIT"
	ReviewRequestTypeDelete ReviewRequestType = "DELETE"
)

// ReviewRequestStatus captures workflow states for change requests.
type ReviewRequestStatus string

const (
	ReviewRequestStatusPending  ReviewRequestStatus = "PENDING"
	ReviewRequestStatusApproved ReviewRequestStatus = "APPROVED"
	ReviewRequestStatusRejected ReviewRequestStatus = "REJECTED"
)

// ReviewRequest is a proposed edit or delete against an approved document.
// It is the only sanctioned path to mutate or remove an approved record.
type ReviewRequest struct {
	ID               string              `db:"id" json:"id"`
	DocumentID       string              `db:"document_id" json:"document_id"`
	Type             ReviewRequestType   `db:"type" json:"type"`
	Reason           string              `db:"reason" json:"reason"`
	ProposedFileName *string             `db:"proposed_file_name" json:"proposed_file_name,omitempty"`
	ProposedFilePath *string             `db:"proposed_file_path" json:"proposed_file_path,omitempty"`
	Status           ReviewRequestStatus `db:"status" json:"status"`
	RequestedBy      string              `db:"requested_by" json:"requested_by"`
	RequestedByName  string              `db:"requested_by_name" json:"requested_by_name"`
	RequestedAt      time.Time           `db:"requested_at" json:"requested_at"`
	ReviewedBy       *string             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedByName   *string             `db:"reviewed_by_name" json:"reviewed_by_name,omitempty"`
	ReviewedAt       *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote       *string             `db:"review_note" json:"review_note,omitempty"`
}

// ReviewRequestFilter constrains listing queries.
type ReviewRequestFilter struct {
	Status      []ReviewRequestStatus
	Type        ReviewRequestType
	DocumentID  string
	RequestedBy string
	Limit       int
	Offset      int
}
