package models

import "time"

// DocumentStatus captures the review lifecycle of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "PENDING"
	DocumentStatusApproved DocumentStatus = "APPROVED"
	DocumentStatusRejected DocumentStatus = "REJECTED"
)

// Document is one uploaded artifact awaiting or past review. FilePath is
// an opaque storage reference; the engine never interprets its content.
type Document struct {
	ID              string         `db:"id" json:"id"`
	DocumentTypeID  string         `db:"document_type_id" json:"document_type_id"`
	Title           string         `db:"title" json:"title"`
	FileName        string         `db:"file_name" json:"file_name"`
	FilePath        string         `db:"file_path" json:"file_path"`
	MimeType        string         `db:"mime_type" json:"mime_type"`
	SizeBytes       int64          `db:"size_bytes" json:"size_bytes"`
	Department      string         `db:"department" json:"department"`
	SchoolYear      string         `db:"school_year" json:"school_year"`
	Status          DocumentStatus `db:"status" json:"status"`
	UploadedBy      string         `db:"uploaded_by" json:"uploaded_by"`
	UploadedByName  string         `db:"uploaded_by_name" json:"uploaded_by_name"`
	UploadedAt      time.Time      `db:"uploaded_at" json:"uploaded_at"`
	ReviewedBy      *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedByName  *string        `db:"reviewed_by_name" json:"reviewed_by_name,omitempty"`
	ReviewedAt      *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// DocumentFilter constrains document listing queries.
type DocumentFilter struct {
	DocumentTypeIDs []string
	Status          []DocumentStatus
	Department      string
	SchoolYear      string
	UploadedBy      string
	Limit           int
	Offset          int
}

// DocumentPatch is the partial mutation an approved edit request applies.
// Nil fields leave the stored column untouched.
type DocumentPatch struct {
	FileName  *string
	FilePath  *string
	MimeType  *string
	SizeBytes *int64
	Title     *string
}

// IsEmpty reports whether the patch changes nothing.
func (p DocumentPatch) IsEmpty() bool {
	return p.FileName == nil && p.FilePath == nil && p.MimeType == nil && p.SizeBytes == nil && p.Title == nil
}
