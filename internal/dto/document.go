package dto

import "github.com/noah-isme/sma-docs-api/internal/models"

// CreateDocumentRequest contains metadata submitted alongside a file upload.
type CreateDocumentRequest struct {
	DocumentTypeID string `form:"documentTypeId" json:"documentTypeId"`
	Title          string `form:"title" json:"title"`
	Department     string `form:"department" json:"department"`
	SchoolYear     string `form:"schoolYear" json:"schoolYear"`
}

// RejectDocumentRequest carries the mandatory rejection reason.
type RejectDocumentRequest struct {
	Reason string `json:"reason"`
}

// DocumentQuery mirrors supported listing filters.
type DocumentQuery struct {
	DocumentTypeID string
	Status         []models.DocumentStatus
	Department     string
	SchoolYear     string
	Mine           bool
	Limit          int
	Offset         int
}

// DocumentDownloadResponse enriches metadata with a signed download URL.
type DocumentDownloadResponse struct {
	models.Document
	DownloadURL string `json:"downloadUrl"`
	ExpiresAt   string `json:"expiresAt"`
}
