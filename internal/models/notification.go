package models

import "time"

// Notification event kinds published after governance transitions.
const (
	NotifyDocumentUploaded  = "DOCUMENT_UPLOADED"
	NotifyDocumentApproved  = "DOCUMENT_APPROVED"
	NotifyDocumentRejected  = "DOCUMENT_REJECTED"
	NotifyRequestSubmitted = "REVIEW_REQUEST_SUBMITTED"
	NotifyRequestResolved  = "REVIEW_REQUEST_RESOLVED"
)

// NotificationEvent is the fire-and-forget payload pushed to the
// notification collaborator. Delivery failures are logged, never
// propagated to the triggering operation.
type NotificationEvent struct {
	Type          string    `json:"type"`
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	ActorID       string    `json:"actor_id"`
	ActorName     string    `json:"actor_name"`
	Department    string    `json:"department,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
