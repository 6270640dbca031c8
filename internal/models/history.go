package models

import "time"

// History action tags recorded by the governance engine.
const (
	HistoryActionCreated         = "DOCUMENT_CREATED"
	HistoryActionApproved        = "DOCUMENT_APPROVED"
	HistoryActionRejected        = "DOCUMENT_REJECTED"
	HistoryActionEditRequested   = "EDIT_REQUESTED"
	HistoryActionDeleteRequested = "DELETE_REQUESTED"
	HistoryActionEditApplied     = "EDIT_APPLIED"
	HistoryActionDeleted         = "DOCUMENT_DELETED"
	HistoryActionRequestRejected = "REQUEST_REJECTED"
)

// HistoryEntry is one append-only audit record. DocumentTitle is a
// snapshot so the trail survives document deletion.
type HistoryEntry struct {
	ID              string    `db:"id" json:"id"`
	DocumentID      string    `db:"document_id" json:"document_id"`
	DocumentTitle   string    `db:"document_title" json:"document_title"`
	Action          string    `db:"action" json:"action"`
	PerformedBy     string    `db:"performed_by" json:"performed_by"`
	PerformedByName string    `db:"performed_by_name" json:"performed_by_name"`
	PerformedAt     time.Time `db:"performed_at" json:"performed_at"`
	Details         []byte    `db:"details" json:"details,omitempty"`
}

// HistoryFilter constrains audit queries. Results are always returned
// most-recent-first with the limit applied after sorting.
type HistoryFilter struct {
	DocumentID  string
	PerformedBy string
	Action      string
	Limit       int
}
