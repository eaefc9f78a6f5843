package activity

import "time"

// Entry is one audit-trail record for a case. Every state-changing operation
// appends one, attributed to the real acting user.
type Entry struct {
	ID        int64     `json:"id"`
	CaseID    string    `json:"caseId"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"createdAt"`
}

// Action types recorded by the domain services.
const (
	ActionCaseCreated       = "CASE_CREATED"
	ActionStatusChanged     = "STATUS_CHANGED"
	ActionCaseAssigned      = "CASE_ASSIGNED"
	ActionEntityUpdated     = "ENTITY_UPDATED"
	ActionPartyLinked       = "PARTY_LINKED"
	ActionPartyUnlinked     = "PARTY_UNLINKED"
	ActionCallReportAdded   = "CALL_REPORT_ADDED"
	ActionCallReportUpdated = "CALL_REPORT_UPDATED"
	ActionCallReportDeleted = "CALL_REPORT_DELETED"

	ActionDocumentUploaded    = "DOCUMENT_UPLOADED"
	ActionDocumentStatus      = "DOCUMENT_STATUS_CHANGED"
	ActionDocumentMadeCurrent = "DOCUMENT_MADE_CURRENT"
)
