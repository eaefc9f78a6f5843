// Package requirements resolves the document checklist a case must satisfy
// based on the entity type being onboarded. Templates live in a database
// configuration table and are cached in Redis.
package requirements

// TemplateDoc is one document requirement within an entity type's template.
type TemplateDoc struct {
	Name           string `json:"name"`
	Required       bool   `json:"required"`
	ValidityMonths int    `json:"validityMonths,omitempty"`
	Description    string `json:"description,omitempty"`
	Note           string `json:"note,omitempty"`
}

// Template is the full requirement set for one entity type.
type Template struct {
	EntityType string        `json:"entityType"`
	Documents  []TemplateDoc `json:"documents"`
}

// ChecklistItem is one requirement evaluated against a case's documents.
type ChecklistItem struct {
	TemplateDoc
	Status         string `json:"status"`
	CurrentVersion int    `json:"currentVersion,omitempty"`
}

// Checklist item statuses.
const (
	ItemMissing   = "Missing"
	ItemSubmitted = "Submitted"
	ItemVerified  = "Verified"
	ItemRejected  = "Rejected"
	ItemExpired   = "Expired"
)

// Checklist is a case's requirement template joined with its document state.
type Checklist struct {
	CaseID     string          `json:"caseId"`
	EntityType string          `json:"entityType"`
	Items      []ChecklistItem `json:"items"`
	Complete   bool            `json:"complete"`
}
