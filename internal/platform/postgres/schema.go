package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements, applied in order. Deployments run these through their
// migration tooling; tests apply them directly.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    legal_name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    jurisdiction TEXT NOT NULL,
    registration_number TEXT,
    tax_id TEXT,
    us_status TEXT NOT NULL,
    primary_contact TEXT,
    contact_email TEXT,
    facility_type TEXT,
    requested_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
    currency TEXT,
    tenor TEXT,
    status TEXT NOT NULL,
    workflow_stage TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    assigned_to TEXT,
    approved_by TEXT,
    sla_deadline TIMESTAMPTZ NOT NULL,
    row_version BIGINT NOT NULL DEFAULT 1,
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_assigned ON cases(assigned_to);
CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(created_at);
`

const schemaParties = `
CREATE TABLE IF NOT EXISTS parties (
    id TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    party_type TEXT NOT NULL,
    nationality TEXT,
    identification TEXT,
    email TEXT,
    phone TEXT,
    address TEXT,
    date_of_birth TEXT,
    is_pep BOOLEAN NOT NULL DEFAULT FALSE,
    pep_country TEXT,
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parties_name ON parties(full_name);
`

const schemaRelatedParties = `
CREATE TABLE IF NOT EXISTS related_parties (
    case_id TEXT NOT NULL REFERENCES cases(id),
    party_id TEXT NOT NULL REFERENCES parties(id),
    relationship_type TEXT NOT NULL,
    ownership_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
    linked_by TEXT NOT NULL,
    linked_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (case_id, party_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_related_parties_party ON related_parties(party_id);
`

const schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    owner_type TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    document_type TEXT NOT NULL,
    version INT NOT NULL,
    status TEXT NOT NULL,
    is_current BOOLEAN NOT NULL DEFAULT FALSE,
    is_ad_hoc BOOLEAN NOT NULL DEFAULT FALSE,
    uploaded_by TEXT NOT NULL,
    verified_by TEXT,
    verified_at TIMESTAMPTZ,
    rejection_reason TEXT,
    expiry_date TIMESTAMPTZ,
    comments TEXT,
    filename TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    size_bytes BIGINT NOT NULL,
    content BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_version
    ON documents(owner_type, owner_id, document_type, version);
CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_current
    ON documents(owner_type, owner_id, document_type) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_type, owner_id);
`

const schemaCallReports = `
CREATE TABLE IF NOT EXISTS call_reports (
    id BIGSERIAL PRIMARY KEY,
    case_id TEXT NOT NULL REFERENCES cases(id),
    subject TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    attendees TEXT,
    report_date TIMESTAMPTZ NOT NULL,
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deleted_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_call_reports_case ON call_reports(case_id) WHERE NOT deleted;
`

const schemaActivityLog = `
CREATE TABLE IF NOT EXISTS activity_log (
    id BIGSERIAL PRIMARY KEY,
    case_id TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_log_case ON activity_log(case_id, created_at);
`

const schemaConfiguration = `
CREATE TABLE IF NOT EXISTS kyc_configuration (
    entity_type TEXT PRIMARY KEY,
    documents JSONB NOT NULL
);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema creates every table and index the service needs.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		schemaCases,
		schemaParties,
		schemaRelatedParties,
		schemaDocuments,
		schemaCallReports,
		schemaActivityLog,
		schemaConfiguration,
		schemaUsers,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
