package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"casebook/internal/kyccase/models"
	"casebook/pkg/platform/sentinel"
	txcontext "casebook/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists cases, related-party links, and call reports.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx executes fn inside a single database transaction carried through
// the context.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const caseColumns = `
	id, legal_name, entity_type, jurisdiction, registration_number, tax_id,
	us_status, primary_contact, contact_email, facility_type, requested_amount,
	currency, tenor, status, workflow_stage, risk_level, assigned_to, approved_by,
	sla_deadline, row_version, created_by, created_at, updated_at
`

func (s *Postgres) Create(ctx context.Context, c *models.Case) error {
	c.RowVersion = 1
	query := `
		INSERT INTO cases (
			id, legal_name, entity_type, jurisdiction, registration_number, tax_id,
			us_status, primary_contact, contact_email, facility_type, requested_amount,
			currency, tenor, status, workflow_stage, risk_level, assigned_to, approved_by,
			sla_deadline, row_version, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		c.ID,
		c.Entity.LegalName,
		c.Entity.EntityType,
		c.Entity.Jurisdiction,
		nullableString(c.Entity.RegistrationNumber),
		nullableString(c.Entity.TaxID),
		c.Entity.USStatus,
		nullableString(c.Entity.PrimaryContact),
		nullableString(c.Entity.ContactEmail),
		nullableString(c.Credit.FacilityType),
		c.Credit.RequestedAmount,
		nullableString(c.Credit.Currency),
		nullableString(c.Credit.Tenor),
		string(c.Status),
		string(c.WorkflowStage),
		string(c.RiskLevel),
		nullableString(c.AssignedTo),
		nullableString(c.ApprovedBy),
		c.SLADeadline,
		c.RowVersion,
		c.CreatedBy,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert case %s: %w", c.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	c, err := scanCase(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find case %s: %w", id, err)
	}
	return c, nil
}

func (s *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cases WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("case exists: %w", err)
	}
	return exists, nil
}

func (s *Postgres) List(ctx context.Context, filter ListFilter) ([]*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.RiskLevel != "" {
		args = append(args, string(filter.RiskLevel))
		query += fmt.Sprintf(" AND risk_level = $%d", len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()
	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// Update writes the full case row guarded by row_version. A zero-row update
// against an existing case means a concurrent writer bumped the version.
func (s *Postgres) Update(ctx context.Context, c *models.Case) error {
	query := `
		UPDATE cases SET
			legal_name = $2, entity_type = $3, jurisdiction = $4,
			registration_number = $5, tax_id = $6, us_status = $7,
			primary_contact = $8, contact_email = $9, facility_type = $10,
			requested_amount = $11, currency = $12, tenor = $13,
			status = $14, workflow_stage = $15, risk_level = $16,
			assigned_to = $17, approved_by = $18, sla_deadline = $19,
			row_version = row_version + 1, updated_at = $20
		WHERE id = $1 AND row_version = $21
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		c.ID,
		c.Entity.LegalName,
		c.Entity.EntityType,
		c.Entity.Jurisdiction,
		nullableString(c.Entity.RegistrationNumber),
		nullableString(c.Entity.TaxID),
		c.Entity.USStatus,
		nullableString(c.Entity.PrimaryContact),
		nullableString(c.Entity.ContactEmail),
		nullableString(c.Credit.FacilityType),
		c.Credit.RequestedAmount,
		nullableString(c.Credit.Currency),
		nullableString(c.Credit.Tenor),
		string(c.Status),
		string(c.WorkflowStage),
		string(c.RiskLevel),
		nullableString(c.AssignedTo),
		nullableString(c.ApprovedBy),
		c.SLADeadline,
		c.UpdatedAt,
		c.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if affected == 0 {
		exists, err := s.Exists(ctx, c.ID)
		if err != nil {
			return err
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	c.RowVersion++
	return nil
}

func (s *Postgres) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cases WHERE created_at >= $1 AND created_at < $2`,
		from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return count, nil
}

func (s *Postgres) AddRelatedParty(ctx context.Context, rp *models.RelatedParty) error {
	query := `
		INSERT INTO related_parties (case_id, party_id, relationship_type, ownership_percent, linked_by, linked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		rp.CaseID, rp.PartyID, rp.RelationshipType, rp.OwnershipPercent, rp.LinkedBy, rp.LinkedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("link party: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("link party: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveRelatedParty(ctx context.Context, caseID, partyID, relationshipType string) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM related_parties
		WHERE case_id = $1 AND party_id = $2 AND LOWER(relationship_type) = LOWER($3)
	`, caseID, partyID, relationshipType)
	if err != nil {
		return fmt.Errorf("unlink party: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlink party: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) RelatedParties(ctx context.Context, caseID string) ([]*models.RelatedParty, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT case_id, party_id, relationship_type, ownership_percent, linked_by, linked_at
		FROM related_parties
		WHERE case_id = $1
		ORDER BY linked_at, party_id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list related parties: %w", err)
	}
	defer rows.Close()
	var out []*models.RelatedParty
	for rows.Next() {
		var rp models.RelatedParty
		if err := rows.Scan(&rp.CaseID, &rp.PartyID, &rp.RelationshipType,
			&rp.OwnershipPercent, &rp.LinkedBy, &rp.LinkedAt); err != nil {
			return nil, fmt.Errorf("scan related party: %w", err)
		}
		out = append(out, &rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related parties: %w", err)
	}
	return out, nil
}

func (s *Postgres) PartyIDsForCase(ctx context.Context, caseID string) ([]string, error) {
	return s.scanIDs(ctx, `
		SELECT DISTINCT party_id FROM related_parties WHERE case_id = $1 ORDER BY party_id
	`, caseID)
}

func (s *Postgres) IsPartyRelatedToCase(ctx context.Context, caseID, partyID string) (bool, error) {
	var related bool
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM related_parties WHERE case_id = $1 AND party_id = $2)
	`, caseID, partyID).Scan(&related)
	if err != nil {
		return false, fmt.Errorf("party related to case: %w", err)
	}
	return related, nil
}

func (s *Postgres) CasesForParty(ctx context.Context, partyID string) ([]string, error) {
	return s.scanIDs(ctx, `
		SELECT DISTINCT case_id FROM related_parties WHERE party_id = $1 ORDER BY case_id
	`, partyID)
}

func (s *Postgres) scanIDs(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

const callReportColumns = `
	id, case_id, subject, summary, attendees, report_date,
	created_by, created_at, updated_at, deleted, deleted_at, deleted_by
`

func (s *Postgres) AddCallReport(ctx context.Context, cr *models.CallReport) error {
	query := `
		INSERT INTO call_reports (case_id, subject, summary, attendees, report_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		cr.CaseID, cr.Subject, cr.Summary, nullableString(cr.Attendees),
		cr.ReportDate, cr.CreatedBy, cr.CreatedAt, cr.UpdatedAt).Scan(&cr.ID)
	if err != nil {
		return fmt.Errorf("insert call report: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateCallReport(ctx context.Context, cr *models.CallReport) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE call_reports
		SET subject = $3, summary = $4, attendees = $5, report_date = $6, updated_at = $7
		WHERE id = $1 AND case_id = $2 AND NOT deleted
	`, cr.ID, cr.CaseID, cr.Subject, cr.Summary, nullableString(cr.Attendees), cr.ReportDate, cr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update call report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update call report: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteCallReport(ctx context.Context, caseID string, reportID int64, deletedBy string, at time.Time) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE call_reports
		SET deleted = TRUE, deleted_at = $3, deleted_by = $4
		WHERE id = $1 AND case_id = $2 AND NOT deleted
	`, reportID, caseID, at, deletedBy)
	if err != nil {
		return fmt.Errorf("delete call report: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete call report: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CallReports(ctx context.Context, caseID string) ([]*models.CallReport, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+callReportColumns+`
		FROM call_reports
		WHERE case_id = $1 AND NOT deleted
		ORDER BY report_date DESC, id DESC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list call reports: %w", err)
	}
	defer rows.Close()
	var out []*models.CallReport
	for rows.Next() {
		cr, err := scanCallReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call report: %w", err)
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call reports: %w", err)
	}
	return out, nil
}

func (s *Postgres) FindCallReport(ctx context.Context, caseID string, reportID int64) (*models.CallReport, error) {
	query := `SELECT ` + callReportColumns + ` FROM call_reports WHERE id = $1 AND case_id = $2 AND NOT deleted`
	cr, err := scanCallReport(s.execer(ctx).QueryRowContext(ctx, query, reportID, caseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find call report %d: %w", reportID, err)
	}
	return cr, nil
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c              models.Case
		regNumber      sql.NullString
		taxID          sql.NullString
		primaryContact sql.NullString
		contactEmail   sql.NullString
		facilityType   sql.NullString
		currency       sql.NullString
		tenor          sql.NullString
		assignedTo     sql.NullString
		approvedBy     sql.NullString
		status         string
		stage          string
		risk           string
	)
	err := row.Scan(
		&c.ID, &c.Entity.LegalName, &c.Entity.EntityType, &c.Entity.Jurisdiction,
		&regNumber, &taxID, &c.Entity.USStatus, &primaryContact, &contactEmail,
		&facilityType, &c.Credit.RequestedAmount, &currency, &tenor,
		&status, &stage, &risk, &assignedTo, &approvedBy,
		&c.SLADeadline, &c.RowVersion, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Entity.RegistrationNumber = regNumber.String
	c.Entity.TaxID = taxID.String
	c.Entity.PrimaryContact = primaryContact.String
	c.Entity.ContactEmail = contactEmail.String
	c.Credit.FacilityType = facilityType.String
	c.Credit.Currency = currency.String
	c.Credit.Tenor = tenor.String
	c.AssignedTo = assignedTo.String
	c.ApprovedBy = approvedBy.String
	c.Status = models.Status(status)
	c.WorkflowStage = models.WorkflowStage(stage)
	c.RiskLevel = models.RiskLevel(risk)
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallReport(row rowScanner) (*models.CallReport, error) {
	var (
		cr        models.CallReport
		attendees sql.NullString
		deletedAt sql.NullTime
		deletedBy sql.NullString
	)
	err := row.Scan(
		&cr.ID, &cr.CaseID, &cr.Subject, &cr.Summary, &attendees, &cr.ReportDate,
		&cr.CreatedBy, &cr.CreatedAt, &cr.UpdatedAt, &cr.Deleted, &deletedAt, &deletedBy,
	)
	if err != nil {
		return nil, err
	}
	cr.Attendees = attendees.String
	if deletedAt.Valid {
		t := deletedAt.Time
		cr.DeletedAt = &t
	}
	cr.DeletedBy = deletedBy.String
	return &cr, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
