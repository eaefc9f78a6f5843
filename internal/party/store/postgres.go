package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"casebook/internal/party/models"
	"casebook/pkg/platform/sentinel"
	txcontext "casebook/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists parties in PostgreSQL.
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

const partyColumns = `
	id, full_name, party_type, nationality, identification, email, phone,
	address, date_of_birth, is_pep, pep_country, created_by, created_at, updated_at
`

func (s *Postgres) Create(ctx context.Context, p *models.Party) error {
	query := `
		INSERT INTO parties (id, full_name, party_type, nationality, identification, email, phone, address, date_of_birth, is_pep, pep_country, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		p.ID, p.FullName, string(p.PartyType),
		nullableString(p.Nationality), nullableString(p.Identification),
		nullableString(p.Email), nullableString(p.Phone), nullableString(p.Address),
		nullableString(p.DateOfBirth), p.IsPEP, nullableString(p.PEPCountry),
		p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert party %s: %w", p.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert party: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id string) (*models.Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE id = $1`
	p, err := scanParty(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find party %s: %w", id, err)
	}
	return p, nil
}

func (s *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM parties WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("party exists: %w", err)
	}
	return exists, nil
}

func (s *Postgres) List(ctx context.Context, filter SearchFilter) ([]*models.Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE 1=1`
	var args []any
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		query += fmt.Sprintf(" AND (full_name ILIKE $%d OR identification ILIKE $%d)", len(args), len(args))
	}
	if filter.PartyType != "" {
		args = append(args, string(filter.PartyType))
		query += fmt.Sprintf(" AND party_type = $%d", len(args))
	}
	query += " ORDER BY full_name, id"
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
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()
	var parties []*models.Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return parties, nil
}

func (s *Postgres) Update(ctx context.Context, p *models.Party) error {
	query := `
		UPDATE parties
		SET full_name = $2, party_type = $3, nationality = $4,
		    identification = $5, email = $6, phone = $7, address = $8,
		    date_of_birth = $9, is_pep = $10, pep_country = $11, updated_at = $12
		WHERE id = $1
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		p.ID, p.FullName, string(p.PartyType),
		nullableString(p.Nationality), nullableString(p.Identification),
		nullableString(p.Email), nullableString(p.Phone), nullableString(p.Address),
		nullableString(p.DateOfBirth), p.IsPEP, nullableString(p.PEPCountry),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update party: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update party: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParty(row rowScanner) (*models.Party, error) {
	var (
		p              models.Party
		partyType      string
		nationality    sql.NullString
		identification sql.NullString
		email          sql.NullString
		phone          sql.NullString
		address        sql.NullString
		dateOfBirth    sql.NullString
		pepCountry     sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.FullName, &partyType, &nationality, &identification,
		&email, &phone, &address, &dateOfBirth, &p.IsPEP, &pepCountry,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PartyType = models.PartyType(partyType)
	p.Nationality = nationality.String
	p.Identification = identification.String
	p.Email = email.String
	p.Phone = phone.String
	p.Address = address.String
	p.DateOfBirth = dateOfBirth.String
	p.PEPCountry = pepCountry.String
	return &p, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
