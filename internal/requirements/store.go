package requirements

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"casebook/pkg/platform/sentinel"
)

// Store loads requirement templates by entity type.
type Store interface {
	ForEntityType(ctx context.Context, entityType string) (*Template, error)
	EntityTypes(ctx context.Context) ([]string, error)
}

// PostgresStore reads templates from the kyc_configuration table, one row
// per entity type with the document list stored as JSON.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ForEntityType(ctx context.Context, entityType string) (*Template, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT documents FROM kyc_configuration WHERE entity_type = $1`, entityType).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load requirements for %s: %w", entityType, err)
	}
	var docs []TemplateDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode requirements for %s: %w", entityType, err)
	}
	return &Template{EntityType: entityType, Documents: docs}, nil
}

func (s *PostgresStore) EntityTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_type FROM kyc_configuration ORDER BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity types: %w", err)
	}
	return types, nil
}

// MemoryStore is an in-memory Store for unit tests.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string][]TemplateDoc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string][]TemplateDoc)}
}

// Put registers a template, replacing any existing one for the entity type.
func (s *MemoryStore) Put(entityType string, docs []TemplateDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[entityType] = docs
}

func (s *MemoryStore) ForEntityType(ctx context.Context, entityType string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.templates[entityType]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]TemplateDoc, len(docs))
	copy(out, docs)
	return &Template{EntityType: entityType, Documents: out}, nil
}

func (s *MemoryStore) EntityTypes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var types []string
	for t := range s.templates {
		types = append(types, t)
	}
	return types, nil
}
