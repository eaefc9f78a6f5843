// Package identity resolves the users cases can be assigned to.
package identity

//go:generate mockgen -source=directory.go -destination=mocks/mocks.go -package=mocks Directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"casebook/pkg/platform/sentinel"
)

// User is a member of staff who can work cases.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
}

// Directory answers user lookups.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	Get(ctx context.Context, userID string) (*User, error)
}

// PostgresDirectory reads users from the users table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

func (d *PostgresDirectory) Get(ctx context.Context, userID string) (*User, error) {
	var u User
	err := d.db.QueryRowContext(ctx,
		`SELECT id, display_name, role FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.DisplayName, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return &u, nil
}

// StaticDirectory serves a fixed user set, used in development and tests.
type StaticDirectory struct {
	users map[string]*User
}

func NewStaticDirectory(users ...User) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]*User, len(users))}
	for i := range users {
		u := users[i]
		d.users[u.ID] = &u
	}
	return d
}

func (d *StaticDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	_, ok := d.users[userID]
	return ok, nil
}

func (d *StaticDirectory) Get(ctx context.Context, userID string) (*User, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
