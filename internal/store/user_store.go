package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pongarena/server/internal/gateway"
)

// UserStore resolves player identities from the users table.
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore wraps the shared database handle.
func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

// FindUserByID looks one user up, translating a missing row to ErrNotFound.
func (s *UserStore) FindUserByID(ctx context.Context, id int64) (*gateway.User, error) {
	var user gateway.User
	err := s.db.GetContext(ctx, &user, "SELECT id, username, role FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, gateway.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &user, nil
}
