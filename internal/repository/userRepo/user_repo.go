package userRepo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"artifact-review/internal/model/user"
)

// Directory records users as they show up and resolves invitation emails
// to them.
type Directory interface {
	Touch(ctx context.Context, u user.User) error
	// FindIDByEmail returns nil when nobody with email has been seen.
	FindIDByEmail(ctx context.Context, email string) (*uuid.UUID, error)
}

type UserRepo struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Touch(ctx context.Context, u user.User) error {
	query := `INSERT INTO users (id, email, last_seen_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, last_seen_at = EXCLUDED.last_seen_at`
	if _, err := r.pool.Exec(ctx, query, u.ID, u.Email, u.LastSeenAt); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	query := `SELECT id FROM users WHERE email=$1 ORDER BY last_seen_at DESC LIMIT 1`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &id, nil
}

type Memory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]user.User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[uuid.UUID]user.User)}
}

func (m *Memory) Touch(_ context.Context, u user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) FindIDByEmail(_ context.Context, email string) (*uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *user.User
	for _, u := range m.users {
		if u.Email != email {
			continue
		}
		if found == nil || u.LastSeenAt.After(found.LastSeenAt) {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, nil
	}
	return &found.ID, nil
}
