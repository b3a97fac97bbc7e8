package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinovault/clinovault/internal/policy"
	"github.com/clinovault/clinovault/internal/shared"
)

// Repository provides PostgreSQL backed persistence over the users and
// user_roles tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID fetches one user with its declared roles.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, org_id, is_active, created_at, updated_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.OrgID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: find %s: %w", id, err)
	}
	roles, err := r.rolesFor(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.Roles = roles
	return u, nil
}

// List returns all users ordered by email, roles included.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, org_id, is_active, created_at, updated_at
		 FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.OrgID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows: %w", err)
	}
	for i := range users {
		roles, err := r.rolesFor(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		users[i].Roles = roles
	}
	return users, nil
}

// AssignRole adds a declared role, idempotently.
func (r *Repository) AssignRole(ctx context.Context, userID uuid.UUID, role policy.Role) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		 ON CONFLICT (user_id, role) DO NOTHING`, userID, string(role))
	if err != nil {
		return fmt.Errorf("users: assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a declared role.
func (r *Repository) RevokeRole(ctx context.Context, userID uuid.UUID, role policy.Role) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	if err != nil {
		return fmt.Errorf("users: revoke role: %w", err)
	}
	return nil
}

func (r *Repository) rolesFor(ctx context.Context, userID uuid.UUID) ([]policy.Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: roles: %w", err)
	}
	defer rows.Close()

	var roles []policy.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("users: scan role: %w", err)
		}
		roles = append(roles, policy.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: role rows: %w", err)
	}
	return roles, nil
}
