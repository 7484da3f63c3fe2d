package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"echograph/models"
)

// UserRepo mirrors OIDC identities into the users table.
type UserRepo struct {
	pool *pgxpool.Pool
}

// UpsertBySubject records the identity on first sight and refreshes email,
// name and role on subsequent logins.
func (r *UserRepo) UpsertBySubject(ctx context.Context, u *models.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (subject, email, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email, full_name = EXCLUDED.full_name,
			role = EXCLUDED.role, updated_at = now()
		RETURNING id, is_active, created_at, updated_at`,
		u.Subject, u.Email, nullable(u.FullName), u.Role,
	).Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return mapError(err)
}

func (r *UserRepo) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, subject, email, coalesce(full_name, ''), role, is_active,
			created_at, updated_at
		FROM users WHERE subject = $1`, subject)

	var u models.User
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.FullName, &u.Role,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}
