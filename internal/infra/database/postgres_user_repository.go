package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"weekly_report_bot/internal/domain/user"
)

const userColumns = `id, user_id, username, first_name, last_name, role, is_active, created_at`

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*user.User, error) {
	u := &user.User{}
	var role string
	if err := row.Scan(&u.ID, &u.UserID, &u.Username, &u.FirstName, &u.LastName, &role, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = user.Role(role)
	return u, nil
}

func (r *PostgresUserRepository) AddOrReplace(ctx context.Context, u *user.User) error {
	if u.Role == "" {
		u.Role = user.RoleStudent
	}
	query := `INSERT INTO users (user_id, username, first_name, last_name, role, is_active)
               VALUES ($1, $2, $3, $4, $5, TRUE)
               ON CONFLICT (user_id) DO UPDATE
               SET username = EXCLUDED.username,
                   first_name = EXCLUDED.first_name,
                   last_name = EXCLUDED.last_name,
                   role = EXCLUDED.role,
                   is_active = TRUE
               RETURNING id, is_active, created_at`
	err := r.db.QueryRowContext(ctx, query, u.UserID, u.Username, u.FirstName, u.LastName, string(u.Role)).
		Scan(&u.ID, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving user %d: %w", u.UserID, err)
	}
	return nil
}

func (r *PostgresUserRepository) UpsertProfile(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (user_id, username, first_name, last_name, role)
               VALUES ($1, $2, $3, $4, 'student')
               ON CONFLICT (user_id) DO UPDATE
               SET username = EXCLUDED.username,
                   first_name = EXCLUDED.first_name,
                   last_name = EXCLUDED.last_name
               RETURNING ` + userColumns
	saved, err := scanUser(r.db.QueryRowContext(ctx, query, u.UserID, u.Username, u.FirstName, u.LastName))
	if err != nil {
		return fmt.Errorf("error upserting user profile %d: %w", u.UserID, err)
	}
	*u = *saved
	return nil
}

func (r *PostgresUserRepository) GetByUserID(ctx context.Context, userID int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user by Telegram ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) ListByUserIDs(ctx context.Context, ids []int64) ([]*user.User, error) {
	if len(ids) == 0 {
		return []*user.User{}, nil
	}
	query := `SELECT ` + userColumns + ` FROM users u
               WHERE u.user_id = ANY($1::bigint[])
               ORDER BY array_position($1::bigint[], u.user_id)`
	return r.list(ctx, query, "users by IDs", pq.Array(ids))
}

func (r *PostgresUserRepository) SetRole(ctx context.Context, userID int64, role user.Role) error {
	query := `INSERT INTO users (user_id, role, is_active)
               VALUES ($1, $2, TRUE)
               ON CONFLICT (user_id) DO UPDATE
               SET role = EXCLUDED.role, is_active = TRUE`
	if _, err := r.db.ExecContext(ctx, query, userID, string(role)); err != nil {
		return fmt.Errorf("error setting role %s for user %d: %w", role, userID, err)
	}
	return nil
}

func (r *PostgresUserRepository) SetCuratorActive(ctx context.Context, userID int64, active bool) error {
	query := `UPDATE users SET is_active = $1 WHERE user_id = $2 AND role = 'curator'`
	res, err := r.db.ExecContext(ctx, query, active, userID)
	if err != nil {
		return fmt.Errorf("error updating curator %d activity: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) ListCurators(ctx context.Context) ([]*user.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users
               WHERE role = 'curator' AND is_active = TRUE
               ORDER BY first_name, last_name, user_id`, "curators")
}

func (r *PostgresUserRepository) ListAll(ctx context.Context) ([]*user.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`, "all users")
}

func (r *PostgresUserRepository) list(ctx context.Context, query, what string, args ...any) ([]*user.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", what, err)
	}
	defer rows.Close()

	users := make([]*user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", what, err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return users, nil
}
