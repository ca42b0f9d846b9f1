package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresGateway reads user accounts from Postgres. Roles and their
// scopes are resolved through the user_roles and role_scopes join tables
// in a single round trip per lookup.
type PostgresGateway struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresGateway creates a gateway over an open connection pool.
func NewPostgresGateway(db *sql.DB, logger *zap.Logger) (*PostgresGateway, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresGateway{db: db, logger: logger}, nil
}

const findUserQuery = `
SELECT id, username, email, password_hash, status, direct_scopes
FROM users
WHERE lower(username) = lower($1) OR lower(email) = lower($1)`

const findRolesQuery = `
SELECT r.name, COALESCE(array_agg(rs.scope) FILTER (WHERE rs.scope IS NOT NULL), '{}')
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
LEFT JOIN role_scopes rs ON rs.role_id = r.id
WHERE ur.user_id = $1
GROUP BY r.name
ORDER BY r.name`

// FindByUsernameOrEmail resolves an account by username or email,
// case-insensitively, including its roles and scopes.
func (g *PostgresGateway) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error) {
	var (
		u      User
		status string
	)
	err := g.db.QueryRowContext(ctx, findUserQuery, usernameOrEmail).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &status, pq.Array(&u.Scopes),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.Status = Status(status)

	rows, err := g.db.QueryContext(ctx, findRolesQuery, u.ID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.Name, pq.Array(&r.Scopes)); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		u.Roles = append(u.Roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return &u, nil
}

// UpdatePasswordHash replaces the stored hash for the given user id.
func (g *PostgresGateway) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, newHash,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	g.logger.Info("password hash updated", zap.String("user_id", userID))
	return nil
}
