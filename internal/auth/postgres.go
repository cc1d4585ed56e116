package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ids"
	"payrollhub.org/internal/store/pg"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory reads users and roles from PostgreSQL. It runs on a pool or
// inside a caller's transaction.
type PGDirectory struct {
	q pg.Querier
}

func NewPGDirectory(q pg.Querier) *PGDirectory {
	return &PGDirectory{q: q}
}

const userColumns = `id, username, password_hash, role_id, coalesce(branch_id, ''), is_active, created_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoleID, &u.BranchID, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (d *PGDirectory) User(ctx context.Context, id string) (User, error) {
	return scanUser(d.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (d *PGDirectory) UserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(d.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(username) = lower($1)`, username))
}

func (d *PGDirectory) Role(ctx context.Context, id string) (Role, error) {
	var role Role
	err := d.q.QueryRowContext(ctx, `select id, name from roles where id = $1`, id).Scan(&role.ID, &role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}

	rows, err := d.q.QueryContext(ctx,
		`select capability, granted from role_capabilities where role_id = $1`, id)
	if err != nil {
		return Role{}, err
	}
	defer rows.Close()

	role.Capabilities = make(map[Capability]bool)
	for rows.Next() {
		var (
			name    string
			granted bool
		)
		if err := rows.Scan(&name, &granted); err != nil {
			return Role{}, err
		}
		if c, ok := ParseCapability(name); ok {
			role.Capabilities[c] = granted
		}
	}
	return role, rows.Err()
}

// InsertUser creates the user row. A taken username is a conflict fault.
func (d *PGDirectory) InsertUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := d.q.QueryRowContext(ctx, `
		insert into users(id, username, password_hash, role_id, branch_id, is_active)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at
	`, u.ID, u.Username, u.PasswordHash, u.RoleID, pg.NullIfEmpty(u.BranchID), u.Active).Scan(&u.CreatedAt)
	if pg.IsUniqueViolation(err, "") {
		return fault.Conflict("username "+u.Username+" taken", err)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
