package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"adminhub.org/internal/auth"
)

const roleColumns = `id, name, description, permissions, login_method, created_at, updated_at`

// Roles implements auth.RoleStore.
type Roles struct {
	db *sql.DB
}

func (s *Roles) Find(ctx context.Context, id string) (*auth.CustomRole, error) {
	return s.findOne(ctx, `select `+roleColumns+` from custom_roles where id = $1`, id)
}

func (s *Roles) FindByName(ctx context.Context, name string) (*auth.CustomRole, error) {
	return s.findOne(ctx, `select `+roleColumns+` from custom_roles where lower(name) = lower($1)`, name)
}

func (s *Roles) findOne(ctx context.Context, query string, arg any) (*auth.CustomRole, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role", auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Roles) List(ctx context.Context) ([]*auth.CustomRole, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from custom_roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]*auth.CustomRole, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Roles) Create(ctx context.Context, r *auth.CustomRole) error {
	_, err := s.db.ExecContext(ctx, `
		insert into custom_roles (id, name, description, permissions, login_method, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.Name, r.Description, documentBytes(r.Permissions), r.LoginMethod, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: role %s already exists", auth.ErrConflict, r.Name)
		}
		return err
	}
	return nil
}

func (s *Roles) Update(ctx context.Context, r *auth.CustomRole) error {
	res, err := s.db.ExecContext(ctx, `
		update custom_roles
		set name = $2, description = $3, permissions = $4, login_method = $5, updated_at = $6
		where id = $1
	`, r.ID, r.Name, r.Description, documentBytes(r.Permissions), r.LoginMethod, r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: role %s already exists", auth.ErrConflict, r.Name)
		}
		return err
	}
	return expectAffected(res, "role")
}

func (s *Roles) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from custom_roles where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role is assigned to members", auth.ErrHasDependents)
		}
		return err
	}
	return expectAffected(res, "role")
}

func (s *Roles) CountMembers(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from team_members where custom_role_id = $1`, id).Scan(&n)
	return n, err
}

func scanRole(row rowScanner) (*auth.CustomRole, error) {
	var (
		r     auth.CustomRole
		perms []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &perms, &r.LoginMethod, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Permissions = json.RawMessage(perms)
	return &r, nil
}

func documentBytes(doc json.RawMessage) []byte {
	if len(doc) == 0 {
		return []byte("{}")
	}
	return doc
}
