package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"adminhub.org/internal/auth"
)

// adminRoleSQL mirrors auth.IsAdminRole for a role column.
const adminRoleSQL = `trim(both '_' from upper(regexp_replace(%s, '[[:space:]_-]+', '_', 'g'))) in ('ADMIN', 'SUPER_ADMIN')`

// setupLockKey serializes first-administrator bootstrap across processes.
const setupLockKey int64 = 0x61646d696e

const memberColumns = `
	m.id, m.email, m.password_hash, m.name, m.role, m.custom_role_id, m.status,
	m.last_login_at, m.last_login_ip, m.allowed_ips, m.created_at, m.updated_at,
	r.id, r.name, r.description, r.permissions, r.login_method, r.created_at, r.updated_at`

const memberFrom = `
	from team_members m
	left join custom_roles r on r.id = m.custom_role_id`

// Members implements auth.MemberStore.
type Members struct {
	db *sql.DB
}

func (s *Members) FindByID(ctx context.Context, id string) (*auth.Member, error) {
	return s.findOne(ctx, s.db, `where m.id = $1`, id)
}

func (s *Members) FindByEmail(ctx context.Context, email string) (*auth.Member, error) {
	return s.findOne(ctx, s.db, `where lower(m.email) = lower($1)`, strings.TrimSpace(email))
}

func (s *Members) findOne(ctx context.Context, q DBTX, where string, arg any) (*auth.Member, error) {
	row := q.QueryRowContext(ctx, `select `+memberColumns+memberFrom+` `+where, arg)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: member", auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Members) List(ctx context.Context, filter auth.MemberFilter) ([]*auth.Member, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("m.status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(m.email ilike $%d or m.name ilike $%d)", idx, idx))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		idx++
	}
	query := `select ` + memberColumns + memberFrom
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += fmt.Sprintf(` order by m.created_at, m.id limit $%d offset $%d`, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*auth.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Members) Create(ctx context.Context, m *auth.Member) error {
	return insertMember(ctx, s.db, m)
}

func insertMember(ctx context.Context, q DBTX, m *auth.Member) error {
	ips, err := json.Marshal(nonNilIPs(m.AllowedIPs))
	if err != nil {
		return fmt.Errorf("marshal allowed ips: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		insert into team_members (id, email, password_hash, name, role, custom_role_id, status, allowed_ips, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.Email, m.PasswordHash, m.Name, m.Role, nullIfEmpty(m.CustomRoleID), m.Status, ips, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: email %s already registered", auth.ErrConflict, m.Email)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: custom role %s", auth.ErrNotFound, m.CustomRoleID)
			}
		}
		return err
	}
	return nil
}

func (s *Members) Update(ctx context.Context, id string, upd auth.MemberUpdate) (*auth.Member, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Role != nil {
		set("role", *upd.Role)
	}
	if upd.CustomRoleID != nil {
		set("custom_role_id", nullIfEmpty(*upd.CustomRoleID))
	}
	if upd.AllowedIPs != nil {
		ips, err := json.Marshal(upd.AllowedIPs)
		if err != nil {
			return nil, fmt.Errorf("marshal allowed ips: %w", err)
		}
		set("allowed_ips", ips)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf(`update team_members set %s where id = $%d`, strings.Join(setClauses, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return nil, fmt.Errorf("%w: email already registered", auth.ErrConflict)
				case pgErrForeignKeyViolation:
					return nil, fmt.Errorf("%w: custom role", auth.ErrNotFound)
				}
			}
			return nil, err
		}
		if err := expectAffected(res, "member"); err != nil {
			return nil, err
		}
	}
	return s.FindByID(ctx, id)
}

// Delete removes a member; sessions and refresh tokens cascade. Rows in other
// tables that still reference the member block the delete.
func (s *Members) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from team_members where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s", auth.ErrHasDependents, pgErr.TableName)
		}
		return err
	}
	return expectAffected(res, "member")
}

func (s *Members) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update team_members set last_login_at = $2, last_login_ip = $3 where id = $1
	`, id, at.UTC(), ip)
	if err != nil {
		return err
	}
	return expectAffected(res, "member")
}

func (s *Members) AdminExists(ctx context.Context) (bool, error) {
	return adminExists(ctx, s.db)
}

func adminExists(ctx context.Context, q DBTX) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`select exists (select 1 from team_members where `+fmt.Sprintf(adminRoleSQL, "role")+`)`,
	).Scan(&exists)
	return exists, err
}

// CreateFirstAdmin runs under a transaction-scoped advisory lock so that of
// concurrent bootstrap attempts only the first commits.
func (s *Members) CreateFirstAdmin(ctx context.Context, m *auth.Member, role *auth.CustomRole) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, setupLockKey); err != nil {
			return fmt.Errorf("acquire setup lock: %w", err)
		}
		exists, err := adminExists(ctx, tx)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: an administrator already exists", auth.ErrConflict)
		}
		var roleID string
		err = tx.QueryRowContext(ctx, `
			insert into custom_roles (id, name, description, permissions, login_method, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7)
			on conflict ((lower(name))) do update
			set permissions = excluded.permissions, updated_at = excluded.updated_at
			returning id
		`, role.ID, role.Name, role.Description, []byte(role.Permissions), role.LoginMethod, role.CreatedAt, role.UpdatedAt).Scan(&roleID)
		if err != nil {
			return fmt.Errorf("upsert admin role: %w", err)
		}
		role.ID = roleID
		m.CustomRoleID = roleID
		if err := insertMember(ctx, tx, m); err != nil {
			return err
		}
		m.CustomRole = role
		return nil
	})
}

func scanMember(row rowScanner) (*auth.Member, error) {
	var (
		m          auth.Member
		customRole sql.NullString
		lastLogin  sql.NullTime
		ips        []byte

		roleID, roleName, roleDesc, roleMethod sql.NullString
		rolePerms                              []byte
		roleCreated, roleUpdated               sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.Email, &m.PasswordHash, &m.Name, &m.Role, &customRole, &m.Status,
		&lastLogin, &m.LastLoginIP, &ips, &m.CreatedAt, &m.UpdatedAt,
		&roleID, &roleName, &roleDesc, &rolePerms, &roleMethod, &roleCreated, &roleUpdated,
	)
	if err != nil {
		return nil, err
	}
	m.CustomRoleID = customRole.String
	if lastLogin.Valid {
		at := lastLogin.Time
		m.LastLoginAt = &at
	}
	m.AllowedIPs = []string{}
	if len(ips) > 0 {
		if err := json.Unmarshal(ips, &m.AllowedIPs); err != nil {
			return nil, fmt.Errorf("decode allowed ips: %w", err)
		}
	}
	if roleID.Valid {
		m.CustomRole = &auth.CustomRole{
			ID:          roleID.String,
			Name:        roleName.String,
			Description: roleDesc.String,
			Permissions: json.RawMessage(rolePerms),
			LoginMethod: roleMethod.String,
			CreatedAt:   roleCreated.Time,
			UpdatedAt:   roleUpdated.Time,
		}
	}
	return &m, nil
}

func expectAffected(res sql.Result, what string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", auth.ErrNotFound, what)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nonNilIPs(ips []string) []string {
	if ips == nil {
		return []string{}
	}
	return ips
}
