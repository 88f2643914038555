package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adminhub.org/internal/auth"
)

// Sessions implements auth.SessionRepository.
type Sessions struct {
	db *sql.DB
}

func (s *Sessions) Create(ctx context.Context, sess *auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, member_id, ip_address, user_agent, expires_at, is_active, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.MemberID, sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.IsActive, sess.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: session already exists", auth.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: member %s", auth.ErrNotFound, sess.MemberID)
			}
		}
		return err
	}
	return nil
}

func (s *Sessions) Find(ctx context.Context, id string) (*auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRowContext(ctx, `
		select s.id, s.member_id, s.ip_address, s.user_agent, s.expires_at, s.is_active, s.created_at, m.email, m.role
		from sessions s
		join team_members m on m.id = s.member_id
		where s.id = $1
	`, id).Scan(&sess.ID, &sess.MemberID, &sess.IPAddress, &sess.UserAgent, &sess.ExpiresAt, &sess.IsActive,
		&sess.CreatedAt, &sess.Email, &sess.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session", auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Sessions) Deactivate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `update sessions set is_active = false where id = $1`, id)
	return err
}

func (s *Sessions) DeactivateMember(ctx context.Context, memberID, keepID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		update sessions set is_active = false
		where member_id = $1 and is_active and id <> $2
		returning id
	`, memberID, keepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Purge deletes sessions that expired or were deactivated before cutoff.
func (s *Sessions) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at < $1 or not is_active`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
