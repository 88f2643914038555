package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adminhub.org/internal/auth"
)

// RefreshTokens implements auth.RefreshTokenStore.
type RefreshTokens struct {
	db *sql.DB
}

func (s *RefreshTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	return insertRefreshToken(ctx, s.db, tok)
}

func insertRefreshToken(ctx context.Context, q DBTX, tok *auth.RefreshToken) error {
	_, err := q.ExecContext(ctx, `
		insert into refresh_tokens (id, member_id, session_id, token_hash, ip_address, user_agent, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tok.ID, tok.MemberID, nullIfEmpty(tok.SessionID), tok.TokenHash, tok.IPAddress, tok.UserAgent, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: refresh token already exists", auth.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: member %s", auth.ErrNotFound, tok.MemberID)
			}
		}
		return err
	}
	return nil
}

func (s *RefreshTokens) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var (
		tok        auth.RefreshToken
		sessionID  sql.NullString
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, member_id, session_id, token_hash, ip_address, user_agent, expires_at, created_at, revoked, revoked_at, replaced_by
		from refresh_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.MemberID, &sessionID, &tok.TokenHash, &tok.IPAddress, &tok.UserAgent,
		&tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked, &revokedAt, &replacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: refresh token", auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	tok.SessionID = sessionID.String
	tok.ReplacedBy = replacedBy.String
	if revokedAt.Valid {
		at := revokedAt.Time
		tok.RevokedAt = &at
	}
	return &tok, nil
}

// Rotate revokes oldID only while it is still unrevoked; the conditional
// update is what makes a refresh token single use.
func (s *RefreshTokens) Rotate(ctx context.Context, oldID string, next *auth.RefreshToken, at time.Time) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			update refresh_tokens
			set revoked = true, revoked_at = $2, replaced_by = $3
			where id = $1 and not revoked
		`, oldID, at.UTC(), next.ID)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff != 1 {
			return auth.ErrInvalidToken
		}
		return insertRefreshToken(ctx, tx, next)
	})
}

func (s *RefreshTokens) RevokeSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2
		where session_id = $1 and not revoked
	`, sessionID, at.UTC())
	return err
}

func (s *RefreshTokens) RevokeMember(ctx context.Context, memberID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true, revoked_at = $2
		where member_id = $1 and not revoked
	`, memberID, at.UTC())
	return err
}
