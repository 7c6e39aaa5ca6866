package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"room-web/internal/domain"
)

// TokenSealer encrypts remote credentials before they reach the table.
type TokenSealer interface {
	Seal(plaintext string) ([]byte, error)
	Open(sealed []byte) (string, error)
}

const (
	createSessionQuery = `
		INSERT INTO web_sessions (id, token, csrf_token, user_id, user_email, user_name,
			access_token, refresh_token, access_expires_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getSessionByTokenQuery = `
		SELECT id, token, csrf_token, user_id, user_email, user_name,
			access_token, refresh_token, access_expires_at, expires_at, created_at, updated_at
		FROM web_sessions
		WHERE token = $1 AND expires_at > $2`

	updateSessionTokensQuery = `
		UPDATE web_sessions
		SET access_token = $1, refresh_token = $2, access_expires_at = $3,
			user_email = $4, user_name = $5, updated_at = $6
		WHERE token = $7`

	deleteSessionQuery = `DELETE FROM web_sessions WHERE token = $1`

	deleteExpiredSessionsQuery = `DELETE FROM web_sessions WHERE expires_at <= $1`
)

// SessionRepository stores browser sessions. Access and refresh tokens are
// sealed at rest.
type SessionRepository struct {
	db                *sql.DB
	sealer            TokenSealer
	createStmt        *sql.Stmt
	getByTokenStmt    *sql.Stmt
	updateTokensStmt  *sql.Stmt
	deleteStmt        *sql.Stmt
	deleteExpiredStmt *sql.Stmt
}

// NewSessionRepository creates a new SessionRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewSessionRepository(db *sql.DB, sealer TokenSealer) (*SessionRepository, error) {
	repo := &SessionRepository{db: db, sealer: sealer}

	var err error
	repo.createStmt, err = db.Prepare(createSessionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getByTokenStmt, err = db.Prepare(getSessionByTokenQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByToken statement: %w", err)
	}

	repo.updateTokensStmt, err = db.Prepare(updateSessionTokensQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare updateTokens statement: %w", err)
	}

	repo.deleteStmt, err = db.Prepare(deleteSessionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	repo.deleteExpiredStmt, err = db.Prepare(deleteExpiredSessionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteExpired statement: %w", err)
	}

	return repo, nil
}

func (r *SessionRepository) seal(s *domain.Session) (access, refresh []byte, err error) {
	access, err = r.sealer.Seal(s.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal access token: %w", err)
	}
	refresh, err = r.sealer.Seal(s.RefreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal refresh token: %w", err)
	}
	return access, refresh, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	access, refresh, err := r.seal(session)
	if err != nil {
		return err
	}

	_, err = r.createStmt.ExecContext(ctx,
		session.ID,
		session.Token,
		session.CSRFToken,
		session.User.ID,
		session.User.Email,
		session.User.Name,
		access,
		refresh,
		nullTime(session.AccessExpiresAt),
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var (
		session         domain.Session
		access, refresh []byte
		accessExpires   sql.NullTime
	)

	err := r.getByTokenStmt.QueryRowContext(ctx, token, time.Now()).Scan(
		&session.ID,
		&session.Token,
		&session.CSRFToken,
		&session.User.ID,
		&session.User.Email,
		&session.User.Name,
		&access,
		&refresh,
		&accessExpires,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if IsConnectionError(err) {
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}

	if session.AccessToken, err = r.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	if session.RefreshToken, err = r.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}
	if accessExpires.Valid {
		session.AccessExpiresAt = accessExpires.Time
	}
	return &session, nil
}

func (r *SessionRepository) UpdateTokens(ctx context.Context, session *domain.Session) error {
	access, refresh, err := r.seal(session)
	if err != nil {
		return err
	}

	result, err := r.updateTokensStmt.ExecContext(ctx,
		access,
		refresh,
		nullTime(session.AccessExpiresAt),
		session.User.Email,
		session.User.Name,
		session.UpdatedAt,
		session.Token,
	)
	if err != nil {
		return fmt.Errorf("failed to update session tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.deleteStmt.ExecContext(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.deleteExpiredStmt.ExecContext(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// Close releases the prepared statements.
func (r *SessionRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{r.createStmt, r.getByTokenStmt, r.updateTokensStmt, r.deleteStmt, r.deleteExpiredStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
