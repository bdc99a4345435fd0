package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"portal-api/internal/model"
)

// CreateUser inserts a new portal user and returns it with its assigned id.
func (s *Store) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(email,password_hash,full_name,role,is_active,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		user.Email, user.PasswordHash, user.FullName, user.Role, boolToInt(user.IsActive), formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("insert user id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return user, nil
}

// GetUserByEmail fetches a user by its lowercase email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,email,password_hash,full_name,role,is_active,created_at,updated_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUserByID fetches a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,email,password_hash,full_name,role,is_active,created_at,updated_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u                    model.User
		active               int
		createdAt, updatedAt string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.IsActive = active != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return u, nil
}

// CreateSession records the server-side session row backing a freshly issued token.
func (s *Store) CreateSession(ctx context.Context, userID int64, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(user_id,token_jti,expires_at,created_at) VALUES(?,?,?,?)`,
		userID, jti, formatTime(expiresAt), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByJTI looks up a session by its token id.
func (s *Store) GetSessionByJTI(ctx context.Context, jti string) (model.Session, error) {
	var (
		sess                 model.Session
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_id,token_jti,expires_at,revoked_at,created_at FROM sessions WHERE token_jti = ?`, jti,
	).Scan(&sess.ID, &sess.UserID, &sess.TokenJTI, &expiresAt, &revokedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.ExpiresAt = parseTime(expiresAt)
	sess.RevokedAt = parseTimePtr(revokedAt)
	sess.CreatedAt = parseTime(createdAt)
	return sess, nil
}

// RevokeSession marks a session revoked; verification of its token fails from
// this point on, regardless of the token's embedded expiry.
func (s *Store) RevokeSession(ctx context.Context, jti string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE token_jti = ? AND revoked_at IS NULL`,
		formatTime(time.Now().UTC()), jti,
	)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveSessions counts unrevoked, unexpired sessions.
func (s *Store) CountActiveSessions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE revoked_at IS NULL AND expires_at > ?`,
		formatTime(time.Now().UTC()),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
