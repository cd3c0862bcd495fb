package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hangarhq/hangar/pkg/apperr"
)

// Store implements user persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier abstracts *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) on(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.db
}

// withTx runs fn inside tx when provided, or inside a new transaction that is
// committed on success and rolled back on error.
func withTx(ctx context.Context, db *sql.DB, tx *sql.Tx, fn func(*sql.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	own, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(own); err != nil {
		own.Rollback()
		return err
	}
	if err := own.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const userColumns = `id, email, first_name, last_name, password_digest, default_organization_id, invitation_token, forgot_password_token, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var defaultOrgID sql.NullInt64
	var invitationToken, forgotToken sql.NullString

	err := row.Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordDigest,
		&defaultOrgID, &invitationToken, &forgotToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if defaultOrgID.Valid {
		id := defaultOrgID.Int64
		user.DefaultOrganizationID = &id
	}
	if invitationToken.Valid {
		tok := invitationToken.String
		user.InvitationToken = &tok
	}
	if forgotToken.Valid {
		tok := forgotToken.String
		user.ForgotPasswordToken = &tok
	}

	return user, nil
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, tx *sql.Tx, user *User) error {
	query := `
		INSERT INTO users (email, first_name, last_name, password_digest, default_organization_id, invitation_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.on(tx).QueryRowContext(ctx, query,
		user.Email, user.FirstName, user.LastName, user.PasswordDigest,
		user.DefaultOrganizationID, user.InvitationToken,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email, unscoped by organization
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetByEmailInOrganization retrieves a user by email scoped to an
// organization. The inner join requires an active membership, so archived
// and merely-invited members do not resolve.
func (s *Store) GetByEmailInOrganization(ctx context.Context, email string, orgID int64) (*User, error) {
	query := `
		SELECT u.id, u.email, u.first_name, u.last_name, u.password_digest, u.default_organization_id, u.invitation_token, u.forgot_password_token, u.created_at, u.updated_at
		FROM users u
		INNER JOIN organization_users ou ON ou.user_id = u.id
		WHERE u.email = $1 AND ou.organization_id = $2 AND ou.status = 'active'
	`
	return scanUser(s.db.QueryRowContext(ctx, query, email, orgID))
}

// GetByIDInOrganization retrieves a user by id scoped to an organization,
// requiring an active membership there.
func (s *Store) GetByIDInOrganization(ctx context.Context, id int64, orgID int64) (*User, error) {
	query := `
		SELECT u.id, u.email, u.first_name, u.last_name, u.password_digest, u.default_organization_id, u.invitation_token, u.forgot_password_token, u.created_at, u.updated_at
		FROM users u
		INNER JOIN organization_users ou ON ou.user_id = u.id
		WHERE u.id = $1 AND ou.organization_id = $2 AND ou.status = 'active'
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id, orgID))
}

// GetByInvitationToken retrieves a user by the signup invitation token on the
// user row.
func (s *Store) GetByInvitationToken(ctx context.Context, token string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE invitation_token = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, token))
}

// GetByForgotPasswordToken retrieves a user by password reset token
func (s *Store) GetByForgotPasswordToken(ctx context.Context, token string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE forgot_password_token = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, token))
}

// SetForgotPasswordToken persists a password reset token on the user
func (s *Store) SetForgotPasswordToken(ctx context.Context, userID int64, token string) error {
	query := `UPDATE users SET forgot_password_token = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, token, userID)
	if err != nil {
		return fmt.Errorf("failed to set forgot password token: %w", err)
	}
	return requireRowsAffected(result, "user not found")
}

// ResetPassword updates the password digest and clears the reset token in a
// single statement, making the token single-use.
func (s *Store) ResetPassword(ctx context.Context, userID int64, passwordDigest string) error {
	query := `
		UPDATE users
		SET password_digest = $1, forgot_password_token = NULL, updated_at = NOW()
		WHERE id = $2
	`
	result, err := s.db.ExecContext(ctx, query, passwordDigest, userID)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return requireRowsAffected(result, "user not found")
}

// ActivateAccount clears the signup invitation token and applies the initial
// profile fields supplied during account setup. Empty values leave the
// existing column untouched.
func (s *Store) ActivateAccount(ctx context.Context, tx *sql.Tx, userID int64, firstName, lastName, passwordDigest string) error {
	query := `
		UPDATE users
		SET invitation_token = NULL,
		    first_name = COALESCE(NULLIF($1, ''), first_name),
		    last_name = COALESCE(NULLIF($2, ''), last_name),
		    password_digest = COALESCE(NULLIF($3, ''), password_digest),
		    updated_at = NOW()
		WHERE id = $4
	`
	result, err := s.on(tx).ExecContext(ctx, query, firstName, lastName, passwordDigest, userID)
	if err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	return requireRowsAffected(result, "user not found")
}

// UpdateDefaultOrganization changes the organization a user lands in on
// unscoped login.
func (s *Store) UpdateDefaultOrganization(ctx context.Context, userID, orgID int64) error {
	query := `UPDATE users SET default_organization_id = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update default organization: %w", err)
	}
	return requireRowsAffected(result, "user not found")
}

func requireRowsAffected(result sql.Result, missing string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound(missing)
	}
	return nil
}
