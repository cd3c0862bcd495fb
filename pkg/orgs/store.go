package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hangarhq/hangar/pkg/apperr"
)

// Store implements organization persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new organization store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

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

// CreateOrganization inserts a new organization
func (s *Store) CreateOrganization(ctx context.Context, tx *sql.Tx, name string) (*Organization, error) {
	org := &Organization{Name: name}
	query := `
		INSERT INTO organizations (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`
	err := s.on(tx).QueryRowContext(ctx, query, name).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// GetOrganization retrieves an organization by id
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	org := &Organization{}
	query := `SELECT id, name, created_at, updated_at FROM organizations WHERE id = $1`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// RenameOrganization changes the organization's display name
func (s *Store) RenameOrganization(ctx context.Context, tx *sql.Tx, id int64, name string) error {
	query := `UPDATE organizations SET name = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.on(tx).ExecContext(ctx, query, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename organization: %w", err)
	}
	return requireRowsAffected(result, "organization not found")
}

// CreateMember inserts a membership row. The invitation token is set for
// members created through the invitation flow and cleared on activation.
func (s *Store) CreateMember(ctx context.Context, tx *sql.Tx, member *Member) error {
	query := `
		INSERT INTO organization_users (organization_id, user_id, status, invitation_token)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := s.on(tx).QueryRowContext(ctx, query,
		member.OrganizationID, member.UserID, member.Status, member.InvitationToken,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

const memberColumns = `id, organization_id, user_id, status, invitation_token, created_at, updated_at`

func scanMember(row *sql.Row) (*Member, error) {
	member := &Member{}
	var token sql.NullString
	err := row.Scan(
		&member.ID, &member.OrganizationID, &member.UserID, &member.Status,
		&token, &member.CreatedAt, &member.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("member not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if token.Valid {
		tok := token.String
		member.InvitationToken = &tok
	}
	return member, nil
}

// GetMember retrieves the membership of a user within an organization
func (s *Store) GetMember(ctx context.Context, orgID, userID int64) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM organization_users WHERE organization_id = $1 AND user_id = $2`
	return scanMember(s.db.QueryRowContext(ctx, query, orgID, userID))
}

// GetMemberByInvitationToken retrieves a membership by its invitation token
func (s *Store) GetMemberByInvitationToken(ctx context.Context, token string) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM organization_users WHERE invitation_token = $1`
	return scanMember(s.db.QueryRowContext(ctx, query, token))
}

// ActivateMember flips a membership to active and clears its invitation
// token.
func (s *Store) ActivateMember(ctx context.Context, tx *sql.Tx, memberID int64) error {
	query := `
		UPDATE organization_users
		SET status = $1, invitation_token = NULL, updated_at = NOW()
		WHERE id = $2
	`
	result, err := s.on(tx).ExecContext(ctx, query, MemberStatusActive, memberID)
	if err != nil {
		return fmt.Errorf("failed to activate member: %w", err)
	}
	return requireRowsAffected(result, "member not found")
}

// ListOrganizationsForUser returns the organizations where the user has an
// active membership.
func (s *Store) ListOrganizationsForUser(ctx context.Context, userID int64) ([]Organization, error) {
	query := `
		SELECT o.id, o.name, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN organization_users ou ON ou.organization_id = o.id
		WHERE ou.user_id = $1 AND ou.status = $2
		ORDER BY o.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, MemberStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var organizations []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		organizations = append(organizations, org)
	}

	return organizations, rows.Err()
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
