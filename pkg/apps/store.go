package apps

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hangarhq/hangar/pkg/apperr"
)

// Store implements app and folder persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new app store
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

// CreateApp inserts a new app owned by the given user
func (s *Store) CreateApp(ctx context.Context, tx *sql.Tx, app *App) error {
	query := `
		INSERT INTO apps (organization_id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := s.on(tx).QueryRowContext(ctx, query, app.OrganizationID, app.UserID, app.Name).
		Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

// GetApp retrieves an app by id scoped to an organization
func (s *Store) GetApp(ctx context.Context, id, orgID int64) (*App, error) {
	app := &App{}
	query := `
		SELECT id, organization_id, user_id, name, created_at, updated_at
		FROM apps
		WHERE id = $1 AND organization_id = $2
	`
	err := s.db.QueryRowContext(ctx, query, id, orgID).Scan(
		&app.ID, &app.OrganizationID, &app.UserID, &app.Name, &app.CreatedAt, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("app not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

// ListApps returns the organization's apps ordered by name
func (s *Store) ListApps(ctx context.Context, orgID int64) ([]App, error) {
	query := `
		SELECT id, organization_id, user_id, name, created_at, updated_at
		FROM apps
		WHERE organization_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var result []App
	for rows.Next() {
		var app App
		if err := rows.Scan(&app.ID, &app.OrganizationID, &app.UserID, &app.Name, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		result = append(result, app)
	}

	return result, rows.Err()
}

// DeleteApp removes an app. Group grants on it cascade away.
func (s *Store) DeleteApp(ctx context.Context, id, orgID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	return requireRowsAffected(result, "app not found")
}

// IsOwner reports whether the user created the app
func (s *Store) IsOwner(ctx context.Context, appID, userID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM apps WHERE id = $1 AND user_id = $2)`
	if err := s.db.QueryRowContext(ctx, query, appID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check app ownership: %w", err)
	}
	return exists, nil
}

// GrantGroupAccess upserts a per-app grant for a group. Flags replace any
// existing grant for the same app and group.
func (s *Store) GrantGroupAccess(ctx context.Context, tx *sql.Tx, appID, groupPermissionID int64, read, update, del bool) error {
	query := `
		INSERT INTO app_group_permissions (app_id, group_permission_id, can_read, can_update, can_delete)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id, group_permission_id)
		DO UPDATE SET can_read = EXCLUDED.can_read, can_update = EXCLUDED.can_update, can_delete = EXCLUDED.can_delete
	`
	_, err := s.on(tx).ExecContext(ctx, query, appID, groupPermissionID, read, update, del)
	if err != nil {
		return fmt.Errorf("failed to grant group access: %w", err)
	}
	return nil
}

// CreateFolder inserts a new folder
func (s *Store) CreateFolder(ctx context.Context, tx *sql.Tx, folder *Folder) error {
	query := `
		INSERT INTO folders (organization_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`
	err := s.on(tx).QueryRowContext(ctx, query, folder.OrganizationID, folder.Name).
		Scan(&folder.ID, &folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// ListFolders returns the organization's folders ordered by name
func (s *Store) ListFolders(ctx context.Context, orgID int64) ([]Folder, error) {
	query := `
		SELECT id, organization_id, name, created_at, updated_at
		FROM folders
		WHERE organization_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var result []Folder
	for rows.Next() {
		var folder Folder
		if err := rows.Scan(&folder.ID, &folder.OrganizationID, &folder.Name, &folder.CreatedAt, &folder.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		result = append(result, folder)
	}

	return result, rows.Err()
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
