package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hangarhq/hangar/pkg/apperr"
)

// GroupPermissions returns all organization-scoped groups the user belongs to
func (s *Store) GroupPermissions(ctx context.Context, userID, orgID int64) ([]GroupPermission, error) {
	query := `
		SELECT gp.id, gp.organization_id, gp.group_name, gp.app_create, gp.app_delete, gp.folder_create
		FROM group_permissions gp
		INNER JOIN user_group_permissions ugp ON ugp.group_permission_id = gp.id
		WHERE ugp.user_id = $1 AND gp.organization_id = $2
		ORDER BY gp.group_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group permissions: %w", err)
	}
	defer rows.Close()

	var groups []GroupPermission
	for rows.Next() {
		var gp GroupPermission
		if err := rows.Scan(&gp.ID, &gp.OrganizationID, &gp.Group, &gp.AppCreate, &gp.AppDelete, &gp.FolderCreate); err != nil {
			return nil, fmt.Errorf("failed to scan group permission: %w", err)
		}
		groups = append(groups, gp)
	}

	return groups, rows.Err()
}

// AppGroupPermissions returns the per-app overrides applicable to the user's
// groups within the organization. When appID is given, the result is limited
// to that application.
func (s *Store) AppGroupPermissions(ctx context.Context, userID, orgID int64, appID *int64) ([]AppGroupPermission, error) {
	query := `
		SELECT agp.id, agp.app_id, agp.group_permission_id, agp.can_read, agp.can_update, agp.can_delete
		FROM app_group_permissions agp
		INNER JOIN group_permissions gp ON gp.id = agp.group_permission_id
		INNER JOIN user_group_permissions ugp ON ugp.group_permission_id = gp.id
		WHERE ugp.user_id = $1 AND gp.organization_id = $2
		  AND ($3::BIGINT IS NULL OR agp.app_id = $3)
		ORDER BY agp.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, orgID, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to get app group permissions: %w", err)
	}
	defer rows.Close()

	var perms []AppGroupPermission
	for rows.Next() {
		var agp AppGroupPermission
		if err := rows.Scan(&agp.ID, &agp.AppID, &agp.GroupPermissionID, &agp.Read, &agp.Update, &agp.Delete); err != nil {
			return nil, fmt.Errorf("failed to scan app group permission: %w", err)
		}
		perms = append(perms, agp)
	}

	return perms, rows.Err()
}

// HasGroup reports whether the user belongs to the named group within the
// organization.
func (s *Store) HasGroup(ctx context.Context, userID, orgID int64, groupName string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM user_group_permissions ugp
			INNER JOIN group_permissions gp ON gp.id = ugp.group_permission_id
			WHERE ugp.user_id = $1 AND gp.organization_id = $2 AND gp.group_name = $3
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, orgID, groupName).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return exists, nil
}

// AddGroups adds the user to each named group. A name with no matching group
// in the organization fails the whole operation with a bad request.
func (s *Store) AddGroups(ctx context.Context, tx *sql.Tx, userID, orgID int64, groupNames []string) error {
	return withTx(ctx, s.db, tx, func(tx *sql.Tx) error {
		for _, name := range groupNames {
			var groupID int64
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM group_permissions WHERE organization_id = $1 AND group_name = $2`,
				orgID, name,
			).Scan(&groupID)
			if err == sql.ErrNoRows {
				return apperr.BadRequest(fmt.Sprintf("group %q does not exist", name))
			}
			if err != nil {
				return fmt.Errorf("failed to look up group %q: %w", name, err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO user_group_permissions (user_id, group_permission_id)
				VALUES ($1, $2)
				ON CONFLICT (user_id, group_permission_id) DO NOTHING
			`, userID, groupID)
			if err != nil {
				return fmt.Errorf("failed to add user to group %q: %w", name, err)
			}
		}
		return nil
	})
}

// RemoveGroupIfExists removes the user from the named group. The all_users
// group is protected and can never be removed; the admin group cannot be
// removed from the organization's last remaining active admin. Removing a
// group the user is not in is not an error.
func (s *Store) RemoveGroupIfExists(ctx context.Context, tx *sql.Tx, userID, orgID int64, groupName string) error {
	if groupName == GroupAllUsers {
		return apperr.BadRequest("cannot remove user from the all_users group")
	}

	return withTx(ctx, s.db, tx, func(tx *sql.Tx) error {
		if groupName == GroupAdmin {
			otherAdmins, err := s.countOtherActiveAdmins(ctx, tx, orgID, userID)
			if err != nil {
				return err
			}
			if otherAdmins == 0 {
				return apperr.BadRequest("cannot remove the last active admin of an organization")
			}
		}

		_, err := tx.ExecContext(ctx, `
			DELETE FROM user_group_permissions ugp
			USING group_permissions gp
			WHERE ugp.group_permission_id = gp.id
			  AND ugp.user_id = $1 AND gp.organization_id = $2 AND gp.group_name = $3
		`, userID, orgID, groupName)
		if err != nil {
			return fmt.Errorf("failed to remove user from group %q: %w", groupName, err)
		}
		return nil
	})
}

// countOtherActiveAdmins counts active members of the organization holding
// the admin group, excluding the given user.
func (s *Store) countOtherActiveAdmins(ctx context.Context, tx *sql.Tx, orgID, excludeUserID int64) (int, error) {
	query := `
		SELECT COUNT(DISTINCT ugp.user_id)
		FROM user_group_permissions ugp
		INNER JOIN group_permissions gp ON gp.id = ugp.group_permission_id
		INNER JOIN organization_users ou ON ou.user_id = ugp.user_id AND ou.organization_id = gp.organization_id
		WHERE gp.organization_id = $1 AND gp.group_name = $2
		  AND ou.status = 'active' AND ugp.user_id != $3
	`
	var count int
	if err := s.on(tx).QueryRowContext(ctx, query, orgID, GroupAdmin, excludeUserID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active admins: %w", err)
	}
	return count, nil
}

// CreateDefaultGroups creates the reserved admin and all_users groups for a
// new organization. The admin group carries every capability flag; all_users
// carries none.
func (s *Store) CreateDefaultGroups(ctx context.Context, tx *sql.Tx, orgID int64) error {
	return withTx(ctx, s.db, tx, func(tx *sql.Tx) error {
		groups := []GroupPermission{
			{OrganizationID: orgID, Group: GroupAdmin, AppCreate: true, AppDelete: true, FolderCreate: true},
			{OrganizationID: orgID, Group: GroupAllUsers},
		}
		for _, gp := range groups {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO group_permissions (organization_id, group_name, app_create, app_delete, folder_create)
				VALUES ($1, $2, $3, $4, $5)
			`, gp.OrganizationID, gp.Group, gp.AppCreate, gp.AppDelete, gp.FolderCreate)
			if err != nil {
				return fmt.Errorf("failed to create default group %q: %w", gp.Group, err)
			}
		}
		return nil
	})
}
