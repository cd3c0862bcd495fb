package users

import "time"

// Reserved group names present in every organization.
const (
	GroupAdmin    = "admin"
	GroupAllUsers = "all_users"
)

// User represents a user account
type User struct {
	ID                    int64      `json:"id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	PasswordDigest        string     `json:"-"`
	DefaultOrganizationID *int64     `json:"default_organization_id,omitempty"`
	InvitationToken       *string    `json:"-"`
	ForgotPasswordToken   *string    `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// GroupPermission is a named group scoped to one organization, carrying
// organization-wide capability flags.
type GroupPermission struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Group          string `json:"group"`
	AppCreate      bool   `json:"app_create"`
	AppDelete      bool   `json:"app_delete"`
	FolderCreate   bool   `json:"folder_create"`
}

// AppGroupPermission refines a group's access for a specific application.
type AppGroupPermission struct {
	ID                int64 `json:"id"`
	AppID             int64 `json:"app_id"`
	GroupPermissionID int64 `json:"group_permission_id"`
	Read              bool  `json:"read"`
	Update            bool  `json:"update"`
	Delete            bool  `json:"delete"`
}
