package orgs

import "time"

// Membership statuses.
const (
	MemberStatusActive   = "active"
	MemberStatusInvited  = "invited"
	MemberStatusArchived = "archived"
)

// Organization is a tenant boundary. All apps, folders and groups hang off
// an organization.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member links a user to an organization.
type Member struct {
	ID              int64     `json:"id"`
	OrganizationID  int64     `json:"organization_id"`
	UserID          int64     `json:"user_id"`
	Status          string    `json:"status"`
	InvitationToken *string   `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsActive reports whether the membership grants access to the organization.
func (m *Member) IsActive() bool {
	return m.Status == MemberStatusActive
}
