package authn

import "github.com/hangarhq/hangar/pkg/users"

// SessionPayload is the response body of login, organization switch and
// account setup. Key names are part of the client contract.
type SessionPayload struct {
	ID                  int64                      `json:"id"`
	AuthToken           string                     `json:"auth_token"`
	Email               string                     `json:"email"`
	FirstName           string                     `json:"first_name"`
	LastName            string                     `json:"last_name"`
	OrganizationID      int64                      `json:"organization_id"`
	Organization        string                     `json:"organization"`
	Admin               bool                       `json:"admin"`
	GroupPermissions    []users.GroupPermission    `json:"group_permissions"`
	AppGroupPermissions []users.AppGroupPermission `json:"app_group_permissions"`
}

// SignupParams are the inputs of public signup.
type SignupParams struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// SetupAccountParams are the inputs of the invitation setup flow. All fields
// but Token are optional; empty values keep whatever the invited account
// already has.
type SetupAccountParams struct {
	Token            string `json:"token"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Password         string `json:"password"`
	OrganizationName string `json:"organization_name"`
}
