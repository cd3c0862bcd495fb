package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/httputil"
	"github.com/hangarhq/hangar/pkg/orgs"
	"github.com/hangarhq/hangar/pkg/users"
)

// UserStore is the user persistence the handlers call into. *users.Store
// satisfies it.
type UserStore interface {
	GroupPermissions(ctx context.Context, userID, orgID int64) ([]users.GroupPermission, error)
	AddGroups(ctx context.Context, tx *sql.Tx, userID, orgID int64, groupNames []string) error
	RemoveGroupIfExists(ctx context.Context, tx *sql.Tx, userID, orgID int64, groupName string) error
	UpdateDefaultOrganization(ctx context.Context, userID, orgID int64) error
}

// OrgDirectory resolves the caller's organizations. *orgs.Store satisfies it.
type OrgDirectory interface {
	ListOrganizationsForUser(ctx context.Context, userID int64) ([]orgs.Organization, error)
	GetMember(ctx context.Context, orgID, userID int64) (*orgs.Member, error)
}

// UserHandler handles user profile and group membership endpoints
type UserHandler struct {
	users  UserStore
	orgs   OrgDirectory
	logger *logrus.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userStore UserStore, orgDirectory OrgDirectory, logger *logrus.Logger) *UserHandler {
	return &UserHandler{users: userStore, orgs: orgDirectory, logger: logger}
}

// RegisterRoutes registers the session-gated user endpoints
func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/me", h.Me).Methods(http.MethodGet)
	router.HandleFunc("/users/me/organizations", h.MyOrganizations).Methods(http.MethodGet)
	router.HandleFunc("/users/me/default-organization", h.SetDefaultOrganization).Methods(http.MethodPut)
}

// RegisterAdminRoutes registers the admin-only group mutation endpoints
func (h *UserHandler) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/users/{id}/groups", h.AddGroups).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}/groups/{group}", h.RemoveGroup).Methods(http.MethodDelete)
}

type meResponse struct {
	User             *users.User             `json:"user"`
	OrganizationID   int64                   `json:"organization_id"`
	GroupPermissions []users.GroupPermission `json:"group_permissions"`
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	groups, err := h.users.GroupPermissions(r.Context(), session.User.ID, session.OrganizationID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, meResponse{
		User:             session.User,
		OrganizationID:   session.OrganizationID,
		GroupPermissions: groups,
	})
}

// MyOrganizations handles GET /api/users/me/organizations. It lists the
// organizations the caller can switch into.
func (h *UserHandler) MyOrganizations(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	organizations, err := h.orgs.ListOrganizationsForUser(r.Context(), session.User.ID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, organizations)
}

type setDefaultOrganizationRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

// SetDefaultOrganization handles PUT /api/users/me/default-organization. The
// target must be an organization the caller is an active member of.
func (h *UserHandler) SetDefaultOrganization(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req setDefaultOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OrganizationID == 0 {
		httputil.WriteBadRequest(w, "organization_id is required")
		return
	}

	member, err := h.orgs.GetMember(r.Context(), req.OrganizationID, session.User.ID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	if !member.IsActive() {
		httputil.WriteBadRequest(w, "membership is not active")
		return
	}

	if err := h.users.UpdateDefaultOrganization(r.Context(), session.User.ID, req.OrganizationID); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type addGroupsRequest struct {
	Groups []string `json:"groups"`
}

// AddGroups handles POST /api/users/{id}/groups
func (h *UserHandler) AddGroups(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req addGroupsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Groups) == 0 {
		httputil.WriteBadRequest(w, "groups are required")
		return
	}

	if err := h.users.AddGroups(r.Context(), nil, userID, session.OrganizationID, req.Groups); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"groups":  req.Groups,
	}).Info("groups added")
	httputil.WriteNoContent(w)
}

// RemoveGroup handles DELETE /api/users/{id}/groups/{group}
func (h *UserHandler) RemoveGroup(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	group, ok := httputil.ParsePathStringOrError(w, r, "group")
	if !ok {
		return
	}

	if err := h.users.RemoveGroupIfExists(r.Context(), nil, userID, session.OrganizationID, group); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"group":   group,
	}).Info("group removed")
	httputil.WriteNoContent(w)
}
