package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/apps"
	"github.com/hangarhq/hangar/pkg/authz"
	"github.com/hangarhq/hangar/pkg/httputil"
	"github.com/hangarhq/hangar/pkg/middleware"
)

// AppStore is the app and folder persistence the handlers call into.
// *apps.Store satisfies it.
type AppStore interface {
	CreateApp(ctx context.Context, tx *sql.Tx, app *apps.App) error
	GetApp(ctx context.Context, id, orgID int64) (*apps.App, error)
	ListApps(ctx context.Context, orgID int64) ([]apps.App, error)
	DeleteApp(ctx context.Context, id, orgID int64) error
	GrantGroupAccess(ctx context.Context, tx *sql.Tx, appID, groupPermissionID int64, read, update, del bool) error
	CreateFolder(ctx context.Context, tx *sql.Tx, folder *apps.Folder) error
	ListFolders(ctx context.Context, orgID int64) ([]apps.Folder, error)
}

// Authorizer decides permission checks. *authz.Checker satisfies it.
type Authorizer interface {
	Can(ctx context.Context, userID, orgID int64, action authz.Action, resource authz.Resource, resourceID *int64) (bool, error)
}

// AppHandler handles app and folder endpoints
type AppHandler struct {
	store   AppStore
	checker Authorizer
	logger  *logrus.Logger
}

// NewAppHandler creates a new app handler
func NewAppHandler(store AppStore, checker Authorizer, logger *logrus.Logger) *AppHandler {
	return &AppHandler{store: store, checker: checker, logger: logger}
}

// RegisterRoutes registers the session-gated app and folder endpoints
func (h *AppHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/apps", h.CreateApp).Methods(http.MethodPost)
	router.HandleFunc("/apps", h.ListApps).Methods(http.MethodGet)
	router.HandleFunc("/apps/{id}", h.GetApp).Methods(http.MethodGet)
	router.HandleFunc("/apps/{id}", h.DeleteApp).Methods(http.MethodDelete)
	router.HandleFunc("/folders", h.CreateFolder).Methods(http.MethodPost)
	router.HandleFunc("/folders", h.ListFolders).Methods(http.MethodGet)
}

// RegisterAdminRoutes registers the admin-only grant endpoint
func (h *AppHandler) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/apps/{id}/groups/{group_permission_id}", h.GrantGroupAccess).Methods(http.MethodPut)
}

// requireSession loads the session or writes a 401
func requireSession(w http.ResponseWriter, r *http.Request) (*middleware.Session, bool) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return session, ok
}

// can runs a permission check and writes a 403 on denial. The bool reports
// whether the caller may proceed.
func (h *AppHandler) can(w http.ResponseWriter, r *http.Request, session *middleware.Session, action authz.Action, resource authz.Resource, resourceID *int64) bool {
	allowed, err := h.checker.Can(r.Context(), session.User.ID, session.OrganizationID, action, resource, resourceID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return false
	}
	if !allowed {
		httputil.WriteForbidden(w, "permission denied")
		return false
	}
	return true
}

type createAppRequest struct {
	Name string `json:"name"`
}

// CreateApp handles POST /api/apps
func (h *AppHandler) CreateApp(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req createAppRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if !h.can(w, r, session, authz.ActionCreate, authz.ResourceApp, nil) {
		return
	}

	app := &apps.App{
		OrganizationID: session.OrganizationID,
		UserID:         session.User.ID,
		Name:           req.Name,
	}
	if err := h.store.CreateApp(r.Context(), nil, app); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"app_id": app.ID,
		"name":   app.Name,
	}).Info("app created")
	httputil.WriteCreated(w, app)
}

// ListApps handles GET /api/apps
func (h *AppHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	result, err := h.store.ListApps(r.Context(), session.OrganizationID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// GetApp handles GET /api/apps/{id}
func (h *AppHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.can(w, r, session, authz.ActionRead, authz.ResourceApp, &id) {
		return
	}

	app, err := h.store.GetApp(r.Context(), id, session.OrganizationID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

// DeleteApp handles DELETE /api/apps/{id}
func (h *AppHandler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.can(w, r, session, authz.ActionDelete, authz.ResourceApp, &id) {
		return
	}

	if err := h.store.DeleteApp(r.Context(), id, session.OrganizationID); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.logger.WithField("app_id", id).Info("app deleted")
	httputil.WriteNoContent(w)
}

type grantAccessRequest struct {
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// GrantGroupAccess handles PUT /api/apps/{id}/groups/{group_permission_id}
func (h *AppHandler) GrantGroupAccess(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	appID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	groupPermissionID, ok := httputil.ParsePathInt64OrError(w, r, "group_permission_id")
	if !ok {
		return
	}
	var req grantAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	// Confirm the app belongs to the caller's organization before touching
	// its grants.
	if _, err := h.store.GetApp(r.Context(), appID, session.OrganizationID); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	if err := h.store.GrantGroupAccess(r.Context(), nil, appID, groupPermissionID, req.Read, req.Update, req.Delete); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type createFolderRequest struct {
	Name string `json:"name"`
}

// CreateFolder handles POST /api/folders
func (h *AppHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req createFolderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if !h.can(w, r, session, authz.ActionCreate, authz.ResourceFolder, nil) {
		return
	}

	folder := &apps.Folder{OrganizationID: session.OrganizationID, Name: req.Name}
	if err := h.store.CreateFolder(r.Context(), nil, folder); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, folder)
}

// ListFolders handles GET /api/folders
func (h *AppHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	folders, err := h.store.ListFolders(r.Context(), session.OrganizationID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, folders)
}
