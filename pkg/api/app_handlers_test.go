package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarhq/hangar/pkg/apps"
	"github.com/hangarhq/hangar/pkg/authz"
	"github.com/hangarhq/hangar/pkg/middleware"
	"github.com/hangarhq/hangar/pkg/users"
)

type mockAppStore struct {
	createAppFunc    func(ctx context.Context, tx *sql.Tx, app *apps.App) error
	getAppFunc       func(ctx context.Context, id, orgID int64) (*apps.App, error)
	listAppsFunc     func(ctx context.Context, orgID int64) ([]apps.App, error)
	deleteAppFunc    func(ctx context.Context, id, orgID int64) error
	grantFunc        func(ctx context.Context, tx *sql.Tx, appID, groupPermissionID int64, read, update, del bool) error
	createFolderFunc func(ctx context.Context, tx *sql.Tx, folder *apps.Folder) error
	listFoldersFunc  func(ctx context.Context, orgID int64) ([]apps.Folder, error)
}

func (m *mockAppStore) CreateApp(ctx context.Context, tx *sql.Tx, app *apps.App) error {
	return m.createAppFunc(ctx, tx, app)
}

func (m *mockAppStore) GetApp(ctx context.Context, id, orgID int64) (*apps.App, error) {
	return m.getAppFunc(ctx, id, orgID)
}

func (m *mockAppStore) ListApps(ctx context.Context, orgID int64) ([]apps.App, error) {
	return m.listAppsFunc(ctx, orgID)
}

func (m *mockAppStore) DeleteApp(ctx context.Context, id, orgID int64) error {
	return m.deleteAppFunc(ctx, id, orgID)
}

func (m *mockAppStore) GrantGroupAccess(ctx context.Context, tx *sql.Tx, appID, groupPermissionID int64, read, update, del bool) error {
	return m.grantFunc(ctx, tx, appID, groupPermissionID, read, update, del)
}

func (m *mockAppStore) CreateFolder(ctx context.Context, tx *sql.Tx, folder *apps.Folder) error {
	return m.createFolderFunc(ctx, tx, folder)
}

func (m *mockAppStore) ListFolders(ctx context.Context, orgID int64) ([]apps.Folder, error) {
	return m.listFoldersFunc(ctx, orgID)
}

type mockAuthorizer struct {
	canFunc func(ctx context.Context, userID, orgID int64, action authz.Action, resource authz.Resource, resourceID *int64) (bool, error)
}

func (m *mockAuthorizer) Can(ctx context.Context, userID, orgID int64, action authz.Action, resource authz.Resource, resourceID *int64) (bool, error) {
	return m.canFunc(ctx, userID, orgID, action, resource, resourceID)
}

func allow() *mockAuthorizer {
	return &mockAuthorizer{canFunc: func(ctx context.Context, userID, orgID int64, action authz.Action, resource authz.Resource, resourceID *int64) (bool, error) {
		return true, nil
	}}
}

func deny() *mockAuthorizer {
	return &mockAuthorizer{canFunc: func(ctx context.Context, userID, orgID int64, action authz.Action, resource authz.Resource, resourceID *int64) (bool, error) {
		return false, nil
	}}
}

func appRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	session := &middleware.Session{User: &users.User{ID: 1}, OrganizationID: 7}
	return req.WithContext(middleware.WithSession(req.Context(), session))
}

func serveApp(store *mockAppStore, checker Authorizer, req *http.Request) *httptest.ResponseRecorder {
	h := NewAppHandler(store, checker, testLogger())
	router := mux.NewRouter()
	sub := router.PathPrefix("/api").Subrouter()
	h.RegisterRoutes(sub)
	h.RegisterAdminRoutes(sub)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAppHandler_CreateApp(t *testing.T) {
	t.Run("creates when permitted", func(t *testing.T) {
		store := &mockAppStore{
			createAppFunc: func(ctx context.Context, tx *sql.Tx, app *apps.App) error {
				assert.Equal(t, int64(7), app.OrganizationID)
				assert.Equal(t, int64(1), app.UserID)
				app.ID = 3
				return nil
			},
		}

		rec := serveApp(store, allow(), appRequest(t, http.MethodPost, "/api/apps", map[string]string{"name": "CRM"}))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("denied without app_create", func(t *testing.T) {
		rec := serveApp(&mockAppStore{}, deny(), appRequest(t, http.MethodPost, "/api/apps", map[string]string{"name": "CRM"}))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		rec := serveApp(&mockAppStore{}, allow(), appRequest(t, http.MethodPost, "/api/apps", map[string]string{}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAppHandler_DeleteApp(t *testing.T) {
	t.Run("checks delete permission with the app id", func(t *testing.T) {
		var checkedID *int64
		checker := &mockAuthorizer{canFunc: func(ctx context.Context, userID, orgID int64, action authz.Action, resource authz.Resource, resourceID *int64) (bool, error) {
			assert.Equal(t, authz.ActionDelete, action)
			assert.Equal(t, authz.ResourceApp, resource)
			checkedID = resourceID
			return true, nil
		}}
		store := &mockAppStore{
			deleteAppFunc: func(ctx context.Context, id, orgID int64) error {
				assert.Equal(t, int64(3), id)
				return nil
			},
		}

		rec := serveApp(store, checker, appRequest(t, http.MethodDelete, "/api/apps/3", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, checkedID)
		assert.Equal(t, int64(3), *checkedID)
	})

	t.Run("denied", func(t *testing.T) {
		rec := serveApp(&mockAppStore{}, deny(), appRequest(t, http.MethodDelete, "/api/apps/3", nil))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAppHandler_GetApp(t *testing.T) {
	store := &mockAppStore{
		getAppFunc: func(ctx context.Context, id, orgID int64) (*apps.App, error) {
			return &apps.App{ID: id, OrganizationID: orgID, Name: "CRM"}, nil
		},
	}

	rec := serveApp(store, allow(), appRequest(t, http.MethodGet, "/api/apps/3", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var app apps.App
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, "CRM", app.Name)
}

func TestAppHandler_CreateFolder(t *testing.T) {
	t.Run("creates when permitted", func(t *testing.T) {
		store := &mockAppStore{
			createFolderFunc: func(ctx context.Context, tx *sql.Tx, folder *apps.Folder) error {
				folder.ID = 5
				return nil
			},
		}

		rec := serveApp(store, allow(), appRequest(t, http.MethodPost, "/api/folders", map[string]string{"name": "Internal"}))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("denied without folder_create", func(t *testing.T) {
		rec := serveApp(&mockAppStore{}, deny(), appRequest(t, http.MethodPost, "/api/folders", map[string]string{"name": "Internal"}))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAppHandler_GrantGroupAccess(t *testing.T) {
	store := &mockAppStore{
		getAppFunc: func(ctx context.Context, id, orgID int64) (*apps.App, error) {
			return &apps.App{ID: id, OrganizationID: orgID}, nil
		},
		grantFunc: func(ctx context.Context, tx *sql.Tx, appID, groupPermissionID int64, read, update, del bool) error {
			assert.Equal(t, int64(3), appID)
			assert.Equal(t, int64(11), groupPermissionID)
			assert.True(t, read)
			assert.True(t, update)
			assert.False(t, del)
			return nil
		},
	}

	rec := serveApp(store, allow(), appRequest(t, http.MethodPut, "/api/apps/3/groups/11", map[string]bool{
		"read": true, "update": true, "delete": false,
	}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
