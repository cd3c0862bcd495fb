package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/authn"
	"github.com/hangarhq/hangar/pkg/httputil"
	"github.com/hangarhq/hangar/pkg/middleware"
)

// AuthProvider is the account lifecycle the handlers call into.
// *authn.Service satisfies it.
type AuthProvider interface {
	Login(ctx context.Context, email, password string, organizationID *int64) (*authn.SessionPayload, error)
	SwitchOrganization(ctx context.Context, userID, newOrganizationID int64) (*authn.SessionPayload, error)
	Signup(ctx context.Context, params authn.SignupParams) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	SetupAccountFromInvitationToken(ctx context.Context, params authn.SetupAccountParams) (*authn.SessionPayload, error)
}

// AuthHandler handles session and account endpoints
type AuthHandler struct {
	auth   AuthProvider
	logger *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth AuthProvider, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// RegisterPublicRoutes registers the endpoints reachable without a session
func (h *AuthHandler) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	router.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	router.HandleFunc("/auth/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	router.HandleFunc("/auth/reset-password", h.ResetPassword).Methods(http.MethodPost)
	router.HandleFunc("/auth/setup-account", h.SetupAccount).Methods(http.MethodPost)
}

// RegisterRoutes registers the endpoints that require a session
func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/switch/{organization_id}", h.SwitchOrganization).Methods(http.MethodPost)
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	payload, err := h.auth.Login(r.Context(), req.Email, req.Password, req.OrganizationID)
	if err != nil {
		h.logger.WithField("email", req.Email).WithError(err).Info("login rejected")
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, payload)
}

// SwitchOrganization handles POST /api/auth/switch/{organization_id}
func (h *AuthHandler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "organization_id")
	if !ok {
		return
	}

	payload, err := h.auth.SwitchOrganization(r.Context(), session.User.ID, orgID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, payload)
}

// Signup handles POST /api/auth/signup. The response is empty either way;
// whether signups are enabled is not observable here.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req authn.SignupParams
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.auth.Signup(r.Context(), req); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "token and password are required")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{})
}

// SetupAccount handles POST /api/auth/setup-account
func (h *AuthHandler) SetupAccount(w http.ResponseWriter, r *http.Request) {
	var req authn.SetupAccountParams
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	payload, err := h.auth.SetupAccountFromInvitationToken(r.Context(), req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, payload)
}
