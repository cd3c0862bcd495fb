// Package middleware provides HTTP middleware that resolves the session
// behind a bearer token and gates admin-only routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/apperr"
	"github.com/hangarhq/hangar/pkg/authn"
	"github.com/hangarhq/hangar/pkg/httputil"
	"github.com/hangarhq/hangar/pkg/orgs"
	"github.com/hangarhq/hangar/pkg/users"
)

type contextKey string

const sessionKey contextKey = "session"

// Session is the authenticated caller attached to the request context.
type Session struct {
	User           *users.User
	OrganizationID int64
	Member         *orgs.Member
}

// TokenVerifier verifies a session token. *authn.JWTSigner satisfies it.
type TokenVerifier interface {
	Verify(token string) (*authn.SessionClaims, error)
}

// Auth authenticates requests and resolves the caller's membership.
type Auth struct {
	verifier TokenVerifier
	users    *users.Store
	orgs     *orgs.Store
	logger   *logrus.Logger
}

// NewAuth creates the session middleware
func NewAuth(verifier TokenVerifier, userStore *users.Store, orgStore *orgs.Store, logger *logrus.Logger) *Auth {
	return &Auth{verifier: verifier, users: userStore, orgs: orgStore, logger: logger}
}

// Authenticate rejects requests without a valid bearer token or without an
// active membership in the token's organization.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := a.verifier.Verify(token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid session token")
			return
		}

		user, err := a.users.GetByID(r.Context(), claims.Username)
		if err != nil {
			a.rejectOrFail(w, err)
			return
		}

		member, err := a.orgs.GetMember(r.Context(), claims.OrganizationID, user.ID)
		if err != nil {
			a.rejectOrFail(w, err)
			return
		}
		if !member.IsActive() {
			httputil.WriteUnauthorized(w, "membership is not active")
			return
		}

		session := &Session{User: user, OrganizationID: claims.OrganizationID, Member: member}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// RequireAdmin allows only callers holding the admin group in their current
// organization. It must run after Authenticate.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFrom(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		admin, err := a.users.HasGroup(r.Context(), session.User.ID, session.OrganizationID, users.GroupAdmin)
		if err != nil {
			a.logger.WithError(err).Error("admin check failed")
			httputil.WriteInternalError(w)
			return
		}
		if !admin {
			httputil.WriteForbidden(w, "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Auth) rejectOrFail(w http.ResponseWriter, err error) {
	if apperr.IsNotFound(err) {
		httputil.WriteUnauthorized(w, "invalid session token")
		return
	}
	a.logger.WithError(err).Error("session lookup failed")
	httputil.WriteInternalError(w)
}

// WithSession attaches a session to the context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFrom returns the session attached by Authenticate
func SessionFrom(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionKey).(*Session)
	return session, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
