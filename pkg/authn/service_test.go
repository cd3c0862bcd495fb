package authn

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hangarhq/hangar/pkg/apperr"
	"github.com/hangarhq/hangar/pkg/orgs"
	"github.com/hangarhq/hangar/pkg/users"
)

type fakeMailer struct {
	welcomes []string
	resets   []string
	tokens   []string
}

func (f *fakeMailer) SendWelcomeEmail(ctx context.Context, email, invitationToken string) error {
	f.welcomes = append(f.welcomes, email)
	f.tokens = append(f.tokens, invitationToken)
	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(ctx context.Context, email, resetToken string) error {
	f.resets = append(f.resets, email)
	f.tokens = append(f.tokens, resetToken)
	return nil
}

type serviceFixture struct {
	service *Service
	mock    sqlmock.Sqlmock
	mailer  *fakeMailer
	signer  *JWTSigner
}

func newServiceFixture(t *testing.T, signupsDisabled bool) *serviceFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := &fakeMailer{}
	signer := NewJWTSigner("test-secret")
	service := NewService(
		db,
		users.NewStore(db),
		orgs.NewStore(db),
		NewBcryptHasher(bcrypt.MinCost),
		signer,
		m,
		logger,
		nil,
		signupsDisabled,
	)
	return &serviceFixture{service: service, mock: mock, mailer: m, signer: signer}
}

func mustDigest(t *testing.T, password string) string {
	t.Helper()
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(digest)
}

func userRow(id int64, email, digest string, defaultOrgID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "password_digest",
		"default_organization_id", "invitation_token", "forgot_password_token",
		"created_at", "updated_at",
	}).AddRow(id, email, "Jane", "Doe", digest, defaultOrgID, nil, nil, now, now)
}

func expectSessionQueries(mock sqlmock.Sqlmock, orgID int64) {
	now := time.Now()
	mock.ExpectQuery("FROM organizations WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow(orgID, "Acme", now, now))
	mock.ExpectQuery("FROM group_permissions gp").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "group_name", "app_create", "app_delete", "folder_create",
		}).
			AddRow(int64(10), orgID, users.GroupAdmin, true, true, true).
			AddRow(int64(11), orgID, users.GroupAllUsers, false, false, false))
	mock.ExpectQuery("FROM app_group_permissions agp").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_id", "group_permission_id", "can_read", "can_update", "can_delete",
		}))
}

func TestService_Login(t *testing.T) {
	t.Run("success with default organization", func(t *testing.T) {
		f := newServiceFixture(t, false)
		now := time.Now()

		f.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("jane@example.com").
			WillReturnRows(userRow(1, "jane@example.com", mustDigest(t, "hunter2"), int64(7)))
		f.mock.ExpectQuery("FROM organization_users WHERE organization_id").
			WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "organization_id", "user_id", "status", "invitation_token", "created_at", "updated_at",
			}).AddRow(int64(3), int64(7), int64(1), orgs.MemberStatusActive, nil, now, now))
		expectSessionQueries(f.mock, 7)

		payload, err := f.service.Login(context.Background(), "jane@example.com", "hunter2", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), payload.ID)
		assert.Equal(t, int64(7), payload.OrganizationID)
		assert.Equal(t, "Acme", payload.Organization)
		assert.True(t, payload.Admin)
		assert.Len(t, payload.GroupPermissions, 2)

		claims, err := f.signer.Verify(payload.AuthToken)
		require.NoError(t, err)
		assert.Equal(t, int64(1), claims.Username)
		assert.Equal(t, "jane@example.com", claims.Subject)
		assert.Equal(t, int64(7), claims.OrganizationID)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("jane@example.com").
			WillReturnRows(userRow(1, "jane@example.com", mustDigest(t, "hunter2"), int64(7)))

		_, err := f.service.Login(context.Background(), "jane@example.com", "wrong", nil)
		assert.True(t, apperr.IsUnauthorized(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := f.service.Login(context.Background(), "nobody@example.com", "hunter2", nil)
		assert.True(t, apperr.IsUnauthorized(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("archived membership", func(t *testing.T) {
		f := newServiceFixture(t, false)
		now := time.Now()

		f.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("jane@example.com").
			WillReturnRows(userRow(1, "jane@example.com", mustDigest(t, "hunter2"), int64(7)))
		f.mock.ExpectQuery("FROM organization_users WHERE organization_id").
			WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "organization_id", "user_id", "status", "invitation_token", "created_at", "updated_at",
			}).AddRow(int64(3), int64(7), int64(1), orgs.MemberStatusArchived, nil, now, now))

		_, err := f.service.Login(context.Background(), "jane@example.com", "hunter2", nil)
		assert.True(t, apperr.IsUnauthorized(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("scoped login requires active membership in that organization", func(t *testing.T) {
		f := newServiceFixture(t, false)
		orgID := int64(9)

		f.mock.ExpectQuery("INNER JOIN organization_users").
			WithArgs("jane@example.com", orgID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := f.service.Login(context.Background(), "jane@example.com", "hunter2", &orgID)
		assert.True(t, apperr.IsUnauthorized(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestService_SwitchOrganization(t *testing.T) {
	t.Run("re-issues session for the target organization", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("INNER JOIN organization_users").
			WithArgs(int64(1), int64(8)).
			WillReturnRows(userRow(1, "jane@example.com", "digest", int64(7)))
		expectSessionQueries(f.mock, 8)

		payload, err := f.service.SwitchOrganization(context.Background(), 1, 8)
		require.NoError(t, err)
		assert.Equal(t, int64(8), payload.OrganizationID)

		claims, err := f.signer.Verify(payload.AuthToken)
		require.NoError(t, err)
		assert.Equal(t, int64(8), claims.OrganizationID)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("no membership in target", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("INNER JOIN organization_users").
			WithArgs(int64(1), int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := f.service.SwitchOrganization(context.Background(), 1, 99)
		assert.True(t, apperr.IsUnauthorized(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestService_Signup(t *testing.T) {
	t.Run("creates organization, groups, user and membership", func(t *testing.T) {
		f := newServiceFixture(t, false)
		now := time.Now()

		f.mock.ExpectBegin()
		f.mock.ExpectQuery("INSERT INTO organizations").
			WithArgs("Untitled organization").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))
		f.mock.ExpectExec("INSERT INTO group_permissions").
			WithArgs(int64(7), users.GroupAdmin, true, true, true).
			WillReturnResult(sqlmock.NewResult(10, 1))
		f.mock.ExpectExec("INSERT INTO group_permissions").
			WithArgs(int64(7), users.GroupAllUsers, false, false, false).
			WillReturnResult(sqlmock.NewResult(11, 1))
		f.mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
		f.mock.ExpectQuery("SELECT id FROM group_permissions").
			WithArgs(int64(7), users.GroupAllUsers).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
		f.mock.ExpectExec("INSERT INTO user_group_permissions").
			WithArgs(int64(1), int64(11)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery("SELECT id FROM group_permissions").
			WithArgs(int64(7), users.GroupAdmin).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
		f.mock.ExpectExec("INSERT INTO user_group_permissions").
			WithArgs(int64(1), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery("INSERT INTO organization_users").
			WithArgs(int64(7), int64(1), orgs.MemberStatusInvited, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))
		f.mock.ExpectCommit()

		err := f.service.Signup(context.Background(), SignupParams{
			Email:     "jane@example.com",
			FirstName: "Jane",
			LastName:  "Doe",
			Password:  "hunter2",
		})
		require.NoError(t, err)
		require.Len(t, f.mailer.welcomes, 1)
		assert.Equal(t, "jane@example.com", f.mailer.welcomes[0])
		require.Len(t, f.mailer.tokens, 1)
		assert.NotEmpty(t, f.mailer.tokens[0])
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("disabled signups perform no writes", func(t *testing.T) {
		f := newServiceFixture(t, true)

		err := f.service.Signup(context.Background(), SignupParams{Email: "jane@example.com"})
		require.NoError(t, err)
		assert.Empty(t, f.mailer.welcomes)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("missing email", func(t *testing.T) {
		f := newServiceFixture(t, false)

		err := f.service.Signup(context.Background(), SignupParams{})
		assert.True(t, apperr.IsBadRequest(err))
	})
}

func TestService_ForgotPassword(t *testing.T) {
	t.Run("stores a token and mails it", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("jane@example.com").
			WillReturnRows(userRow(1, "jane@example.com", "digest", int64(7)))
		f.mock.ExpectExec("UPDATE users SET forgot_password_token").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := f.service.ForgotPassword(context.Background(), "jane@example.com")
		require.NoError(t, err)
		require.Len(t, f.mailer.resets, 1)
		assert.Equal(t, "jane@example.com", f.mailer.resets[0])
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		err := f.service.ForgotPassword(context.Background(), "nobody@example.com")
		assert.True(t, apperr.IsNotFound(err))
		assert.Empty(t, f.mailer.resets)
	})
}

func TestService_ResetPassword(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("WHERE forgot_password_token").
			WithArgs("reset-token").
			WillReturnRows(userRow(1, "jane@example.com", "digest", int64(7)))
		f.mock.ExpectExec("UPDATE users").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := f.service.ResetPassword(context.Background(), "reset-token", "new-password")
		require.NoError(t, err)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("WHERE forgot_password_token").
			WithArgs("stale-token").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		err := f.service.ResetPassword(context.Background(), "stale-token", "new-password")
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestService_SetupAccountFromInvitationToken(t *testing.T) {
	memberCols := []string{"id", "organization_id", "user_id", "status", "invitation_token", "created_at", "updated_at"}

	t.Run("signup invitation on the user row", func(t *testing.T) {
		f := newServiceFixture(t, false)
		now := time.Now()

		userWithToken := sqlmock.NewRows([]string{
			"id", "email", "first_name", "last_name", "password_digest",
			"default_organization_id", "invitation_token", "forgot_password_token",
			"created_at", "updated_at",
		}).AddRow(int64(1), "jane@example.com", "", "", "", int64(7), "invite-token", nil, now, now)

		f.mock.ExpectQuery("WHERE invitation_token").
			WithArgs("invite-token").
			WillReturnRows(userWithToken)
		f.mock.ExpectQuery("FROM organization_users WHERE organization_id").
			WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows(memberCols).
				AddRow(int64(3), int64(7), int64(1), orgs.MemberStatusInvited, nil, now, now))

		f.mock.ExpectBegin()
		f.mock.ExpectExec("SET invitation_token = NULL").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec("UPDATE organization_users").
			WithArgs(orgs.MemberStatusActive, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec("UPDATE organizations SET name").
			WithArgs("Acme", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		f.mock.ExpectQuery("FROM users WHERE id").
			WithArgs(int64(1)).
			WillReturnRows(userRow(1, "jane@example.com", "digest", int64(7)))
		expectSessionQueries(f.mock, 7)

		payload, err := f.service.SetupAccountFromInvitationToken(context.Background(), SetupAccountParams{
			Token:            "invite-token",
			FirstName:        "Jane",
			LastName:         "Doe",
			Password:         "hunter2",
			OrganizationName: "Acme",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), payload.ID)
		assert.Equal(t, int64(7), payload.OrganizationID)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("invite into an existing organization on the membership row", func(t *testing.T) {
		f := newServiceFixture(t, false)
		now := time.Now()

		f.mock.ExpectQuery("WHERE invitation_token").
			WithArgs("member-token").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		f.mock.ExpectQuery("FROM organization_users WHERE invitation_token").
			WithArgs("member-token").
			WillReturnRows(sqlmock.NewRows(memberCols).
				AddRow(int64(4), int64(8), int64(2), orgs.MemberStatusInvited, "member-token", now, now))
		f.mock.ExpectQuery("FROM users WHERE id").
			WithArgs(int64(2)).
			WillReturnRows(userRow(2, "joe@example.com", "", int64(5)))

		f.mock.ExpectBegin()
		f.mock.ExpectExec("SET invitation_token = NULL").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectExec("UPDATE organization_users").
			WithArgs(orgs.MemberStatusActive, int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectCommit()

		f.mock.ExpectQuery("FROM users WHERE id").
			WithArgs(int64(2)).
			WillReturnRows(userRow(2, "joe@example.com", "digest", int64(5)))
		expectSessionQueries(f.mock, 8)

		payload, err := f.service.SetupAccountFromInvitationToken(context.Background(), SetupAccountParams{
			Token: "member-token",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), payload.ID)
		assert.Equal(t, int64(8), payload.OrganizationID)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newServiceFixture(t, false)

		f.mock.ExpectQuery("WHERE invitation_token").
			WithArgs("bogus").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		f.mock.ExpectQuery("FROM organization_users WHERE invitation_token").
			WithArgs("bogus").
			WillReturnRows(sqlmock.NewRows(memberCols))

		_, err := f.service.SetupAccountFromInvitationToken(context.Background(), SetupAccountParams{Token: "bogus"})
		assert.True(t, apperr.IsBadRequest(err))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}
