package authn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hangarhq/hangar/pkg/apperr"
	"github.com/hangarhq/hangar/pkg/mailer"
	"github.com/hangarhq/hangar/pkg/orgs"
	"github.com/hangarhq/hangar/pkg/users"
)

const defaultOrganizationName = "Untitled organization"

// LoginRecorder observes login outcomes, typically for metrics. May be nil.
type LoginRecorder interface {
	RecordLogin(outcome string)
	RecordSignup()
	RecordPasswordReset()
}

// Service implements the account and session lifecycle.
type Service struct {
	db       *sql.DB
	users    *users.Store
	orgs     *orgs.Store
	hasher   Hasher
	signer   Signer
	mailer   mailer.Mailer
	logger   *logrus.Logger
	recorder LoginRecorder

	signupsDisabled bool
}

// NewService creates the auth service. recorder may be nil.
func NewService(
	db *sql.DB,
	userStore *users.Store,
	orgStore *orgs.Store,
	hasher Hasher,
	signer Signer,
	m mailer.Mailer,
	logger *logrus.Logger,
	recorder LoginRecorder,
	signupsDisabled bool,
) *Service {
	return &Service{
		db:              db,
		users:           userStore,
		orgs:            orgStore,
		hasher:          hasher,
		signer:          signer,
		mailer:          m,
		logger:          logger,
		recorder:        recorder,
		signupsDisabled: signupsDisabled,
	}
}

// errInvalidCredentials is the single error every login failure maps to.
func errInvalidCredentials() error {
	return apperr.Unauthorized("invalid email or password")
}

// Login verifies credentials and returns a session scoped to the requested
// organization, or to the user's default organization when none is given.
func (s *Service) Login(ctx context.Context, email, password string, organizationID *int64) (*SessionPayload, error) {
	var user *users.User
	var err error
	if organizationID != nil {
		user, err = s.users.GetByEmailInOrganization(ctx, email, *organizationID)
	} else {
		user, err = s.users.GetByEmail(ctx, email)
	}
	if apperr.IsNotFound(err) {
		s.recordLogin("failure")
		return nil, errInvalidCredentials()
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Compare(user.PasswordDigest, password) {
		s.recordLogin("failure")
		return nil, errInvalidCredentials()
	}

	orgID, err := s.effectiveOrganization(user, organizationID)
	if err != nil {
		s.recordLogin("failure")
		return nil, err
	}

	// The unscoped lookup skipped the membership join, so check it here.
	if organizationID == nil {
		member, err := s.orgs.GetMember(ctx, orgID, user.ID)
		if apperr.IsNotFound(err) {
			s.recordLogin("failure")
			return nil, errInvalidCredentials()
		}
		if err != nil {
			return nil, err
		}
		if !member.IsActive() {
			s.recordLogin("failure")
			return nil, errInvalidCredentials()
		}
	}

	payload, err := s.buildSession(ctx, user, orgID)
	if err != nil {
		return nil, err
	}
	s.recordLogin("success")
	return payload, nil
}

// SwitchOrganization re-issues the session scoped to another organization
// the user is an active member of.
func (s *Service) SwitchOrganization(ctx context.Context, userID, newOrganizationID int64) (*SessionPayload, error) {
	user, err := s.users.GetByIDInOrganization(ctx, userID, newOrganizationID)
	if apperr.IsNotFound(err) {
		return nil, apperr.Unauthorized("no access to organization")
	}
	if err != nil {
		return nil, err
	}
	return s.buildSession(ctx, user, newOrganizationID)
}

// Signup creates a new tenant: an organization, its default groups, the
// first user holding both of them, and an invited membership. The welcome
// email carries the token the account setup flow consumes. When signups are
// administratively disabled the call succeeds without doing anything.
func (s *Service) Signup(ctx context.Context, params SignupParams) error {
	if s.signupsDisabled {
		s.logger.WithField("email", params.Email).Info("signup ignored, signups are disabled")
		return nil
	}
	if params.Email == "" {
		return apperr.BadRequest("email is required")
	}

	digest := ""
	if params.Password != "" {
		var err error
		digest, err = s.hasher.Hash(params.Password)
		if err != nil {
			return err
		}
	}

	invitationToken := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin signup transaction: %w", err)
	}
	defer tx.Rollback()

	org, err := s.orgs.CreateOrganization(ctx, tx, defaultOrganizationName)
	if err != nil {
		return err
	}
	if err := s.users.CreateDefaultGroups(ctx, tx, org.ID); err != nil {
		return err
	}

	user := &users.User{
		Email:                 params.Email,
		FirstName:             params.FirstName,
		LastName:              params.LastName,
		PasswordDigest:        digest,
		DefaultOrganizationID: &org.ID,
		InvitationToken:       &invitationToken,
	}
	if err := s.users.CreateUser(ctx, tx, user); err != nil {
		return err
	}
	if err := s.users.AddGroups(ctx, tx, user.ID, org.ID, []string{users.GroupAllUsers, users.GroupAdmin}); err != nil {
		return err
	}

	member := &orgs.Member{OrganizationID: org.ID, UserID: user.ID, Status: orgs.MemberStatusInvited}
	if err := s.orgs.CreateMember(ctx, tx, member); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signup transaction: %w", err)
	}

	if err := s.mailer.SendWelcomeEmail(ctx, user.Email, invitationToken); err != nil {
		// The account exists; the user can recover through password reset.
		s.logger.WithError(err).WithField("email", user.Email).Error("failed to send welcome email")
	}
	if s.recorder != nil {
		s.recorder.RecordSignup()
	}
	return nil
}

// ForgotPassword stores a fresh reset token on the user and mails it.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token := uuid.NewString()
	if err := s.users.SetForgotPasswordToken(ctx, user.ID, token); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password. The token
// is cleared in the same statement, so a second use fails.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	user, err := s.users.GetByForgotPasswordToken(ctx, token)
	if apperr.IsNotFound(err) {
		return apperr.NotFound("invalid password reset token")
	}
	if err != nil {
		return err
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.users.ResetPassword(ctx, user.ID, digest); err != nil {
		return err
	}

	if s.recorder != nil {
		s.recorder.RecordPasswordReset()
	}
	return nil
}

// SetupAccountFromInvitationToken finishes account creation from an
// invitation link. The token lives on the user row for fresh signups and on
// the membership row for invites into an existing organization; both paths
// end with an active membership and a cleared token.
func (s *Service) SetupAccountFromInvitationToken(ctx context.Context, params SetupAccountParams) (*SessionPayload, error) {
	if params.Token == "" {
		return nil, apperr.BadRequest("invitation token is required")
	}

	user, member, err := s.resolveInvitation(ctx, params.Token)
	if err != nil {
		return nil, err
	}

	digest := ""
	if params.Password != "" {
		digest, err = s.hasher.Hash(params.Password)
		if err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin setup transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.users.ActivateAccount(ctx, tx, user.ID, params.FirstName, params.LastName, digest); err != nil {
		return nil, err
	}
	if err := s.orgs.ActivateMember(ctx, tx, member.ID); err != nil {
		return nil, err
	}
	if params.OrganizationName != "" {
		if err := s.orgs.RenameOrganization(ctx, tx, member.OrganizationID, params.OrganizationName); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit setup transaction: %w", err)
	}

	user, err = s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.buildSession(ctx, user, member.OrganizationID)
}

// resolveInvitation finds the user and membership an invitation token refers
// to. A token that matches nothing, or matches a row whose linked records
// are missing, is rejected as a bad request.
func (s *Service) resolveInvitation(ctx context.Context, token string) (*users.User, *orgs.Member, error) {
	user, err := s.users.GetByInvitationToken(ctx, token)
	if err == nil {
		if user.DefaultOrganizationID == nil {
			return nil, nil, apperr.BadRequest("invalid invitation token")
		}
		member, err := s.orgs.GetMember(ctx, *user.DefaultOrganizationID, user.ID)
		if apperr.IsNotFound(err) {
			return nil, nil, apperr.BadRequest("invalid invitation token")
		}
		if err != nil {
			return nil, nil, err
		}
		return user, member, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, nil, err
	}

	member, err := s.orgs.GetMemberByInvitationToken(ctx, token)
	if apperr.IsNotFound(err) {
		return nil, nil, apperr.BadRequest("invalid invitation token")
	}
	if err != nil {
		return nil, nil, err
	}
	user, err = s.users.GetByID(ctx, member.UserID)
	if apperr.IsNotFound(err) {
		return nil, nil, apperr.BadRequest("invalid invitation token")
	}
	if err != nil {
		return nil, nil, err
	}
	return user, member, nil
}

func (s *Service) effectiveOrganization(user *users.User, requested *int64) (int64, error) {
	if requested != nil {
		return *requested, nil
	}
	if user.DefaultOrganizationID != nil {
		return *user.DefaultOrganizationID, nil
	}
	return 0, errInvalidCredentials()
}

func (s *Service) buildSession(ctx context.Context, user *users.User, orgID int64) (*SessionPayload, error) {
	org, err := s.orgs.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	groups, err := s.users.GroupPermissions(ctx, user.ID, orgID)
	if err != nil {
		return nil, err
	}
	appGrants, err := s.users.AppGroupPermissions(ctx, user.ID, orgID, nil)
	if err != nil {
		return nil, err
	}

	admin := false
	for _, gp := range groups {
		if gp.Group == users.GroupAdmin {
			admin = true
			break
		}
	}

	token, err := s.signer.Sign(user.ID, user.Email, orgID)
	if err != nil {
		return nil, err
	}

	return &SessionPayload{
		ID:                  user.ID,
		AuthToken:           token,
		Email:               user.Email,
		FirstName:           user.FirstName,
		LastName:            user.LastName,
		OrganizationID:      orgID,
		Organization:        org.Name,
		Admin:               admin,
		GroupPermissions:    groups,
		AppGroupPermissions: appGrants,
	}, nil
}

func (s *Service) recordLogin(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(outcome)
	}
}
