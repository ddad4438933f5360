package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
	"github.com/modulearn/modulearn-api/pkg/ratelimit"
)

type teamUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	CountByOrg(ctx context.Context, orgID string) (int, error)
}

type inviteMailer interface {
	SendInvitation(to, inviterName, orgName, joinURL string) error
}

// TeamConfig shapes invitation behaviour.
type TeamConfig struct {
	JoinURLBase string
}

// TeamService manages organization membership: invites, role changes and
// deactivation.
type TeamService struct {
	users   teamUserStore
	orgs    authOrgStore
	mailer  inviteMailer
	limiter actionLimiter
	logger  *zap.Logger
	cfg     TeamConfig
}

// NewTeamService constructs the service.
func NewTeamService(users teamUserStore, orgs authOrgStore, mailer inviteMailer, limiter actionLimiter, logger *zap.Logger, cfg TeamConfig) *TeamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamService{users: users, orgs: orgs, mailer: mailer, limiter: limiter, logger: logger, cfg: cfg}
}

// List returns the org's members.
func (s *TeamService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Invite creates a member account with a generated password and emails a join
// link. Rate limited per inviter; plan member ceilings apply.
func (s *TeamService) Invite(ctx context.Context, claims *models.JWTClaims, req dto.InviteRequest) (*models.User, error) {
	if s.limiter != nil {
		if err := s.limiter.Check(claims.UserID, ratelimit.ActionTeamInvite); err != nil {
			return nil, err
		}
	}

	org, err := s.orgs.GetByID(ctx, claims.OrgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	if org.SubscriptionStatus != models.SubscriptionActive {
		return nil, appErrors.Clone(appErrors.ErrPlanLimit, "subscription is not active")
	}
	limits := models.LimitsFor(org.Plan)
	if limits.MaxMembers > 0 {
		count, err := s.users.CountByOrg(ctx, claims.OrgID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count members")
		}
		if count >= limits.MaxMembers {
			return nil, appErrors.ErrPlanLimit
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	tempPassword, err := generateTempPassword()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		OrgID:        claims.OrgID,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create member")
	}

	inviter, err := s.users.FindByID(ctx, claims.UserID)
	inviterName := "An administrator"
	if err == nil {
		inviterName = inviter.FullName
	}
	joinURL := fmt.Sprintf("%s?email=%s", s.cfg.JoinURLBase, email)
	if s.mailer != nil {
		if err := s.mailer.SendInvitation(email, inviterName, org.Name, joinURL); err != nil {
			s.logger.Sugar().Warnw("failed to send invitation mail", "email", email, "error", err)
		}
	}
	return user, nil
}

// UpdateMember changes a member's role or active flag. The last active admin
// cannot be demoted or deactivated.
func (s *TeamService) UpdateMember(ctx context.Context, orgID, memberID string, req dto.UpdateMemberRequest) (*models.User, error) {
	user, err := s.users.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if user.OrgID != orgID {
		return nil, appErrors.ErrNotFound
	}

	demoting := req.Role != nil && *req.Role != models.RoleAdmin && user.Role == models.RoleAdmin
	deactivating := req.Active != nil && !*req.Active && user.Active
	if (demoting || deactivating) && user.Role == models.RoleAdmin {
		admins, err := s.countActiveAdmins(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "organization must keep at least one active admin")
		}
	}

	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update member")
	}
	return user, nil
}

// RemoveMember deactivates a member, keeping their progress history intact.
func (s *TeamService) RemoveMember(ctx context.Context, orgID, actorID, memberID string) error {
	if actorID == memberID {
		return appErrors.Clone(appErrors.ErrConflict, "you cannot remove yourself")
	}
	user, err := s.users.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if user.OrgID != orgID {
		return appErrors.ErrNotFound
	}
	if user.Role == models.RoleAdmin {
		admins, err := s.countActiveAdmins(ctx, orgID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return appErrors.Clone(appErrors.ErrConflict, "organization must keep at least one active admin")
		}
	}
	if err := s.users.Deactivate(ctx, memberID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate member")
	}
	return nil
}

func (s *TeamService) countActiveAdmins(ctx context.Context, orgID string) (int, error) {
	role := models.RoleAdmin
	active := true
	_, total, err := s.users.List(ctx, models.UserFilter{OrgID: orgID, Role: &role, Active: &active, PageSize: 1})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admins")
	}
	return total, nil
}

func generateTempPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
