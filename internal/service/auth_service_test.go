package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/modulearn/modulearn-api/internal/dto"
	"github.com/modulearn/modulearn-api/internal/models"
	appErrors "github.com/modulearn/modulearn-api/pkg/errors"
)

type authUserStoreStub struct {
	users   map[string]*models.User
	tokens  map[string]*models.RefreshToken
	nextID  int
	loginAt *time.Time
}

func newAuthUserStoreStub() *authUserStoreStub {
	return &authUserStoreStub{users: map[string]*models.User{}, tokens: map[string]*models.RefreshToken{}}
}

func (s *authUserStoreStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authUserStoreStub) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *authUserStoreStub) Create(_ context.Context, user *models.User) error {
	s.nextID++
	user.ID = fmt.Sprintf("user-%d", s.nextID)
	s.users[user.ID] = user
	return nil
}

func (s *authUserStoreStub) UpdateLastLogin(_ context.Context, _ string, ts time.Time) error {
	s.loginAt = &ts
	return nil
}

func (s *authUserStoreStub) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *authUserStoreStub) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := s.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (s *authUserStoreStub) DeleteRefreshToken(_ context.Context, id string) error {
	for value, token := range s.tokens {
		if token.ID == id {
			delete(s.tokens, value)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *authUserStoreStub) DeleteUserRefreshTokens(_ context.Context, userID string) error {
	for value, token := range s.tokens {
		if token.UserID == userID {
			delete(s.tokens, value)
		}
	}
	return nil
}

type authOrgStoreStub struct {
	orgs   map[string]*models.Organization
	nextID int
}

func newAuthOrgStoreStub() *authOrgStoreStub {
	return &authOrgStoreStub{orgs: map[string]*models.Organization{}}
}

func (s *authOrgStoreStub) Create(_ context.Context, org *models.Organization) error {
	s.nextID++
	org.ID = fmt.Sprintf("org-%d", s.nextID)
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	if org.SubscriptionStatus == "" {
		org.SubscriptionStatus = models.SubscriptionActive
	}
	s.orgs[org.ID] = org
	return nil
}

func (s *authOrgStoreStub) GetByID(_ context.Context, id string) (*models.Organization, error) {
	org, ok := s.orgs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return org, nil
}

func newAuthServiceForTest(users *authUserStoreStub, orgs *authOrgStoreStub) *AuthService {
	return NewAuthService(users, orgs, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		Issuer:            "modulearn-test",
	})
}

func seedUser(t *testing.T, users *authUserStoreStub, email, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Email:        email,
		OrgID:        "org-1",
		PasswordHash: string(hash),
		FullName:     "Pat Learner",
		Role:         models.RoleLearner,
		Active:       active,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestRegisterCreatesOrgAndAdmin(t *testing.T) {
	users := newAuthUserStoreStub()
	orgs := newAuthOrgStoreStub()
	svc := newAuthServiceForTest(users, orgs)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{
		OrgName:  "Acme",
		FullName: "Ada Admin",
		Email:    "Ada@Acme.example ",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Equal(t, "ada@acme.example", resp.User.Email)

	org, err := orgs.GetByID(context.Background(), resp.User.OrgID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, org.Plan)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "taken@example.com", "pw123456", true)

	_, err := svc.Register(context.Background(), dto.RegisterRequest{
		OrgName:  "Acme",
		FullName: "Ada Admin",
		Email:    "taken@example.com",
		Password: "correct horse",
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestLoginSuccess(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "pat@example.com", "hunter2222", true)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "pat@example.com", Password: "hunter2222"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, users.loginAt)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, models.RoleLearner, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "pat@example.com", "hunter2222", true)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "pat@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	svc := newAuthServiceForTest(newAuthUserStoreStub(), newAuthOrgStoreStub())

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "gone@example.com", "hunter2222", false)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "gone@example.com", Password: "hunter2222"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestRefreshRotatesToken(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "pat@example.com", "hunter2222", true)

	first, err := svc.Login(context.Background(), dto.LoginRequest{Email: "pat@example.com", Password: "hunter2222"})
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), dto.RefreshRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The used token is gone; replaying it must fail.
	_, err = svc.Refresh(context.Background(), dto.RefreshRequest{RefreshToken: first.RefreshToken})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestRefreshExpiredToken(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	user := seedUser(t, users, "pat@example.com", "hunter2222", true)

	stale := &models.RefreshToken{
		ID:        "rt-1",
		UserID:    user.ID,
		Token:     "stale-token",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, users.CreateRefreshToken(context.Background(), stale))

	_, err := svc.Refresh(context.Background(), dto.RefreshRequest{RefreshToken: "stale-token"})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	_, err = users.FindRefreshToken(context.Background(), "stale-token")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLogoutRequiresOwnership(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "pat@example.com", "hunter2222", true)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "pat@example.com", Password: "hunter2222"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), resp.RefreshToken, "someone-else")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	require.NoError(t, svc.Logout(context.Background(), resp.RefreshToken, resp.User.ID))
	_, err = users.FindRefreshToken(context.Background(), resp.RefreshToken)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	users := newAuthUserStoreStub()
	svc := newAuthServiceForTest(users, newAuthOrgStoreStub())
	seedUser(t, users, "pat@example.com", "hunter2222", true)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: "pat@example.com", Password: "hunter2222"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	assert.Error(t, err)

	other := NewAuthService(users, newAuthOrgStoreStub(), zap.NewNop(), AuthConfig{AccessTokenSecret: "other-secret"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.Error(t, err)
}
