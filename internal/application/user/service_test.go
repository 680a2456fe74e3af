package user

import (
	"context"
	"testing"
	"time"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/kurbanlink/api/internal/pkg/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error) {
	args := m.Called(ctx, limit, cursor)
	users, _ := args.Get(0).([]domain.User)
	return users, args.String(1), args.Error(2)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}
func (m *mockUserStore) SoftDelete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockSessionStore) SoftDeleteByUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) RedeemToken(ctx context.Context, email, tokenPlain string) error {
	return m.Called(ctx, email, tokenPlain).Error(0)
}
func (m *mockVerifier) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type mockJWTSigner struct{ mock.Mock }

func (m *mockJWTSigner) Sign(userID, email string, roles []string, sessionID string) (string, error) {
	args := m.Called(userID, email, roles, sessionID)
	return args.String(0), args.Error(1)
}

// --- builder ---

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(us *mockUserStore, ss *mockSessionStore, ev *mockVerifier, jwt *mockJWTSigner, enforce bool) Service {
	return NewService(ServiceDeps{
		UserRepo:            us,
		SessionRepo:         ss,
		Verifier:            ev,
		JWTProvider:         jwt,
		Hasher:              secret.NewBcrypt(bcrypt.MinCost),
		Clock:               clock.Fixed{T: testNow},
		RefreshTokenDur:     7 * 24 * time.Hour,
		RequireVerification: enforce,
	})
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	us := &mockUserStore{}
	ev := &mockVerifier{}

	us.On("GetByEmail", mock.Anything, "new@x.com").Return(nil, domain.ErrNotFound)
	ev.On("IsEmailVerified", mock.Anything, "new@x.com").Return(true, nil)

	var stored *domain.User
	us.On("Put", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.User) }).
		Return(nil)

	svc := newTestService(us, nil, ev, nil, false)
	u, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email:    "  New@X.com ",
		Password: "s3cret-pass",
		Roles:    []string{"SELLER"},
		City:     "Ankara",
	})

	require.NoError(t, err)
	assert.Equal(t, "new@x.com", u.Email)
	assert.ElementsMatch(t, []string{domain.RoleBuyer, domain.RoleSeller}, u.Roles)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, 1, u.Enable)
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret-pass")))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "dup@x.com").Return(&domain.User{UserID: "u1"}, nil)

	svc := newTestService(us, nil, nil, nil, false)
	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "dup@x.com", Password: "s3cret-pass",
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_RejectsUnknownRole(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "r@x.com").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil, nil, false)
	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "r@x.com", Password: "s3cret-pass", Roles: []string{"FARMER"},
	})

	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestRegister_RejectsSelfAssignedAdmin(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "r@x.com").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil, nil, false)
	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "r@x.com", Password: "s3cret-pass", Roles: []string{"ADMIN"},
	})

	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRegister_RedeemsSuppliedToken(t *testing.T) {
	us := &mockUserStore{}
	ev := &mockVerifier{}

	us.On("GetByEmail", mock.Anything, "new@x.com").Return(nil, domain.ErrNotFound)
	ev.On("RedeemToken", mock.Anything, "new@x.com", "tok-plain").Return(nil)
	us.On("Put", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(us, nil, ev, nil, false)
	u, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "new@x.com", Password: "s3cret-pass", VerificationToken: "tok-plain",
	})

	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	ev.AssertNotCalled(t, "IsEmailVerified", mock.Anything, mock.Anything)
}

func TestRegister_EnforcementRequiresToken(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "new@x.com").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil, nil, true)
	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "new@x.com", Password: "s3cret-pass",
	})

	assert.ErrorIs(t, err, domain.ErrBadRequest)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_EnforcementRejectsSpentToken(t *testing.T) {
	us := &mockUserStore{}
	ev := &mockVerifier{}

	us.On("GetByEmail", mock.Anything, "new@x.com").Return(nil, domain.ErrNotFound)
	ev.On("RedeemToken", mock.Anything, "new@x.com", "spent").Return(domain.ErrNoActiveToken)

	svc := newTestService(us, nil, ev, nil, true)
	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "new@x.com", Password: "s3cret-pass", VerificationToken: "spent",
	})

	assert.ErrorIs(t, err, domain.ErrNoActiveToken)
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_UnverifiedWithoutEnforcement(t *testing.T) {
	us := &mockUserStore{}
	ev := &mockVerifier{}

	us.On("GetByEmail", mock.Anything, "new@x.com").Return(nil, domain.ErrNotFound)
	ev.On("IsEmailVerified", mock.Anything, "new@x.com").Return(false, nil)
	us.On("Put", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(us, nil, ev, nil, false)
	u, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "new@x.com", Password: "s3cret-pass",
	})

	require.NoError(t, err)
	assert.False(t, u.EmailVerified)
}

// --- RegisterWithSession ---

func TestRegisterWithSession_IssuesTokens(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	ev := &mockVerifier{}
	jwt := &mockJWTSigner{}

	us.On("GetByEmail", mock.Anything, "new@x.com").Return(nil, domain.ErrNotFound)
	ev.On("IsEmailVerified", mock.Anything, "new@x.com").Return(true, nil)
	us.On("Put", mock.Anything, mock.Anything).Return(nil)

	var sess *domain.Session
	ss.On("Put", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sess = args.Get(1).(*domain.Session) }).
		Return(nil)
	jwt.On("Sign", mock.Anything, "new@x.com", mock.Anything, mock.Anything).Return("bearer-jwt", nil)

	svc := newTestService(us, ss, ev, jwt, false)
	got, bearer, refresh, err := svc.RegisterWithSession(context.Background(), domain.RegisterRequest{
		Email: "new@x.com", Password: "s3cret-pass",
	})

	require.NoError(t, err)
	assert.Equal(t, "bearer-jwt", bearer)
	assert.Len(t, refresh, 64) // 32 random bytes, hex
	assert.True(t, sess.Enable)
	assert.Equal(t, testNow.Add(7*24*time.Hour).Unix(), sess.RefreshExpiresAt)
	require.NotNil(t, got.User)
	assert.Equal(t, got.User.UserID, sess.UserID)
}

// --- ChangePassword / Delete ---

func TestChangePassword_WrongCurrent(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("right-pass"), bcrypt.MinCost)
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", PasswordHash: string(hash)}, nil)

	svc := newTestService(us, nil, nil, nil, false)
	err := svc.ChangePassword(context.Background(), "u1", "wrong-pass", "next-pass")

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete_DisablesSessions(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	us.On("SoftDelete", mock.Anything, "u1").Return(nil)
	ss.On("SoftDeleteByUser", mock.Anything, "u1").Return(nil)

	svc := newTestService(us, ss, nil, nil, false)
	err := svc.Delete(context.Background(), "u1")

	require.NoError(t, err)
	ss.AssertExpectations(t)
}
