package verification

import (
	"context"
	"time"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/kurbanlink/api/internal/pkg/secret"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockChallengeStore struct{ mock.Mock }

func (m *mockChallengeStore) GetCurrent(ctx context.Context, email, purpose string) (*domain.OTPChallenge, int64, error) {
	args := m.Called(ctx, email, purpose)
	if ch, _ := args.Get(0).(*domain.OTPChallenge); ch != nil {
		return ch, args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}
func (m *mockChallengeStore) CreateSuperseding(ctx context.Context, ch, prev *domain.OTPChallenge, headVersion int64) error {
	return m.Called(ctx, ch, prev, headVersion).Error(0)
}
func (m *mockChallengeStore) IncrementAttempts(ctx context.Context, ch *domain.OTPChallenge) (int, error) {
	args := m.Called(ctx, ch)
	return args.Int(0), args.Error(1)
}
func (m *mockChallengeStore) MarkVerified(ctx context.Context, ch *domain.OTPChallenge, now time.Time) error {
	return m.Called(ctx, ch, now).Error(0)
}
func (m *mockChallengeStore) HasVerified(ctx context.Context, email, purpose string) (bool, error) {
	args := m.Called(ctx, email, purpose)
	return args.Bool(0), args.Error(1)
}

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) GetCurrent(ctx context.Context, email, purpose string) (*domain.VerificationToken, int64, error) {
	args := m.Called(ctx, email, purpose)
	if tok, _ := args.Get(0).(*domain.VerificationToken); tok != nil {
		return tok, args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}
func (m *mockTokenStore) CreateSuperseding(ctx context.Context, tok, prev *domain.VerificationToken, headVersion int64) error {
	return m.Called(ctx, tok, prev, headVersion).Error(0)
}
func (m *mockTokenStore) MarkConsumed(ctx context.Context, tok *domain.VerificationToken, now time.Time) error {
	return m.Called(ctx, tok, now).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

// --- builder ---

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testHasher() secret.Hasher { return secret.NewBcrypt(bcrypt.MinCost) }

func hashOf(plaintext string) string {
	h, err := testHasher().Hash(plaintext)
	if err != nil {
		panic(err)
	}
	return h
}

func newTestService(cs *mockChallengeStore, ts *mockTokenStore, us *mockUserStore, ml *mockMailer) Service {
	return NewService(ServiceDeps{
		ChallengeRepo: cs,
		TokenRepo:     ts,
		UserRepo:      us,
		Mailer:        ml,
		Hasher:        testHasher(),
		Clock:         clock.Fixed{T: testNow},
	})
}
