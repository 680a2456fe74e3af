package verification

import (
	"context"
	"time"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/infrastructure/smtp"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/kurbanlink/api/internal/pkg/secret"
)

const (
	codeTTL        = 10 * time.Minute
	tokenTTL       = 30 * time.Minute
	resendCooldown = 60 * time.Second
)

// IssueResult is returned by RequestOTP. Code is the plaintext — handed to the
// email gateway and to tests, never serialised outward or persisted.
type IssueResult struct {
	ChallengeID string
	Code        string
	ExpiresAt   time.Time
}

// VerifyResult carries the single-use token minted after a successful
// verification. The plaintext token is returned exactly once.
type VerifyResult struct {
	Token          string
	TokenExpiresAt time.Time
}

type Service interface {
	// RequestOTP issues a new challenge for (email, purpose), superseding any
	// active one, and delivers the code by email. Fails with
	// *domain.RateLimitedError while the resend cooldown is running.
	RequestOTP(ctx context.Context, email, purpose string) (*IssueResult, error)
	// VerifyOTP checks a submitted code against the active challenge and, on
	// success, issues a verification token.
	VerifyOTP(ctx context.Context, email, purpose, code string) (*VerifyResult, error)
	// RedeemToken consumes a verification token exactly once.
	RedeemToken(ctx context.Context, email, tokenPlain string) error
	// IsEmailVerified reports whether control of the email was ever proven.
	IsEmailVerified(ctx context.Context, email string) (bool, error)
}

type challengeStore interface {
	GetCurrent(ctx context.Context, email, purpose string) (*domain.OTPChallenge, int64, error)
	CreateSuperseding(ctx context.Context, ch, prev *domain.OTPChallenge, headVersion int64) error
	IncrementAttempts(ctx context.Context, ch *domain.OTPChallenge) (int, error)
	MarkVerified(ctx context.Context, ch *domain.OTPChallenge, now time.Time) error
	HasVerified(ctx context.Context, email, purpose string) (bool, error)
}

type tokenStore interface {
	GetCurrent(ctx context.Context, email, purpose string) (*domain.VerificationToken, int64, error)
	CreateSuperseding(ctx context.Context, tok, prev *domain.VerificationToken, headVersion int64) error
	MarkConsumed(ctx context.Context, tok *domain.VerificationToken, now time.Time) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, userID string) error
}

type service struct {
	challenges challengeStore
	tokens     tokenStore
	users      userStore
	mailer     smtp.Mailer
	hasher     secret.Hasher
	clock      clock.Clock
}

type ServiceDeps struct {
	ChallengeRepo challengeStore
	TokenRepo     tokenStore
	UserRepo      userStore
	Mailer        smtp.Mailer
	Hasher        secret.Hasher
	Clock         clock.Clock
}

func NewService(deps ServiceDeps) Service {
	return &service{
		challenges: deps.ChallengeRepo,
		tokens:     deps.TokenRepo,
		users:      deps.UserRepo,
		mailer:     deps.Mailer,
		hasher:     deps.Hasher,
		clock:      deps.Clock,
	}
}
