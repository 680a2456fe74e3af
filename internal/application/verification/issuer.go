package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/id"
	pkgtoken "github.com/kurbanlink/api/internal/pkg/token"
)

func (s *service) RequestOTP(ctx context.Context, email, purpose string) (*IssueResult, error) {
	if purpose != domain.PurposeRegisterEmailVerify {
		return nil, fmt.Errorf("unknown verification purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	now := s.clock.Now()

	// The head record is the most recently created challenge regardless of its
	// state, which is exactly what the cooldown is measured against.
	prev, headVersion, err := s.challenges.GetCurrent(ctx, email, purpose)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if prev != nil && !prev.LastSentAt.IsZero() {
		if elapsed := now.Sub(prev.LastSentAt); elapsed < resendCooldown {
			remaining := int(math.Ceil((resendCooldown - elapsed).Seconds()))
			return nil, &domain.RateLimitedError{RetryAfterSeconds: remaining}
		}
	}

	// Weak reference to an identity record, if one already exists for the email.
	var userID string
	if u, uerr := s.users.GetByEmail(ctx, email); uerr == nil {
		if u.EmailVerified {
			return nil, fmt.Errorf("email already verified: %w", domain.ErrBadRequest)
		}
		userID = u.UserID
	}

	code, err := pkgtoken.NewOTPCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, err
	}

	ch := &domain.OTPChallenge{
		VKey:        domain.VerificationKey(email, purpose),
		ChallengeID: id.New(),
		Email:       email,
		Purpose:     purpose,
		CodeHash:    codeHash,
		Status:      domain.ChallengeStatusActive,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(codeTTL),
		LastSentAt:  now,
	}
	var supersede *domain.OTPChallenge
	if prev != nil {
		ch.ResendCount = prev.ResendCount + 1
		if prev.Status == domain.ChallengeStatusActive {
			supersede = prev
		}
	}
	if err := s.challenges.CreateSuperseding(ctx, ch, supersede, headVersion); err != nil {
		return nil, err
	}

	subject := "Your KurbanLink verification code"
	body := fmt.Sprintf(
		"Hello,\n\nUse the code below to verify your KurbanLink account:\n\n"+
			"Verification code: %s\n\nThe code is valid for 10 minutes.\n\n"+
			"If you did not request this, please ignore this email.\n",
		code,
	)
	if err := s.mailer.SendEmail(email, subject, body); err != nil {
		// The challenge stays persisted and valid; the user may still receive
		// the mail or request a new code after the cooldown.
		slog.Error("verification code delivery failed", "email", email, "err", err)
		return nil, fmt.Errorf("send verification code: %w", domain.ErrDeliveryFailed)
	}

	return &IssueResult{ChallengeID: ch.ChallengeID, Code: code, ExpiresAt: ch.ExpiresAt}, nil
}
