package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kurbanlink/api/internal/domain"
)

func (s *service) VerifyOTP(ctx context.Context, email, purpose, code string) (*VerifyResult, error) {
	if purpose != domain.PurposeRegisterEmailVerify {
		return nil, fmt.Errorf("unknown verification purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	now := s.clock.Now()

	ch, _, err := s.challenges.GetCurrent(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveChallenge
		}
		return nil, err
	}
	if ch.Status != domain.ChallengeStatusActive {
		return nil, domain.ErrNoActiveChallenge
	}
	// Expiry and lock are checked before the mismatch counter, so attempts
	// against a dead challenge never move its counter.
	if ch.IsExpired(now) {
		return nil, domain.ErrChallengeExpired
	}
	if ch.IsLocked() {
		return nil, domain.ErrChallengeLocked
	}

	if !s.hasher.Verify(ch.CodeHash, code) {
		count, ierr := s.challenges.IncrementAttempts(ctx, ch)
		if ierr != nil {
			if errors.Is(ierr, domain.ErrConflict) {
				// Consumed or superseded between our read and the write.
				return nil, domain.ErrNoActiveChallenge
			}
			return nil, ierr
		}
		if count >= domain.MaxVerifyAttempts {
			slog.Warn("verification challenge locked", "email", email, "challenge_id", ch.ChallengeID)
		}
		return nil, domain.ErrCodeMismatch
	}

	if err := s.challenges.MarkVerified(ctx, ch, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race: either a concurrent fifth failed attempt crossed
			// the threshold, or a newer issuance superseded this challenge.
			fresh, _, rerr := s.challenges.GetCurrent(ctx, email, purpose)
			if rerr == nil && fresh.ChallengeID == ch.ChallengeID && fresh.IsLocked() {
				return nil, domain.ErrChallengeLocked
			}
			return nil, domain.ErrNoActiveChallenge
		}
		return nil, err
	}

	if ch.UserID != "" {
		if err := s.users.MarkEmailVerified(ctx, ch.UserID); err != nil {
			return nil, err
		}
	}

	return s.issueToken(ctx, email)
}

func (s *service) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	if u, err := s.users.GetByEmail(ctx, email); err == nil && u.EmailVerified {
		return true, nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	return s.challenges.HasVerified(ctx, email, domain.PurposeRegisterEmailVerify)
}
