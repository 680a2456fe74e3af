package verification

import (
	"context"
	"errors"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/id"
	pkgtoken "github.com/kurbanlink/api/internal/pkg/token"
)

// issueToken mints a verification token for the email, superseding any prior
// active one. The plaintext leaves this function once and is never retrievable.
func (s *service) issueToken(ctx context.Context, email string) (*VerifyResult, error) {
	now := s.clock.Now()

	prev, headVersion, err := s.tokens.GetCurrent(ctx, email, domain.PurposeRegisterEmail)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	plain, err := pkgtoken.NewVerificationToken()
	if err != nil {
		return nil, err
	}
	tokenHash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, err
	}

	tok := &domain.VerificationToken{
		VKey:      domain.VerificationKey(email, domain.PurposeRegisterEmail),
		TokenID:   id.New(),
		Email:     email,
		Purpose:   domain.PurposeRegisterEmail,
		TokenHash: tokenHash,
		Status:    domain.TokenStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(tokenTTL),
	}
	var supersede *domain.VerificationToken
	if prev != nil && prev.Status == domain.TokenStatusActive {
		supersede = prev
	}
	if err := s.tokens.CreateSuperseding(ctx, tok, supersede, headVersion); err != nil {
		return nil, err
	}

	return &VerifyResult{Token: plain, TokenExpiresAt: tok.ExpiresAt}, nil
}

func (s *service) RedeemToken(ctx context.Context, email, tokenPlain string) error {
	now := s.clock.Now()

	tok, _, err := s.tokens.GetCurrent(ctx, email, domain.PurposeRegisterEmail)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoActiveToken
		}
		return err
	}
	if tok.Status != domain.TokenStatusActive || tok.IsExpired(now) {
		return domain.ErrNoActiveToken
	}
	// Wrong guesses are not counted: tokens carry 256 bits of entropy, brute
	// force inside the 30-minute window is infeasible.
	if !s.hasher.Verify(tok.TokenHash, tokenPlain) {
		return domain.ErrTokenInvalid
	}
	if err := s.tokens.MarkConsumed(ctx, tok, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent redemption won; the token is spent.
			return domain.ErrNoActiveToken
		}
		return err
	}
	return nil
}
