package verification

import (
	"context"
	"testing"
	"time"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func activeToken(plain string) *domain.VerificationToken {
	return &domain.VerificationToken{
		VKey:      domain.VerificationKey("o@x.com", domain.PurposeRegisterEmail),
		TokenID:   "01TOK",
		Email:     "o@x.com",
		Purpose:   domain.PurposeRegisterEmail,
		TokenHash: hashOf(plain),
		Status:    domain.TokenStatusActive,
		CreatedAt: testNow.Add(-time.Minute),
		ExpiresAt: testNow.Add(29 * time.Minute),
	}
}

func TestRedeemToken_Success(t *testing.T) {
	tok := activeToken("the-plain-token")
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(tok, int64(1), nil)
	ts.On("MarkConsumed", mock.Anything, tok, testNow).Return(nil)

	svc := newTestService(nil, ts, nil, nil)
	err := svc.RedeemToken(context.Background(), "o@x.com", "the-plain-token")

	require.NoError(t, err)
	ts.AssertExpectations(t)
}

func TestRedeemToken_NoToken(t *testing.T) {
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(nil, int64(0), domain.ErrNotFound)

	svc := newTestService(nil, ts, nil, nil)
	err := svc.RedeemToken(context.Background(), "o@x.com", "anything")

	assert.ErrorIs(t, err, domain.ErrNoActiveToken)
}

func TestRedeemToken_ConsumedToken(t *testing.T) {
	tok := activeToken("the-plain-token")
	tok.Status = domain.TokenStatusConsumed
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(tok, int64(1), nil)

	svc := newTestService(nil, ts, nil, nil)
	err := svc.RedeemToken(context.Background(), "o@x.com", "the-plain-token")

	assert.ErrorIs(t, err, domain.ErrNoActiveToken)
	ts.AssertNotCalled(t, "MarkConsumed", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemToken_ExpiredToken(t *testing.T) {
	tok := activeToken("the-plain-token")
	tok.ExpiresAt = testNow.Add(-time.Second)
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(tok, int64(1), nil)

	svc := newTestService(nil, ts, nil, nil)
	err := svc.RedeemToken(context.Background(), "o@x.com", "the-plain-token")

	assert.ErrorIs(t, err, domain.ErrNoActiveToken)
}

func TestRedeemToken_WrongValueLeavesTokenActive(t *testing.T) {
	tok := activeToken("the-plain-token")
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(tok, int64(1), nil)

	svc := newTestService(nil, ts, nil, nil)
	err := svc.RedeemToken(context.Background(), "o@x.com", "not-the-token")

	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	ts.AssertNotCalled(t, "MarkConsumed", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemToken_LostRaceIsSingleUse(t *testing.T) {
	tok := activeToken("the-plain-token")
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(tok, int64(1), nil)
	ts.On("MarkConsumed", mock.Anything, tok, testNow).Return(domain.ErrConflict)

	svc := newTestService(nil, ts, nil, nil)
	err := svc.RedeemToken(context.Background(), "o@x.com", "the-plain-token")

	assert.ErrorIs(t, err, domain.ErrNoActiveToken)
}

func TestIssueToken_SupersedesPriorActiveToken(t *testing.T) {
	prev := activeToken("old-token")
	ts := &mockTokenStore{}
	ts.On("GetCurrent", mock.Anything, "o@x.com", domain.PurposeRegisterEmail).
		Return(prev, int64(2), nil)

	var created *domain.VerificationToken
	ts.On("CreateSuperseding", mock.Anything, mock.Anything, prev, int64(2)).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.VerificationToken) }).
		Return(nil)

	s := NewService(ServiceDeps{
		TokenRepo: ts,
		Hasher:    testHasher(),
		Clock:     clock.Fixed{T: testNow},
	}).(*service)

	res, err := s.issueToken(context.Background(), "o@x.com")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, domain.TokenStatusActive, created.Status)
	assert.Equal(t, testNow.Add(30*time.Minute), created.ExpiresAt)
	assert.NotEmpty(t, res.Token)
	ts.AssertExpectations(t)
}
