package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/pkg/clock"
	"github.com/kurbanlink/api/internal/pkg/id"
	"github.com/kurbanlink/api/internal/pkg/secret"
	pkgtoken "github.com/kurbanlink/api/internal/pkg/token"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldCity         = "city"
	fieldRoles        = "roles"
	fieldPasswordHash = "password_hash"
)

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	RegisterWithSession(ctx context.Context, req domain.RegisterRequest) (*domain.Session, string, string, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error)
	Delete(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, userID string) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	SoftDeleteByUser(ctx context.Context, userID string) error
}

type jwtSigner interface {
	Sign(userID, email string, roles []string, sessionID string) (string, error)
}

// emailVerifier is the slice of the verification service registration needs.
type emailVerifier interface {
	RedeemToken(ctx context.Context, email, tokenPlain string) error
	IsEmailVerified(ctx context.Context, email string) (bool, error)
}

type service struct {
	repo            userStore
	sessionRepo     sessionStore
	verifier        emailVerifier
	jwtProvider     jwtSigner
	hasher          secret.Hasher
	clock           clock.Clock
	refreshTokenDur time.Duration
	// requireVerification gates registration on a redeemed verification token.
	requireVerification bool
}

type ServiceDeps struct {
	UserRepo            userStore
	SessionRepo         sessionStore
	Verifier            emailVerifier
	JWTProvider         jwtSigner
	Hasher              secret.Hasher
	Clock               clock.Clock
	RefreshTokenDur     time.Duration
	RequireVerification bool
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:                deps.UserRepo,
		sessionRepo:         deps.SessionRepo,
		verifier:            deps.Verifier,
		jwtProvider:         deps.JWTProvider,
		hasher:              deps.Hasher,
		clock:               deps.Clock,
		refreshTokenDur:     deps.RefreshTokenDur,
		requireVerification: deps.RequireVerification,
	}
}

// NormalizeEmail lowercases and trims an address so lookups and verification
// keys agree on a single spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func registrationRoles(requested []string) ([]string, error) {
	roles := []string{domain.RoleBuyer}
	for _, r := range requested {
		r = strings.ToUpper(strings.TrimSpace(r))
		if !domain.ValidRole(r) {
			return nil, fmt.Errorf("unknown role %q: %w", r, domain.ErrBadRequest)
		}
		if r == domain.RoleAdmin {
			return nil, fmt.Errorf("role %s cannot be self-assigned: %w", r, domain.ErrForbidden)
		}
		dup := false
		for _, have := range roles {
			if have == r {
				dup = true
				break
			}
		}
		if !dup {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email := NormalizeEmail(req.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	roles, err := registrationRoles(req.Roles)
	if err != nil {
		return nil, err
	}

	verified, err := s.proveEmail(ctx, email, req.VerificationToken)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	u := &domain.User{
		UserID:        id.New(),
		Email:         email,
		PasswordHash:  hash,
		Roles:         roles,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		City:          req.City,
		EmailVerified: verified,
		Enable:        1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// proveEmail establishes whether the address was verified before this
// registration. A supplied token is always redeemed so it cannot be replayed;
// when enforcement is on, missing or bad tokens abort the registration.
func (s *service) proveEmail(ctx context.Context, email, tokenPlain string) (bool, error) {
	if tokenPlain != "" {
		if err := s.verifier.RedeemToken(ctx, email, tokenPlain); err != nil {
			if s.requireVerification {
				return false, err
			}
			if errors.Is(err, domain.ErrNoActiveToken) || errors.Is(err, domain.ErrTokenInvalid) {
				return false, fmt.Errorf("verification token rejected: %w", domain.ErrBadRequest)
			}
			return false, err
		}
		return true, nil
	}
	if s.requireVerification {
		return false, fmt.Errorf("verification token required: %w", domain.ErrBadRequest)
	}
	return s.verifier.IsEmailVerified(ctx, email)
}

func (s *service) RegisterWithSession(ctx context.Context, req domain.RegisterRequest) (*domain.Session, string, string, error) {
	u, err := s.Register(ctx, req)
	if err != nil {
		return nil, "", "", err
	}
	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, "", "", err
	}
	now := s.clock.Now()
	sess := &domain.Session{
		SessionID:        id.New(),
		UserID:           u.UserID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.refreshTokenDur).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, "", "", err
	}
	bearer, err := s.jwtProvider.Sign(u.UserID, u.Email, u.Roles, sess.SessionID)
	if err != nil {
		return nil, "", "", err
	}
	sess.User = u
	return sess, bearer, refreshToken, nil
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates[fieldFirstName] = *req.FirstName
	}
	if req.LastName != nil {
		updates[fieldLastName] = *req.LastName
	}
	if req.City != nil {
		updates[fieldCity] = *req.City
	}
	if req.Roles != nil {
		for _, r := range *req.Roles {
			if !domain.ValidRole(r) {
				return nil, fmt.Errorf("unknown role %q: %w", r, domain.ErrBadRequest)
			}
		}
		updates[fieldRoles] = *req.Roles
	}
	if len(updates) == 0 {
		return s.repo.Get(ctx, userID)
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) Delete(ctx context.Context, userID string) error {
	if err := s.repo.SoftDelete(ctx, userID); err != nil {
		return err
	}
	return s.sessionRepo.SoftDeleteByUser(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, currentPassword) {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldPasswordHash: hash})
}
