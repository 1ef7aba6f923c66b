package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"leadgrid.io/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	minPasswordLength = 8
)

// Service orchestrates login, registration, token rotation, logout, profile
// retrieval and password change across both principal kinds.
type Service struct {
	store Store
	now   func() time.Time

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret sets the HS256 signing secret for access tokens.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: token secret must not be empty")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithBcryptCost configures the password hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service. A token secret is required; everything else
// has defaults.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuer:     "leadgrid",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	return svc, nil
}

// LoginInput carries credentials plus the client metadata recorded for audit.
type LoginInput struct {
	Email       string
	Password    string
	AccountType AccountType
	IP          string
	UserAgent   string
}

// Login authenticates a principal of the requested kind and issues a fresh
// token pair. Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (TokenPair, Principal, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" || !in.AccountType.Valid() {
		return TokenPair{}, Principal{}, ErrInvalidInput
	}

	p, err := s.store.Principals(ctx).FindByEmail(ctx, in.AccountType, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			compareDummyPassword(in.Password)
			s.recordAttempt(ctx, email, in.AccountType, in.IP, in.UserAgent, false)
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if !p.IsActive {
		s.recordAttempt(ctx, email, in.AccountType, in.IP, in.UserAgent, false)
		return TokenPair{}, Principal{}, ErrAccountDisabled
	}
	if err := VerifyPassword(p.PasswordHash, in.Password); err != nil {
		s.recordAttempt(ctx, email, in.AccountType, in.IP, in.UserAgent, false)
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}

	pair, err := s.mintTokens(ctx, *p)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	s.recordAttempt(ctx, email, in.AccountType, in.IP, in.UserAgent, true)
	return pair, p.Public(), nil
}

// RegisterInput carries the fields needed to create a principal. TenantID is
// required for users and ignored for admins.
type RegisterInput struct {
	Email       string
	Password    string
	AccountType AccountType
	TenantID    string
}

// Register creates a new principal. It does not log the principal in; no
// tokens are issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Principal, error) {
	email := normalizeEmail(in.Email)
	if !in.AccountType.Valid() || !validEmail(email) {
		return Principal{}, ErrInvalidInput
	}
	if len(in.Password) < minPasswordLength {
		return Principal{}, ErrInvalidInput
	}
	if in.AccountType == AccountTypeUser && strings.TrimSpace(in.TenantID) == "" {
		return Principal{}, ErrInvalidInput
	}

	principals := s.store.Principals(ctx)
	if _, err := principals.FindByEmail(ctx, in.AccountType, email); err == nil {
		return Principal{}, ErrEmailAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Principal{}, err
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return Principal{}, err
	}
	now := s.now().UTC()
	p := &Principal{
		ID:           ids.New(),
		Email:        email,
		AccountType:  in.AccountType,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.AccountType == AccountTypeUser {
		p.TenantID = strings.TrimSpace(in.TenantID)
	}
	if err := principals.Create(ctx, p); err != nil {
		return Principal{}, err
	}
	return p.Public(), nil
}

// Refresh exchanges a refresh token for a new token pair, rotating the
// session: the presented token is revoked and a new one issued. The
// conditional revoke is the arbiter when two calls race on one token; the
// loser observes ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	sessions := s.store.Sessions(ctx)
	rec, err := sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrInvalidToken
		}
		return TokenPair{}, Principal{}, err
	}
	if rec.Revoked() {
		return TokenPair{}, Principal{}, ErrTokenRevoked
	}
	if s.now().After(rec.ExpiresAt) {
		return TokenPair{}, Principal{}, ErrTokenExpired
	}
	if !refreshSecretMatches(rec.SecretHash, secret) {
		// Wrong secret against a live session id smells like token theft;
		// burn the session.
		_ = sessions.Revoke(ctx, rec.ID)
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	p, err := s.store.Principals(ctx).Find(ctx, rec.PrincipalKind, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrInvalidToken
		}
		return TokenPair{}, Principal{}, err
	}
	if !p.IsActive {
		return TokenPair{}, Principal{}, ErrAccountDisabled
	}

	if err := sessions.Revoke(ctx, rec.ID); err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, *p)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, p.Public(), nil
}

// Logout revokes all outstanding sessions for the principal, not just the
// calling one. Logging out with no active sessions succeeds silently.
func (s *Service) Logout(ctx context.Context, kind AccountType, principalID string) error {
	if !kind.Valid() || strings.TrimSpace(principalID) == "" {
		return ErrInvalidInput
	}
	return s.store.Sessions(ctx).RevokeAllForPrincipal(ctx, kind, principalID)
}

// Profile returns the public projection of the principal, or ErrNotFound if
// it was deleted between token issuance and use.
func (s *Service) Profile(ctx context.Context, kind AccountType, principalID string) (Principal, error) {
	if !kind.Valid() || strings.TrimSpace(principalID) == "" {
		return Principal{}, ErrInvalidInput
	}
	p, err := s.store.Principals(ctx).Find(ctx, kind, principalID)
	if err != nil {
		return Principal{}, err
	}
	return p.Public(), nil
}

// ChangePassword re-verifies the old password, replaces the hash, and revokes
// every session of the principal so all devices must log in again. A failed
// re-verification leaves sessions untouched.
func (s *Service) ChangePassword(ctx context.Context, kind AccountType, principalID, oldPassword, newPassword string) error {
	if !kind.Valid() || strings.TrimSpace(principalID) == "" {
		return ErrInvalidInput
	}
	if len(newPassword) < minPasswordLength {
		return ErrInvalidInput
	}
	principals := s.store.Principals(ctx)
	p, err := principals.Find(ctx, kind, principalID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(p.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := principals.UpdatePasswordHash(ctx, kind, principalID, hash); err != nil {
		return err
	}
	return s.store.Sessions(ctx).RevokeAllForPrincipal(ctx, kind, principalID)
}

// Authenticate validates a bearer access token and returns the embedded
// identity. It deliberately does not touch the store: the claims carry
// everything downstream authorization needs.
func (s *Service) Authenticate(_ context.Context, token string) (Identity, error) {
	claims, err := s.verifyAccessToken(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{PrincipalID: claims.Subject, AccountType: claims.AccountType}, nil
}

func (s *Service) mintTokens(ctx context.Context, p Principal) (TokenPair, error) {
	now := s.now().UTC()
	access, accessExp, err := s.signAccessToken(p, now)
	if err != nil {
		return TokenPair{}, err
	}
	secret, secretHash, err := newRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	rec := &Session{
		ID:            ids.New(),
		PrincipalID:   p.ID,
		PrincipalKind: p.AccountType,
		SecretHash:    secretHash,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.refreshTTL),
	}
	if err := s.store.Sessions(ctx).Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     rec.ID + "." + secret,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// recordAttempt persists the login audit row. Best effort: an audit insert
// failure must never fail the login itself.
func (s *Service) recordAttempt(ctx context.Context, email string, kind AccountType, ip, userAgent string, success bool) {
	_ = s.store.Attempts(ctx).Record(ctx, &LoginAttempt{
		ID:          ids.New(),
		Email:       email,
		AccountType: kind,
		IP:          ip,
		UserAgent:   userAgent,
		Success:     success,
		CreatedAt:   s.now().UTC(),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && len(email) <= 254
}
