package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Principals(ctx context.Context) PrincipalStore
	Sessions(ctx context.Context) SessionStore
	Attempts(ctx context.Context) AttemptStore
}

// PrincipalStore manages user and admin credential records. Emails are unique
// within an account type; the same email may exist as both a user and an
// admin, and those are distinct identities.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, kind AccountType, id string) (*Principal, error)
	FindByEmail(ctx context.Context, kind AccountType, email string) (*Principal, error)
	UpdatePasswordHash(ctx context.Context, kind AccountType, id, passwordHash string) error
}

// SessionStore manages the refresh token lifecycle. The auth service is the
// only writer of session records.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Revoke marks the session revoked only if it is not already. It returns
	// ErrTokenRevoked when the conditional update matched no row, which is
	// how exactly one of two racing rotations wins.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForPrincipal revokes every active session of the principal.
	// Revoking a principal with no active sessions is a no-op, not an error.
	RevokeAllForPrincipal(ctx context.Context, kind AccountType, principalID string) error
}

// AttemptStore appends login audit rows.
type AttemptStore interface {
	Record(ctx context.Context, a *LoginAttempt) error
}
