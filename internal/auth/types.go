package auth

import "time"

// AccountType discriminates the two principal kinds sharing the unified
// login surface. Callers always supply it explicitly; it is never inferred
// from the email.
type AccountType string

const (
	AccountTypeUser  AccountType = "user"
	AccountTypeAdmin AccountType = "admin"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	return t == AccountTypeUser || t == AccountTypeAdmin
}

// Principal is an authenticated identity. The account type tag is resolved
// once at the store boundary; downstream logic works against the common
// field set and never re-branches per operation.
type Principal struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	AccountType AccountType `json:"account_type"`
	// TenantID links users to their sub-account; empty for admins.
	TenantID     string    `json:"tenant_id,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public returns the projection safe to hand back to clients. The password
// hash is stripped even though the JSON tag already hides it.
func (p Principal) Public() Principal {
	p.PasswordHash = ""
	return p
}

// Session tracks one refresh token's validity. SecretHash holds the SHA-256
// of the refresh secret; the raw secret is only ever returned to the client.
// RevokedAt is terminal: a revoked session can never be exchanged again.
type Session struct {
	ID            string
	PrincipalID   string
	PrincipalKind AccountType
	SecretHash    string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
}

// Revoked reports whether the session reached its terminal revoked state.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// LoginAttempt is the audit row written for every login, successful or not.
type LoginAttempt struct {
	ID          string
	Email       string
	AccountType AccountType
	IP          string
	UserAgent   string
	Success     bool
	CreatedAt   time.Time
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity is the decoded access token identity attached to request context
// by the guard. Authorization checks read the kind from here instead of
// hitting the database.
type Identity struct {
	PrincipalID string
	AccountType AccountType
}
