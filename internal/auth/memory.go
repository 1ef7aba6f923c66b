package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by tests and by the API binary
// when no database is configured. One mutex covers every mutation, so the
// conditional session revoke has the same exactly-one-winner semantics as
// the SQL implementation.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	principals map[principalKey]*Principal
	byEmail    map[emailKey]string
	sessions   map[string]*Session
	attempts   []LoginAttempt
}

type principalKey struct {
	kind AccountType
	id   string
}

type emailKey struct {
	kind  AccountType
	email string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        time.Now,
		principals: make(map[principalKey]*Principal),
		byEmail:    make(map[emailKey]string),
		sessions:   make(map[string]*Session),
	}
}

func (m *MemoryStore) Principals(context.Context) PrincipalStore { return memPrincipals{m} }
func (m *MemoryStore) Sessions(context.Context) SessionStore     { return memSessions{m} }
func (m *MemoryStore) Attempts(context.Context) AttemptStore     { return memAttempts{m} }

type memPrincipals struct{ m *MemoryStore }

func (s memPrincipals) Create(_ context.Context, p *Principal) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	ek := emailKey{kind: p.AccountType, email: p.Email}
	if _, ok := s.m.byEmail[ek]; ok {
		return ErrEmailAlreadyExists
	}
	cp := *p
	s.m.principals[principalKey{kind: p.AccountType, id: p.ID}] = &cp
	s.m.byEmail[ek] = p.ID
	return nil
}

func (s memPrincipals) Find(_ context.Context, kind AccountType, id string) (*Principal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.principals[principalKey{kind: kind, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s memPrincipals) FindByEmail(_ context.Context, kind AccountType, email string) (*Principal, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	id, ok := s.m.byEmail[emailKey{kind: kind, email: email}]
	if !ok {
		return nil, ErrNotFound
	}
	p := s.m.principals[principalKey{kind: kind, id: id}]
	cp := *p
	return &cp, nil
}

func (s memPrincipals) UpdatePasswordHash(_ context.Context, kind AccountType, id, passwordHash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.principals[principalKey{kind: kind, id: id}]
	if !ok {
		return ErrNotFound
	}
	p.PasswordHash = passwordHash
	p.UpdatedAt = s.m.now().UTC()
	return nil
}

type memSessions struct{ m *MemoryStore }

func (s memSessions) Create(_ context.Context, rec *Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *rec
	s.m.sessions[rec.ID] = &cp
	return nil
}

func (s memSessions) Find(_ context.Context, id string) (*Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s memSessions) Revoke(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.sessions[id]
	if !ok || rec.RevokedAt != nil {
		return ErrTokenRevoked
	}
	t := s.m.now().UTC()
	rec.RevokedAt = &t
	return nil
}

func (s memSessions) RevokeAllForPrincipal(_ context.Context, kind AccountType, principalID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	t := s.m.now().UTC()
	for _, rec := range s.m.sessions {
		if rec.PrincipalKind == kind && rec.PrincipalID == principalID && rec.RevokedAt == nil {
			at := t
			rec.RevokedAt = &at
		}
	}
	return nil
}

type memAttempts struct{ m *MemoryStore }

func (s memAttempts) Record(_ context.Context, a *LoginAttempt) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.attempts = append(s.m.attempts, *a)
	return nil
}
