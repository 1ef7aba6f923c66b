package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Users and admins live in
// separate tables; the kind argument picks the table once and nothing else
// branches on it.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Principals(context.Context) PrincipalStore { return &pgPrincipals{db: s.db} }
func (s *PGStore) Sessions(context.Context) SessionStore     { return &pgSessions{db: s.db} }
func (s *PGStore) Attempts(context.Context) AttemptStore     { return &pgAttempts{db: s.db} }

// Principal store ----------------------------------------------------------

type pgPrincipals struct{ db *sql.DB }

func (s *pgPrincipals) Create(ctx context.Context, p *Principal) error {
	var err error
	if p.AccountType == AccountTypeAdmin {
		_, err = s.db.ExecContext(ctx,
			`insert into admins(id, email, password_hash, is_active, created_at, updated_at)
			 values($1,$2,$3,$4,$5,$6)`,
			p.ID, p.Email, p.PasswordHash, p.IsActive, p.CreatedAt, p.UpdatedAt,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`insert into users(id, email, password_hash, tenant_id, is_active, created_at, updated_at)
			 values($1,$2,$3,$4,$5,$6,$7)`,
			p.ID, p.Email, p.PasswordHash, p.TenantID, p.IsActive, p.CreatedAt, p.UpdatedAt,
		)
	}
	if isUniqueViolation(err) {
		return ErrEmailAlreadyExists
	}
	return err
}

func (s *pgPrincipals) Find(ctx context.Context, kind AccountType, id string) (*Principal, error) {
	return s.findBy(ctx, kind, "id", id)
}

func (s *pgPrincipals) FindByEmail(ctx context.Context, kind AccountType, email string) (*Principal, error) {
	return s.findBy(ctx, kind, "email", email)
}

func (s *pgPrincipals) findBy(ctx context.Context, kind AccountType, column, value string) (*Principal, error) {
	p := Principal{AccountType: kind}
	var err error
	if kind == AccountTypeAdmin {
		row := s.db.QueryRowContext(ctx,
			`select id, email, password_hash, is_active, created_at, updated_at
			 from admins where `+column+`=$1`, value)
		err = row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	} else {
		row := s.db.QueryRowContext(ctx,
			`select id, email, password_hash, tenant_id, is_active, created_at, updated_at
			 from users where `+column+`=$1`, value)
		err = row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.TenantID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *pgPrincipals) UpdatePasswordHash(ctx context.Context, kind AccountType, id, passwordHash string) error {
	table := "users"
	if kind == AccountTypeAdmin {
		table = "admins"
	}
	res, err := s.db.ExecContext(ctx,
		`update `+table+` set password_hash=$1, updated_at=now() where id=$2`,
		passwordHash, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Session store ------------------------------------------------------------

type pgSessions struct{ db *sql.DB }

func (s *pgSessions) Create(ctx context.Context, rec *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, principal_id, principal_kind, secret_hash, issued_at, expires_at)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.PrincipalID, rec.PrincipalKind, rec.SecretHash, rec.IssuedAt, rec.ExpiresAt,
	)
	return err
}

func (s *pgSessions) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, principal_id, principal_kind, secret_hash, issued_at, expires_at, revoked_at
		 from sessions where id=$1`, id)
	var (
		rec       Session
		revokedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.PrincipalID, &rec.PrincipalKind, &rec.SecretHash,
		&rec.IssuedAt, &rec.ExpiresAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

// Revoke is the compare-and-swap backing refresh rotation: the single
// conditional update matches at most one live row, so two racing calls can
// never both succeed.
func (s *pgSessions) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=now() where id=$1 and revoked_at is null`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenRevoked
	}
	return nil
}

func (s *pgSessions) RevokeAllForPrincipal(ctx context.Context, kind AccountType, principalID string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=now()
		 where principal_kind=$1 and principal_id=$2 and revoked_at is null`,
		kind, principalID,
	)
	return err
}

// Attempt store ------------------------------------------------------------

type pgAttempts struct{ db *sql.DB }

func (s *pgAttempts) Record(ctx context.Context, a *LoginAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`insert into login_attempts(id, email, account_type, ip, user_agent, success, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Email, a.AccountType, a.IP, a.UserAgent, a.Success, a.CreatedAt,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
