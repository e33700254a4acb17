package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/recipe-box/internal/auth"
	"github.com/iliyamo/recipe-box/internal/model"
)

const principalColumns = "id,username,email,phone,password_hash,role,is_active,failed_login_attempts,locked_until,created_at,updated_at"

// identifierStrategy resolves a login identifier against one column.
type identifierStrategy struct {
	column    string
	applies   func(string) bool
	normalize func(string) string
}

// identifierStrategies are tried in order; the first match wins.
var identifierStrategies = []identifierStrategy{
	{column: "username", applies: func(string) bool { return true }, normalize: strings.TrimSpace},
	{column: "email", applies: func(s string) bool { return strings.Contains(s, "@") }, normalize: normalizeEmail},
	{column: "phone", applies: looksLikePhone, normalize: normalizePhone},
}

// UserRepo is the MySQL-backed principal store. It satisfies
// auth.PrincipalRepository.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts p and sets its ID. PasswordHash must already be set.
func (r *UserRepo) Create(ctx context.Context, p *model.Principal) error {
	p.Username = strings.TrimSpace(p.Username)
	p.Email = normalizeEmail(p.Email)
	p.Phone = normalizePhone(p.Phone)
	if p.Role == "" {
		p.Role = model.RoleUser
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, phone, password_hash, role, is_active) VALUES (?,?,?,?,?,?)",
		p.Username, p.Email, nullString(p.Phone), p.PasswordHash, p.Role, p.IsActive)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrIdentifierTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	p.ID = uint64(id)
	return nil
}

// FindByIdentifier resolves identifier as a username, then an email, then
// a phone number.
func (r *UserRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Principal, error) {
	for _, s := range identifierStrategies {
		if !s.applies(identifier) {
			continue
		}
		p, err := r.findBy(ctx, s.column, s.normalize(identifier))
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			continue
		}
		return p, err
	}
	return nil, auth.ErrPrincipalNotFound
}

// FindByID fetches a principal by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.Principal, error) {
	return r.findBy(ctx, "id", id)
}

// Save persists the lockout state of p.
func (r *UserRepo) Save(ctx context.Context, p *model.Principal) error {
	var lockedUntil sql.NullTime
	if p.LockedUntil != nil {
		lockedUntil = sql.NullTime{Time: p.LockedUntil.UTC(), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=?, locked_until=?, updated_at=UTC_TIMESTAMP() WHERE id=?",
		p.FailedLoginAttempts, lockedUntil, p.ID)
	if err != nil {
		return fmt.Errorf("save user %d: %w", p.ID, err)
	}
	return nil
}

// SetActive enables or disables the principal with the given id.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=?, updated_at=UTC_TIMESTAMP() WHERE id=?", active, id)
	if err != nil {
		return fmt.Errorf("set user %d active: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrPrincipalNotFound
	}
	return nil
}

// column is always one of the constants above, never user input.
func (r *UserRepo) findBy(ctx context.Context, column string, value any) (*model.Principal, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM users WHERE "+column+"=? LIMIT 1", value)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user by %s: %w", column, err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*model.Principal, error) {
	var (
		p           model.Principal
		phone       sql.NullString
		lockedUntil sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Username, &p.Email, &phone, &p.PasswordHash, &p.Role, &p.IsActive,
		&p.FailedLoginAttempts, &lockedUntil, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Phone = phone.String
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		p.LockedUntil = &t
	}
	return &p, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// normalizePhone drops the separators looksLikePhone accepts, so
// "+1 555-0001" and "+15550001" name the same number.
func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func looksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '+' && i == 0:
		case c == ' ' || c == '-':
		default:
			return false
		}
	}
	return true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
