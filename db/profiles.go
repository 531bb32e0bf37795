package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var (
	// ErrNotFound is returned when a profile lookup matches no row.
	ErrNotFound = errors.New("db: profile not found")
	// ErrDuplicateEmail is returned when signing up with a registered email.
	ErrDuplicateEmail = errors.New("db: email already registered")
	// ErrInvalidRole is returned for roles other than admin and member.
	ErrInvalidRole = errors.New("db: invalid role")
)

// Profile is a member account. Email is stored lower-cased.
type Profile struct {
	ID                 string
	Email              string
	Nickname           string
	PasswordHash       string
	Role               string
	IsApproved         bool
	ImageCredits       int
	LastCreditUpdateAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsAdmin reports whether the profile has the admin role.
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanUseToolbox reports whether the profile may call toolbox endpoints:
// admins always, members once approved.
func (p Profile) CanUseToolbox() bool {
	return p.IsAdmin() || p.IsApproved
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const profileColumns = `id, email, nickname, password_hash, role, is_approved,
	image_credits, last_credit_update_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var lastCredit, created, updated string
	err := row.Scan(&p.ID, &p.Email, &p.Nickname, &p.PasswordHash, &p.Role, &p.IsApproved,
		&p.ImageCredits, &lastCredit, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to scan profile: %w", err)
	}

	if p.LastCreditUpdateAt, err = ParseTime(lastCredit); err != nil {
		return Profile{}, err
	}
	if p.CreatedAt, err = ParseTime(created); err != nil {
		return Profile{}, err
	}
	if p.UpdatedAt, err = ParseTime(updated); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// CreateProfile inserts p with a fresh UUID. Role defaults to member;
// timestamps default to now. The stored profile is returned.
func (r *Repository) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	p.Email = NormalizeEmail(p.Email)
	if p.Email == "" {
		return Profile{}, fmt.Errorf("profile email is required")
	}
	if p.PasswordHash == "" {
		return Profile{}, fmt.Errorf("profile password hash is required")
	}
	if p.Role == "" {
		p.Role = RoleMember
	}
	if p.Role != RoleAdmin && p.Role != RoleMember {
		return Profile{}, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	now := r.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.LastCreditUpdateAt.IsZero() {
		p.LastCreditUpdateAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, p.Nickname, p.PasswordHash, p.Role, p.IsApproved,
		p.ImageCredits, FormatTime(p.LastCreditUpdateAt), FormatTime(p.CreatedAt), FormatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Profile{}, ErrDuplicateEmail
		}
		return Profile{}, fmt.Errorf("failed to insert profile: %w", err)
	}

	// Round-trip through the stored layout so callers see what a read returns.
	return r.GetProfile(ctx, p.ID)
}

// GetProfile returns the profile with id, or ErrNotFound.
func (r *Repository) GetProfile(ctx context.Context, id string) (Profile, error) {
	row, err := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	if err != nil {
		return Profile{}, err
	}
	return scanProfile(row)
}

// GetProfileByEmail looks up a profile by normalized email.
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	row, err := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = ?`, NormalizeEmail(email))
	if err != nil {
		return Profile{}, err
	}
	return scanProfile(row)
}

// ListProfiles returns all profiles, newest first.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}
	return profiles, nil
}

// SetApproval toggles is_approved and returns the updated profile.
func (r *Repository) SetApproval(ctx context.Context, id string, approved bool) (Profile, error) {
	if err := r.updateProfile(ctx, id, "is_approved = ?", approved); err != nil {
		return Profile{}, err
	}
	return r.GetProfile(ctx, id)
}

// SetRole changes a profile's role.
func (r *Repository) SetRole(ctx context.Context, id, role string) (Profile, error) {
	if role != RoleAdmin && role != RoleMember {
		return Profile{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if err := r.updateProfile(ctx, id, "role = ?", role); err != nil {
		return Profile{}, err
	}
	return r.GetProfile(ctx, id)
}

// SetPasswordHash replaces a profile's bcrypt hash.
func (r *Repository) SetPasswordHash(ctx context.Context, id, hash string) error {
	return r.updateProfile(ctx, id, "password_hash = ?", hash)
}

func (r *Repository) updateProfile(ctx context.Context, id, assignment string, value any) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET `+assignment+`, updated_at = ? WHERE id = ?`,
		value, FormatTime(r.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
