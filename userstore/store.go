package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/permission"
	"github.com/google/uuid"
)

// Dialect selects placeholder syntax and the goose dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) valid() error {
	switch d {
	case DialectSQLite, DialectPostgres:
		return nil
	default:
		return fmt.Errorf("userstore: unsupported dialect %q", string(d))
	}
}

// ErrInvalidUser is returned by CreateUser for a record that cannot be
// stored.
var ErrInvalidUser = errors.New("userstore: invalid user")

// Store reads and writes accounts in the users table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// New returns a Store on db. It does not run migrations.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("userstore: nil db")
	}
	if err := dialect.valid(); err != nil {
		return nil, err
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// WithLogger sets where unreadable rows are reported. The default discards.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

const selectColumns = `id, identifier, password_hash, role, permissions, active, verified, deleted`

// NormalizeIdentifier is applied to identifiers on write and on lookup.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// LookupUser implements estateauth.UserProvider.
func (s *Store) LookupUser(ctx context.Context, subject string) (estateauth.UserRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM users WHERE id = ?`
	return s.queryOne(ctx, q, subject)
}

// GetUserByIdentifier implements estateauth.UserProvider.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (estateauth.UserRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM users WHERE identifier = ?`
	return s.queryOne(ctx, q, NormalizeIdentifier(identifier))
}

func (s *Store) queryOne(ctx context.Context, query string, arg string) (estateauth.UserRecord, error) {
	var (
		u     estateauth.UserRecord
		role  string
		perms string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).Scan(
		&u.ID, &u.Identifier, &u.PasswordHash, &role, &perms, &u.Active, &u.Verified, &u.Deleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return estateauth.UserRecord{}, estateauth.ErrUserNotFound
		}
		return estateauth.UserRecord{}, fmt.Errorf("userstore: query user: %w", err)
	}

	// An unknown role in the table leaves the account with RoleUnknown,
	// which never satisfies a role requirement.
	u.Role, _ = permission.ParseRole(role)
	u.Permissions, err = decodePermissions(perms)
	if err != nil {
		// A corrupt row is an account that cannot be evaluated, not an
		// outage: it is returned disabled so every request is denied.
		s.logger.WarnContext(ctx, "userstore: unreadable permissions, account disabled",
			"user_id", u.ID, "error", err)
		u.Permissions = 0
		u.Active = false
	}
	return u, nil
}

// UpdatePasswordHash implements estateauth.PasswordUpdater.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, hash, userID)
}

// SetRole changes an account's role. The next authenticated request sees
// the new role.
func (s *Store) SetRole(ctx context.Context, userID string, role permission.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: role %s", ErrInvalidUser, role)
	}
	return s.exec(ctx, `UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, role.String(), userID)
}

// SetActive enables or disables an account.
func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return s.exec(ctx, `UPDATE users SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, userID)
}

// MarkDeleted soft-deletes an account.
func (s *Store) MarkDeleted(ctx context.Context, userID string) error {
	return s.exec(ctx, `UPDATE users SET deleted = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, true, userID)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("userstore: update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("userstore: update user: %w", err)
	}
	if n == 0 {
		return estateauth.ErrUserNotFound
	}
	return nil
}

// NewUser is the input to CreateUser. PasswordHash must already be hashed,
// for example with Engine.HashPassword.
type NewUser struct {
	Identifier   string
	PasswordHash string
	Role         permission.Role
	Permissions  permission.Set
	Verified     bool
}

// CreateUser inserts an active account and returns it with a new id.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (estateauth.UserRecord, error) {
	identifier := NormalizeIdentifier(nu.Identifier)
	switch {
	case identifier == "":
		return estateauth.UserRecord{}, fmt.Errorf("%w: empty identifier", ErrInvalidUser)
	case nu.PasswordHash == "":
		return estateauth.UserRecord{}, fmt.Errorf("%w: empty password hash", ErrInvalidUser)
	case !nu.Role.Valid():
		return estateauth.UserRecord{}, fmt.Errorf("%w: role %s", ErrInvalidUser, nu.Role)
	}

	u := estateauth.UserRecord{
		ID:           uuid.NewString(),
		Identifier:   identifier,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		Permissions:  nu.Permissions.Sanitize(),
		Active:       true,
		Verified:     nu.Verified,
	}

	q := `INSERT INTO users (id, identifier, password_hash, role, permissions, active, verified, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		u.ID, u.Identifier, u.PasswordHash, u.Role.String(), encodePermissions(u.Permissions), u.Active, u.Verified, false,
	)
	if err != nil {
		return estateauth.UserRecord{}, fmt.Errorf("userstore: insert user: %w", err)
	}
	return u, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Permissions are stored as a comma-separated list of names. An empty
// column means the role defaults apply.
func encodePermissions(s permission.Set) string {
	return strings.Join(s.Strings(), ",")
}

func decodePermissions(col string) (permission.Set, error) {
	col = strings.TrimSpace(col)
	if col == "" {
		return 0, nil
	}
	names := strings.Split(col, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return permission.ParseSet(names)
}
