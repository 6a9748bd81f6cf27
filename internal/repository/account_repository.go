package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/utils"
)

// AccountRepo stores login accounts.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

const accountColumns = "id,email,password_hash,role,member_ref,is_active,created_at,updated_at"

// Create hashes password and inserts an account.  memberRef links a
// member-role account to its member row.  A reused email or member link
// yields a *DuplicateKeyError.
func (r *AccountRepo) Create(ctx context.Context, email, password, role string, memberRef *uint64, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	var ref any
	if memberRef != nil {
		ref = *memberRef
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts (email, password_hash, role, member_ref) VALUES (?,?,?,?)",
		email, hash, role, ref)
	if err != nil {
		if field, dup := duplicateKey(err); dup {
			return 0, &DuplicateKeyError{Field: field}
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func scanAccount(s rowScanner) (model.Account, error) {
	var (
		a   model.Account
		ref sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &ref, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, ErrAccountNotFound
		}
		return a, err
	}
	if ref.Valid {
		v := uint64(ref.Int64)
		a.MemberRef = &v
	}
	return a, nil
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanAccount(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1", email))
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id))
}

// CountByRole returns how many accounts hold role.
func (r *AccountRepo) CountByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE role=?", role).Scan(&n)
	return n, err
}
