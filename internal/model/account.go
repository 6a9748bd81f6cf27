package model

import "time"

// Role names stored in accounts.role and carried in the JWT "role" claim.
const (
	RoleAdministrator = "administrator"
	RoleMember        = "member"
)

// Account represents a login record as stored in the `accounts` table.
// Accounts are not members: a member-role account references exactly one
// Member through MemberRef, while administrators usually reference none.
//
// Fields:
//  ID           – primary key identifier of the account.
//  Email        – unique login email.
//  PasswordHash – bcrypt hashed password.
//  Role         – administrator or member.
//  MemberRef    – members.id of the linked member (nil when unlinked).
//  IsActive     – whether the account may log in.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Account struct {
	ID           uint64    // accounts.id
	Email        string    // accounts.email
	PasswordHash string    // accounts.password_hash
	Role         string    // accounts.role
	MemberRef    *uint64   // accounts.member_ref (nullable)
	IsActive     bool      // accounts.is_active
	CreatedAt    time.Time // accounts.created_at
	UpdatedAt    time.Time // accounts.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	AccountID uint64     // refresh_tokens.account_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Caller is the capability every member operation is evaluated against.
// It is decoded from the access token by the JWT middleware.
type Caller struct {
	AccountID uint64
	Role      string
	MemberRef *uint64
}

// IsAdministrator reports whether the caller holds the administrator role.
func (c Caller) IsAdministrator() bool { return c.Role == RoleAdministrator }

// IsMember reports whether the caller holds the member role.
func (c Caller) IsMember() bool { return c.Role == RoleMember }

// Owns reports whether the caller is the member-role account linked to the
// member with the given internal id.
func (c Caller) Owns(memberID uint64) bool {
	return c.IsMember() && c.MemberRef != nil && *c.MemberRef == memberID
}
