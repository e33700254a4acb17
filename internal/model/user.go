package model

import "time"

// Role names stored in users.role.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// Principal represents an account record as stored in the `users`
// table.  Any of Username, Email or Phone may be used as the login
// identifier.  The authentication subsystem only ever mutates the
// lockout fields (FailedLoginAttempts and LockedUntil); everything else
// belongs to user management.
//
// Fields:
//  ID                  – primary key identifier of the account.
//  Username            – unique handle.
//  Email               – unique email address, stored lower-cased.
//  Phone               – unique phone number (empty when not provided).
//  PasswordHash        – bcrypt hashed password.
//  Role                – USER or ADMIN.
//  IsActive            – whether the account may sign in.
//  FailedLoginAttempts – consecutive failed logins since the last success.
//  LockedUntil         – logins are refused until this instant (nil when unlocked).
//  CreatedAt           – timestamp of creation.
//  UpdatedAt           – timestamp of last update.
type Principal struct {
    ID                  uint64     // users.id
    Username            string     // users.username
    Email               string     // users.email
    Phone               string     // users.phone (nullable)
    PasswordHash        string     // users.password_hash
    Role                string     // users.role
    IsActive            bool       // users.is_active
    FailedLoginAttempts int        // users.failed_login_attempts
    LockedUntil         *time.Time // users.locked_until (nullable)
    CreatedAt           time.Time  // users.created_at
    UpdatedAt           time.Time  // users.updated_at
}

// IsLockedAt reports whether the lockout window is still open at t.
// An elapsed window counts as unlocked without any explicit reset.
func (p *Principal) IsLockedAt(t time.Time) bool {
    return p.LockedUntil != nil && t.Before(*p.LockedUntil)
}
