package authgate

import (
	"context"
	"time"
)

// Role identifies a user's authority class. The set is closed: the storefront
// backend issues exactly these values and the capability table is keyed on
// them. An empty Role denies every gated capability.
type Role string

const (
	// RoleBuyer is the default role of a registered shopper.
	RoleBuyer Role = "Buyer"
	// RoleSeller marks a user operating a store.
	RoleSeller Role = "Seller"
	// RoleAdmin has full administrative access.
	RoleAdmin Role = "Admin"
	// RoleModerator is an admin-family role limited to content moderation.
	RoleModerator Role = "Moderator"
	// RoleSupport is an admin-family role limited to support tickets.
	RoleSupport Role = "Support"
)

// AdminFamily lists the roles routed to the admin area. Order is not
// significant.
var AdminFamily = []Role{RoleAdmin, RoleModerator, RoleSupport}

// IsAdminFamily reports whether r is treated as administrative for routing.
func (r Role) IsAdminFamily() bool {
	for _, a := range AdminFamily {
		if r == a {
			return true
		}
	}
	return false
}

// Known reports whether r is one of the closed role set.
func (r Role) Known() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin, RoleModerator, RoleSupport:
		return true
	}
	return false
}

// User is the session's last-known user snapshot. It may drift from server
// truth until the next refresh; the server record always wins.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role"`
}

// Snapshot is an immutable copy of the controller's session state at one
// generation. Authenticated implies User != nil.
type Snapshot struct {
	User          *User
	Authenticated bool
	Loading       bool
	ExpiresAt     time.Time
	Generation    uint64
}

// Role returns the snapshot's role, or "" when no user is present.
func (s Snapshot) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// LoginResult is returned by [Controller.Login] and [Controller.Verify2FA].
// Exactly one of the three outcomes holds: TwoFactorRequired (session
// unchanged), Success with a token, or a rejection with a non-empty Message.
type LoginResult struct {
	Success           bool
	TwoFactorRequired bool
	Token             string
	Message           string
}

// UserUpdate is a partial user record for [Controller.UpdateUser]. Nil fields
// are left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	FullName *string
	Role     *Role
}

// RegisterRequest is the input for [Controller.Register].
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	FullName string
}

// AuthReply is the typed result of an auth service round trip. The zero value
// is a rejection with no message.
type AuthReply struct {
	Success           bool
	TwoFactorRequired bool
	Token             string
	User              *User
	Message           string
}

// AuthClient is the boundary to the remote LocalMart auth service. All
// business rules (credential checks, code validation, throttling) live behind
// it; implementations must return either a typed reply or an error with a
// human-readable message.
//
// The production implementation is authapi.Client; tests substitute fakes.
type AuthClient interface {
	Login(ctx context.Context, identifier, password string) (*AuthReply, error)
	Verify2FA(ctx context.Context, identifier, code string) (*AuthReply, error)
	Send2FACode(ctx context.Context, identifier string) error
	Register(ctx context.Context, req RegisterRequest) (*AuthReply, error)
	Refresh(ctx context.Context, token string) (*AuthReply, error)
	Logout(ctx context.Context, token string, fromAllDevices bool) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error
	VerifyEmail(ctx context.Context, verifyToken string) error
}

// WatchdogKind discriminates watchdog events.
type WatchdogKind uint8

const (
	// WatchWarning fires once when remaining lifetime crosses WarnBefore.
	WatchWarning WatchdogKind = iota
	// WatchExpired fires when the token lifetime is exhausted; the controller
	// has already force-cleared the session when the handler runs.
	WatchExpired
)

func (k WatchdogKind) String() string {
	switch k {
	case WatchWarning:
		return "warning"
	case WatchExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// WatchdogEvent is delivered to [Controller.OnWatchdog] handlers.
type WatchdogEvent struct {
	Kind      WatchdogKind
	ExpiresAt time.Time
	Remaining time.Duration
}
