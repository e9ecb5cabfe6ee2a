// Package guard decides whether a session may reach a screen. The decision
// core is pure (snapshot in, Decision out) so the same rules serve HTTP
// middleware and any other surface without re-encoding role logic.
//
// Guards never surface raw errors and never redirect while the session is
// still hydrating: a loading session gets StateLoading, and the caller shows
// a neutral placeholder until the next evaluation settles.
package guard

import (
	"context"

	"github.com/localmart/authgate"
	"github.com/localmart/authgate/capability"
)

// State classifies a guard decision.
type State int

const (
	// StateLoading means the session has not hydrated; show a placeholder.
	StateLoading State = iota
	// StateAllow admits the request.
	StateAllow
	// StateRedirect sends the client to Decision.Target.
	StateRedirect
)

// Decision is the outcome of evaluating a guard against a session snapshot.
type Decision struct {
	State State
	// Target is the redirect destination when State is StateRedirect.
	Target string
	// PreserveFrom marks a login redirect that should carry the requested
	// location so a later login can return to it.
	PreserveFrom bool
}

// Paths holds the redirect destinations. Zero fields fall back to the
// storefront defaults.
type Paths struct {
	Login      string // default /login
	Home       string // default /
	AdminHome  string // default /admin
	SellerHome string // default /seller/dashboard
	FromParam  string // default from
}

func (p Paths) withDefaults() Paths {
	if p.Login == "" {
		p.Login = "/login"
	}
	if p.Home == "" {
		p.Home = "/"
	}
	if p.AdminHome == "" {
		p.AdminHome = "/admin"
	}
	if p.SellerHome == "" {
		p.SellerHome = "/seller/dashboard"
	}
	if p.FromParam == "" {
		p.FromParam = "from"
	}
	return p
}

// roleHome is the landing page for an authenticated role: the admin family
// shares the admin console, sellers get their dashboard, everyone else the
// storefront.
func (p Paths) roleHome(role authgate.Role) string {
	switch {
	case role.IsAdminFamily():
		return p.AdminHome
	case role == authgate.RoleSeller:
		return p.SellerHome
	default:
		return p.Home
	}
}

// Options configures an auth guard evaluation.
type Options struct {
	// AllowedRoles restricts the screen to the listed roles. Empty means
	// any authenticated user.
	AllowedRoles []authgate.Role
	Paths        Paths
}

// EvaluateAuth guards an authenticated screen. Unauthenticated sessions are
// sent to login with the requested location preserved; authenticated
// sessions holding a role outside the allow-list are sent to their own
// landing page rather than an error screen.
func EvaluateAuth(snap authgate.Snapshot, opts Options) Decision {
	paths := opts.Paths.withDefaults()

	if snap.Loading {
		return Decision{State: StateLoading}
	}
	if !snap.Authenticated || snap.User == nil {
		return Decision{State: StateRedirect, Target: paths.Login, PreserveFrom: true}
	}
	if len(opts.AllowedRoles) == 0 {
		return Decision{State: StateAllow}
	}
	for _, r := range opts.AllowedRoles {
		if snap.User.Role == r {
			return Decision{State: StateAllow}
		}
	}
	return Decision{State: StateRedirect, Target: paths.roleHome(snap.User.Role)}
}

// EvaluateGuest guards screens that only make sense logged out (login,
// register). Authenticated sessions bounce to their landing page.
func EvaluateGuest(snap authgate.Snapshot, paths Paths) Decision {
	paths = paths.withDefaults()

	if snap.Loading {
		return Decision{State: StateLoading}
	}
	if snap.Authenticated && snap.User != nil {
		return Decision{State: StateRedirect, Target: paths.roleHome(snap.User.Role)}
	}
	return Decision{State: StateAllow}
}

// EvaluateCapability guards a screen on a capability grant instead of a role
// list, so the grant table stays the single place that knows which roles may
// do what. Denied sessions land on their own home page.
func EvaluateCapability(snap authgate.Snapshot, c capability.Capability, paths Paths) Decision {
	p := paths.withDefaults()

	if snap.Loading {
		return Decision{State: StateLoading}
	}
	if !snap.Authenticated || snap.User == nil {
		return Decision{State: StateRedirect, Target: p.Login, PreserveFrom: true}
	}
	if !capability.AllowsUser(snap.User, c) {
		return Decision{State: StateRedirect, Target: p.roleHome(snap.User.Role)}
	}
	return Decision{State: StateAllow}
}

// StoreStatusFunc reports whether the seller's storefront is active.
type StoreStatusFunc func(ctx context.Context, sellerID string) (active bool, err error)

// EvaluateStore guards seller screens that require an active, unsuspended
// storefront. The lookup fails closed: an error counts as inactive.
func EvaluateStore(ctx context.Context, snap authgate.Snapshot, status StoreStatusFunc, paths Paths) Decision {
	paths = paths.withDefaults()

	base := EvaluateAuth(snap, Options{
		AllowedRoles: []authgate.Role{authgate.RoleSeller},
		Paths:        paths,
	})
	if base.State != StateAllow {
		return base
	}

	if status == nil {
		return Decision{State: StateRedirect, Target: paths.Home}
	}
	active, err := status(ctx, snap.User.ID)
	if err != nil || !active {
		return Decision{State: StateRedirect, Target: paths.Home}
	}
	return Decision{State: StateAllow}
}
