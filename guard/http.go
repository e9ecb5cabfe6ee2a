package guard

import (
	"context"
	"net/http"
	"net/url"

	"github.com/localmart/authgate"
	"github.com/localmart/authgate/capability"
)

// SessionSource supplies the snapshot a guard evaluates. *authgate.Controller
// satisfies it.
type SessionSource interface {
	Snapshot() authgate.Snapshot
}

type snapshotContextKey struct{}

// SnapshotFromContext returns the snapshot an admitted request was evaluated
// against.
func SnapshotFromContext(ctx context.Context) (authgate.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey{}).(authgate.Snapshot)
	return snap, ok
}

// Middleware bundles a session source, redirect paths, and an optional
// metrics registry for the HTTP adapters.
type Middleware struct {
	Session SessionSource
	Paths   Paths
	Metrics *authgate.Metrics
}

// NewMiddleware returns a Middleware with default paths. metrics may be nil.
func NewMiddleware(session SessionSource, metrics *authgate.Metrics) *Middleware {
	return &Middleware{Session: session, Metrics: metrics}
}

// RequireAuth admits only authenticated sessions holding one of the given
// roles (any role when the list is empty).
func (m *Middleware) RequireAuth(roles ...authgate.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := m.Session.Snapshot()
			decision := EvaluateAuth(snap, Options{AllowedRoles: roles, Paths: m.Paths})
			m.apply(w, r, next, snap, decision)
		})
	}
}

// RequireCapability admits only sessions whose role holds the capability.
func (m *Middleware) RequireCapability(c capability.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := m.Session.Snapshot()
			decision := EvaluateCapability(snap, c, m.Paths)
			m.apply(w, r, next, snap, decision)
		})
	}
}

// GuestOnly admits only unauthenticated sessions.
func (m *Middleware) GuestOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := m.Session.Snapshot()
			decision := EvaluateGuest(snap, m.Paths)
			m.apply(w, r, next, snap, decision)
		})
	}
}

// RequireActiveStore admits sellers whose storefront the status probe
// reports active. Probe failures deny.
func (m *Middleware) RequireActiveStore(status StoreStatusFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := m.Session.Snapshot()
			decision := EvaluateStore(r.Context(), snap, status, m.Paths)
			if decision.State == StateRedirect && snap.Authenticated &&
				snap.User != nil && snap.User.Role == authgate.RoleSeller {
				m.Metrics.Inc(authgate.MetricGuardStoreBlocked)
			}
			m.apply(w, r, next, snap, decision)
		})
	}
}

func (m *Middleware) apply(w http.ResponseWriter, r *http.Request, next http.Handler, snap authgate.Snapshot, decision Decision) {
	switch decision.State {
	case StateLoading:
		m.Metrics.Inc(authgate.MetricGuardLoading)
		// Neutral placeholder: no redirect is committed until the session
		// settles, so the client never flashes through a wrong screen.
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)

	case StateRedirect:
		m.Metrics.Inc(authgate.MetricGuardDenied)
		target := decision.Target
		if decision.PreserveFrom {
			paths := m.Paths.withDefaults()
			target += "?" + paths.FromParam + "=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusFound)

	case StateAllow:
		m.Metrics.Inc(authgate.MetricGuardAllowed)
		ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
