package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/localmart/authgate"
	"github.com/localmart/authgate/capability"
)

func loadingSnap() authgate.Snapshot {
	return authgate.Snapshot{Loading: true}
}

func guestSnap() authgate.Snapshot {
	return authgate.Snapshot{}
}

func userSnap(role authgate.Role) authgate.Snapshot {
	return authgate.Snapshot{
		User:          &authgate.User{ID: "u-1", Username: "amara", Role: role},
		Authenticated: true,
	}
}

func TestEvaluateAuthLoadingNeverRedirects(t *testing.T) {
	d := EvaluateAuth(loadingSnap(), Options{AllowedRoles: []authgate.Role{authgate.RoleAdmin}})
	if d.State != StateLoading {
		t.Fatalf("State = %v, want StateLoading", d.State)
	}
	if d.Target != "" {
		t.Errorf("Target = %q, want empty", d.Target)
	}
}

func TestEvaluateAuthUnauthenticated(t *testing.T) {
	d := EvaluateAuth(guestSnap(), Options{})
	if d.State != StateRedirect || d.Target != "/login" {
		t.Fatalf("decision = %+v, want redirect to /login", d)
	}
	if !d.PreserveFrom {
		t.Error("PreserveFrom = false, want true")
	}
}

func TestEvaluateAuthRoleMatrix(t *testing.T) {
	tests := []struct {
		name    string
		role    authgate.Role
		allowed []authgate.Role
		want    State
		target  string
	}{
		{"any role admitted with empty list", authgate.RoleBuyer, nil, StateAllow, ""},
		{"allowed role", authgate.RoleSeller, []authgate.Role{authgate.RoleSeller}, StateAllow, ""},
		{"buyer on admin screen", authgate.RoleBuyer, []authgate.Role{authgate.RoleAdmin}, StateRedirect, "/"},
		{"seller on admin screen", authgate.RoleSeller, []authgate.Role{authgate.RoleAdmin}, StateRedirect, "/seller/dashboard"},
		{"moderator on seller screen", authgate.RoleModerator, []authgate.Role{authgate.RoleSeller}, StateRedirect, "/admin"},
		{"support on seller screen", authgate.RoleSupport, []authgate.Role{authgate.RoleSeller}, StateRedirect, "/admin"},
		{"admin among several allowed", authgate.RoleAdmin, []authgate.Role{authgate.RoleAdmin, authgate.RoleModerator}, StateAllow, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluateAuth(userSnap(tt.role), Options{AllowedRoles: tt.allowed})
			if d.State != tt.want {
				t.Fatalf("State = %v, want %v", d.State, tt.want)
			}
			if d.Target != tt.target {
				t.Errorf("Target = %q, want %q", d.Target, tt.target)
			}
			if d.State == StateRedirect && d.PreserveFrom {
				t.Error("role redirect must not preserve the from location")
			}
		})
	}
}

func TestEvaluateCapability(t *testing.T) {
	if d := EvaluateCapability(loadingSnap(), capability.ViewAllOrders, Paths{}); d.State != StateLoading {
		t.Fatalf("loading: State = %v", d.State)
	}
	d := EvaluateCapability(guestSnap(), capability.ViewAllOrders, Paths{})
	if d.State != StateRedirect || d.Target != "/login" || !d.PreserveFrom {
		t.Fatalf("guest: %+v, want login redirect", d)
	}

	tests := []struct {
		role   authgate.Role
		cap    capability.Capability
		want   State
		target string
	}{
		{authgate.RoleAdmin, capability.ManageUsers, StateAllow, ""},
		{authgate.RoleModerator, capability.ViewAllOrders, StateAllow, ""},
		{authgate.RoleSupport, capability.ViewAllOrders, StateAllow, ""},
		{authgate.RoleBuyer, capability.ViewAllOrders, StateRedirect, "/"},
		{authgate.RoleSeller, capability.ViewAllOrders, StateRedirect, "/seller/dashboard"},
		{authgate.RoleSupport, capability.SuspendStores, StateRedirect, "/admin"},
	}
	for _, tt := range tests {
		d := EvaluateCapability(userSnap(tt.role), tt.cap, Paths{})
		if d.State != tt.want || d.Target != tt.target {
			t.Errorf("EvaluateCapability(%s, %v) = %+v, want %v %q", tt.role, tt.cap, d, tt.want, tt.target)
		}
	}
}

func TestEvaluateGuest(t *testing.T) {
	if d := EvaluateGuest(loadingSnap(), Paths{}); d.State != StateLoading {
		t.Fatalf("loading: State = %v", d.State)
	}
	if d := EvaluateGuest(guestSnap(), Paths{}); d.State != StateAllow {
		t.Fatalf("guest: State = %v", d.State)
	}

	// An already-signed-in admin opening /login lands on the console.
	d := EvaluateGuest(userSnap(authgate.RoleAdmin), Paths{})
	if d.State != StateRedirect || d.Target != "/admin" {
		t.Fatalf("admin on guest screen: %+v", d)
	}
	d = EvaluateGuest(userSnap(authgate.RoleSeller), Paths{})
	if d.Target != "/seller/dashboard" {
		t.Fatalf("seller on guest screen: %+v", d)
	}
	d = EvaluateGuest(userSnap(authgate.RoleBuyer), Paths{})
	if d.Target != "/" {
		t.Fatalf("buyer on guest screen: %+v", d)
	}
}

func TestEvaluateStore(t *testing.T) {
	ctx := context.Background()
	activeProbe := func(ctx context.Context, sellerID string) (bool, error) { return true, nil }
	suspendedProbe := func(ctx context.Context, sellerID string) (bool, error) { return false, nil }
	brokenProbe := func(ctx context.Context, sellerID string) (bool, error) {
		return true, errors.New("status service down")
	}

	if d := EvaluateStore(ctx, userSnap(authgate.RoleSeller), activeProbe, Paths{}); d.State != StateAllow {
		t.Fatalf("active store: %+v", d)
	}
	if d := EvaluateStore(ctx, userSnap(authgate.RoleSeller), suspendedProbe, Paths{}); d.State != StateRedirect || d.Target != "/" {
		t.Fatalf("suspended store: %+v", d)
	}
	// Fail closed: a probe error denies even though it reported active.
	if d := EvaluateStore(ctx, userSnap(authgate.RoleSeller), brokenProbe, Paths{}); d.State != StateRedirect {
		t.Fatalf("broken probe: %+v", d)
	}
	if d := EvaluateStore(ctx, userSnap(authgate.RoleSeller), nil, Paths{}); d.State != StateRedirect {
		t.Fatalf("nil probe: %+v", d)
	}
	// Non-sellers never reach the probe.
	if d := EvaluateStore(ctx, userSnap(authgate.RoleBuyer), activeProbe, Paths{}); d.State != StateRedirect || d.Target != "/" {
		t.Fatalf("buyer on store screen: %+v", d)
	}
	if d := EvaluateStore(ctx, guestSnap(), activeProbe, Paths{}); d.Target != "/login" {
		t.Fatalf("guest on store screen: %+v", d)
	}
}

type fakeSession struct{ snap authgate.Snapshot }

func (f *fakeSession) Snapshot() authgate.Snapshot { return f.snap }

func okHandler(t *testing.T, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if _, ok := SnapshotFromContext(r.Context()); !ok {
			t.Error("admitted request missing snapshot in context")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthHTTP(t *testing.T) {
	session := &fakeSession{snap: guestSnap()}
	mw := NewMiddleware(session, nil)

	var called bool
	handler := mw.RequireAuth()(okHandler(t, &called))

	// Unauthenticated: 302 to /login carrying the requested location.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?page=2", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?from=%2Forders%3Fpage%3D2" {
		t.Errorf("Location = %q", loc)
	}
	if called {
		t.Fatal("next handler ran for a denied request")
	}

	// Authenticated: admitted.
	session.snap = userSnap(authgate.RoleBuyer)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("status = %d, called = %v", rec.Code, called)
	}
}

func TestLoadingServesPlaceholder(t *testing.T) {
	mw := NewMiddleware(&fakeSession{snap: loadingSnap()}, nil)

	var called bool
	handler := mw.RequireAuth(authgate.RoleAdmin)(okHandler(t, &called))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want neutral 200", rec.Code)
	}
	if called {
		t.Fatal("next handler ran while loading")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("placeholder must not be cacheable")
	}
}

func TestRequireCapabilityHTTP(t *testing.T) {
	session := &fakeSession{snap: userSnap(authgate.RoleSupport)}
	mw := NewMiddleware(session, nil)

	var called bool
	handler := mw.RequireCapability(capability.ViewAllOrders)(okHandler(t, &called))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("support: status = %d, called = %v", rec.Code, called)
	}

	// Buyers lack the grant and bounce home.
	session.snap = userSnap(authgate.RoleBuyer)
	called = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("buyer: status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if called {
		t.Fatal("next handler ran without the capability")
	}
}

func TestGuestOnlyHTTP(t *testing.T) {
	session := &fakeSession{snap: userSnap(authgate.RoleSupport)}
	mw := NewMiddleware(session, nil)

	var called bool
	handler := mw.GuestOnly()(okHandler(t, &called))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin" {
		t.Errorf("Location = %q, want /admin", loc)
	}
	if called {
		t.Fatal("next handler ran for a signed-in user")
	}
}

func TestRequireActiveStoreHTTP(t *testing.T) {
	session := &fakeSession{snap: userSnap(authgate.RoleSeller)}
	metrics := authgate.NewMetrics(authgate.MetricsConfig{Enabled: true})
	mw := NewMiddleware(session, metrics)

	suspended := func(ctx context.Context, sellerID string) (bool, error) { return false, nil }

	var called bool
	handler := mw.RequireActiveStore(suspended)(okHandler(t, &called))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/seller/products", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if called {
		t.Fatal("next handler ran for a suspended store")
	}
	if got := metrics.Value(authgate.MetricGuardStoreBlocked); got != 1 {
		t.Errorf("store-blocked counter = %d, want 1", got)
	}
}
