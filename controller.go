package authgate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/localmart/authgate/token"
)

// Controller owns the client-side session: the bearer token, the last-known
// user snapshot, and the loading flag that guards route evaluation until
// hydration has run. All exported methods are safe for concurrent use.
type Controller struct {
	config  Config
	store   token.Store
	client  AuthClient
	metrics *Metrics
	audit   *auditDispatcher

	mu            sync.RWMutex
	initialized   bool
	tokenStr      string
	user          *User
	authenticated bool
	loading       bool
	expiresAt     time.Time
	generation    uint64

	subsMu       sync.Mutex
	subs         map[uint64]func(Snapshot)
	watchdogSubs map[uint64]func(WatchdogEvent)
	nextSubID    uint64

	warned    bool // watchdog warning already fired for the current session
	closed    chan struct{}
	closeOnce sync.Once
}

// Snapshot returns an immutable view of the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	var user *User
	if c.user != nil {
		u := *c.user
		user = &u
	}
	return Snapshot{
		User:          user,
		Authenticated: c.authenticated,
		Loading:       c.loading,
		ExpiresAt:     c.expiresAt,
		Generation:    c.generation,
	}
}

// Initialize hydrates the session from the token store. It is safe to call
// again; a repeat call re-derives the session from whatever the store holds
// now. Only the watchdog goroutine is started once. Whatever the store holds
// (a valid record, a stale one, garbage, or nothing) the controller always
// leaves Loading false so guards can settle.
func (c *Controller) Initialize(ctx context.Context) error {
	if c == nil || c.store == nil {
		return ErrControllerNotReady
	}

	c.mu.Lock()
	first := !c.initialized
	c.initialized = true
	c.mu.Unlock()

	start := time.Now()
	err := c.hydrate(ctx)
	c.metrics.Observe(MetricHydrateLatency, time.Since(start))

	if first && c.config.Watchdog.Enabled {
		go c.runWatchdog()
	}
	return err
}

func (c *Controller) hydrate(ctx context.Context) error {
	deviceID := c.config.Token.DeviceID
	rec, err := c.store.Load(ctx, deviceID)

	switch {
	case err == nil:
		// fall through to expiry check below

	case errors.Is(err, token.ErrNotFound):
		c.settle(nil, "", time.Time{})
		return nil

	case errors.Is(err, token.ErrDesynced), errors.Is(err, token.ErrCorrupt):
		// Half a session is treated as no session: clear the record so the
		// next load is a clean miss.
		_ = c.store.Clear(ctx, deviceID)
		c.metrics.Inc(MetricSessionHealed)
		c.emitAudit(ctx, auditEventSessionHealed, true, "", ErrSessionDesynced, nil)
		c.settle(nil, "", time.Time{})
		return nil

	default:
		c.settle(nil, "", time.Time{})
		return fmt.Errorf("hydrate session: %w", err)
	}

	expiresAt, expErr := token.ParseExpiry(rec.Token)
	if expErr != nil || !expiresAt.After(time.Now()) {
		_ = c.store.Clear(ctx, deviceID)
		c.emitAudit(ctx, auditEventSessionCleared, true, rec.UserID, ErrSessionExpired, nil)
		c.metrics.Inc(MetricSessionExpired)
		c.settle(nil, "", time.Time{})
		return nil
	}

	user := userFromRecord(rec.User)
	c.settle(user, rec.Token, expiresAt)
	c.metrics.Inc(MetricSessionHydrated)
	c.emitAudit(ctx, auditEventSessionHydrated, true, user.ID, nil, nil)
	return nil
}

// settle installs a new session state, clears Loading, bumps the generation,
// and notifies subscribers. user == nil means unauthenticated.
func (c *Controller) settle(user *User, tokenStr string, expiresAt time.Time) {
	c.mu.Lock()
	c.user = user
	c.tokenStr = tokenStr
	c.authenticated = user != nil
	c.loading = false
	c.expiresAt = expiresAt
	c.generation++
	c.warned = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func userFromRecord(u *token.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     Role(u.Role),
	}
}

func recordFromUser(tokenStr string, u *User) *token.Record {
	rec := &token.Record{Token: tokenStr}
	if u != nil {
		rec.User = &token.User{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			FullName: u.FullName,
			Role:     string(u.Role),
		}
		rec.UserID = u.ID
	}
	return rec
}

// persistTTL is the record TTL: the token's remaining lifetime plus the
// configured grace so an expired-but-present record can still be healed.
func (c *Controller) persistTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + c.config.Token.PersistGrace
	if ttl < 0 {
		ttl = c.config.Token.PersistGrace
	}
	return ttl
}

func (c *Controller) adoptSession(ctx context.Context, reply *AuthReply) error {
	expiresAt, err := token.ParseExpiry(reply.Token)
	if err != nil {
		// Token with no readable expiry still authenticates; the watchdog
		// just has nothing to watch.
		expiresAt = time.Time{}
	}

	user := reply.User
	rec := recordFromUser(reply.Token, user)
	ttl := time.Duration(0)
	if !expiresAt.IsZero() {
		ttl = c.persistTTL(expiresAt)
	}
	if err := c.store.Save(ctx, c.config.Token.DeviceID, rec, ttl); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	c.settle(user, reply.Token, expiresAt)
	return nil
}

// Login authenticates with the auth service. Three outcomes:
//
//   - transport failure: the error is returned and the session is untouched;
//   - rejection or a two-factor challenge: a LoginResult describing it, no
//     error, session untouched;
//   - success: the session is adopted and persisted.
//
// Empty identifier or password short-circuit to a rejection without a
// network round trip.
func (c *Controller) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	if c == nil || c.client == nil {
		return LoginResult{}, ErrControllerNotReady
	}
	if identifier == "" || password == "" {
		return LoginResult{Message: "username and password are required"}, nil
	}

	reply, err := c.client.Login(ctx, identifier, password)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", err, nil)
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	if reply.TwoFactorRequired {
		c.metrics.Inc(MetricTwoFactorRequired)
		c.emitAudit(ctx, auditEventTwoFactorRequired, true, "", nil, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		msg := reply.Message
		if msg == "" {
			msg = ErrTwoFactorRequired.Error()
		}
		return LoginResult{TwoFactorRequired: true, Message: msg}, nil
	}

	if !reply.Success || reply.Token == "" || reply.User == nil {
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
		msg := reply.Message
		if msg == "" {
			msg = ErrInvalidCredentials.Error()
		}
		return LoginResult{Message: msg}, nil
	}

	if err := c.adoptSession(ctx, reply); err != nil {
		return LoginResult{}, err
	}
	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLoginSuccess, true, reply.User.ID, nil, nil)
	return LoginResult{Success: true, Token: reply.Token}, nil
}

// Verify2FA completes a login that required a second factor. Outcomes mirror
// Login minus the challenge branch.
func (c *Controller) Verify2FA(ctx context.Context, identifier, code string) (LoginResult, error) {
	if c == nil || c.client == nil {
		return LoginResult{}, ErrControllerNotReady
	}
	if identifier == "" || code == "" {
		return LoginResult{Message: "verification code is required"}, nil
	}

	reply, err := c.client.Verify2FA(ctx, identifier, code)
	if err != nil {
		c.metrics.Inc(MetricTwoFactorFailure)
		c.emitAudit(ctx, auditEventTwoFactorFailure, false, "", err, nil)
		return LoginResult{}, fmt.Errorf("verify 2fa: %w", err)
	}

	if !reply.Success || reply.Token == "" || reply.User == nil {
		c.metrics.Inc(MetricTwoFactorFailure)
		c.emitAudit(ctx, auditEventTwoFactorFailure, false, "", ErrTwoFactorInvalid, nil)
		msg := reply.Message
		if msg == "" {
			msg = ErrTwoFactorInvalid.Error()
		}
		return LoginResult{Message: msg}, nil
	}

	if err := c.adoptSession(ctx, reply); err != nil {
		return LoginResult{}, err
	}
	c.metrics.Inc(MetricTwoFactorSuccess)
	c.emitAudit(ctx, auditEventTwoFactorSuccess, true, reply.User.ID, nil, nil)
	return LoginResult{Success: true, Token: reply.Token}, nil
}

// Register creates an account. Registration does not log the user in; the
// storefront sends them through Login (or email verification) afterwards.
func (c *Controller) Register(ctx context.Context, req RegisterRequest) (*AuthReply, error) {
	if c == nil || c.client == nil {
		return nil, ErrControllerNotReady
	}
	return c.client.Register(ctx, req)
}

// ForgotPassword starts a password reset. Thin pass-through.
func (c *Controller) ForgotPassword(ctx context.Context, email string) error {
	if c == nil || c.client == nil {
		return ErrControllerNotReady
	}
	return c.client.ForgotPassword(ctx, email)
}

// ResetPassword completes a password reset. Thin pass-through.
func (c *Controller) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if c == nil || c.client == nil {
		return ErrControllerNotReady
	}
	return c.client.ResetPassword(ctx, resetToken, newPassword)
}

// ChangePassword changes the password for the current session.
func (c *Controller) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if c == nil || c.client == nil {
		return ErrControllerNotReady
	}
	c.mu.RLock()
	tokenStr := c.tokenStr
	c.mu.RUnlock()
	if tokenStr == "" {
		return ErrNotAuthenticated
	}
	return c.client.ChangePassword(ctx, tokenStr, oldPassword, newPassword)
}

// VerifyEmail confirms an email address. Thin pass-through.
func (c *Controller) VerifyEmail(ctx context.Context, verifyToken string) error {
	if c == nil || c.client == nil {
		return ErrControllerNotReady
	}
	return c.client.VerifyEmail(ctx, verifyToken)
}

// Send2FACode asks the auth service to (re)send a verification code.
func (c *Controller) Send2FACode(ctx context.Context, identifier string) error {
	if c == nil || c.client == nil {
		return ErrControllerNotReady
	}
	return c.client.Send2FACode(ctx, identifier)
}

// Logout tears the session down. The remote revocation is best-effort: a
// failed call never blocks the local clear, and logging out while logged
// out is a no-op.
func (c *Controller) Logout(ctx context.Context, fromAllDevices bool) error {
	if c == nil || c.store == nil {
		return ErrControllerNotReady
	}

	c.mu.RLock()
	tokenStr := c.tokenStr
	userID := ""
	if c.user != nil {
		userID = c.user.ID
	}
	wasAuthenticated := c.authenticated
	c.mu.RUnlock()

	if tokenStr != "" {
		// Revocation failure is not the user's problem.
		_ = c.client.Logout(ctx, tokenStr, fromAllDevices)
	}

	err := c.store.Clear(ctx, c.config.Token.DeviceID)
	if wasAuthenticated || tokenStr != "" {
		c.settle(nil, "", time.Time{})
	}

	if wasAuthenticated {
		event := auditEventLogout
		metric := MetricLogout
		if fromAllDevices {
			event = auditEventLogoutAll
			metric = MetricLogoutAll
		}
		c.metrics.Inc(metric)
		c.emitAudit(ctx, event, true, userID, nil, nil)
	}
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// UpdateUser applies a partial update to the in-memory user and re-persists
// the record so a reload sees the same profile. Returns false when there is
// no authenticated user to update, or when the updated record could not be
// persisted; the in-memory merge still applies in the latter case, so
// subscribers see the new profile even though a reload would not.
func (c *Controller) UpdateUser(ctx context.Context, update UserUpdate) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	if !c.authenticated || c.user == nil {
		c.mu.Unlock()
		return false
	}
	u := *c.user
	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	c.user = &u
	c.generation++
	tokenStr := c.tokenStr
	expiresAt := c.expiresAt
	snap := c.snapshotLocked()
	c.mu.Unlock()

	rec := recordFromUser(tokenStr, &u)
	ttl := time.Duration(0)
	if !expiresAt.IsZero() {
		ttl = c.persistTTL(expiresAt)
	}
	persisted := true
	if err := c.store.Save(ctx, c.config.Token.DeviceID, rec, ttl); err != nil {
		persisted = false
		c.emitAudit(ctx, auditEventUserUpdated, false, u.ID, err, nil)
	} else {
		c.metrics.Inc(MetricUserUpdated)
		c.emitAudit(ctx, auditEventUserUpdated, true, u.ID, nil, nil)
	}

	c.notify(snap)
	return persisted
}

// Refresh exchanges the current token for a fresh one. A rejected refresh
// clears the session; a transport failure leaves it alone so a transient
// outage does not log the user out.
func (c *Controller) Refresh(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrControllerNotReady
	}

	c.mu.RLock()
	tokenStr := c.tokenStr
	c.mu.RUnlock()
	if tokenStr == "" {
		return ErrNotAuthenticated
	}

	reply, err := c.client.Refresh(ctx, tokenStr)
	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
		c.emitAudit(ctx, auditEventRefreshFailure, false, "", err, nil)
		return fmt.Errorf("refresh: %w", err)
	}
	if !reply.Success || reply.Token == "" {
		c.metrics.Inc(MetricRefreshFailure)
		c.emitAudit(ctx, auditEventRefreshFailure, false, "", ErrSessionExpired, nil)
		_ = c.store.Clear(ctx, c.config.Token.DeviceID)
		c.settle(nil, "", time.Time{})
		return ErrSessionExpired
	}

	if reply.User == nil {
		// Some deployments return only a token on refresh; keep the user
		// we already have.
		c.mu.RLock()
		reply.User = c.user
		c.mu.RUnlock()
	}
	if err := c.adoptSession(ctx, reply); err != nil {
		return err
	}
	c.metrics.Inc(MetricRefreshSuccess)
	c.emitAudit(ctx, auditEventRefreshSuccess, true, reply.User.ID, nil, nil)
	return nil
}

// HasRole reports whether the current user holds exactly the given role.
// Unauthenticated sessions hold no roles.
func (c *Controller) HasRole(role Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated && c.user != nil && c.user.Role == role
}

// HasAnyRole reports whether the current user holds any of the given roles.
func (c *Controller) HasAnyRole(roles ...Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated || c.user == nil {
		return false
	}
	for _, r := range roles {
		if c.user.Role == r {
			return true
		}
	}
	return false
}

// Token returns the current bearer token, or empty when unauthenticated.
func (c *Controller) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokenStr
}

// Subscribe registers fn to be called synchronously with an immutable
// Snapshot after every session change. The returned function cancels the
// subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	c.subsMu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// OnWatchdog registers fn for expiry watchdog events. The returned function
// cancels the subscription.
func (c *Controller) OnWatchdog(fn func(WatchdogEvent)) func() {
	if fn == nil {
		return func() {}
	}
	c.subsMu.Lock()
	if c.watchdogSubs == nil {
		c.watchdogSubs = make(map[uint64]func(WatchdogEvent))
	}
	c.nextSubID++
	id := c.nextSubID
	c.watchdogSubs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.watchdogSubs, id)
		c.subsMu.Unlock()
	}
}

func (c *Controller) notify(snap Snapshot) {
	c.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) notifyWatchdog(event WatchdogEvent) {
	c.subsMu.Lock()
	fns := make([]func(WatchdogEvent), 0, len(c.watchdogSubs))
	for _, fn := range c.watchdogSubs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms. Returns the zero snapshot when metrics are disabled.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Metrics exposes the underlying registry for exporters. Nil when metrics
// are disabled.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (c *Controller) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close stops the watchdog and drains the audit dispatcher. The controller
// is unusable afterwards.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.audit != nil {
			c.audit.Close()
		}
	})
}

// sessionAge is a debug helper used by audit metadata closures.
func sessionAge(expiresAt time.Time) map[string]string {
	return map[string]string{
		"remaining_ms": strconv.FormatInt(time.Until(expiresAt).Milliseconds(), 10),
	}
}
