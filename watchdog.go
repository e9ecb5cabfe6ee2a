package authgate

import (
	"context"
	"time"
)

// runWatchdog is the single expiry watcher for the controller. One ticker
// covers every session the controller will ever hold; per-session state is
// just the warned flag, reset whenever a new session settles.
func (c *Controller) runWatchdog() {
	ticker := time.NewTicker(c.config.Watchdog.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.watchdogTick(time.Now())
		}
	}
}

func (c *Controller) watchdogTick(now time.Time) {
	c.mu.RLock()
	authenticated := c.authenticated
	expiresAt := c.expiresAt
	warned := c.warned
	userID := ""
	if c.user != nil {
		userID = c.user.ID
	}
	c.mu.RUnlock()

	if !authenticated || expiresAt.IsZero() {
		return
	}

	ctx := context.Background()

	if !now.Before(expiresAt) {
		c.expireSession(ctx, expiresAt, userID)
		return
	}

	remaining := expiresAt.Sub(now)
	if remaining <= c.config.Watchdog.WarnBefore && !warned {
		c.warnSession(ctx, expiresAt, remaining, userID)
	}
}

// expireSession forces a logout for the session the tick observed. It
// re-checks under the write lock that the session is still the one that was
// read; a login that completed mid-tick keeps its state and its stored
// record.
func (c *Controller) expireSession(ctx context.Context, expiresAt time.Time, userID string) {
	c.mu.Lock()
	if !c.authenticated || !c.expiresAt.Equal(expiresAt) {
		c.mu.Unlock()
		return
	}
	c.user = nil
	c.tokenStr = ""
	c.authenticated = false
	c.loading = false
	c.expiresAt = time.Time{}
	c.generation++
	c.warned = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	_ = c.store.Clear(ctx, c.config.Token.DeviceID)
	c.notify(snap)
	c.metrics.Inc(MetricSessionExpired)
	c.emitAudit(ctx, auditEventWatchdogExpired, true, userID, ErrSessionExpired, nil)
	c.notifyWatchdog(WatchdogEvent{Kind: WatchExpired, ExpiresAt: expiresAt})
}

func (c *Controller) warnSession(ctx context.Context, expiresAt time.Time, remaining time.Duration, userID string) {
	c.mu.Lock()
	// Re-check under the write lock; a login may have swapped the
	// session since the read above.
	if c.warned || !c.expiresAt.Equal(expiresAt) {
		c.mu.Unlock()
		return
	}
	c.warned = true
	c.mu.Unlock()

	c.metrics.Inc(MetricWatchdogWarning)
	c.emitAudit(ctx, auditEventWatchdogWarning, true, userID, nil, func() map[string]string {
		return sessionAge(expiresAt)
	})
	c.notifyWatchdog(WatchdogEvent{Kind: WatchWarning, ExpiresAt: expiresAt, Remaining: remaining})
}
