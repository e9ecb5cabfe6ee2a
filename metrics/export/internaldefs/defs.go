// Package internaldefs holds the shared metric name table for the
// Prometheus and OpenTelemetry exporters. Both exporters iterate the same
// defs so a metric added here shows up in every export surface.
package internaldefs

import (
	"github.com/localmart/authgate"
)

// CounterDef binds a MetricID to its exported name.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its exported name.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Rejected or failed logins."},
	{ID: authgate.MetricTwoFactorRequired, Name: "authgate_twofactor_required_total", Help: "Logins answered with a two-factor step-up."},
	{ID: authgate.MetricTwoFactorSuccess, Name: "authgate_twofactor_success_total", Help: "Successful two-factor confirmations."},
	{ID: authgate.MetricTwoFactorFailure, Name: "authgate_twofactor_failure_total", Help: "Failed two-factor confirmations."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-device logouts."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "All-device logouts."},
	{ID: authgate.MetricSessionHydrated, Name: "authgate_session_hydrated_total", Help: "Hydrations that restored a session."},
	{ID: authgate.MetricSessionHealed, Name: "authgate_session_healed_total", Help: "Desynchronized records self-healed on load."},
	{ID: authgate.MetricSessionExpired, Name: "authgate_session_expired_total", Help: "Sessions cleared on token expiry."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful token refreshes."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: authgate.MetricUserUpdated, Name: "authgate_user_updated_total", Help: "User snapshot merges."},
	{ID: authgate.MetricWatchdogWarning, Name: "authgate_watchdog_warning_total", Help: "Expiry warnings raised."},
	{ID: authgate.MetricGuardAllowed, Name: "authgate_guard_allowed_total", Help: "Guard decisions that admitted a request."},
	{ID: authgate.MetricGuardDenied, Name: "authgate_guard_denied_total", Help: "Guard decisions resolved as redirects."},
	{ID: authgate.MetricGuardLoading, Name: "authgate_guard_loading_total", Help: "Guard evaluations during hydration."},
	{ID: authgate.MetricGuardStoreBlocked, Name: "authgate_guard_store_blocked_total", Help: "Seller screens blocked by store suspension."},
	{ID: authgate.MetricCollectionFetch, Name: "authgate_collection_fetch_total", Help: "Collection fetches applied."},
	{ID: authgate.MetricCollectionStaleDropped, Name: "authgate_collection_stale_dropped_total", Help: "Collection fetches dropped as stale."},
	{ID: authgate.MetricCollectionMutationFailure, Name: "authgate_collection_mutation_failure_total", Help: "Collection mutations rejected by the server."},
	{ID: authgate.MetricChatConnect, Name: "authgate_chat_connect_total", Help: "Chat connections established."},
	{ID: authgate.MetricChatReconnect, Name: "authgate_chat_reconnect_total", Help: "Chat reconnections after a drop."},
	{ID: authgate.MetricChatDuplicateDropped, Name: "authgate_chat_duplicate_dropped_total", Help: "Chat redeliveries dropped by the ID window."},
}

var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricHydrateLatency, Name: "authgate_hydrate_latency_seconds", Help: "Session hydration latency histogram."},
}

// HistogramBounds are the upper bounds of the fixed histogram buckets, in
// seconds, matching the registry's bucket thresholds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OpenTelemetry instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form the
// Prometheus exposition format requires.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
