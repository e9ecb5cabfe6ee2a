// Package collection keeps client-side mirrors of the server-owned user
// collections: the cart, favorites, and followed stores. The server is the
// authority; a mirror only caches what the server last confirmed and clears
// itself the moment the session does.
package collection

import (
	"context"
	"sort"
	"sync"

	"github.com/localmart/authgate"
)

// Strategy selects how a mirror reconciles after a successful mutation.
type Strategy int

const (
	// StrategyRefetch re-reads the authoritative set after every mutation.
	// Used where server-side adjustments matter (stock caps on quantities).
	StrategyRefetch Strategy = iota
	// StrategyOptimistic applies the mutation locally and trusts the next
	// full Fetch to correct any drift. Used for latency-sensitive toggles.
	StrategyOptimistic
)

// Item is one element of a collection. Quantity is meaningful only for the
// cart; the other collections carry it as 1.
type Item struct {
	ID       string
	Quantity int
}

// Backend is the server side of a collection.
type Backend interface {
	Fetch(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, id string, qty int) error
	Remove(ctx context.Context, id string) error
}

// Result is the uniform mutation outcome. Mutations never return raw
// errors; UI code branches on Success and shows Message.
type Result struct {
	Success bool
	Message string
}

// Session is the slice of the controller a mirror needs.
type Session interface {
	Snapshot() authgate.Snapshot
	Subscribe(func(authgate.Snapshot)) func()
}

// Mirror is a generation-guarded cache of one collection.
type Mirror struct {
	name     string
	backend  Backend
	strategy Strategy
	session  Session
	metrics  *authgate.Metrics

	mu    sync.RWMutex
	items map[string]Item
	// fetchedGen is the session generation the current contents belong to.
	fetchedGen uint64

	unsubscribe func()
}

// New builds a mirror over the backend. metrics may be nil.
func New(name string, backend Backend, strategy Strategy, session Session, metrics *authgate.Metrics) *Mirror {
	return &Mirror{
		name:     name,
		backend:  backend,
		strategy: strategy,
		session:  session,
		metrics:  metrics,
		items:    make(map[string]Item),
	}
}

// NewCart mirrors the shopping cart. Quantities can be adjusted server-side
// (stock limits), so it refetches after every mutation.
func NewCart(backend Backend, session Session, metrics *authgate.Metrics) *Mirror {
	return New("cart", backend, StrategyRefetch, session, metrics)
}

// NewFavorites mirrors the favorites list.
func NewFavorites(backend Backend, session Session, metrics *authgate.Metrics) *Mirror {
	return New("favorites", backend, StrategyRefetch, session, metrics)
}

// NewFollowedStores mirrors followed stores. Follow is a high-frequency
// toggle, so it applies optimistically and lets the next Fetch reconcile.
func NewFollowedStores(backend Backend, session Session, metrics *authgate.Metrics) *Mirror {
	return New("followed_stores", backend, StrategyOptimistic, session, metrics)
}

// Name reports which collection this mirror tracks, for logging and
// audit metadata.
func (m *Mirror) Name() string { return m.name }

// Bind attaches the mirror to session transitions: every authenticated
// snapshot triggers a fetch, every unauthenticated one clears the mirror.
// The returned function detaches.
func (m *Mirror) Bind(ctx context.Context) func() {
	m.unsubscribe = m.session.Subscribe(func(snap authgate.Snapshot) {
		if snap.Loading {
			return
		}
		if !snap.Authenticated {
			m.clear(snap.Generation)
			return
		}
		m.fetchForGeneration(ctx, snap.Generation)
	})
	return m.unsubscribe
}

// Fetch loads the authoritative set for the current session. Logged-out
// sessions just clear.
func (m *Mirror) Fetch(ctx context.Context) Result {
	snap := m.session.Snapshot()
	if !snap.Authenticated {
		m.clear(snap.Generation)
		return Result{Success: true}
	}
	return m.fetchForGeneration(ctx, snap.Generation)
}

// fetchForGeneration loads the set and applies it only if the session is
// still on the generation the fetch was issued for. A response keyed to a
// stale generation is dropped, so a slow fetch that lands after logout can
// never repopulate a cleared mirror.
func (m *Mirror) fetchForGeneration(ctx context.Context, gen uint64) Result {
	items, err := m.backend.Fetch(ctx)
	if err != nil {
		return Result{Message: err.Error()}
	}

	if current := m.session.Snapshot().Generation; current != gen {
		m.metrics.Inc(authgate.MetricCollectionStaleDropped)
		return Result{Message: "session changed during fetch"}
	}

	m.mu.Lock()
	m.items = make(map[string]Item, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		m.items[it.ID] = it
	}
	m.fetchedGen = gen
	m.mu.Unlock()

	m.metrics.Inc(authgate.MetricCollectionFetch)
	return Result{Success: true}
}

func (m *Mirror) clear(gen uint64) {
	m.mu.Lock()
	m.items = make(map[string]Item)
	m.fetchedGen = gen
	m.mu.Unlock()
}

// Add puts id into the collection with the given quantity.
func (m *Mirror) Add(ctx context.Context, id string, qty int) Result {
	snap := m.session.Snapshot()
	if !snap.Authenticated {
		return Result{Message: "sign in to continue"}
	}
	if qty <= 0 {
		qty = 1
	}

	if err := m.backend.Add(ctx, id, qty); err != nil {
		m.metrics.Inc(authgate.MetricCollectionMutationFailure)
		return Result{Message: err.Error()}
	}

	switch m.strategy {
	case StrategyRefetch:
		return m.fetchForGeneration(ctx, snap.Generation)
	default:
		m.mu.Lock()
		m.items[id] = Item{ID: id, Quantity: qty}
		m.mu.Unlock()
		return Result{Success: true}
	}
}

// Remove deletes id from the collection. Removing an absent id succeeds.
func (m *Mirror) Remove(ctx context.Context, id string) Result {
	snap := m.session.Snapshot()
	if !snap.Authenticated {
		return Result{Message: "sign in to continue"}
	}

	if err := m.backend.Remove(ctx, id); err != nil {
		m.metrics.Inc(authgate.MetricCollectionMutationFailure)
		return Result{Message: err.Error()}
	}

	switch m.strategy {
	case StrategyRefetch:
		return m.fetchForGeneration(ctx, snap.Generation)
	default:
		m.mu.Lock()
		delete(m.items, id)
		m.mu.Unlock()
		return Result{Success: true}
	}
}

// Toggle adds id when absent and removes it when present, so applying it
// twice restores the starting membership.
func (m *Mirror) Toggle(ctx context.Context, id string) Result {
	if m.Contains(id) {
		return m.Remove(ctx, id)
	}
	return m.Add(ctx, id, 1)
}

// Contains reports membership of id.
func (m *Mirror) Contains(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[id]
	return ok
}

// Quantity returns the cached quantity for id, 0 when absent.
func (m *Mirror) Quantity(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[id].Quantity
}

// Len returns the number of cached items.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Items returns the cached items sorted by ID.
func (m *Mirror) Items() []Item {
	m.mu.RLock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
