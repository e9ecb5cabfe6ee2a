// Package authgate implements the client-side session and access-control layer
// of the LocalMart storefront: token hydration, login with a two-factor step-up,
// role-gated route guards, and server-mirrored domain collections.
//
// The package is a thin client by contract. All business decisions (credential
// checks, two-factor code validation, inventory, store suspension) belong to
// the remote LocalMart services reached through the [AuthClient] boundary.
// authgate only mirrors what the server already decided and keeps that mirror
// honest: hydrate on start, reconcile on mutation, clear on logout or expiry.
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Controller], [Builder], [Config],
// and value types (Snapshot, LoginResult, WatchdogEvent). Token persistence
// lives in the token subpackage, the REST boundary in authapi, role→capability
// mapping in capability, navigation guards in guard, collection mirrors in
// collection, and the realtime transport in chat.
//
// # What this package must NOT do
//
//   - Re-implement server business rules (password or code verification,
//     throttling, suspension policy).
//   - Write to the token store from anywhere but the [Controller]; other
//     components observe session state through [Controller.Snapshot] and
//     [Controller.Subscribe], never the store directly.
//   - Surface authorization failures as errors; a denied role always resolves
//     to a redirect decision, never an exception.
//
// # Concurrency contract
//
// Controller methods are safe for concurrent use after [Builder.Build].
// Subscribers are invoked synchronously after each state transition with an
// immutable [Snapshot] copy; slow subscribers delay later notifications, not
// the transition itself.
package authgate
