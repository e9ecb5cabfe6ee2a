package authgate

import "errors"

var (
	// ErrControllerNotReady is returned when a Controller method is called
	// before Builder.Build wired its dependencies.
	ErrControllerNotReady = errors.New("controller not initialized")
	// ErrNotAuthenticated is returned by operations that require an active
	// session (UpdateUser, Refresh, ChangePassword).
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials is the generic rejection for a failed login when
	// the auth service supplies no message of its own.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTwoFactorRequired signals that the auth service requests a second
	// factor before issuing a token.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrTwoFactorInvalid is the generic rejection for a bad or expired
	// two-factor code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrSessionExpired is reported when the stored token's expiry claim has
	// passed during hydration or a watchdog tick.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionDesynced marks the defined error state where token and user
	// record were not persisted together. The controller self-heals it by
	// clearing both; the error never reaches callers.
	ErrSessionDesynced = errors.New("session state desynchronized")
	// ErrAuthClientRequired is returned by Build when no auth service client
	// was provided.
	ErrAuthClientRequired = errors.New("auth client required")
	// ErrTokenStoreRequired is returned by Build when neither a token store
	// nor a Redis client was provided.
	ErrTokenStoreRequired = errors.New("token store or redis client required")
)
