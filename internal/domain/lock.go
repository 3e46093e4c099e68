package domain

// Lock is a lease on a named resource. At most one unexpired lock
// exists per resource key. Corresponds to the locks table in Postgres.
type Lock struct {
	ResourceKey string // e.g. "BTCUSDT:1h:3f2a9c0d1e4b5a67"
	HolderID    string // unique per acquirer, uuid
	ExpiresAtMs int64  // lease expiry, Unix ms
}
