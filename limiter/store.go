package limiter

import "context"

// Store is the persistence boundary for rate limit state. The core
// never writes: it reads state, computes a decision, and hands the new
// bytes back to the caller, whose CompareAndSwap is the single commit
// point. Implementations provide optimistic concurrency: every stored
// value carries an opaque token that changes on each write, and a
// conditional write only succeeds while the caller's token is current.
type Store interface {
	// Get returns the stored value and its concurrency token.
	// A missing key is not an error: it yields a nil value and an empty
	// token. Store failures are wrapped in ErrBackend.
	Get(ctx context.Context, key string) (value []byte, token string, err error)

	// CompareAndSwap writes value iff the stored token still equals
	// expectedToken. An empty expectedToken means the key must not exist
	// yet. A stale token fails with ErrBackendConflict, after which the
	// caller must re-read and repeat the whole decide cycle.
	CompareAndSwap(ctx context.Context, key string, expectedToken string, value []byte) error
}
