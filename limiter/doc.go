// Package limiter provides pluggable rate limiting over a pluggable
// key/value store.
//
// Four algorithms share one capability set (LimiterType): fixed window,
// sliding window (boundary-weighted estimate), token bucket and leaky
// bucket. Each is a pure decision function over the persisted state
// bytes, its policy parameters and the current time; nothing in the
// decision path performs I/O, locks, or retries. State is serialized in
// a fixed little-endian layout prefixed with an algorithm tag, so bytes
// written under one algorithm are rejected with ErrMalformedValue when
// decoded by another instead of being silently reinterpreted.
//
// Concurrency safety across callers and processes is delegated to the
// Store boundary: values are read together with an opaque concurrency
// token and written back with CompareAndSwap, which fails with
// ErrBackendConflict when a concurrent writer got there first. Because
// decisions are deterministic and side-effect-free, repeating the whole
// read-decide-write cycle after a conflict is always safe. Two stores
// are provided: an in-process map for tests and single-instance
// deployments, and a Redis store that runs the conditional write as a
// Lua script so one Redis can arbitrate many processes.
//
// RateLimiter ties the pieces together for gateway-style use: YAML
// rules match request paths (exact or regex), pick an algorithm and
// limit per identifier type (ip, device_id, user_id), and the
// read-decide-write cycle runs with bounded conflict retries. Store
// failures fail open. For direct control, use a LimiterType and a
// Store yourself: denial surfaces as ErrRateExceeded alongside the
// refreshed state bytes, and retry policy is entirely yours.
package limiter
