// Package middleware connects the rate limiter to HTTP and gRPC
// request pipelines. It carries the request's identifiers on the
// context so the limiter's extractor can resolve limit_by types
// without knowing about transports.
package middleware

import (
	"context"

	"github.com/toolink/ratelimit/limiter"
)

// identityKey is the private key type used for context.WithValue.
// Using a private type prevents collisions with other context keys.
type identityKey struct{}

// Identity carries the identifiers a request can be limited by.
// Fields left empty are skipped by rules that limit by them.
type Identity struct {
	IP       string
	DeviceID string
	UserID   string
}

// WithIdentity returns a new context derived from ctx that carries id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the Identity stored in ctx, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Extractor resolves limit_by types against the Identity in the
// context. Wire it into a RateLimiter with SetExtractor; the HTTP and
// gRPC wrappers in this package do that for you.
func Extractor(ctx context.Context, limitType string) string {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	switch limitType {
	case limiter.LimitByIP:
		return id.IP
	case limiter.LimitByDeviceID:
		return id.DeviceID
	case limiter.LimitByUserID:
		return id.UserID
	}
	return ""
}
