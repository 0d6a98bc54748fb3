package middleware

import (
	"net"
	"net/http"

	"github.com/toolink/ratelimit/limiter"
)

// Header names the HTTP middleware reads identity from.
const (
	HeaderDeviceID = "X-Device-Id"
	HeaderUserID   = "X-User-Id"
)

// HTTP wraps handlers with rate limiting. The request identity is taken
// from the client address and the X-Device-Id / X-User-Id headers and
// placed on the context for the limiter's extractor. Throttled requests
// get a 429 response.
func HTTP(rl *limiter.RateLimiter) func(http.Handler) http.Handler {
	rl.SetExtractor(Extractor)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithIdentity(r.Context(), Identity{
				IP:       clientIP(r.RemoteAddr),
				DeviceID: r.Header.Get(HeaderDeviceID),
				UserID:   r.Header.Get(HeaderUserID),
			})

			if rl.Limit(ctx, r.URL.Path) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP strips the port from an address, falling back to the raw value.
func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
