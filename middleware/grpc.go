package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/toolink/ratelimit/limiter"
)

// Metadata keys the gRPC interceptor reads identity from.
const (
	MetadataDeviceID = "device-id"
	MetadataUserID   = "user-id"
)

// UnaryServerInterceptor rate limits unary RPCs, matching rules against
// the full method name (e.g. "/link.LinkService/Resolve"). Identity
// comes from the peer address and the device-id / user-id request
// metadata. Throttled calls fail with codes.ResourceExhausted.
func UnaryServerInterceptor(rl *limiter.RateLimiter) grpc.UnaryServerInterceptor {
	rl.SetExtractor(Extractor)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = WithIdentity(ctx, grpcIdentity(ctx))
		if rl.Limit(ctx, info.FullMethod) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func grpcIdentity(ctx context.Context) Identity {
	var id Identity
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		id.IP = clientIP(p.Addr.String())
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataDeviceID); len(v) > 0 {
			id.DeviceID = v[0]
		}
		if v := md.Get(MetadataUserID); len(v) > 0 {
			id.UserID = v[0]
		}
	}
	return id
}
