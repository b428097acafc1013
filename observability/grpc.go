package observability

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor counts served RPCs and records their latency.
// A nil *Metrics yields a pass-through interceptor.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if m == nil {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		m.RPCs.WithLabelValues(method, status.Code(err).String()).Inc()
		m.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
