package grpc

import (
	"time"

	"github.com/wyfcoding/blackscholes/pkg/metrics"
	"github.com/wyfcoding/blackscholes/pkg/middleware"
	"github.com/wyfcoding/blackscholes/pkg/ratelimit"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServerOptions gRPC 服务端依赖，均可为空
type ServerOptions struct {
	Metrics *metrics.Metrics
	Limiter ratelimit.RateLimiter
	Limit   ratelimit.Limit
	// MaxConcurrentStreams 0 表示不限制
	MaxConcurrentStreams uint32
	IdleTimeout          time.Duration
}

// NewServer 创建 gRPC 服务并注册定价服务、健康检查与反射
func NewServer(handler *GRPCHandler, opts ServerOptions) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.GRPCRecoveryInterceptor(),
		middleware.GRPCLoggingInterceptor(),
	}
	if opts.Metrics != nil {
		interceptors = append(interceptors, middleware.GRPCMetricsInterceptor(opts.Metrics))
	}
	if opts.Limiter != nil {
		interceptors = append(interceptors, middleware.GRPCRateLimitInterceptor(opts.Limiter, opts.Limit))
	}

	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: idle,
			Time:              30 * time.Second,
			Timeout:           10 * time.Second,
		}),
	}
	if opts.MaxConcurrentStreams > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(opts.MaxConcurrentStreams))
	}
	s := grpc.NewServer(serverOpts...)
	RegisterPricingServiceServer(s, handler)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s, hs
}
