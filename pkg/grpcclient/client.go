// Package grpcclient 提供 gRPC 客户端工厂，支持重试、超时、keepalive 与 trace 注入
package grpcclient

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/blackscholes/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// ClientConfig gRPC 客户端配置
type ClientConfig struct {
	// 目标地址
	Target string
	// 请求超时（秒）
	RequestTimeout int
	// 最大重试次数
	MaxRetries int
	// 重试初始延迟（毫秒）
	RetryDelay int
	// Keepalive 间隔（秒），0 表示不启用
	KeepaliveInterval int
}

// NewClient 创建 gRPC 客户端连接；连接是惰性的，首次调用时才真正建立
func NewClient(cfg ClientConfig, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(unaryClientInterceptor(cfg)),
	}

	if cfg.MaxRetries > 0 {
		delay := cfg.RetryDelay
		if delay <= 0 {
			delay = 100
		}
		opts = append(opts, grpc.WithDefaultServiceConfig(fmt.Sprintf(`{
			"methodConfig": [{
				"name": [{"service": ""}],
				"retryPolicy": {
					"maxAttempts": %d,
					"initialBackoff": "%dms",
					"maxBackoff": "5s",
					"backoffMultiplier": 2.0,
					"retryableStatusCodes": ["UNAVAILABLE"]
				}
			}]
		}`, cfg.MaxRetries+1, delay)))
	}

	if cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(cfg.KeepaliveInterval) * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}))
	}

	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		logger.Error(context.Background(), "Failed to create gRPC client", "target", cfg.Target, "error", err)
		return nil, err
	}

	logger.Debug(context.Background(), "gRPC client created", "target", cfg.Target)
	return conn, nil
}

// unaryClientInterceptor 一元 RPC 拦截器：超时与失败日志
func unaryClientInterceptor(cfg ClientConfig) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RequestTimeout)*time.Second)
			defer cancel()
		}

		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			st, _ := status.FromError(err)
			logger.Warn(ctx, "gRPC call failed",
				"method", method,
				"code", st.Code().String(),
				"message", st.Message(),
				"duration", time.Since(start),
			)
		}
		return err
	}
}
