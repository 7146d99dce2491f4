package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RateLimitMiddleware 按客户端 IP 限流；限流器出错时放行
func RateLimitMiddleware(limiter ratelimit.RateLimiter, limit ratelimit.Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:http:" + c.ClientIP()

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter.Round(time.Second)/time.Second), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "too many requests",
				"data": gin.H{"retry_after": res.RetryAfter.String()},
			})
			return
		}

		c.Next()
	}
}

// GRPCRateLimitInterceptor gRPC 限流拦截器，按对端地址限流
func GRPCRateLimitInterceptor(limiter ratelimit.RateLimiter, limit ratelimit.Limit) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key := "ratelimit:grpc:unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			key = "ratelimit:grpc:" + p.Addr.String()
		}
		res, err := limiter.Allow(ctx, key, limit)
		if err == nil && !res.Allowed {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
