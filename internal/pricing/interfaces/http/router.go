package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
	"github.com/wyfcoding/blackscholes/pkg/middleware"
	"github.com/wyfcoding/blackscholes/pkg/ratelimit"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const healthTimeout = 2 * time.Second

// HealthCheck 依赖健康检查，返回错误表示不健康
type HealthCheck func(ctx context.Context) error

// RouterOptions 路由依赖，除 Handler 外均可为空
type RouterOptions struct {
	ServiceName  string
	Handler      *PricingHandler
	Metrics      *metrics.Metrics
	MetricsPath  string
	AllowOrigins []string
	Limiter      ratelimit.RateLimiter
	Limit        ratelimit.Limit
	Checks       map[string]HealthCheck
}

// NewRouter 组装 gin 引擎：中间件、业务路由、健康检查与指标
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware())
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(middleware.GinLoggingMiddleware())
	if opts.Metrics != nil {
		r.Use(middleware.GinMetricsMiddleware(opts.Metrics))
	}
	if len(opts.AllowOrigins) > 0 {
		r.Use(middleware.GinCORSMiddleware(opts.AllowOrigins))
	}

	r.GET("/health", healthHandler(opts.Checks))
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.Metrics.Handler()))
	}

	api := r.Group("")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(opts.Limiter, opts.Limit))
	}
	opts.Handler.RegisterRoutes(api)
	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		statuses := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				statuses[name] = err.Error()
				healthy = false
				continue
			}
			statuses[name] = "ok"
		}

		code := http.StatusOK
		status := "ok"
		if !healthy {
			code = http.StatusServiceUnavailable
			status = "degraded"
		}
		c.JSON(code, gin.H{"status": status, "checks": statuses})
	}
}
