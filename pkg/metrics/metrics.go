// Package metrics 提供 Prometheus 指标集合，使用独立 Registry
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricing"

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// gRPC 请求计数
	GRPCRequestsTotal *prometheus.CounterVec
	// gRPC 请求耗时
	GRPCRequestDuration *prometheus.HistogramVec

	// 业务指标
	QuotesTotal        *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	BatchSize          prometheus.Histogram
	HeatmapCells       prometheus.Histogram
	CacheRequests      *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	OutboxPending      prometheus.Gauge
	DeadLetters        prometheus.Counter
}

// New 创建并注册指标实例
func New(serviceName string) *Metrics {
	constLabels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "grpc_requests_total",
			Help:        "Total gRPC requests",
			ConstLabels: constLabels,
		}, []string{"method", "code"}),
		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "grpc_request_duration_seconds",
			Help:        "gRPC request duration in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),

		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "quotes_total",
			Help:        "Total option quotes computed",
			ConstLabels: constLabels,
		}, []string{"option_type"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "validation_failures_total",
			Help:        "Rejected market parameters by error kind",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_size",
			Help:        "Contracts per batch pricing request",
			ConstLabels: constLabels,
			Buckets:     []float64{1, 5, 10, 50, 100, 250, 500, 1000},
		}),
		HeatmapCells: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "heatmap_cells",
			Help:        "Cells per heatmap request",
			ConstLabels: constLabels,
			Buckets:     []float64{1, 10, 100, 500, 1000, 2500},
		}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "quote_cache_requests_total",
			Help:        "Quote cache lookups by result",
			ConstLabels: constLabels,
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "events_published_total",
			Help:        "Domain events published by type and outcome",
			ConstLabels: constLabels,
		}, []string{"event_type", "outcome"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "outbox_pending_messages",
			Help:        "Outbox messages picked up in the last relay run",
			ConstLabels: constLabels,
		}),
		DeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "dead_letters_total",
			Help:        "Pricing requests routed to the dead letter topic",
			ConstLabels: constLabels,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.QuotesTotal,
		m.ValidationFailures,
		m.BatchSize,
		m.HeatmapCells,
		m.CacheRequests,
		m.EventsPublished,
		m.OutboxPending,
		m.DeadLetters,
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordQuote 记录一次成功定价
func (m *Metrics) RecordQuote(optionType string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(optionType).Inc()
}

// RecordValidationFailure 按错误类型记录参数校验失败
func (m *Metrics) RecordValidationFailure(kind string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(kind).Inc()
}

// RecordBatch 记录批量大小
func (m *Metrics) RecordBatch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

// RecordHeatmap 记录热力图格子数
func (m *Metrics) RecordHeatmap(cells int) {
	if m == nil {
		return
	}
	m.HeatmapCells.Observe(float64(cells))
}

// RecordCache hit 为 true 表示命中
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RecordEvent 记录事件发布结果
func (m *Metrics) RecordEvent(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, outcome).Inc()
}

// SetOutboxPending 设置待投递消息数
func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// RecordDeadLetter 记录一条死信
func (m *Metrics) RecordDeadLetter() {
	if m == nil {
		return
	}
	m.DeadLetters.Inc()
}
