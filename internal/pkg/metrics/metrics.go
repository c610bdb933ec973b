package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务的 Prometheus 指标
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EntitlementChecks  *prometheus.CounterVec
	QuotaRejections    *prometheus.CounterVec
	CacheResults       *prometheus.CounterVec
	SubscriptionEvents *prometheus.CounterVec
	OptimisticRetries  *prometheus.CounterVec
	BillingEvents      *prometheus.CounterVec
	SchedulerRuns      *prometheus.CounterVec
	RenewalQueueDepth  prometheus.Gauge

	registry *prometheus.Registry
}

// New 创建并注册全部指标
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugin_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		EntitlementChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_entitlement_checks_total",
				Help: "Entitlement access decisions",
			},
			[]string{"result"},
		),
		QuotaRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_quota_rejections_total",
				Help: "Quota increments rejected because the limit was reached",
			},
			[]string{"resource"},
		),
		CacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_entitlement_cache_total",
				Help: "Entitlement cache lookups by result",
			},
			[]string{"result"},
		),
		SubscriptionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_subscription_events_total",
				Help: "Subscription lifecycle events",
			},
			[]string{"event"},
		),
		OptimisticRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_optimistic_retries_total",
				Help: "Version conflicts that triggered a re-read",
			},
			[]string{"entity"},
		),
		BillingEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_billing_events_total",
				Help: "Billing record status changes",
			},
			[]string{"status"},
		),
		SchedulerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_scheduler_runs_total",
				Help: "Scheduled job executions",
			},
			[]string{"job", "result"},
		),
		RenewalQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugin_renewal_queue_depth",
				Help: "Pending renewal messages",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EntitlementChecks,
		m.QuotaRejections,
		m.CacheResults,
		m.SubscriptionEvents,
		m.OptimisticRetries,
		m.BillingEvents,
		m.SchedulerRuns,
		m.RenewalQueueDepth,
	)

	return m
}

// NewNop 使用独立 registry，测试和不暴露指标的进程使用
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler /metrics 端点
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware 记录请求数与耗时，route 使用 gin 的路由模板避免高基数
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
