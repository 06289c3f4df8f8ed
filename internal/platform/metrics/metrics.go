package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（例如 /api/v1/links/:id），不要用真实 path，否则 label 基数无限增长
	// - status：HTTP 状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于计算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Redirects：跳转结果，result = ok / not_found / expired / error
	Redirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_redirects_total",
			Help: "Redirect resolutions by result.",
		},
		[]string{"result"},
	)

	LinksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_links_created_total",
			Help: "Links persisted successfully.",
		},
	)

	// ShortCodeAttempts：每次成功生成短码用了几次抽样。分布右移说明短码空间在变拥挤。
	ShortCodeAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shortlink_code_generation_attempts",
			Help:    "Candidates drawn per successful short code generation.",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		},
	)

	// ShortCodeExhausted 大于 0 就应该告警。
	ShortCodeExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_code_generation_exhausted_total",
			Help: "Short code generations that hit the attempt limit.",
		},
	)

	// CacheOperations：layer = l1 / l2，result = hit / miss / hit_negative
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_cache_operations_total",
			Help: "Link cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	ClickEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_click_events_dropped_total",
			Help: "Click detail events dropped because the buffer was full or the broker rejected them.",
		},
	)

	// LinksByStatus 由定时任务刷新，status = active / expired
	LinksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shortlink_links",
			Help: "Stored links by status.",
		},
		[]string{"status"},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			Redirects,
			LinksCreated,
			ShortCodeAttempts,
			ShortCodeExhausted,
			CacheOperations,
			ClickEventsDropped,
			LinksByStatus,
		)
	})
}
