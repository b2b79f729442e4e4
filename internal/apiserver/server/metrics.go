package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 同时实现 auth.Observer 和 ratelimit.Observer
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	authEvents    *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	notifications *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics reg 为 nil 时使用默认 Registry
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	return &Metrics{
		requests: counter("http_requests_total", "HTTP requests by route and status", "method", "path", "status"),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			// bcrypt 哈希让注册和登录落在 100ms 以上
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served",
		}),
		authEvents:    counter("auth_events_total", "Auth lifecycle operations by outcome", "operation", "outcome"),
		rateLimited:   counter("rate_limit_rejections_total", "Requests rejected by the rate limiter", "policy"),
		notifications: counter("notifications_total", "Email notifications by kind and outcome", "kind", "outcome"),
		gatherer:      gatherer,
	}
}

func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// r.Pattern 在 ServeMux 匹配后才有值
		route := routeLabel(r)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// responseWriter 记录首次写出的状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// routeLabel 以匹配到的路由模式作为 path 标签，令牌和收藏 ID 不进入标签
// 未匹配任何路由的请求统一记为 "other"
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "other"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// Handler 挂在 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) AuthEvent(operation, outcome string) {
	m.authEvents.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Notification(kind, outcome string) {
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RateLimited(policy string) {
	m.rateLimited.WithLabelValues(policy).Inc()
}
