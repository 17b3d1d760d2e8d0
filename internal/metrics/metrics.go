// Package metrics records Prometheus metrics for the trust core.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface the rest of the code depends on. The
// Prometheus implementation and the noop implementation both satisfy it, so
// disabling metrics costs nothing at call sites.
type Recorder interface {
	LoginAttempt(result string) // "success", "invalid_credentials", "locked"
	UserRegistered()
	TokenIssued(tokenType string) // "session", "refresh", "oauth"
	TokenRevoked(tokenType string)
	CodeIssued()
	CodeExchanged(result string) // "success", "invalid_grant"
	RateLimitRejected(scope string)
	HTTPRequest(method, path, status string, duration time.Duration)
}

// Ensure Metrics implements Recorder at compile time
var _ Recorder = (*Metrics)(nil)

type Metrics struct {
	loginAttemptsTotal  *prometheus.CounterVec
	usersRegistered     prometheus.Counter
	tokensIssuedTotal   *prometheus.CounterVec
	tokensRevokedTotal  *prometheus.CounterVec
	codesIssuedTotal    prometheus.Counter
	codesExchangedTotal *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the Prometheus recorder when enabled, the noop recorder
// otherwise. sync.Once guards double registration in tests.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoop()
	}
	once.Do(func() {
		defaultMetrics = &Metrics{
			loginAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "trustgate_login_attempts_total",
				Help: "Login attempts by result",
			}, []string{"result"}),
			usersRegistered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "trustgate_users_registered_total",
				Help: "Users registered",
			}),
			tokensIssuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "trustgate_tokens_issued_total",
				Help: "Tokens issued by type",
			}, []string{"type"}),
			tokensRevokedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "trustgate_tokens_revoked_total",
				Help: "Tokens revoked by type",
			}, []string{"type"}),
			codesIssuedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "trustgate_authorization_codes_issued_total",
				Help: "Authorization codes issued",
			}),
			codesExchangedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "trustgate_authorization_codes_exchanged_total",
				Help: "Authorization code exchange attempts by result",
			}, []string{"result"}),
			rateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "trustgate_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter, by scope",
			}, []string{"scope"}),
			httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "trustgate_http_requests_total",
				Help: "HTTP requests by method, route, and status",
			}, []string{"method", "path", "status"}),
			httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "trustgate_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "path"}),
		}
	})
	return defaultMetrics
}

func (m *Metrics) LoginAttempt(result string) {
	m.loginAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) UserRegistered() {
	m.usersRegistered.Inc()
}

func (m *Metrics) TokenIssued(tokenType string) {
	m.tokensIssuedTotal.WithLabelValues(tokenType).Inc()
}

func (m *Metrics) TokenRevoked(tokenType string) {
	m.tokensRevokedTotal.WithLabelValues(tokenType).Inc()
}

func (m *Metrics) CodeIssued() {
	m.codesIssuedTotal.Inc()
}

func (m *Metrics) CodeExchanged(result string) {
	m.codesExchangedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimitRejected(scope string) {
	m.rateLimitRejections.WithLabelValues(scope).Inc()
}

func (m *Metrics) HTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
