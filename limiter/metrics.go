package limiter

import "github.com/prometheus/client_golang/prometheus"

// Recorder receives decision outcomes, labelled by rule path.
type Recorder interface {
	Allowed(rule string)
	Denied(rule string)
	ConflictRetry(rule string)
	// ConflictExhausted is recorded when every conflict retry lost to a
	// concurrent writer and the request was admitted without a decision.
	ConflictExhausted(rule string)
	BackendError(rule string)
}

// NoopRecorder is the default Recorder. It ensures the hot path never
// has to nil-check the recorder.
type NoopRecorder struct{}

func (NoopRecorder) Allowed(string)           {}
func (NoopRecorder) Denied(string)            {}
func (NoopRecorder) ConflictRetry(string)     {}
func (NoopRecorder) ConflictExhausted(string) {}
func (NoopRecorder) BackendError(string)      {}

// PrometheusRecorder exports decision counters.
type PrometheusRecorder struct {
	allowed            *prometheus.CounterVec
	denied             *prometheus.CounterVec
	conflictRetries    *prometheus.CounterVec
	conflictsExhausted *prometheus.CounterVec
	backendErrors      *prometheus.CounterVec
}

// NewPrometheusRecorder creates a Recorder whose counters are
// registered on reg (use prometheus.DefaultRegisterer for the default
// registry).
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "requests_allowed_total",
			Help:      "Requests admitted by the rate limiter.",
		}, []string{"rule"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "requests_denied_total",
			Help:      "Requests denied by the rate limiter.",
		}, []string{"rule"}),
		conflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "conflict_retries_total",
			Help:      "Decide cycles repeated after a conflicting concurrent write.",
		}, []string{"rule"}),
		conflictsExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "conflicts_exhausted_total",
			Help:      "Requests admitted without a decision after every conflict retry lost.",
		}, []string{"rule"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "backend_errors_total",
			Help:      "Store failures observed while checking limits.",
		}, []string{"rule"}),
	}
	reg.MustRegister(r.allowed, r.denied, r.conflictRetries, r.conflictsExhausted, r.backendErrors)
	return r
}

func (r *PrometheusRecorder) Allowed(rule string) { r.allowed.WithLabelValues(rule).Inc() }

func (r *PrometheusRecorder) Denied(rule string) { r.denied.WithLabelValues(rule).Inc() }

func (r *PrometheusRecorder) ConflictRetry(rule string) {
	r.conflictRetries.WithLabelValues(rule).Inc()
}

func (r *PrometheusRecorder) ConflictExhausted(rule string) {
	r.conflictsExhausted.WithLabelValues(rule).Inc()
}

func (r *PrometheusRecorder) BackendError(rule string) {
	r.backendErrors.WithLabelValues(rule).Inc()
}
