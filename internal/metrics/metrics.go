package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meresahar",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status code",
	}, []string{"route", "method", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meresahar",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	IssuesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meresahar",
		Name:      "issues_submitted_total",
		Help:      "Issues created by citizen submission",
	})

	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meresahar",
		Name:      "issue_transitions_total",
		Help:      "Lifecycle updates by target status and outcome",
	}, []string{"status", "result"})

	ImageFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meresahar",
		Name:      "image_fetches_total",
		Help:      "Image reads by slot and source (cache, store, missing, error)",
	}, []string{"slot", "source"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meresahar",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the submit rate limiter",
	})

	ReportFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "meresahar",
		Name:      "report_failures_total",
		Help:      "Summary reports served in degraded form",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		IssuesSubmitted,
		Transitions,
		ImageFetches,
		RateLimited,
		ReportFailures,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
