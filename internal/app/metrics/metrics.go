package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wyoiwyget",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wyoiwyget",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Total number of orders placed at checkout.",
		},
		[]string{"currency"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "orders",
			Name:      "status_transitions_total",
			Help:      "Total number of order status transitions.",
		},
		[]string{"from", "to"},
	)

	paymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Total number of payment webhook events processed.",
		},
		[]string{"provider", "outcome"},
	)

	paymentReconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "payments",
			Name:      "reconciliations_total",
			Help:      "Total number of pending payments resolved by the reconciler.",
		},
		[]string{"provider", "status"},
	)

	matchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "matching",
			Name:      "requests_total",
			Help:      "Total number of cross-platform product match requests.",
		},
		[]string{"outcome"},
	)

	matchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wyoiwyget",
			Subsystem: "matching",
			Name:      "request_duration_seconds",
			Help:      "Duration of product match requests across platforms.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"outcome"},
	)

	listingRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wyoiwyget",
			Subsystem: "catalog",
			Name:      "listing_refreshes_total",
			Help:      "Total number of platform listing refresh runs.",
		},
		[]string{"platform", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ordersPlaced,
		orderTransitions,
		paymentEvents,
		paymentReconciliations,
		matchRequests,
		matchDuration,
		listingRefreshes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOrderPlaced records a completed checkout.
func RecordOrderPlaced(currency string) {
	if currency == "" {
		currency = "usd"
	}
	ordersPlaced.WithLabelValues(currency).Inc()
}

// RecordOrderTransition records an order status change.
func RecordOrderTransition(from, to string) {
	orderTransitions.WithLabelValues(from, to).Inc()
}

// RecordPaymentEvent records a processed webhook event. Outcome is one of
// "applied", "duplicate", "ignored" or "error".
func RecordPaymentEvent(provider, outcome string) {
	paymentEvents.WithLabelValues(provider, outcome).Inc()
}

// RecordReconciliation records a pending payment resolved by polling the
// provider.
func RecordReconciliation(provider, status string) {
	paymentReconciliations.WithLabelValues(provider, status).Inc()
}

// RecordMatchRequest records metrics for a product match request.
func RecordMatchRequest(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	matchRequests.WithLabelValues(outcome).Inc()
	matchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordListingRefresh records a platform listing refresh run.
func RecordListingRefresh(platform string, success bool) {
	if platform == "" {
		platform = "unknown"
	}
	result := "false"
	if success {
		result = "true"
	}
	listingRefreshes.WithLabelValues(platform, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource IDs so label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "products", "orders", "payments", "notifications", "wishlist", "matches", "promotions":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) >= 3 && parts[0] == "payments" && parts[1] == "webhooks" {
			return "/payments/webhooks/" + parts[2]
		}
		if len(parts) >= 3 {
			return "/" + parts[0] + "/:id/" + parts[2]
		}
		return "/" + parts[0] + "/:id"
	default:
		return "/" + parts[0]
	}
}
