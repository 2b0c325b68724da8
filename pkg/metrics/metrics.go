// Package metrics exposes prometheus instrumentation of the dashboard service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perfana_dash"

var (
	remoteCallCount    *prometheus.CounterVec
	remoteCallErrors   *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
	subscriptionsReady *prometheus.GaugeVec
	storeDocuments     *prometheus.GaugeVec
	httpRequestCount   *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	wsClients          prometheus.Gauge
	notificationCount  *prometheus.CounterVec
	pendingActions     prometheus.Gauge
)

func init() {
	remoteCallCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_total",
			Help:      "Total number of remote method calls issued to the Perfana server",
		},
		[]string{"method"},
	)
	prometheus.MustRegister(remoteCallCount)

	remoteCallErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_error_total",
			Help:      "Total number of failed remote method calls",
		},
		[]string{"method", "kind"}, // kind: application/transport
	)
	prometheus.MustRegister(remoteCallErrors)

	remoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "Duration of remote method calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)
	prometheus.MustRegister(remoteCallDuration)

	subscriptionsReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ddp",
			Name:      "subscription_ready",
			Help:      "Whether a named subscription has delivered its initial data set",
		},
		[]string{"name"},
	)
	prometheus.MustRegister(subscriptionsReady)

	storeDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "documents",
			Help:      "Number of mirrored documents per collection",
		},
		[]string{"collection"},
	)
	prometheus.MustRegister(storeDocuments)

	httpRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"route", "method", "code"},
	)
	prometheus.MustRegister(httpRequestCount)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	prometheus.MustRegister(httpDuration)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Number of connected websocket view clients",
		},
	)
	prometheus.MustRegister(wsClients)

	notificationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_total",
			Help:      "Total number of notifications raised",
		},
		[]string{"level"},
	)
	prometheus.MustRegister(notificationCount)

	pendingActions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "pending",
			Help:      "Number of mutations waiting for a server response",
		},
	)
	prometheus.MustRegister(pendingActions)
}

// ObserveRemoteCall records one remote call. kind is empty on success.
func ObserveRemoteCall(method string, d time.Duration, kind string) {
	remoteCallCount.WithLabelValues(method).Inc()
	remoteCallDuration.WithLabelValues(method).Observe(d.Seconds())
	if kind != "" {
		remoteCallErrors.WithLabelValues(method, kind).Inc()
	}
}

// SetSubscriptionReady records the readiness of a subscription
func SetSubscriptionReady(name string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	subscriptionsReady.WithLabelValues(name).Set(v)
}

// SetDocuments records the size of a mirrored collection
func SetDocuments(collection string, n int) {
	storeDocuments.WithLabelValues(collection).Set(float64(n))
}

// ObserveHTTP records one served request
func ObserveHTTP(route, method string, code int, d time.Duration) {
	httpRequestCount.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// WebsocketConnected adjusts the websocket client gauge by delta
func WebsocketConnected(delta int) {
	wsClients.Add(float64(delta))
}

// Notified counts a raised notification
func Notified(level string) {
	notificationCount.WithLabelValues(level).Inc()
}

// SetPending records the number of in-flight mutations
func SetPending(n int) {
	pendingActions.Set(float64(n))
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
