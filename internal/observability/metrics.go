package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sip2ctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the probe endpoint.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sip2ctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sip2ctl",
			Subsystem: "sip",
			Name:      "exchange_total",
			Help:      "SIP2 request/response exchanges by command code and outcome.",
		},
		[]string{"command", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sip2ctl",
			Subsystem: "sip",
			Name:      "exchange_duration_seconds",
			Help:      "SIP2 exchange round-trip time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sip2ctl",
			Subsystem: "sip",
			Name:      "session_transitions_total",
			Help:      "Connection state transitions.",
		},
		[]string{"from", "to"},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sip2ctl",
			Subsystem: "probe",
			Name:      "checks_total",
			Help:      "Probe checks against the SIP2 server.",
		},
		[]string{"server", "success"},
	)
	probeUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sip2ctl",
			Subsystem: "probe",
			Name:      "up",
			Help:      "1 when the last probe check succeeded.",
		},
		[]string{"server"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, exchanges, exchangeDuration, transitions, probes, probeUp)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// Exchange outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeChecksum  = "checksum_error"
)

func RecordExchange(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(command, outcome).Inc()
	exchangeDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordTransition(from, to string) {
	RegisterMetrics()
	transitions.WithLabelValues(from, to).Inc()
}

func RecordProbe(server string, success bool) {
	RegisterMetrics()
	probes.WithLabelValues(server, strconv.FormatBool(success)).Inc()
	up := 0.0
	if success {
		up = 1
	}
	probeUp.WithLabelValues(server).Set(up)
}
