package webcpp

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a Server. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	BytesRead         prometheus.Counter
	BytesWritten      prometheus.Counter
	Requests          *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	KeepAliveExpired  prometheus.Counter
	Sessions          prometheus.Gauge
	HandlerPanics     prometheus.Counter
	DispatchQueueSize prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: "webcpp",
			Name:      "bytes_read_total",
			Help:      "Bytes received from connections.",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "webcpp",
			Name:      "bytes_written_total",
			Help:      "Bytes written to connections.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcpp",
			Name:      "http_requests_total",
			Help:      "HTTP responses sent, by method and status code.",
		}, []string{"method", "code"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcpp",
			Name:      "ws_messages_total",
			Help:      "WebSocket messages received, by opcode.",
		}, []string{"opcode"}),
		KeepAliveExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "webcpp",
			Name:      "keepalive_expired_total",
			Help:      "Connections closed for being idle.",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcpp",
			Name:      "sessions",
			Help:      "Open sessions.",
		}),
		HandlerPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: "webcpp",
			Name:      "handler_panics_total",
			Help:      "Handlers that panicked and were treated as not handling the request.",
		}),
		DispatchQueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcpp",
			Name:      "dispatch_queue_size",
			Help:      "Events waiting for the dispatcher.",
		}),
	}
}

func (m *Metrics) addBytesRead(n int64) {
	if m != nil {
		m.BytesRead.Add(float64(n))
	}
}

func (m *Metrics) addBytesWritten(n int64) {
	if m != nil {
		m.BytesWritten.Add(float64(n))
	}
}

func (m *Metrics) request(method string, code int) {
	if m != nil {
		m.Requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
}

func (m *Metrics) wsMessage(op Opcode) {
	if m != nil {
		m.WSMessages.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) keepAliveExpired() {
	if m != nil {
		m.KeepAliveExpired.Inc()
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) handlerPanic() {
	if m != nil {
		m.HandlerPanics.Inc()
	}
}

func (m *Metrics) queueSize(n int) {
	if m != nil {
		m.DispatchQueueSize.Set(float64(n))
	}
}
