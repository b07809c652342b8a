package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus instrumentation surface for an Engine,
// grounded in the same promauto.With(registry) construction style the
// example pack uses for its own Prometheus-backed metrics structs. Pass
// nil to NewMetrics to register against the default global registry, or
// a private *prometheus.Registry in tests to avoid collisions.
type Metrics struct {
	framesDecoded        *prometheus.CounterVec
	fragmentsReassembled prometheus.Counter
	pendingTimeouts      prometheus.Counter
	aliveTimeouts        prometheus.Counter
	responsesMatched     prometheus.Counter
	orphanResponses      prometheus.Counter
	bufferSizeAcks       prometheus.Counter
	activeConnections    prometheus.Gauge
}

// NewMetrics builds an Engine's metrics, registering against reg (or the
// default global registry if reg is nil).
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var factory promauto.Factory
	if reg != nil {
		factory = promauto.With(reg)
	} else {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		framesDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iot_proto_frames_decoded_total",
				Help: "Total number of logical frames decoded, by method",
			},
			[]string{"method"},
		),
		fragmentsReassembled: factory.NewCounter(prometheus.CounterOpts{
			Name: "iot_proto_fragments_reassembled_total",
			Help: "Total number of physical-write fragments folded into multipart frames",
		}),
		pendingTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "iot_proto_pending_timeouts_total",
			Help: "Total number of REQUEST frames that timed out waiting for a RESPONSE",
		}),
		aliveTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "iot_proto_alive_timeouts_total",
			Help: "Total number of ALIVE_REQUEST round trips that timed out, destroying the connection",
		}),
		responsesMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "iot_proto_responses_matched_total",
			Help: "Total number of RESPONSE frames matched to a pending REQUEST",
		}),
		orphanResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "iot_proto_orphan_responses_total",
			Help: "Total number of RESPONSE frames dropped for lacking a pending id",
		}),
		bufferSizeAcks: factory.NewCounter(prometheus.CounterOpts{
			Name: "iot_proto_buffer_size_acks_total",
			Help: "Total number of BUFFER_SIZE_RESPONSE frames observed",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "iot_proto_active_connections",
			Help: "Current number of live connections managed by the engine",
		}),
	}
}
