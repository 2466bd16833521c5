// Package metrics holds the in-process Prometheus collectors the pipeline
// updates as it runs. Nothing here is ever exposed over HTTP -- there is no
// scrape endpoint, only a private registry a caller can read back via
// Gather for its own diagnostics or debug recording.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one pipeline instance, registered
// against a private registry rather than the global default one.
type Metrics struct {
	registry *prometheus.Registry

	FramesDemodulated  *prometheus.CounterVec // by tech
	FramesParsed       *prometheus.CounterVec // by tech
	FrameIntegrityErrs *prometheus.CounterVec // by tech, kind (parity/crc/sync)
	ParseErrors        *prometheus.CounterVec // by tech
	DecodeErrors       prometheus.Counter
	BuffersDropped     prometheus.Counter // queue full, buffer discarded
	BuffersProcessed   prometheus.Counter
	QueueDepth         prometheus.Gauge
	CarrierUp          *prometheus.GaugeVec // by tech, 1/0
	DecodeLatency      *prometheus.HistogramVec
}

// New builds a fresh set of collectors registered against their own
// registry, so multiple Metrics instances (e.g. in tests) never collide on
// the process-wide default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesDemodulated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcdecode_frames_demodulated_total",
				Help: "RawFrames produced by a demodulator, by technology",
			},
			[]string{"tech"},
		),
		FramesParsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcdecode_frames_parsed_total",
				Help: "ProtocolFrames produced by a parser, by technology",
			},
			[]string{"tech"},
		),
		FrameIntegrityErrs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcdecode_frame_integrity_errors_total",
				Help: "RawFrames flagged with an integrity error, by technology and kind",
			},
			[]string{"tech", "kind"},
		),
		ParseErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcdecode_parse_errors_total",
				Help: "ProtocolFrames flagged ParseError, by technology",
			},
			[]string{"tech"},
		),
		DecodeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nfcdecode_decode_errors_total",
				Help: "Errors returned from a demodulator's Decode call",
			},
		),
		BuffersDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nfcdecode_buffers_dropped_total",
				Help: "SampleBuffers discarded because the pipeline queue was full",
			},
		),
		BuffersProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nfcdecode_buffers_processed_total",
				Help: "SampleBuffers pulled off the queue and handed to the demodulator cascade",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nfcdecode_queue_depth",
				Help: "Current number of SampleBuffers waiting in the pipeline queue",
			},
		),
		CarrierUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nfcdecode_carrier_up",
				Help: "1 if a carrier is currently detected, 0 otherwise, by technology",
			},
			[]string{"tech"},
		),
		DecodeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfcdecode_decode_latency_seconds",
				Help:    "Wall-clock time spent inside one Decode call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tech"},
		),
	}
}

// Gather returns the current metric families from the private registry, for
// a caller that wants to fold them into a debug recording or log snapshot.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}
