// metrics.go - Prometheus metrics for proof generation and verification.

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medproof"

// Collector owns a private registry so that several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	proofsGenerated  *prometheus.CounterVec
	proofDuration    *prometheus.HistogramVec
	verifications    *prometheus.CounterVec
	studiesCommitted prometheus.Counter
	circuitCompile   prometheus.Histogram
	errors           *prometheus.CounterVec
	peerMessages     *prometheus.CounterVec
}

// NewCollector creates a collector with process and Go runtime metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		proofsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofs_generated_total",
			Help:      "Disclosure proofs generated, by backend and overall result.",
		}, []string{"backend", "overall"}),
		proofDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proof_generation_seconds",
			Help:      "Time spent generating a disclosure proof.",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"backend"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Proof verifications, by method and outcome.",
		}, []string{"method", "valid"}),
		studiesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "studies_committed_total",
			Help:      "Study protocols committed.",
		}),
		circuitCompile: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "circuit_setup_seconds",
			Help:      "Time spent compiling the circuit and loading or generating keys.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors returned to callers, by error code.",
		}, []string{"code"}),
		peerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_total",
			Help:      "Peer messages handled, by type and direction.",
		}, []string{"type", "direction"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.proofsGenerated,
		c.proofDuration,
		c.verifications,
		c.studiesCommitted,
		c.circuitCompile,
		c.errors,
		c.peerMessages,
	)
	return c
}

// RecordProofGeneration records a generated proof.
func (c *Collector) RecordProofGeneration(backend string, overall bool, duration time.Duration) {
	c.proofsGenerated.WithLabelValues(backend, strconv.FormatBool(overall)).Inc()
	c.proofDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordVerification records a verification outcome.
func (c *Collector) RecordVerification(method string, valid bool) {
	c.verifications.WithLabelValues(method, strconv.FormatBool(valid)).Inc()
}

// RecordStudyCommitted records a newly committed study.
func (c *Collector) RecordStudyCommitted() {
	c.studiesCommitted.Inc()
}

// RecordCircuitSetup records circuit compilation and key loading time.
func (c *Collector) RecordCircuitSetup(duration time.Duration) {
	c.circuitCompile.Observe(duration.Seconds())
}

// RecordError records an error by its code.
func (c *Collector) RecordError(code string) {
	c.errors.WithLabelValues(code).Inc()
}

// RecordPeerMessage records a peer message; direction is "in" or "out".
func (c *Collector) RecordPeerMessage(msgType, direction string) {
	c.peerMessages.WithLabelValues(msgType, direction).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
