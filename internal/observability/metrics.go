// Package observability provides injected Prometheus metrics and logging.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the recording surface used by the engine and its collaborators.
type Metrics interface {
	CandidateIn(source string)
	Filtered(reason string)
	FreshPass()
	Scored(score float64)
	QueueDepth(n int)
	QueueDropped()
	EffectiveThreshold(v float64)
	EngineRunning(running bool)
	EnrichmentFailure(operation string)
	RPCLatency(method string, seconds float64)
	SinkError(sink string)
	ShortlistPublished(n int)
}

// Prometheus implements Metrics with client_golang collectors.
type Prometheus struct {
	// Ingestion metrics
	CandidatesIn  *prometheus.CounterVec
	QueueSize     prometheus.Gauge
	QueueDrops    prometheus.Counter
	EngineUp      prometheus.Gauge
	FreshPassHits prometheus.Counter

	// Discovery metrics
	CandidatesFiltered *prometheus.CounterVec
	CandidatesScored   prometheus.Counter
	ScoreHistogram     prometheus.Histogram
	MinScoreEffective  prometheus.Gauge

	// Enrichment metrics
	EnrichmentFailures *prometheus.CounterVec
	RPCCallLatency     *prometheus.HistogramVec

	// Output metrics
	SinkErrors       *prometheus.CounterVec
	ShortlistSize    prometheus.Gauge
	ShortlistPublish prometheus.Counter
}

// NewPrometheus creates collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if namespace == "" {
		namespace = "solana_token_radar"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Prometheus{
		CandidatesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candidates_in_total",
			Help:      "Candidates pushed by sources",
		}, []string{"source"}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Messages waiting in the candidate queue",
		}),
		QueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_dropped_total",
			Help:      "Messages discarded by the drop-oldest policy",
		}),
		EngineUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "engine_running",
			Help:      "1 while the discovery engine is running",
		}),
		FreshPassHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "fresh_pass_total",
			Help:      "Candidates admitted through the fresh-pass path",
		}),
		CandidatesFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_filtered_total",
			Help:      "Candidates rejected or penalized, by reason",
		}, []string{"reason"}),
		CandidatesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_scored_total",
			Help:      "Candidates that reached scoring",
		}),
		ScoreHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "overall_score",
			Help:      "Distribution of overall candidate scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MinScoreEffective: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "min_score_effective",
			Help:      "Current dynamic admission threshold",
		}),
		EnrichmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "failures_total",
			Help:      "Failed chain-state lookups by operation",
		}, []string{"operation"}),
		RPCCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain-state RPC call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "sink_errors_total",
			Help:      "Failed or dropped writes by sink",
		}, []string{"sink"}),
		ShortlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "shortlist_size",
			Help:      "Candidates in the last published shortlist",
		}),
		ShortlistPublish: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "shortlist_published_total",
			Help:      "Shortlist publications",
		}),
	}

	reg.MustRegister(
		m.CandidatesIn, m.QueueSize, m.QueueDrops, m.EngineUp, m.FreshPassHits,
		m.CandidatesFiltered, m.CandidatesScored, m.ScoreHistogram, m.MinScoreEffective,
		m.EnrichmentFailures, m.RPCCallLatency,
		m.SinkErrors, m.ShortlistSize, m.ShortlistPublish,
	)
	return m
}

func (m *Prometheus) CandidateIn(source string) { m.CandidatesIn.WithLabelValues(source).Inc() }
func (m *Prometheus) Filtered(reason string)    { m.CandidatesFiltered.WithLabelValues(reason).Inc() }
func (m *Prometheus) FreshPass()                { m.FreshPassHits.Inc() }
func (m *Prometheus) QueueDepth(n int)          { m.QueueSize.Set(float64(n)) }
func (m *Prometheus) QueueDropped()             { m.QueueDrops.Inc() }
func (m *Prometheus) EffectiveThreshold(v float64) {
	m.MinScoreEffective.Set(v)
}
func (m *Prometheus) EnrichmentFailure(operation string) {
	m.EnrichmentFailures.WithLabelValues(operation).Inc()
}
func (m *Prometheus) RPCLatency(method string, seconds float64) {
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
func (m *Prometheus) SinkError(sink string) { m.SinkErrors.WithLabelValues(sink).Inc() }

// Scored records a scored candidate.
func (m *Prometheus) Scored(score float64) {
	m.CandidatesScored.Inc()
	m.ScoreHistogram.Observe(score)
}

// EngineRunning flips the engine_running gauge.
func (m *Prometheus) EngineRunning(running bool) {
	if running {
		m.EngineUp.Set(1)
		return
	}
	m.EngineUp.Set(0)
}

// ShortlistPublished records a shortlist publication of n candidates.
func (m *Prometheus) ShortlistPublished(n int) {
	m.ShortlistPublish.Inc()
	m.ShortlistSize.Set(float64(n))
}

// Handler returns an HTTP handler for the /metrics endpoint of g.
// A nil g serves the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) CandidateIn(string)         {}
func (Nop) Filtered(string)            {}
func (Nop) FreshPass()                 {}
func (Nop) Scored(float64)             {}
func (Nop) QueueDepth(int)             {}
func (Nop) QueueDropped()              {}
func (Nop) EffectiveThreshold(float64) {}
func (Nop) EngineRunning(bool)         {}
func (Nop) EnrichmentFailure(string)   {}
func (Nop) RPCLatency(string, float64) {}
func (Nop) SinkError(string)           {}
func (Nop) ShortlistPublished(int)     {}

var (
	_ Metrics = (*Prometheus)(nil)
	_ Metrics = Nop{}
)
