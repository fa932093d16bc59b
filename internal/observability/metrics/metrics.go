package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metric names, shared with the stats snapshot.
const (
	CallsTotalName       = "ecw_portal_calls_total"
	CallLatencyName      = "ecw_portal_call_latency_seconds"
	ParseErrorsTotalName = "ecw_portal_parse_errors_total"
	FlowsTotalName       = "ecw_portal_flows_total"
)

// PortalMetrics exposes counters/histograms for portal calls and flows.
type PortalMetrics struct {
	callsTotal  *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
	parseErrors *prometheus.CounterVec
	flowsTotal  *prometheus.CounterVec
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecw",
			Subsystem: "portal",
			Name:      "calls_total",
			Help:      "Total portal HTTP calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ecw",
			Subsystem: "portal",
			Name:      "call_latency_seconds",
			Help:      "Latency of portal HTTP calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecw",
			Subsystem: "portal",
			Name:      "parse_errors_total",
			Help:      "Portal response bodies the selected decoder could not parse",
		}, []string{"decoder"}),
		flowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecw",
			Subsystem: "portal",
			Name:      "flows_total",
			Help:      "Completed integration flows by flow name and outcome",
		}, []string{"flow", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.callLatency, m.parseErrors, m.flowsTotal)
	return m
}

func (m *PortalMetrics) ObserveCall(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(operation, outcome).Inc()
	m.callLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *PortalMetrics) ObserveParseError(decoder string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(decoder).Inc()
}

func (m *PortalMetrics) ObserveFlow(flow, outcome string) {
	if m == nil {
		return
	}
	m.flowsTotal.WithLabelValues(flow, outcome).Inc()
}
