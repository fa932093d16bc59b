package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// LabeledCount is one label combination of a counter.
type LabeledCount struct {
	Labels map[string]string `json:"labels"`
	Count  int64             `json:"count"`
}

// PortalStats is the JSON summary served at /ecw/stats.
type PortalStats struct {
	Calls         []LabeledCount `json:"calls"`
	Flows         []LabeledCount `json:"flows"`
	ParseErrors   []LabeledCount `json:"parse_errors"`
	CallCount     int64          `json:"call_count"`
	MeanLatencyMs float64        `json:"mean_latency_ms"`
}

// Snapshot reads the portal metric families from gatherer.
func Snapshot(gatherer prometheus.Gatherer) (PortalStats, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return PortalStats{}, err
	}

	stats := PortalStats{
		Calls:       []LabeledCount{},
		Flows:       []LabeledCount{},
		ParseErrors: []LabeledCount{},
	}
	var latencySum float64
	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case CallsTotalName:
			stats.Calls = counterValues(mf)
		case FlowsTotalName:
			stats.Flows = counterValues(mf)
		case ParseErrorsTotalName:
			stats.ParseErrors = counterValues(mf)
		case CallLatencyName:
			for _, metric := range mf.Metric {
				h := metric.GetHistogram()
				if h == nil {
					continue
				}
				stats.CallCount += int64(h.GetSampleCount())
				latencySum += h.GetSampleSum()
			}
		}
	}
	if stats.CallCount > 0 {
		stats.MeanLatencyMs = latencySum / float64(stats.CallCount) * 1000.0
	}
	return stats, nil
}

func counterValues(mf *dto.MetricFamily) []LabeledCount {
	out := make([]LabeledCount, 0, len(mf.Metric))
	for _, metric := range mf.Metric {
		if metric == nil || metric.GetCounter() == nil {
			continue
		}
		labels := make(map[string]string, len(metric.Label))
		for _, lp := range metric.Label {
			if lp == nil {
				continue
			}
			labels[lp.GetName()] = lp.GetValue()
		}
		out = append(out, LabeledCount{Labels: labels, Count: int64(metric.GetCounter().GetValue())})
	}
	sort.Slice(out, func(i, j int) bool {
		return labelKey(out[i].Labels) < labelKey(out[j].Labels)
	})
	return out
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := ""
	for _, k := range keys {
		key += k + "=" + labels[k] + ","
	}
	return key
}
