package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortalMetricsObserve(t *testing.T) {
	m := NewPortalMetrics(prometheus.NewRegistry())
	m.ObserveCall("get_facilities", "ok", 0.2)
	m.ObserveParseError("xml")
	m.ObserveFlow("create_appointment", "ok")
}

func TestPortalMetricsNilSafe(t *testing.T) {
	var m *PortalMetrics
	m.ObserveCall("get_facilities", "ok", 0.1)
	m.ObserveParseError("html")
	m.ObserveFlow("search_allergies", "error")
}

func TestSnapshotReadsRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPortalMetrics(reg)
	m.ObserveCall("get_facilities", "ok", 0.1)
	m.ObserveCall("get_facilities", "ok", 0.3)
	m.ObserveCall("post_appointment", "client_error", 0.2)
	m.ObserveParseError("xml")
	m.ObserveFlow("create_appointment", "not_found")

	stats, err := Snapshot(reg)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.CallCount)
	assert.InDelta(t, 200.0, stats.MeanLatencyMs, 0.001)
	require.Len(t, stats.Calls, 2)
	assert.Equal(t, map[string]string{"operation": "get_facilities", "outcome": "ok"}, stats.Calls[0].Labels)
	assert.Equal(t, int64(2), stats.Calls[0].Count)
	require.Len(t, stats.ParseErrors, 1)
	assert.Equal(t, "xml", stats.ParseErrors[0].Labels["decoder"])
	require.Len(t, stats.Flows, 1)
	assert.Equal(t, "not_found", stats.Flows[0].Labels["outcome"])
}

func TestSnapshotEmptyRegistry(t *testing.T) {
	stats, err := Snapshot(prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Empty(t, stats.Calls)
	assert.Zero(t, stats.MeanLatencyMs)
}

type failingGatherer struct{}

func (failingGatherer) Gather() ([]*dto.MetricFamily, error) {
	return nil, errors.New("boom")
}

func TestSnapshotGatherError(t *testing.T) {
	_, err := Snapshot(failingGatherer{})
	require.Error(t, err)
}
