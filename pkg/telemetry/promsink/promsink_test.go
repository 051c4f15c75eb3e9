package promsink_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/telemetry"
	"github.com/pmehnert/distributed-string-sorting/pkg/telemetry/promsink"
)

func TestSinkImplementsTelemetrySink(t *testing.T) {
	var _ telemetry.Sink = promsink.New()
}

func TestCountIncrementsPerLabelSet(t *testing.T) {
	s := promsink.New()
	s.Count("dms.level.exchanged", "0")
	s.Count("dms.level.exchanged", "0")
	s.Count("dms.level.exchanged", "1")

	families, err := s.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	values := map[string]float64{}
	for _, m := range families[0].GetMetric() {
		values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	require.Equal(t, 2.0, values["0"])
	require.Equal(t, 1.0, values["1"])
}

func TestObserveRegistersHistogramOnFirstUse(t *testing.T) {
	s := promsink.New()
	s.Observe("dms.level.local_size", 100, "0")

	families, err := s.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "dsort_dms_level_local_size", families[0].GetName())
}
