package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/telemetry"
)

func TestNoOpDiscardsWithoutPanicking(t *testing.T) {
	var s telemetry.Sink = telemetry.NoOp{}
	s.Observe("dms.level.exchanged", 1.5, "0")
	s.Count("dms.level.rounds", "0")
}

func TestSafeReturnsNoOpForNilSink(t *testing.T) {
	got := telemetry.Safe(nil)
	require.Equal(t, telemetry.NoOp{}, got)
	require.NotPanics(t, func() { got.Count("x") })
}

type recordingSink struct {
	observed int
	counted  int
}

func (r *recordingSink) Observe(string, float64, ...string) { r.observed++ }
func (r *recordingSink) Count(string, ...string)             { r.counted++ }

func TestSafePassesThroughNonNilSink(t *testing.T) {
	rec := &recordingSink{}
	got := telemetry.Safe(rec)
	got.Observe("x", 1)
	got.Count("y")
	require.Equal(t, 1, rec.observed)
	require.Equal(t, 1, rec.counted)
}
