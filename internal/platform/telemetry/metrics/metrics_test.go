package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func getCounterVecValue(t *testing.T, counterVec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return getCounterValue(t, counterVec.WithLabelValues(labels...))
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestRecordRecorderEntryNormalizesOutcome(t *testing.T) {
	recorded := getCounterVecValue(t, recorderEntriesTotal, OutcomeRecorded)
	unknown := getCounterVecValue(t, recorderEntriesTotal, "unknown")

	RecordRecorderEntry(OutcomeRecorded)
	RecordRecorderEntry("bogus")

	require.Equal(t, recorded+1, getCounterVecValue(t, recorderEntriesTotal, OutcomeRecorded))
	require.Equal(t, unknown+1, getCounterVecValue(t, recorderEntriesTotal, "unknown"))
}

func TestRecordPlaybackEntry(t *testing.T) {
	for _, outcome := range []string{OutcomeEmitted, OutcomeSkipped, OutcomeMissed} {
		before := getCounterVecValue(t, playbackEntriesTotal, outcome)
		RecordPlaybackEntry(outcome)
		require.Equal(t, before+1, getCounterVecValue(t, playbackEntriesTotal, outcome), outcome)
	}
}

func TestTurnCycleMetrics(t *testing.T) {
	ticks := getCounterValue(t, ticksTotal)
	RecordTick()
	require.Equal(t, ticks+1, getCounterValue(t, ticksTotal))

	transitions := getCounterVecValue(t, phaseTransitionsTotal, "visuals", "external_turn")
	RecordPhaseTransition("visuals", "external_turn")
	require.Equal(t, transitions+1, getCounterVecValue(t, phaseTransitionsTotal, "visuals", "external_turn"))

	SetVisualLocksActive(3)
	require.Equal(t, 3.0, getGaugeValue(t, visualLocksActive))
	SetVisualLocksActive(0)
	require.Equal(t, 0.0, getGaugeValue(t, visualLocksActive))
}

func TestSessionMetrics(t *testing.T) {
	started := getCounterVecValue(t, sessionsStartedTotal, "unknown")
	RecordSessionStarted("")
	require.Equal(t, started+1, getCounterVecValue(t, sessionsStartedTotal, "unknown"))

	reseeds := getCounterValue(t, sessionReseedsTotal)
	RecordSessionReseeds(0)
	RecordSessionReseeds(2)
	require.Equal(t, reseeds+2, getCounterValue(t, sessionReseedsTotal))
}
