package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeDropped  = "dropped"
)

// Playback outcomes.
const (
	OutcomeEmitted = "emitted"
	OutcomeSkipped = "skipped"
	OutcomeMissed  = "missed"
)

var (
	recorderEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_recorder_entries_total",
		Help: "Total number of requests offered to the session recorder by outcome",
	}, []string{"outcome"})

	playbackEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_playback_entries_total",
		Help: "Total number of recorded entries processed by the playback driver by outcome",
	}, []string{"outcome"})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_ticks_total",
		Help: "Total number of simulation ticks stepped",
	})

	phaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_phase_transitions_total",
		Help: "Total number of turn phase transitions",
	}, []string{"from", "to"})

	visualLocksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roundtable_visual_locks_active",
		Help: "Number of outstanding visual locks after the last tick",
	})

	sessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundtable_sessions_started_total",
		Help: "Total number of sessions started by kind",
	}, []string{"kind"})

	sessionReseedsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundtable_session_reseeds_total",
		Help: "Total number of session seeds replaced after a collision",
	})
)

// RecordRecorderEntry counts one recorder decision.
func RecordRecorderEntry(outcome string) {
	switch outcome {
	case OutcomeRecorded, OutcomeDropped:
	default:
		outcome = "unknown"
	}
	recorderEntriesTotal.WithLabelValues(outcome).Inc()
}

// RecordPlaybackEntry counts one playback decision.
func RecordPlaybackEntry(outcome string) {
	switch outcome {
	case OutcomeEmitted, OutcomeSkipped, OutcomeMissed:
	default:
		outcome = "unknown"
	}
	playbackEntriesTotal.WithLabelValues(outcome).Inc()
}

// RecordTick counts one stepped tick.
func RecordTick() {
	ticksTotal.Inc()
}

// RecordPhaseTransition counts a phase change.
func RecordPhaseTransition(from, to string) {
	phaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// SetVisualLocksActive sets the outstanding lock gauge.
func SetVisualLocksActive(count int) {
	visualLocksActive.Set(float64(count))
}

// RecordSessionStarted counts a session start.
func RecordSessionStarted(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	sessionsStartedTotal.WithLabelValues(kind).Inc()
}

// RecordSessionReseeds counts seed replacements applied to one session.
func RecordSessionReseeds(attempts uint64) {
	if attempts == 0 {
		return
	}
	sessionReseedsTotal.Add(float64(attempts))
}
