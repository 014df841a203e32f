package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/roundtable/internal/services/game/domain/engine"
	"github.com/louisbranch/roundtable/internal/services/game/domain/playback"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/domain/systems/combat"
	"github.com/louisbranch/roundtable/internal/services/game/domain/systems/settlement"
	"github.com/louisbranch/roundtable/internal/services/game/presentation"
	"github.com/rs/zerolog"
)

// DefaultTail is how many ticks a run continues past its last step so locks
// expire and completed sessions are swept.
const DefaultTail = 8

// NewWorld builds a world with every shipped module installed.
func NewWorld(logger zerolog.Logger, opts ...engine.Option) (*engine.World, error) {
	w := engine.New(append([]engine.Option{engine.WithLogger(logger)}, opts...)...)
	if err := w.Install(
		combat.NewModule(),
		settlement.NewModule(),
		presentation.New(presentation.WithLogger(logger.With().Str("component", "presentation").Logger())),
	); err != nil {
		return nil, err
	}
	return w, nil
}

// Result is the outcome of a live run.
type Result struct {
	Name     string
	Ticks    uint64
	Rejected int
	Entries  []replay.Entry
	Digest   string
	Snapshot engine.Snapshot
}

// Run submits sc's steps to w tick by tick and returns the recorded log.
func Run(ctx context.Context, w *engine.World, sc *Scenario) (Result, error) {
	if w == nil {
		return Result{}, errors.New("world is required")
	}
	if sc == nil {
		return Result{}, errors.New("scenario is required")
	}
	result := Result{Name: sc.Name, Ticks: sc.Ticks()}
	for n := uint64(1); n <= result.Ticks; n++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for _, cmd := range sc.StepsAt(n) {
			w.Submit(cmd)
		}
		step := w.Step(ctx, engine.Tick{Number: n, Delta: sc.Delta})
		result.Rejected += step.Rejected
	}
	result.Entries = w.Recorded()
	digest, err := replay.Digest(result.Entries)
	if err != nil {
		return Result{}, err
	}
	result.Digest = digest
	result.Snapshot = w.Snapshot()
	return result, nil
}

// Playback is the outcome of replaying a log.
type Playback struct {
	Ticks    uint64
	Stats    playback.Stats
	Digest   string
	Snapshot engine.Snapshot
}

// Replay plays entries into w for ticks ticks of delta seconds. With ticks
// zero it runs DefaultTail ticks past the last entry.
func Replay(ctx context.Context, w *engine.World, entries []replay.Entry, delta float64, ticks uint64) (Playback, error) {
	if w == nil {
		return Playback{}, errors.New("world is required")
	}
	if ticks == 0 {
		last, _ := replay.LastTick(entries)
		ticks = last + DefaultTail
	}
	driver := w.Play(entries)
	for n := uint64(1); n <= ticks; n++ {
		if err := ctx.Err(); err != nil {
			return Playback{}, err
		}
		w.Step(ctx, engine.Tick{Number: n, Delta: delta})
	}
	digest, err := replay.Digest(w.Recorded())
	if err != nil {
		return Playback{}, err
	}
	return Playback{Ticks: ticks, Stats: driver.Stats(), Digest: digest, Snapshot: w.Snapshot()}, nil
}

// Verification compares a replay against the live run it came from.
type Verification struct {
	Playback Playback
	// Diff is the snapshot difference, empty when the runs match.
	Diff string
}

// Match reports whether the replay reproduced the live run. Skipped entries
// do not fail a match: they are requests the live run rejected for the same
// missing object.
func (v Verification) Match() bool {
	return v.Diff == ""
}

// Verify replays live.Entries into w with sc's delta and tick count and diffs
// the final snapshot against live.Snapshot.
func Verify(ctx context.Context, w *engine.World, sc *Scenario, live Result) (Verification, error) {
	if sc == nil {
		return Verification{}, errors.New("scenario is required")
	}
	played, err := Replay(ctx, w, live.Entries, sc.Delta, live.Ticks)
	if err != nil {
		return Verification{}, fmt.Errorf("replay %s: %w", sc.Name, err)
	}
	return Verification{
		Playback: played,
		Diff:     cmp.Diff(live.Snapshot, played.Snapshot),
	}, nil
}
