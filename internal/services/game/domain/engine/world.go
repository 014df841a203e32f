package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/roundtable/internal/platform/telemetry/metrics"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
	"github.com/louisbranch/roundtable/internal/services/game/domain/identity"
	"github.com/louisbranch/roundtable/internal/services/game/domain/phase"
	"github.com/louisbranch/roundtable/internal/services/game/domain/playback"
	"github.com/louisbranch/roundtable/internal/services/game/domain/recorder"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/domain/session"
	"github.com/louisbranch/roundtable/internal/services/game/domain/visual"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sessionRole = playback.SessionRole

// Notification types raised by the world itself.
const (
	NotificationSessionStarted event.Type = "session.started"
	NotificationSessionEnded   event.Type = "session.ended"
)

// Tick is one tick of the owning application loop.
type Tick struct {
	Number uint64
	// Delta is the real time elapsed since the previous tick, in seconds.
	Delta float64
}

// StepResult summarises one Step.
type StepResult struct {
	Tick      uint64
	Collected int
	Handled   int
	Rejected  int
	Recorded  int
	Notified  int
	Expired   int
	// Transition is set when the phase left Visuals during this tick.
	Transition *phase.Transition
	Archived   []string
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the world logger; every component derives from it.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithAllocator sets the handle allocator. Worlds default to a random base.
func WithAllocator(alloc *identity.Allocator) Option {
	return func(w *World) {
		w.alloc = alloc
	}
}

// WithRecording enables or disables the session recorder.
func WithRecording(enabled bool) Option {
	return func(w *World) {
		w.recording = enabled
	}
}

// WithTracer sets the tracer used for per-tick spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *World) {
		if tracer != nil {
			w.tracer = tracer
		}
	}
}

// WithSessionOptions passes options to the session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(w *World) {
		w.sessionOpts = append(w.sessionOpts, opts...)
	}
}

// World is one simulation. It is advanced by a single goroutine.
type World struct {
	commands *command.Registry
	handlers map[command.Type]Handler
	queue    *command.Queue
	bus      *event.Bus
	resolver *identity.Resolver
	sessions *session.Manager
	recorder *recorder.Recorder
	locks    *visual.Pool
	phase    *phase.Controller
	player   *playback.Driver

	alloc       *identity.Allocator
	recording   bool
	sessionOpts []session.Option
	owned       map[string][]identity.Handle
	spawnCounts map[string]uint64
	startingNow map[string]bool
	modules     []string
	tick        uint64
	stepped     bool
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// New builds a world with no modules installed.
func New(opts ...Option) *World {
	w := &World{
		commands:    command.NewRegistry(),
		handlers:    make(map[command.Type]Handler),
		queue:       command.NewQueue(),
		bus:         event.NewBus(),
		recording:   true,
		owned:       make(map[string][]identity.Handle),
		spawnCounts: make(map[string]uint64),
		tracer:      otel.Tracer("github.com/louisbranch/roundtable/engine"),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.resolver = identity.NewResolver(w.alloc,
		identity.WithGenerator(identity.Sequential("obj")),
		identity.WithLogger(w.component("identity")),
	)
	w.sessions = session.NewManager(w.resolver,
		append([]session.Option{session.WithLogger(w.component("session"))}, w.sessionOpts...)...)
	w.recorder = recorder.New(w.resolver,
		recorder.WithEnabled(w.recording),
		recorder.WithLogger(w.component("recorder")),
	)
	w.locks = visual.NewPool(visual.WithLogger(w.component("visual")))
	w.phase = phase.NewController(w.locks, phase.WithLogger(w.component("phase")))
	w.phase.OnTransition(func(t phase.Transition) {
		metrics.RecordPhaseTransition(t.From.String(), t.To.String())
	})
	return w
}

func (w *World) component(name string) zerolog.Logger {
	return w.logger.With().Str("component", name).Logger()
}

// Install registers modules in order.
func (w *World) Install(modules ...Module) error {
	for _, m := range modules {
		if m == nil {
			return ErrModuleRequired
		}
		name := strings.TrimSpace(m.Name())
		if err := m.Register(&Registrar{world: w, module: name}); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
		w.modules = append(w.modules, name)
	}
	return nil
}

// Submit queues an external request. It is processed by the next Step.
func (w *World) Submit(cmd command.Command) {
	cmd = cmd.Clone()
	cmd.Origin = command.OriginExternal
	w.queue.Push(cmd)
}

// Play attaches a playback driver loaded with entries. Entries are pushed at
// pass 0 of the tick they are stamped with.
func (w *World) Play(entries []replay.Entry) *playback.Driver {
	w.player = playback.New(w.resolver, w.queue, playback.WithLogger(w.component("playback")))
	w.player.Load(entries)
	return w.player
}

// Step advances the world by one tick. It never fails: recoverable conditions
// are logged and counted.
func (w *World) Step(ctx context.Context, tick Tick) StepResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := w.tracer.Start(ctx, "world.step", trace.WithAttributes(
		attribute.Int64("tick", int64(tick.Number)),
		attribute.Float64("delta", tick.Delta),
	))
	defer span.End()

	if w.stepped && tick.Number <= w.tick {
		w.logger.Warn().Uint64("tick", tick.Number).Uint64("previous", w.tick).Msg("tick number did not increase")
	}
	w.tick = tick.Number
	w.stepped = true
	result := StepResult{Tick: tick.Number}

	// Pass 0: playback.
	if w.player != nil {
		w.player.Step(tick.Number)
	}

	// Pass 1: collect, validate, record.
	batch := w.collect(tick.Number, &result)

	// Pass 2: domain logic, then immediate notifications.
	for _, item := range batch {
		w.handle(ctx, tick.Number, item, &result)
	}
	result.Notified = w.bus.Flush()

	// Pass 3: visual locks.
	result.Expired = len(w.locks.Tick(tick.Delta))
	metrics.SetVisualLocksActive(w.locks.ActiveCount())

	// Pass 4: phase.
	if transition, changed := w.phase.Advance(); changed {
		result.Transition = &transition
	}

	// Pass 5: session sweep.
	for _, summary := range w.sessions.Sweep(tick.Number) {
		w.archive(summary)
		result.Archived = append(result.Archived, summary.ID)
	}

	w.bus.Rotate()
	metrics.RecordTick()
	span.SetAttributes(
		attribute.Int("collected", result.Collected),
		attribute.Int("recorded", result.Recorded),
		attribute.Int("rejected", result.Rejected),
	)
	return result
}

type pending struct {
	cmd       command.Command
	def       command.Definition
	sessionID string
}

func (w *World) collect(tick uint64, result *StepResult) []pending {
	raw := w.queue.Collect()
	result.Collected = len(raw)
	w.startingNow = make(map[string]bool)
	batch := make([]pending, 0, len(raw))
	for _, submitted := range raw {
		cmd, def, err := w.commands.Validate(submitted)
		if err != nil {
			result.Rejected++
			w.logger.Warn().
				Err(err).
				Uint64("tick", tick).
				Str("command_type", string(submitted.Type)).
				Str("origin", submitted.Origin.String()).
				Msg("request rejected")
			continue
		}
		sessionID, err := w.targetSession(cmd, def)
		if err != nil {
			result.Rejected++
			w.logger.Warn().
				Err(err).
				Uint64("tick", tick).
				Str("command_type", string(cmd.Type)).
				Msg("request rejected")
			continue
		}
		if err := w.checkParticipants(cmd); err != nil {
			result.Rejected++
			w.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Uint64("tick", tick).
				Str("command_type", string(cmd.Type)).
				Msg("request rejected")
			continue
		}
		if def.Lifecycle == command.LifecycleStart {
			cmd.Session = command.Spawning(sessionRole, sessionID)
			w.startingNow[sessionID] = true
			w.recorder.Arm(sessionID)
		}
		w.nameSpawns(sessionID, &cmd)
		if w.recorder.Record(sessionID, tick, cmd) {
			result.Recorded++
		}
		batch = append(batch, pending{cmd: cmd, def: def, sessionID: sessionID})
	}
	return batch
}

// targetSession returns the stable id of the session cmd targets.
func (w *World) targetSession(cmd command.Command, def command.Definition) (string, error) {
	ref := cmd.Session
	if def.Lifecycle == command.LifecycleStart {
		sessionID := strings.TrimSpace(ref.StableID)
		if sessionID == "" {
			return "", session.ErrSessionIDRequired
		}
		if w.sessions.Alive(sessionID) || w.startingNow[sessionID] {
			return "", fmt.Errorf("%w: %s", ErrSessionStarted, sessionID)
		}
		return sessionID, nil
	}
	_, sessionID, ok := w.resolveRef(ref)
	if !ok {
		if ref.Handle.Valid() && strings.TrimSpace(ref.StableID) == "" {
			return "", fmt.Errorf("%w: session %s", identity.ErrUnresolvedIdentity, ref.Handle)
		}
		sessionID = strings.TrimSpace(ref.StableID)
	}
	if !w.sessions.Alive(sessionID) {
		// A session started earlier in the same batch is bound in pass 2.
		if !w.startingNow[sessionID] {
			return "", fmt.Errorf("%w: %s", ErrSessionNotLive, sessionID)
		}
	}
	return sessionID, nil
}

// checkParticipants rejects a request whose participants cannot all be
// written to the log by stable id. Such a request never runs, so a replay of
// the log sees the same history as the live run.
func (w *World) checkParticipants(cmd command.Command) error {
	for _, ref := range cmd.Participants {
		if ref.Handle.Valid() {
			if _, ok := w.resolver.StableID(ref.Handle); !ok {
				return fmt.Errorf("%w: %s %s", identity.ErrUnresolvedIdentity, ref.Role, ref.Handle)
			}
			continue
		}
		if !ref.Spawn && strings.TrimSpace(ref.StableID) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParticipant, ref.Role)
		}
	}
	return nil
}

// nameSpawns gives spawning participants without a stable id a name derived
// from the session and its spawn count. Every spawn advances the count, so a
// replayed run names derived spawns identically.
func (w *World) nameSpawns(sessionID string, cmd *command.Command) {
	for i := range cmd.Participants {
		ref := &cmd.Participants[i]
		if !ref.Spawn {
			continue
		}
		w.spawnCounts[sessionID]++
		if ref.StableID == "" {
			role := ref.Role
			if role == "" {
				role = "obj"
			}
			ref.StableID = sessionID + "/" + role + "-" + strconv.FormatUint(w.spawnCounts[sessionID], 10)
		}
	}
}

func (w *World) handle(ctx context.Context, tick uint64, item pending, result *StepResult) {
	cmd, def := item.cmd, item.def
	logger := w.logger.With().
		Str("session_id", item.sessionID).
		Uint64("tick", tick).
		Str("command_type", string(cmd.Type)).
		Logger()

	if def.Lifecycle == command.LifecycleStart {
		if !w.startSession(item, tick, logger) {
			result.Rejected++
			return
		}
	}
	s, ok := w.sessions.Get(item.sessionID)
	if !ok {
		result.Rejected++
		logger.Warn().Err(ErrSessionNotLive).Msg("request dropped")
		return
	}
	cmd.Session = command.Ref{Role: sessionRole, Handle: s.Handle, StableID: s.ID}

	for i := range cmd.Participants {
		ref := &cmd.Participants[i]
		if !ref.Spawn {
			continue
		}
		h, _, err := w.resolver.Spawn(ref.StableID)
		if err != nil {
			result.Rejected++
			logger.Warn().Err(err).Str("role", ref.Role).Str("stable_id", ref.StableID).Msg("spawn failed, request dropped")
			return
		}
		w.owned[s.ID] = append(w.owned[s.ID], h)
		ref.Handle = h
	}

	handler := w.handlers[cmd.Type]
	hctx := &Context{Context: ctx, world: w, session: s, tick: tick, logger: logger}
	decision := handler(hctx, cmd)
	if decision.Rejected() {
		result.Rejected++
		for _, rejection := range decision.Rejections {
			logger.Info().Str("code", rejection.Code).Msg(rejection.Message)
		}
	} else {
		result.Handled++
	}

	if def.Lifecycle == command.LifecycleEnd {
		if summary, ok := w.sessions.End(s.ID, tick); ok {
			w.archive(summary)
			result.Archived = append(result.Archived, summary.ID)
		}
	}
}

func (w *World) startSession(item pending, tick uint64, logger zerolog.Logger) bool {
	var payload struct {
		Sequence uint64 `json:"sequence"`
	}
	if err := command.DecodePayload(item.cmd, &payload); err != nil {
		logger.Warn().Err(err).Msg("session start dropped")
		w.recorder.Disarm(item.sessionID)
		return false
	}
	s, err := w.sessions.Start(item.sessionID, payload.Sequence, item.def.Owner, tick)
	if err != nil {
		logger.Warn().Err(err).Msg("session start dropped")
		if !errors.Is(err, session.ErrSessionExists) {
			w.recorder.Disarm(item.sessionID)
		}
		return false
	}
	metrics.RecordSessionStarted(s.Kind)
	metrics.RecordSessionReseeds(s.ReseedAttempts)
	w.bus.Emit(event.Notification{
		Type:        NotificationSessionStarted,
		SessionID:   s.ID,
		Tick:        tick,
		PayloadJSON: []byte(`{"kind":` + strconv.Quote(s.Kind) + `,"sequence":` + strconv.FormatUint(s.Sequence, 10) + `}`),
	})
	return true
}

// archive releases what a removed session owned and disarms its recording.
func (w *World) archive(summary session.Summary) {
	for _, h := range w.owned[summary.ID] {
		w.resolver.Release(h)
	}
	delete(w.owned, summary.ID)
	delete(w.spawnCounts, summary.ID)
	w.recorder.Disarm(summary.ID)
	w.bus.Emit(event.Notification{
		Type:        NotificationSessionEnded,
		SessionID:   summary.ID,
		Tick:        summary.EndedTick,
		PayloadJSON: []byte(`{"status":` + strconv.Quote(summary.Status.String()) + `}`),
	})
}

func (w *World) despawn(sessionID string, h identity.Handle) bool {
	owned := w.owned[sessionID]
	for i, candidate := range owned {
		if candidate == h {
			w.owned[sessionID] = append(owned[:i], owned[i+1:]...)
			break
		}
	}
	return w.resolver.Release(h)
}

func (w *World) resolveRef(ref command.Ref) (identity.Handle, string, bool) {
	if ref.Handle.Valid() {
		stableID, ok := w.resolver.StableID(ref.Handle)
		if !ok {
			return identity.NoHandle, "", false
		}
		return ref.Handle, stableID, true
	}
	stableID := strings.TrimSpace(ref.StableID)
	h, ok := w.resolver.Resolve(stableID)
	if !ok {
		return identity.NoHandle, "", false
	}
	return h, stableID, true
}
