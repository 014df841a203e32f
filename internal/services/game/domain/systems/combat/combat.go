// Package combat is a reference combat encounter system.
//
// An encounter is a session. Heroes attack through external combat.damage
// requests; each hero attack reserves the external turn and raises a derived
// combat.enemy_turn request in which every living enemy strikes back. All
// rolls go through the session random stream.
package combat

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/core/dice"
	"github.com/louisbranch/roundtable/internal/services/game/domain/engine"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
	"github.com/louisbranch/roundtable/internal/services/game/domain/phase"
	"github.com/louisbranch/roundtable/internal/services/game/domain/session"
)

// Command types.
const (
	CommandStart     command.Type = "combat.start"
	CommandSpawn     command.Type = "combat.spawn"
	CommandDamage    command.Type = "combat.damage"
	CommandEnemyTurn command.Type = "combat.enemy_turn"
	CommandEnd       command.Type = "combat.end"
)

// Notification types.
const (
	NotificationStarted       event.Type = "combat.started"
	NotificationUnitSpawned   event.Type = "combat.unit_spawned"
	NotificationDamageApplied event.Type = "combat.damage_applied"
	NotificationUnitDefeated  event.Type = "combat.unit_defeated"
	NotificationFinished      event.Type = "combat.finished"
)

// Roles.
const (
	RoleUnit     = "unit"
	RoleAttacker = "attacker"
	RoleTarget   = "target"
)

// Rejection codes.
const (
	RejectMissingParticipant = "MISSING_PARTICIPANT"
	RejectUnitDefeated       = "UNIT_DEFEATED"
	RejectFinished           = "COMBAT_FINISHED"
	RejectInvalidDice        = "INVALID_DICE"
)

const defaultEnemyAttack = "1d4"

// Module is the combat system.
type Module struct{}

// NewModule creates the combat module.
func NewModule() *Module { return &Module{} }

// Name returns the module name.
func (m *Module) Name() string { return "combat" }

// Register registers combat commands.
func (m *Module) Register(r *engine.Registrar) error {
	defs := []struct {
		def     command.Definition
		handler engine.Handler
	}{
		{command.Definition{Type: CommandStart, Lifecycle: command.LifecycleStart}, m.start},
		{command.Definition{Type: CommandSpawn, RequiredRoles: []string{RoleUnit}, ValidatePayload: validateSpawn}, m.spawn},
		{command.Definition{Type: CommandDamage, RequiredRoles: []string{RoleAttacker, RoleTarget}, ValidatePayload: validateDamage}, m.damage},
		{command.Definition{Type: CommandEnemyTurn}, m.enemyTurn},
		{command.Definition{Type: CommandEnd, Lifecycle: command.LifecycleEnd}, m.end},
	}
	for _, d := range defs {
		if err := r.Handle(d.def, d.handler); err != nil {
			return err
		}
	}
	return nil
}

func validateSpawn(raw json.RawMessage) error {
	var payload SpawnPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Side != SideHero && payload.Side != SideEnemy {
		return fmt.Errorf("side must be %q or %q", SideHero, SideEnemy)
	}
	if payload.HP <= 0 {
		return fmt.Errorf("hp must be positive")
	}
	if payload.Attack != "" {
		if _, err := dice.Parse(payload.Attack); err != nil {
			return err
		}
	}
	return nil
}

func validateDamage(raw json.RawMessage) error {
	var payload DamagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Dice < 0 || payload.Sides < 0 {
		return fmt.Errorf("dice and sides must not be negative")
	}
	return nil
}

func state(ctx *engine.Context) *State {
	if s, ok := ctx.State().(*State); ok {
		return s
	}
	s := &State{Units: make(map[string]Unit)}
	ctx.SetState(s)
	return s
}

func (m *Module) start(ctx *engine.Context, cmd command.Command) command.Decision {
	state(ctx)
	if err := ctx.Emit(NotificationStarted, nil, map[string]any{"sequence": ctx.Session().Sequence}); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit combat start")
	}
	return command.Accept()
}

func (m *Module) spawn(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	var payload SpawnPayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return command.Reject(command.Rejection{Code: "PAYLOAD_INVALID", Message: err.Error()})
	}
	_, unitID, err := ctx.Participant(cmd, RoleUnit)
	if err != nil {
		return command.Reject(command.Rejection{Code: RejectMissingParticipant, Message: err.Error()})
	}
	s.Units[unitID] = Unit{
		ID:     unitID,
		Side:   payload.Side,
		HP:     payload.HP,
		MaxHP:  payload.HP,
		Attack: strings.TrimSpace(payload.Attack),
	}
	if err := ctx.Emit(NotificationUnitSpawned, []string{unitID}, payload); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit unit spawned")
	}
	return command.Accept()
}

func (m *Module) damage(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	if ctx.Session().Status == session.StatusCompleted {
		return command.Reject(command.Rejection{Code: RejectFinished, Message: "combat already finished"})
	}
	var payload DamagePayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return command.Reject(command.Rejection{Code: "PAYLOAD_INVALID", Message: err.Error()})
	}
	attacker, target, decision, ok := m.combatants(ctx, s, cmd)
	if !ok {
		return decision
	}
	spec := dice.Spec{Count: payload.Dice, Sides: payload.Sides}
	if spec.Count == 0 {
		spec.Count = 1
	}
	if spec.Sides == 0 {
		spec.Sides = 6
	}

	ctx.SetPhase(phase.Processing)
	if rejection, applied := m.strike(ctx, s, attacker, target, spec, payload.Modifier); !applied {
		ctx.SetPhase(phase.PlayerInput)
		return command.Reject(rejection)
	}
	s.Rounds++

	if m.finish(ctx, s) {
		ctx.ReserveNext(phase.PlayerInput)
	} else if attacker.Side == SideHero {
		ctx.ReserveNext(phase.ExternalTurn)
		ctx.Raise(command.Command{Type: CommandEnemyTurn})
	} else {
		ctx.ReserveNext(phase.PlayerInput)
	}
	ctx.SetPhase(phase.Visuals)
	return command.Accept()
}

func (m *Module) enemyTurn(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	if ctx.Session().Status == session.StatusCompleted {
		return command.Reject(command.Rejection{Code: RejectFinished, Message: "combat already finished"})
	}
	for _, enemyID := range s.Living(SideEnemy) {
		heroes := s.Living(SideHero)
		if len(heroes) == 0 {
			break
		}
		enemy := s.Units[enemyID]
		target := s.Units[pickTarget(ctx, heroes)]
		notation := enemy.Attack
		if notation == "" {
			notation = defaultEnemyAttack
		}
		spec, err := dice.Parse(notation)
		if err != nil {
			ctx.Logger().Warn().Err(err).Str("unit", enemyID).Msg("enemy attack skipped")
			continue
		}
		m.strike(ctx, s, enemy, target, spec, 0)
	}
	m.finish(ctx, s)
	ctx.ReserveNext(phase.PlayerInput)
	if ctx.Phase() == phase.ExternalTurn {
		ctx.SetPhase(phase.Visuals)
	}
	return command.Accept()
}

// pickTarget chooses a hero at random. A lone hero costs no draw.
func pickTarget(ctx *engine.Context, heroes []string) string {
	if len(heroes) == 1 {
		return heroes[0]
	}
	order := append([]string(nil), heroes...)
	ctx.Rng().Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order[0]
}

func (m *Module) end(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	if s.Winner == "" {
		s.Winner = "none"
	}
	if err := ctx.Emit(NotificationFinished, nil, FinishedPayload{Winner: s.Winner, Rounds: s.Rounds}); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit combat finished")
	}
	return command.Accept()
}

// combatants resolves attacker and target. A participant that is gone or
// already defeated rejects the request before any roll is made.
func (m *Module) combatants(ctx *engine.Context, s *State, cmd command.Command) (Unit, Unit, command.Decision, bool) {
	_, attackerID, err := ctx.Participant(cmd, RoleAttacker)
	if err != nil {
		return Unit{}, Unit{}, command.Reject(command.Rejection{Code: RejectMissingParticipant, Message: err.Error()}), false
	}
	_, targetID, err := ctx.Participant(cmd, RoleTarget)
	if err != nil {
		return Unit{}, Unit{}, command.Reject(command.Rejection{Code: RejectMissingParticipant, Message: err.Error()}), false
	}
	attacker, ok := s.Units[attackerID]
	if !ok {
		return Unit{}, Unit{}, command.Reject(command.Rejection{Code: RejectMissingParticipant, Message: "unknown attacker " + attackerID}), false
	}
	target, ok := s.Units[targetID]
	if !ok {
		return Unit{}, Unit{}, command.Reject(command.Rejection{Code: RejectMissingParticipant, Message: "unknown target " + targetID}), false
	}
	if attacker.Defeated || target.Defeated {
		return Unit{}, Unit{}, command.Reject(command.Rejection{Code: RejectUnitDefeated, Message: "defeated units cannot fight"}), false
	}
	return attacker, target, command.Decision{}, true
}

func (m *Module) strike(ctx *engine.Context, s *State, attacker, target Unit, spec dice.Spec, modifier int) (command.Rejection, bool) {
	roll, err := dice.RollDice(ctx.Rng(), modifier, spec)
	if err != nil {
		return command.Rejection{Code: RejectInvalidDice, Message: err.Error()}, false
	}
	damage := roll.Total
	if damage < 0 {
		damage = 0
	}
	target.HP -= damage
	if target.HP < 0 {
		target.HP = 0
	}
	s.Hits = append(s.Hits, Hit{
		Tick:     ctx.Tick(),
		Attacker: attacker.ID,
		Target:   target.ID,
		Faces:    roll.Faces(),
		Damage:   damage,
	})
	if err := ctx.Emit(NotificationDamageApplied, []string{attacker.ID, target.ID}, DamageAppliedPayload{
		Attacker: attacker.ID,
		Target:   target.ID,
		Faces:    roll.Faces(),
		Damage:   damage,
		HP:       target.HP,
	}); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit damage applied")
	}
	if target.HP == 0 {
		target.Defeated = true
		if h, _, ok := ctx.Resolve(command.ByID(RoleTarget, target.ID)); ok {
			ctx.Despawn(h)
		}
		if err := ctx.Emit(NotificationUnitDefeated, []string{target.ID}, UnitDefeatedPayload{Unit: target.ID, Side: target.Side}); err != nil {
			ctx.Logger().Warn().Err(err).Msg("emit unit defeated")
		}
	}
	s.Units[target.ID] = target
	return command.Rejection{}, true
}

// finish completes the session once a side has no living units.
func (m *Module) finish(ctx *engine.Context, s *State) bool {
	if s.Winner != "" {
		return true
	}
	heroes, enemies := s.Living(SideHero), s.Living(SideEnemy)
	switch {
	case len(enemies) == 0 && len(heroes) > 0:
		s.Winner = SideHero
	case len(heroes) == 0 && len(enemies) > 0:
		s.Winner = SideEnemy
	default:
		return false
	}
	if err := ctx.Emit(NotificationFinished, nil, FinishedPayload{Winner: s.Winner, Rounds: s.Rounds}); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit combat finished")
	}
	ctx.Complete()
	return true
}
