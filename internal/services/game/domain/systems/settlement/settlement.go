// Package settlement is a reference periodic settlement system.
//
// A settlement period is a session keyed by organisation id and period
// number. Settling rolls each account's income and expenses from the session
// random stream, runs the IncomeCalculated and Finalized extension points,
// and completes the period.
package settlement

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
	"github.com/louisbranch/roundtable/internal/services/game/domain/engine"
	"github.com/louisbranch/roundtable/internal/services/game/domain/event"
	"github.com/louisbranch/roundtable/internal/services/game/domain/hook"
	"github.com/louisbranch/roundtable/internal/services/game/domain/phase"
)

// Command types.
const (
	CommandOpen    command.Type = "settlement.open"
	CommandAccount command.Type = "settlement.account"
	CommandSettle  command.Type = "settlement.settle"
	CommandClose   command.Type = "settlement.close"
)

// Notification types.
const (
	NotificationOpened      event.Type = "settlement.opened"
	NotificationAccountPaid event.Type = "settlement.account_paid"
	NotificationFinalized   event.Type = "settlement.finalized"
	NotificationClosed      event.Type = "settlement.closed"
)

// RoleAccount is the participant role of an account.
const RoleAccount = "account"

// RejectSettled rejects a second settle for the same period.
const RejectSettled = "ALREADY_SETTLED"

// AccountPayload describes a new account.
type AccountPayload struct {
	Balance        int `json:"balance"`
	Income         int `json:"income"`
	IncomeVariance int `json:"income_variance,omitempty"`
	Upkeep         int `json:"upkeep"`
	UpkeepVariance int `json:"upkeep_variance,omitempty"`
	// WindfallChance is the probability of adding Windfall to income. Zero
	// skips the roll.
	WindfallChance float64 `json:"windfall_chance,omitempty"`
	Windfall       int     `json:"windfall,omitempty"`
}

// Account is one ledger account.
type Account struct {
	ID             string
	Balance        int
	Income         int
	IncomeVariance int
	Upkeep         int
	UpkeepVariance int
	WindfallChance float64
	Windfall       int
}

// Line is one account's result for a period.
type Line struct {
	Account  string `json:"account"`
	Income   int    `json:"income"`
	Expenses int    `json:"expenses"`
	Balance  int    `json:"balance"`
}

// Income flows through the IncomeCalculated point. Callbacks may adjust
// Amount before expenses are rolled.
type Income struct {
	SessionID string
	Period    uint64
	Account   string
	Amount    int
}

// Statement flows through the Finalized point.
type Statement struct {
	SessionID string `json:"session_id"`
	Period    uint64 `json:"period"`
	Lines     []Line `json:"lines"`
	Net       int    `json:"net"`
}

// State is the per-session settlement state.
type State struct {
	Period    uint64
	Accounts  map[string]Account
	Statement *Statement
}

// Clone returns a deep copy.
func (s *State) Clone() any {
	cloned := State{Period: s.Period}
	if s.Accounts != nil {
		cloned.Accounts = make(map[string]Account, len(s.Accounts))
		for id, account := range s.Accounts {
			cloned.Accounts[id] = account
		}
	}
	if s.Statement != nil {
		statement := *s.Statement
		statement.Lines = append([]Line(nil), s.Statement.Lines...)
		cloned.Statement = &statement
	}
	return &cloned
}

// Module is the settlement system.
type Module struct {
	// IncomeCalculated runs after an account's income is rolled and before
	// the period is finalized.
	IncomeCalculated *hook.Point[Income]
	// Finalized runs once the statement is complete.
	Finalized *hook.Point[Statement]
}

// NewModule creates the settlement module.
func NewModule() *Module {
	return &Module{
		IncomeCalculated: hook.NewPoint[Income]("settlement.income_calculated"),
		Finalized:        hook.NewPoint[Statement]("settlement.finalized"),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return "settlement" }

// Register registers settlement commands.
func (m *Module) Register(r *engine.Registrar) error {
	if err := r.Handle(command.Definition{Type: CommandOpen, Lifecycle: command.LifecycleStart}, m.open); err != nil {
		return err
	}
	if err := r.Handle(command.Definition{
		Type:            CommandAccount,
		RequiredRoles:   []string{RoleAccount},
		ValidatePayload: validateAccount,
	}, m.account); err != nil {
		return err
	}
	if err := r.Handle(command.Definition{Type: CommandSettle}, m.settle); err != nil {
		return err
	}
	return r.Handle(command.Definition{Type: CommandClose, Lifecycle: command.LifecycleEnd}, m.close)
}

func validateAccount(raw json.RawMessage) error {
	var payload AccountPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Income < 0 || payload.Upkeep < 0 || payload.IncomeVariance < 0 || payload.UpkeepVariance < 0 {
		return fmt.Errorf("income, upkeep and variances must not be negative")
	}
	if payload.WindfallChance < 0 || payload.WindfallChance > 1 || payload.Windfall < 0 {
		return fmt.Errorf("windfall chance must be within [0, 1] and windfall must not be negative")
	}
	return nil
}

func state(ctx *engine.Context) *State {
	if s, ok := ctx.State().(*State); ok {
		return s
	}
	s := &State{Period: ctx.Session().Sequence, Accounts: make(map[string]Account)}
	ctx.SetState(s)
	return s
}

func (m *Module) open(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	if err := ctx.Emit(NotificationOpened, nil, map[string]any{"period": s.Period}); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit settlement opened")
	}
	return command.Accept()
}

func (m *Module) account(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	var payload AccountPayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return command.Reject(command.Rejection{Code: "PAYLOAD_INVALID", Message: err.Error()})
	}
	_, accountID, err := ctx.Participant(cmd, RoleAccount)
	if err != nil {
		return command.Reject(command.Rejection{Code: "MISSING_PARTICIPANT", Message: err.Error()})
	}
	s.Accounts[accountID] = Account{
		ID:             accountID,
		Balance:        payload.Balance,
		Income:         payload.Income,
		IncomeVariance: payload.IncomeVariance,
		Upkeep:         payload.Upkeep,
		UpkeepVariance: payload.UpkeepVariance,
		WindfallChance: payload.WindfallChance,
		Windfall:       payload.Windfall,
	}
	return command.Accept()
}

func (m *Module) settle(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	if s.Statement != nil {
		return command.Reject(command.Rejection{Code: RejectSettled, Message: fmt.Sprintf("period %d already settled", s.Period)})
	}
	ctx.SetPhase(phase.Processing)

	ids := make([]string, 0, len(s.Accounts))
	for id := range s.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rng := ctx.Rng()
	statement := Statement{SessionID: ctx.SessionID(), Period: s.Period}
	for _, id := range ids {
		account := s.Accounts[id]
		income := Income{
			SessionID: ctx.SessionID(),
			Period:    s.Period,
			Account:   id,
			Amount:    account.Income + rng.Range(0, account.IncomeVariance),
		}
		if account.WindfallChance > 0 && rng.Chance(account.WindfallChance) {
			income.Amount += account.Windfall
		}
		m.IncomeCalculated.Run(&income)
		expenses := account.Upkeep + rng.Range(0, account.UpkeepVariance)

		account.Balance += income.Amount - expenses
		s.Accounts[id] = account
		line := Line{Account: id, Income: income.Amount, Expenses: expenses, Balance: account.Balance}
		statement.Lines = append(statement.Lines, line)
		statement.Net += income.Amount - expenses
		if err := ctx.Emit(NotificationAccountPaid, []string{id}, line); err != nil {
			ctx.Logger().Warn().Err(err).Msg("emit account paid")
		}
	}

	m.Finalized.Run(&statement)
	s.Statement = &statement
	if err := ctx.Emit(NotificationFinalized, ids, statement); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit settlement finalized")
	}
	ctx.ReserveNext(phase.PlayerInput)
	ctx.SetPhase(phase.Visuals)
	ctx.Complete()
	return command.Accept()
}

func (m *Module) close(ctx *engine.Context, cmd command.Command) command.Decision {
	s := state(ctx)
	if err := ctx.Emit(NotificationClosed, nil, map[string]any{"period": s.Period, "settled": s.Statement != nil}); err != nil {
		ctx.Logger().Warn().Err(err).Msg("emit settlement closed")
	}
	return command.Accept()
}
