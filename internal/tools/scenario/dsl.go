package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/louisbranch/roundtable/internal/services/game/domain/command"
)

const scenarioTypeName = "scenario"

// DefaultDelta is the tick delta used when a script sets none.
const DefaultDelta = 0.25

//go:embed scenarios/*.lua
var builtinFS embed.FS

// Step is one request submitted before a tick.
type Step struct {
	Tick    uint64
	Command command.Command
}

// Scenario is a loaded script.
type Scenario struct {
	Name  string
	Delta float64
	// Until is the last tick to step. Zero means the last step's tick plus
	// DefaultTail.
	Until uint64
	Steps []Step
}

// LastTick returns the highest tick a step is scheduled for.
func (s *Scenario) LastTick() uint64 {
	var last uint64
	for _, step := range s.Steps {
		if step.Tick > last {
			last = step.Tick
		}
	}
	return last
}

// Ticks returns how many ticks a run steps.
func (s *Scenario) Ticks() uint64 {
	if s.Until > 0 {
		return s.Until
	}
	return s.LastTick() + DefaultTail
}

// StepsAt returns the commands scheduled for tick in script order.
func (s *Scenario) StepsAt(tick uint64) []command.Command {
	var out []command.Command
	for _, step := range s.Steps {
		if step.Tick == tick {
			out = append(out, step.Command)
		}
	}
	return out
}

// LoadFile loads a script from disk. The scenario name defaults to the file
// name without extension.
func LoadFile(filePath string) (*Scenario, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Load(strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)), string(source))
}

// Builtin loads one of the embedded scripts by name.
func Builtin(name string) (*Scenario, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".lua")
	source, err := fs.ReadFile(builtinFS, path.Join("scenarios", name+".lua"))
	if err != nil {
		return nil, fmt.Errorf("builtin scenario %q: %w", name, err)
	}
	return Load(name, string(source))
}

// Builtins lists the embedded script names.
func Builtins() []string {
	entries, err := fs.ReadDir(builtinFS, "scenarios")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".lua"))
	}
	sort.Strings(names)
	return names
}

// Load runs source and returns the Scenario it returns.
func Load(name, source string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerLuaTypes(state)

	if err := lua.LoadBuffer(state, source, name, "t"); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}
	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("scenario script must return Scenario")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	sc, ok := ud.(*Scenario)
	if !ok || sc == nil {
		return nil, fmt.Errorf("scenario script returned invalid Scenario")
	}
	if strings.TrimSpace(sc.Name) == "" {
		sc.Name = name
	}
	if sc.Delta == 0 {
		sc.Delta = DefaultDelta
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool { return sc.Steps[i].Tick < sc.Steps[j].Tick })
	return sc, nil
}

func registerLuaTypes(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{{Name: "new", Function: scenarioNew}}, 0)
	state.SetGlobal("Scenario")
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "delta", Function: scenarioDelta},
	{Name: "start", Function: scenarioStart},
	{Name: "send", Function: scenarioSend},
	{Name: "run_until", Function: scenarioRunUntil},
}

func scenarioNew(state *lua.State) int {
	state.PushUserData(&Scenario{Name: lua.OptString(state, 1, "")})
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

func scenarioDelta(state *lua.State) int {
	sc := checkScenario(state)
	delta := lua.CheckNumber(state, 2)
	if delta < 0 || math.IsNaN(delta) {
		lua.ArgumentError(state, 2, "delta must not be negative")
	}
	sc.Delta = delta
	state.PushValue(1)
	return 1
}

// scenarioStart schedules a session-opening request:
// s:start(tick, type, session_id [, sequence [, payload]]).
func scenarioStart(state *lua.State) int {
	sc := checkScenario(state)
	tick := checkTick(state, 2)
	typ := lua.CheckString(state, 3)
	sessionID := lua.CheckString(state, 4)
	sequence := lua.OptInteger(state, 5, 1)
	if sequence < 0 {
		lua.ArgumentError(state, 5, "sequence must not be negative")
	}
	payload := optionalTable(state, 6)
	payload["sequence"] = sequence
	raw, err := command.EncodePayload(payload)
	if err != nil {
		lua.Errorf(state, "start %s: %s", typ, err.Error())
	}
	sc.Steps = append(sc.Steps, Step{Tick: tick, Command: command.Command{
		Type:        command.Type(typ),
		Session:     command.Spawning("session", sessionID),
		PayloadJSON: raw,
	}})
	state.PushValue(1)
	return 1
}

// scenarioSend schedules a request on a live session:
// s:send(tick, type, session_id [, { participants = {...}, payload = {...} }]).
func scenarioSend(state *lua.State) int {
	sc := checkScenario(state)
	tick := checkTick(state, 2)
	typ := lua.CheckString(state, 3)
	sessionID := lua.CheckString(state, 4)
	opts := optionalTable(state, 5)

	participants, err := parseParticipants(opts["participants"])
	if err != nil {
		lua.ArgumentError(state, 5, err.Error())
	}
	var raw []byte
	if payload, ok := opts["payload"]; ok {
		if raw, err = command.EncodePayload(payload); err != nil {
			lua.Errorf(state, "send %s: %s", typ, err.Error())
		}
	}
	sc.Steps = append(sc.Steps, Step{Tick: tick, Command: command.Command{
		Type:         command.Type(typ),
		Session:      command.ByID("session", sessionID),
		Participants: participants,
		PayloadJSON:  raw,
	}})
	state.PushValue(1)
	return 1
}

func scenarioRunUntil(state *lua.State) int {
	sc := checkScenario(state)
	sc.Until = checkTick(state, 2)
	state.PushValue(1)
	return 1
}

func parseParticipants(value any) ([]command.Ref, error) {
	if value == nil {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("participants must be a list")
	}
	refs := make([]command.Ref, 0, len(list))
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("participant %d must be a table", i+1)
		}
		role, _ := fields["role"].(string)
		if strings.TrimSpace(role) == "" {
			return nil, fmt.Errorf("participant %d: role is required", i+1)
		}
		id, _ := fields["id"].(string)
		spawn, _ := fields["spawn"].(bool)
		switch {
		case spawn:
			refs = append(refs, command.Spawning(role, id))
		case strings.TrimSpace(id) == "":
			return nil, fmt.Errorf("participant %d: id is required", i+1)
		default:
			refs = append(refs, command.ByID(role, id))
		}
	}
	return refs, nil
}

func checkScenario(state *lua.State) *Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if sc, ok := ud.(*Scenario); ok && sc != nil {
		return sc
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

func checkTick(state *lua.State, index int) uint64 {
	tick := lua.CheckInteger(state, index)
	if tick <= 0 {
		lua.ArgumentError(state, index, "tick must be positive")
	}
	return uint64(tick)
}

func optionalTable(state *lua.State, index int) map[string]any {
	if state.IsNoneOrNil(index) || state.TypeOf(index) != lua.TypeTable {
		return map[string]any{}
	}
	return tableToMap(state, index)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}
	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		if math.Mod(value, 1) == 0 {
			return int(value)
		}
		return value
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

// tableToGo returns a slice for sequence tables and a map otherwise.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	isArray := true
	maxIndex, count := 0, 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if idx, ok := state.ToInteger(-2); ok && state.TypeOf(-2) == lua.TypeNumber && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}
	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}
	return tableToMap(state, index)
}
