package combat

import "sort"

// Sides.
const (
	SideHero  = "hero"
	SideEnemy = "enemy"
)

// Unit is one combatant.
type Unit struct {
	ID       string
	Side     string
	HP       int
	MaxHP    int
	Attack   string
	Defeated bool
}

// Hit records one resolved attack.
type Hit struct {
	Tick     uint64
	Attacker string
	Target   string
	Faces    []int
	Damage   int
}

// State is the per-session combat state.
type State struct {
	Units  map[string]Unit
	Hits   []Hit
	Rounds int
	Winner string
}

// Clone returns a deep copy.
func (s *State) Clone() any {
	cloned := State{Rounds: s.Rounds, Winner: s.Winner}
	if s.Units != nil {
		cloned.Units = make(map[string]Unit, len(s.Units))
		for id, unit := range s.Units {
			cloned.Units[id] = unit
		}
	}
	if s.Hits != nil {
		cloned.Hits = make([]Hit, len(s.Hits))
		for i, hit := range s.Hits {
			hit.Faces = append([]int(nil), hit.Faces...)
			cloned.Hits[i] = hit
		}
	}
	return &cloned
}

// Living returns the ids of undefeated units on side, sorted.
func (s *State) Living(side string) []string {
	var ids []string
	for id, unit := range s.Units {
		if unit.Side == side && !unit.Defeated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
