// Package dice rolls dice expressions against a session random stream.
package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/roundtable/internal/services/game/domain/random"
)

const (
	maxCount = 100
	maxSides = 1000
)

var (
	// ErrMissingDice indicates a roll with no dice.
	ErrMissingDice = errors.New("at least one die is required")
	// ErrInvalidDiceSpec indicates a malformed die spec.
	ErrInvalidDiceSpec = errors.New("dice spec is invalid")
	// ErrRngRequired indicates a roll without a random stream.
	ErrRngRequired = errors.New("random stream is required")
)

// Spec describes Count dice with Sides faces.
type Spec struct {
	Sides int `json:"sides"`
	Count int `json:"count"`
}

func (s Spec) String() string {
	return strconv.Itoa(s.Count) + "d" + strconv.Itoa(s.Sides)
}

// Validate checks the spec bounds.
func (s Spec) Validate() error {
	if s.Count < 1 || s.Count > maxCount || s.Sides < 1 || s.Sides > maxSides {
		return fmt.Errorf("%w: %s", ErrInvalidDiceSpec, s)
	}
	return nil
}

// Parse reads "NdS" notation. A missing count means one die.
func Parse(value string) (Spec, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	countPart, sidesPart, found := strings.Cut(value, "d")
	if !found {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDiceSpec, value)
	}
	count := 1
	if countPart != "" {
		parsed, err := strconv.Atoi(countPart)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDiceSpec, value)
		}
		count = parsed
	}
	sides, err := strconv.Atoi(sidesPart)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidDiceSpec, value)
	}
	spec := Spec{Sides: sides, Count: count}
	return spec, spec.Validate()
}

// Roll captures the faces rolled for one spec.
type Roll struct {
	Sides   int   `json:"sides"`
	Results []int `json:"results"`
	Total   int   `json:"total"`
}

// Result captures a full roll.
type Result struct {
	Rolls    []Roll `json:"rolls"`
	Modifier int    `json:"modifier,omitempty"`
	Total    int    `json:"total"`
}

// Faces returns every face rolled, in roll order.
func (r Result) Faces() []int {
	var faces []int
	for _, roll := range r.Rolls {
		faces = append(faces, roll.Results...)
	}
	return faces
}

// RollDice rolls specs in order and adds modifier to the total.
func RollDice(rng *random.Rng, modifier int, specs ...Spec) (Result, error) {
	if rng == nil {
		return Result{}, ErrRngRequired
	}
	if len(specs) == 0 {
		return Result{}, ErrMissingDice
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return Result{}, err
		}
	}
	result := Result{Rolls: make([]Roll, 0, len(specs)), Modifier: modifier, Total: modifier}
	for _, spec := range specs {
		roll := Roll{Sides: spec.Sides, Results: make([]int, spec.Count)}
		for i := range roll.Results {
			face := rng.Die(spec.Sides)
			roll.Results[i] = face
			roll.Total += face
		}
		result.Rolls = append(result.Rolls, roll)
		result.Total += roll.Total
	}
	return result, nil
}
