package combat

// StartPayload opens an encounter.
type StartPayload struct {
	Sequence uint64 `json:"sequence"`
}

// SpawnPayload describes a new unit.
type SpawnPayload struct {
	Side   string `json:"side"`
	HP     int    `json:"hp"`
	Attack string `json:"attack,omitempty"`
}

// DamagePayload describes one attack. Dice and Sides default to 1d6.
type DamagePayload struct {
	Dice     int `json:"dice,omitempty"`
	Sides    int `json:"sides,omitempty"`
	Modifier int `json:"modifier,omitempty"`
}

// DamageAppliedPayload is the payload of NotificationDamageApplied.
type DamageAppliedPayload struct {
	Attacker string `json:"attacker"`
	Target   string `json:"target"`
	Faces    []int  `json:"faces"`
	Damage   int    `json:"damage"`
	HP       int    `json:"hp"`
}

// UnitDefeatedPayload is the payload of NotificationUnitDefeated.
type UnitDefeatedPayload struct {
	Unit string `json:"unit"`
	Side string `json:"side"`
}

// FinishedPayload is the payload of NotificationFinished.
type FinishedPayload struct {
	Winner string `json:"winner"`
	Rounds int    `json:"rounds"`
}
