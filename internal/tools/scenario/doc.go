// Package scenario loads Lua simulation scripts and runs them against a
// world.
//
// A script builds a Scenario through the Scenario global and returns it:
//
//	local s = Scenario.new("skirmish")
//	s:delta(0.25)
//	s:start(1, "combat.start", "battle-007", 1)
//	s:send(10, "combat.damage", "battle-007", {
//	  participants = { { role = "attacker", id = "hero" }, { role = "target", id = "goblin" } },
//	  payload = { dice = 2, sides = 6 },
//	})
//	s:run_until(24)
//	return s
//
// Run drives the script live and collects the recorded log; Verify replays a
// log into a fresh world and diffs the resulting snapshot against the live one.
package scenario
