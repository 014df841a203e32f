// Package systems groups the game modules that install into the engine.
//
// Each subpackage implements engine.Module: it registers the request types it
// handles, subscribes to notifications, and keeps its own per-session state.
// Modules draw randomness only through the session RNG handed to them by the
// engine so recorded runs replay identically.
//
//   - combat: turn-based skirmishes between units
//   - settlement: periodic ledger settlement with ordered hooks
package systems
