// Package command defines request-class values: the intents that enter the
// simulation from outside and drive domain logic.
//
// Commands are the only values the recorder ever stores. Everything a command
// causes (notifications, derived follow-up commands, RNG draws) is reproduced
// by replaying the command through the same logic, so none of it is captured.
//
// Participant references carry a run-local handle during live play and a
// stable id once they cross the recording boundary. The registry validates
// shape and payload before a command reaches a handler.
package command
