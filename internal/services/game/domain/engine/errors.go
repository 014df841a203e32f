package engine

import "errors"

var (
	// ErrMissingParticipant indicates a reference to an object that is not
	// live. Handlers must tolerate it.
	ErrMissingParticipant = errors.New("participant is not live")
	// ErrHandlerRequired indicates a command registered without a handler.
	ErrHandlerRequired = errors.New("command handler is required")
	// ErrModuleRequired indicates a nil module.
	ErrModuleRequired = errors.New("module is required")
	// ErrSessionStarted indicates a start request for a live session.
	ErrSessionStarted = errors.New("session is already live")
	// ErrSessionNotLive indicates a request for a session that is not live.
	ErrSessionNotLive = errors.New("session is not live")
)
