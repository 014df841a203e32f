// Package event defines the notification channel.
//
// Notifications are derived outcomes raised by domain handlers while they
// process requests. They are never recorded: replaying the requests through the
// same handlers reproduces them. Presentation collaborators subscribe to the
// immediate side of the bus and are the only code allowed to create visual
// locks in response.
package event
