// Package timeouts defines shared timeouts for the HTTP listeners commands
// run next to the simulation loop.
package timeouts

import "time"

// ReadHeader limits how long the metrics listener waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long a listener waits for in-flight requests when the
// command stops.
const Shutdown = 5 * time.Second

// TelemetryShutdown limits how long span export may take at exit.
const TelemetryShutdown = 5 * time.Second
