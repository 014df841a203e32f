// Package telemetry provides observability for the simulation engine.
//
// Recorded request logs are the canonical history of a session and live in
// the replay and storage packages. Operational signals, such as how many
// entries were dropped while recording or skipped during playback, are
// exported separately by telemetry/metrics in Prometheus format.
package telemetry
