// Package metrics provides operational metrics collection.
//
// Metrics are registered on the default Prometheus registry when the package
// is loaded and exposed by the sim command's optional /metrics listener.
//
// # Metric Categories
//
//   - Recording: entries recorded and dropped for unresolved participants
//   - Playback: entries emitted, skipped and missed (replay fidelity)
//   - Turn cycle: ticks, phase transitions, outstanding visual locks
//   - Sessions: starts by kind and seed-collision reseeds
package metrics
