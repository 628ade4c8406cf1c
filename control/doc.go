// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime telemetry and debug introspection layer.
//
// Provides concurrent-safe state handling primitives including:
//   - OpenTelemetry counters, histograms and gauges for server events
//   - In-process counter snapshots backing Server.Stats
//   - Probe registration and state export
package control
