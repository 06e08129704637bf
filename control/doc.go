// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for endpoint processes.
//
// Provides concurrent-safe primitives including:
//   - Counters and gauges with point-in-time snapshots
//   - Named debug probes evaluated on demand
//   - An HTTP router exposing both as JSON
package control
