// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Real-time connection state and transitions
//   - Inbound frame rate and malformed frame drops
//   - Fan-out latency, subscriber count and callback panics
//   - REST request outcomes
package metrics
