// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one notification websocket per session
//   - Fetches a fresh bearer token for every connection attempt
//   - Tracks the DISCONNECTED / CONNECTING / OPEN / ERRORED lifecycle
//   - Decodes inbound frames into envelopes and hands them to the registry
//   - Never reconnects on its own; reconnecting is the caller's decision
package connection
