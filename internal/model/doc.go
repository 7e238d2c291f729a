// Package model defines shared data types used across the chatpulse client.
//
// The types mirror the JSON bodies of the messaging backend: they are decoded
// from REST responses and from the data field of real-time envelopes.
//
// Conventions:
//   - Users are addressed by email; IDs are opaque strings owned by the backend
//   - Timestamps: time.Time, RFC 3339 on the wire
//   - Friend request statuses are lower-case strings
package model
