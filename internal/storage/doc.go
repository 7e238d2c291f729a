// Package storage persists the small amount of client state that must
// survive a restart: the identity provider refresh token and the signed-in
// email.
//
// Backends:
//   - memory: process lifetime only (tests, one-shot commands)
//   - sqlite: a local file, the default for a single user
//   - postgres: a shared kv_store table when several clients run side by side
package storage
