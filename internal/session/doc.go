// Package session ties the connection lifecycle to the signed-in identity.
//
// Signing in connects, signing out disconnects and drops every subscriber,
// and switching users does both in that order. Operations are serialized so
// rapid toggling never leaves two live connections behind.
package session
