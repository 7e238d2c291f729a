// Package auth signs users in against the hosted identity provider and hands
// out fresh bearer tokens.
//
// Every call to FreshToken exchanges the refresh token for a new id token.
// Nothing is cached: the notification socket and the REST client both want
// a token that is valid right now.
package auth
