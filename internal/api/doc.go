// Package api provides the client for the chat backend REST API.
//
// Every endpoint is a POST with a JSON body. Authenticated calls carry a
// bearer id token pulled from a TokenSource per attempt.
//
// Endpoint groups:
//   - /auth: account creation and deletion
//   - /friends: friend requests and the friends list
//   - /messaging: direct messages
//   - /social_actions: user search
//   - /admin: user listing and login tokens
//
// List endpoints take {limit, offset} and return {data, next_offset}.
package api
