// Package views holds headless consumers of the notification stream.
//
// Each view subscribes to the registry on Open and unsubscribes on Close.
// Events that change server-side state trigger a refetch on a background
// loop so the dispatching goroutine is never blocked on REST calls. The
// conversation view is the exception: message events carry the full
// message and are appended in place.
package views
