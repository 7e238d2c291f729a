// Package events defines the real-time envelope and its event taxonomy.
//
// Every inbound text frame on the notification socket is a JSON object:
//
//	{"type": "MESSAGE_RECEIVED", "data": {...}}
//
// The type strings are an external contract and must not change. The data
// payload is kept raw until a consumer asks for a typed view of it.
package events
