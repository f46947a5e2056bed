// Package api provides the REST client for the hub backend.
//
// Every endpoint wraps its result as {data: T, meta: {timestamp}}; errors
// come back as problem documents {type, title, status, detail}. The client
// unwraps both.
//
// Key endpoints: /devices (catalog + live state), /devices/{id}/command,
// /devices/refresh-states, /trading/status, /trading/swing/state.
package api
