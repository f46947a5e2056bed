// Package server exposes the mirrored state to local dashboards: a REST
// API over the device catalog and trading slices, plus WebSocket
// rebroadcast endpoints that push state changes as they apply.
//
// Responses use the hub's {data, meta} envelope; errors use problem
// details JSON. The trading routes can be guarded with a static bearer
// token.
package server
