// Package stream manages the WebSocket channels to the hub feeds.
//
// A Manager owns one WebSocket channel to a single hub feed (device or
// trading) and:
//   - Drives the connect -> open -> closed -> reconnect lifecycle
//   - Sends the subscribe frame on every open and keepalive pings while open
//   - Decodes inbound frames and queues data envelopes for the state engine
//   - Tracks pong bookkeeping (bridge liveness) without tying stream health
//     to it; data staleness is judged elsewhere
//
// Reconnection uses a fixed delay by default, matching the hub's own
// bridge behaviour; capped exponential backoff is available via config.
package stream
