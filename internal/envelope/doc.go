// Package envelope implements the wire codec shared by both hub feeds.
//
// Every inbound frame is a JSON text frame carrying at least a "type"
// field; data frames add topic, payload, and timestamp. Decode turns a raw
// frame into an Envelope without interpreting the payload; reducers own
// payload semantics. Outbound constructors build the subscribe, publish,
// and ping frames the hub expects.
package envelope
