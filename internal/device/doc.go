// Package device mirrors the hub's smart-home devices.
//
// The device mirror:
//   - Maintains a catalog of known devices synced from the hub REST API
//   - Folds feed envelopes (initial_state, device_state) into live state
//   - Issues commands with optimistic local application
//   - Confirms commands against the hub after a short settle delay
package device
