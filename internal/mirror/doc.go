// Package mirror implements the state engine shared by both feeds.
//
// An Engine consumes decoded envelopes from a stream queue, routes each
// topic to a reducer from a static table, and folds the returned delta into
// a set of named entity slices in one atomic step. It also runs the
// staleness monitor (a periodic tick that demotes feed health when no
// envelope has been accepted within the threshold) and the optimistic
// write ledger (immediate local merges that the feed later confirms or
// supersedes; never rolled back).
//
// Reducers are pure: (current view, envelope) -> delta. Reducer and decode
// failures are contained, counted, and logged; they never stop the engine.
package mirror
