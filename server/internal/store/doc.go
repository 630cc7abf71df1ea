// Package store holds the per-shift-container repositories: batch
// declarations, actual records, curing cycles, cube sets and the moisture
// sheet of each live shift.
//
// Every mutation can be mirrored to a Journal (the SQLite history) and
// replayed with Apply at startup. Readers get deep copies through Shift and
// Shifts, so reports are always built from an immutable snapshot.
package store
