// Package types defines shared Go types used by the agent, the server and the
// qcctl CLI. These are the canonical in-memory representations of shift
// records: batch declarations, witnessed/manual actuals, curing cycles, cube
// tests and moisture sheets.
//
// parse.go is the normalize boundary. Raw form payloads (strings, numbers,
// missing keys) are coerced there into strictly typed numeric maps before any
// record reaches the qc engine.
package types
