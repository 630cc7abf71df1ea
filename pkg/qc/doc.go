// Package qc is the process statistics and compliance engine.
//
// Every function here is pure: inputs are plain records from pkg/types,
// outputs are plain result structs, and nothing is cached or logged. Callers
// recompute whenever their inputs change.
//
// tolerance.go holds the acceptance bounds (1% proportion tolerance, 3%
// outlier tolerance, compaction RPM spec limits, steam-curing phase windows,
// grade strength thresholds). The calculators built on them:
//
//   - ValidateProportion   batch set values vs reference weights (OK/NOT_OK)
//   - Deviation            per-ingredient deviation statistics
//   - Classify             control-chart sigma zoning of a sample population
//   - Capability           spec-limit counts and Cp/Cpk for compaction RPM
//   - CorrectMoisture      free-moisture correction and adopted weights
//   - CheckPhases          steam-curing phase-window compliance
//   - EvaluateStrength     cube strength pass/fail per grade
//
// Division by zero never produces NaN or Inf: each formula documents the
// value it falls back to (always 0).
package qc
