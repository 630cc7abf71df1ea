// Package scada polls plant PLC exporters that publish process values in the
// Prometheus text exposition format and turns them into sleeper QC
// observations tagged Source=Scada.
//
// Each source has one stage and reads one metric family:
//
//	batching    sleeper_batch_weight_kg{batch_no,ingredient}
//	tensioning  sleeper_tension_final_load_kn{batch_no,...}
//	compaction  sleeper_compaction_rpm{batch_no,...}
//	curing      sleeper_curing_phase{batch_no,chamber,phase}
//
// SCADA gauges keep their value between scrapes, so a Tracker per source
// remembers the last value of every series and only changes are emitted.
// Collector scrapes all sources concurrently with errgroup.
package scada
