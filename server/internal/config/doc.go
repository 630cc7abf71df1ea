// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort              REST API, ingest and WebSocket hub (default 8080)
//   - Auth                  "apikey" or "none", key read from Auth.KeyEnv
//   - Containers.TTL        idle shift container eviction (default 24h)
//   - Records.EditWindow    how long a record stays editable (default 8h)
//   - QC.TheoreticalLoad    target final tensioning load in kN (default 730)
//   - Storage               optional sqlite history journal and its retention
//   - Alerts                rules, webhook targets, delivery rate
//   - Stream.Interval       WebSocket report broadcast period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
