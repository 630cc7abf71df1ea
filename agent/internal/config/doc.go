// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` tree parsed from YAML
//   - AgentConfig: server_endpoint (http URL), container_id, scrape_interval,
//     ship_interval, buffer_size, sources [], server_auth
//   - Source: id, stage (batching|tensioning|compaction|curing), endpoint, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none) with env-resolved secrets
//
// Load(path) reads the YAML file, applies defaults (30s scrape, 15s ship,
// 1000 buffer), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory and calls
// onChange with the newly parsed Config after each save.
package config
