// Package shipper sends SCADA observations to sleeperqc-server as JSON
// shipments posted to the ingest endpoint (types.IngestPath).
//
// Shipper.Ship() is non-blocking: observations are tagged with the configured
// container and placed in an in-memory channel (capacity agent.buffer_size).
// When the buffer is full the oldest observation is evicted.
//
// Shipper.Run() flushes the buffer every ship interval in shipments of at
// most 500 observations of one container. A shipment that fails with a
// network error, 408, 429 or 5xx stays pending and is resent unchanged after
// a truncated exponential backoff (1s→60s, ±25% jitter); the server drops
// record IDs it already stored. Other 4xx replies discard the shipment.
//
// Auth headers and mTLS come from the transport package.
package shipper
