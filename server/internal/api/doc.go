// Package api implements the HTTP REST API for sleeperqc-server.
//
// New(store, opts) returns an http.Handler that serves:
//
//	GET  /api/v1/health                                  headline state and counts
//	GET  /api/v1/alerts                                  firing and recently resolved alerts
//	GET  /api/v1/containers                              one summary per live shift
//	GET  /api/v1/containers/{cid}/report                 full shift report plus diagnostics
//	GET  /api/v1/containers/{cid}/batches                current batch declarations
//	POST /api/v1/containers/{cid}/batches                declare a batch class
//	GET  /api/v1/containers/{cid}/batches/{batch}/deviations
//	POST /api/v1/containers/{cid}/records                manual or SCADA record
//	PUT  /api/v1/containers/{cid}/records/{rid}          edit within the edit window
//	POST /api/v1/containers/{cid}/phases                 steam-curing cycle
//	POST /api/v1/containers/{cid}/cubes                  cube crushing results
//	PUT  /api/v1/containers/{cid}/moisture               replace the moisture sheet
//	POST /api/v1/calc/moisture                           stateless moisture correction
//	POST /api/v1/calc/sigma                              stateless sigma classification
//
// Numeric inputs are accepted as numbers or numeric strings; blanks and
// garbage become 0. Store errors map to 400 (invalid), 404 (unknown),
// and 409 (duplicate ID or closed edit window). Every accepted write calls
// Options.OnChange with the container ID.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
