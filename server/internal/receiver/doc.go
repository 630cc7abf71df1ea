// Package receiver implements the ingest endpoint that accepts SCADA
// shipments from sleeperqc-agent instances.
//
// POST /ingest/v1/records takes a types.Shipment. The receiver checks that
// container_id is set and every record is Scada-sourced, writes records and
// curing cycles to the shift store, and replies with a types.ShipmentAck.
// Authentication is enforced upstream by the HTTP middleware in package auth,
// so the receiver itself only performs structural validation.
//
// New(st, onChange) wires the receiver to the store; onChange lets the server
// re-evaluate alerts for the touched container.
package receiver
