package types

// IngestPath is the server endpoint agents post shipments to.
const IngestPath = "/ingest/v1/records"

// Shipment is one batch of SCADA observations posted by an agent to the
// server's ingest endpoint.
type Shipment struct {
	ContainerID string         `json:"container_id"`
	AgentID     string         `json:"agent_id,omitempty"`
	Records     []ActualRecord `json:"records,omitempty"`
	Phases      []PhaseRecord  `json:"phases,omitempty"`
}

// Len returns the number of observations carried.
func (s Shipment) Len() int {
	return len(s.Records) + len(s.Phases)
}

// ShipmentAck is the ingest endpoint's reply.
type ShipmentAck struct {
	OK         bool `json:"ok"`
	Accepted   int  `json:"accepted"`
	Duplicates int  `json:"duplicates,omitempty"`
}
