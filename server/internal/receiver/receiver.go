package receiver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sleeperqc/sleeperqc/pkg/types"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

// Path is the ingest endpoint agents post shipments to.
const Path = types.IngestPath

// maxBody bounds a single shipment.
const maxBody = 4 << 20

// Receiver accepts SCADA shipments from sleeperqc-agent instances and writes
// them to the shift store.
type Receiver struct {
	store    *store.Store
	onChange func(containerID string)
}

// New creates a Receiver that writes accepted observations to st. onChange,
// when non-nil, is called once per shipment that stored anything.
func New(st *store.Store, onChange func(containerID string)) *Receiver {
	return &Receiver{store: st, onChange: onChange}
}

// Register mounts the ingest endpoint on mux.
func (r *Receiver) Register(mux *http.ServeMux) {
	mux.HandleFunc(Path, r.handle)
}

// handle validates a shipment and stores it. Only SCADA-sourced records are
// accepted here; manual entries go through the REST API. Records whose ID is
// already stored are counted as duplicates, so agents may safely resend a
// shipment after a lost reply. Authentication is enforced upstream by the
// auth middleware.
func (r *Receiver) handle(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var sh types.Shipment
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBody)).Decode(&sh); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed shipment: " + err.Error()})
		return
	}
	if sh.ContainerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "container_id is required"})
		return
	}
	for _, rec := range sh.Records {
		if rec.Source != types.SourceScada {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only Scada records may be ingested, got " + string(rec.Source)})
			return
		}
	}

	ack, err := r.storeShipment(sh)
	if ack.Accepted > 0 && r.onChange != nil {
		r.onChange(sh.ContainerID)
	}
	if err != nil {
		slog.Warn("receiver: rejected shipment",
			"container", sh.ContainerID,
			"agent", sh.AgentID,
			"accepted", ack.Accepted,
			"err", err,
		)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	slog.Debug("receiver: shipment stored",
		"container", sh.ContainerID,
		"agent", sh.AgentID,
		"accepted", ack.Accepted,
		"duplicates", ack.Duplicates,
	)
	writeJSON(w, http.StatusOK, ack)
}

// storeShipment writes every observation of sh. The first validation failure
// stops the shipment; items stored before it stay stored and are counted as
// duplicates when the agent resends.
func (r *Receiver) storeShipment(sh types.Shipment) (types.ShipmentAck, error) {
	ack := types.ShipmentAck{OK: true}
	tally := func(err error) error {
		switch {
		case err == nil:
			ack.Accepted++
		case errors.Is(err, store.ErrDuplicate):
			ack.Duplicates++
		default:
			return err
		}
		return nil
	}
	for _, rec := range sh.Records {
		if _, err := r.store.AddRecord(sh.ContainerID, rec); tally(err) != nil {
			return ack, err
		}
	}
	for _, ph := range sh.Phases {
		if _, err := r.store.AddPhase(sh.ContainerID, ph); tally(err) != nil {
			return ack, err
		}
	}
	return ack, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
