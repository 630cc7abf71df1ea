package receiver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeperqc/sleeperqc/pkg/types"
	"github.com/sleeperqc/sleeperqc/server/internal/auth"
	"github.com/sleeperqc/sleeperqc/server/internal/receiver"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

type changes struct {
	mu  sync.Mutex
	ids []string
}

func (c *changes) record(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
}

// startServer mounts a receiver behind the auth middleware and returns the
// test server, the backing store and the change log.
func startServer(t *testing.T, mode, key string) (*httptest.Server, *store.Store, *changes) {
	t.Helper()
	st := store.New(time.Hour, time.Hour)
	ch := &changes{}
	mux := http.NewServeMux()
	receiver.New(st, ch.record).Register(mux)
	srv := httptest.NewServer(auth.APIKey(mode, "x-api-key", key)(mux))
	t.Cleanup(srv.Close)
	return srv, st, ch
}

func post(t *testing.T, srv *httptest.Server, key string, body any) (*http.Response, types.ShipmentAck) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+receiver.Path, bytes.NewReader(raw))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var ack types.ShipmentAck
	json.NewDecoder(resp.Body).Decode(&ack) //nolint:errcheck
	return resp, ack
}

func scadaShipment() types.Shipment {
	return types.Shipment{
		ContainerID: "shift-a",
		AgentID:     "plc-gw-1",
		Records: []types.ActualRecord{
			{ID: "r1", BatchNo: "B-1", Stage: types.StageCompaction, Source: types.SourceScada, Values: map[string]float64{types.MetricRPM: 9010}},
			{ID: "r2", BatchNo: "B-1", Stage: types.StageTensioning, Source: types.SourceScada, Values: map[string]float64{types.MetricFinalLoad: 731}},
		},
		Phases: []types.PhaseRecord{
			{ID: "p1", BatchNo: "B-1", Chamber: "C3", Values: map[types.Phase]float64{types.PhaseConstTemp: 58}},
		},
	}
}

func TestIngest_StoresShipment(t *testing.T) {
	srv, st, ch := startServer(t, "none", "")

	resp, ack := post(t, srv, "", scadaShipment())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ack.OK)
	assert.Equal(t, 3, ack.Accepted)

	sh, ok := st.Shift("shift-a")
	require.True(t, ok)
	assert.Len(t, sh.Records, 2)
	assert.Len(t, sh.Phases, 1)
	assert.Equal(t, []string{"shift-a"}, ch.ids)
}

func TestIngest_ResendIsDeduplicated(t *testing.T) {
	srv, st, ch := startServer(t, "none", "")

	post(t, srv, "", scadaShipment())
	resp, ack := post(t, srv, "", scadaShipment())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, ack.Accepted)
	assert.Equal(t, 3, ack.Duplicates)

	sh, _ := st.Shift("shift-a")
	assert.Len(t, sh.Records, 2)
	assert.Len(t, ch.ids, 1, "a shipment with nothing new does not trigger a change")
}

func TestIngest_Rejects(t *testing.T) {
	manual := scadaShipment()
	manual.Records[1].Source = types.SourceManual

	badStage := scadaShipment()
	badStage.Records[0].Stage = "mould"

	tests := []struct {
		name string
		body any
	}{
		{"missing container", types.Shipment{Records: scadaShipment().Records}},
		{"manual record", manual},
		{"unknown stage", badStage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _, _ := startServer(t, "none", "")
			resp, _ := post(t, srv, "", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestIngest_MalformedJSON(t *testing.T) {
	srv, _, _ := startServer(t, "none", "")
	resp, err := http.Post(srv.URL+receiver.Path, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngest_MethodNotAllowed(t *testing.T) {
	srv, _, _ := startServer(t, "none", "")
	resp, err := http.Get(srv.URL + receiver.Path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestIngest_APIKey(t *testing.T) {
	srv, st, _ := startServer(t, "apikey", "supersecret")

	resp, _ := post(t, srv, "wrong", scadaShipment())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, st.Count())

	resp, ack := post(t, srv, "supersecret", scadaShipment())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, ack.Accepted)
}
