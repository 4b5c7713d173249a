package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpp_simulator/internal/simulator"
)

var startTime = time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBridge() (*Bridge, *Client) {
	hub := NewHub(nil)
	client := &Client{hub: hub, send: make(chan []byte, 256)}
	hub.Register(client)
	bridge := NewBridge(hub)
	return bridge, client
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	msg := <-c.send
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestBridge_OnState(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnState(simulator.State{
		RunID:   "r1",
		Time:    startTime,
		Step:    4,
		Steps:   24,
		Speed:   1800,
		Running: true,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeSimState, env.Type)

	var p SimStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "r1", p.RunID)
	assert.Equal(t, "2015-06-01T12:00:00Z", p.Time)
	assert.Equal(t, 4, p.Step)
	assert.Equal(t, 24, p.Steps)
	assert.Equal(t, 1800.0, p.Speed)
	assert.True(t, p.Running)
	assert.Empty(t, p.Error)
}

func TestBridge_OnStep(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnStep(simulator.StepResult{
		Index:        3,
		Timestamp:    startTime.Add(time.Hour),
		Values:       map[string]float64{"pv": -4.2, "bat": 1.5},
		BaseloadKW:   2,
		GridKW:       -0.7,
		MinVoltagePU: 0.98,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeStepUpdate, env.Type)

	var p StepPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 3, p.Index)
	assert.Equal(t, "2015-06-01T13:00:00Z", p.Timestamp)
	assert.InDelta(t, -4.2, p.Values["pv"], 1e-9)
	assert.InDelta(t, 1.5, p.Values["bat"], 1e-9)
	assert.InDelta(t, -0.7, p.GridKW, 1e-9)
	assert.InDelta(t, 0.98, p.MinVoltagePU, 1e-9)
}

func TestBridge_OnSummary(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnSummary(simulator.Summary{
		RunID:         "r1",
		Steps:         24,
		LoadKWh:       10,
		GenerationKWh: 30,
		BaseloadKWh:   10,
		GridImportKWh: 5,
		GridExportKWh: 25,
		ComponentKWh:  map[string]float64{"pv": -30},
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeSummaryUpdate, env.Type)

	var p SummaryPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 24, p.Steps)
	assert.InDelta(t, 5.0, p.GridImportKWh, 1e-9)
	assert.InDelta(t, 25.0, p.GridExportKWh, 1e-9)
	assert.InDelta(t, 75.0, p.SelfSufficiency, 1e-9)
	assert.InDelta(t, -30.0, p.ComponentKWh["pv"], 1e-9)
}
