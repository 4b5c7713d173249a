package ws

import (
	"encoding/json"
	"time"

	"vpp_simulator/internal/service"
	"vpp_simulator/internal/simulator"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

type SeekPayload struct {
	Timestamp string `json:"timestamp"`
}

type LimitPayload struct {
	ID    string  `json:"id"`
	Limit float64 `json:"limit"`
}

// Server -> Client messages

type SimStatePayload struct {
	RunID   string  `json:"run_id,omitempty"`
	Time    string  `json:"time"`
	Step    int     `json:"step"`
	Steps   int     `json:"steps"`
	Speed   float64 `json:"speed"`
	Running bool    `json:"running"`
	Error   string  `json:"error,omitempty"`
}

type StepPayload struct {
	Index     int                `json:"index"`
	Timestamp string             `json:"timestamp"`
	Values    map[string]float64 `json:"values"`

	BaseloadKW             float64 `json:"baseload_kw"`
	GridKW                 float64 `json:"grid_kw"`
	LossesKW               float64 `json:"losses_kw"`
	MinVoltagePU           float64 `json:"min_voltage_pu"`
	MaxLineLoadingPercent  float64 `json:"max_line_loading_percent"`
	MaxTrafoLoadingPercent float64 `json:"max_trafo_loading_percent"`
}

type SummaryPayload struct {
	RunID                 string             `json:"run_id"`
	Steps                 int                `json:"steps"`
	LoadKWh               float64            `json:"load_kwh"`
	GenerationKWh         float64            `json:"generation_kwh"`
	BaseloadKWh           float64            `json:"baseload_kwh"`
	StorageChargeKWh      float64            `json:"storage_charge_kwh"`
	StorageDischargeKWh   float64            `json:"storage_discharge_kwh"`
	GridImportKWh         float64            `json:"grid_import_kwh"`
	GridExportKWh         float64            `json:"grid_export_kwh"`
	LossesKWh             float64            `json:"losses_kwh"`
	PeakImportKW          float64            `json:"peak_import_kw"`
	PeakExportKW          float64            `json:"peak_export_kw"`
	MinVoltagePU          float64            `json:"min_voltage_pu"`
	MaxLineLoadingPercent float64            `json:"max_line_loading_percent"`
	SelfSufficiency       float64            `json:"self_sufficiency_percent"`
	ComponentKWh          map[string]float64 `json:"component_kwh"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Message type constants
const (
	// Client -> Server
	TypeRunStart       = "run:start"
	TypeComponentLimit = "component:limit"
	TypeSimStart       = "sim:start"
	TypeSimPause       = "sim:pause"
	TypeSimSetSpeed    = "sim:set_speed"
	TypeSimSeek        = "sim:seek"

	// Server -> Client
	TypeScenarioLoaded = "scenario:loaded"
	TypeSimState       = "sim:state"
	TypeStepUpdate     = "step:update"
	TypeSummaryUpdate  = "summary:update"
	TypeError          = "error"
)

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func SimStateFromRun(s simulator.State) SimStatePayload {
	return SimStatePayload{
		RunID:   s.RunID,
		Time:    s.Time.UTC().Format(time.RFC3339),
		Step:    s.Step,
		Steps:   s.Steps,
		Speed:   s.Speed,
		Running: s.Running,
		Error:   s.Error,
	}
}

func StepFromRun(r simulator.StepResult) StepPayload {
	return StepPayload{
		Index:                  r.Index,
		Timestamp:              r.Timestamp.UTC().Format(time.RFC3339),
		Values:                 r.Values,
		BaseloadKW:             r.BaseloadKW,
		GridKW:                 r.GridKW,
		LossesKW:               r.LossesKW,
		MinVoltagePU:           r.MinVoltagePU,
		MaxLineLoadingPercent:  r.MaxLineLoadingPercent,
		MaxTrafoLoadingPercent: r.MaxTrafoLoadingPercent,
	}
}

func SummaryFromRun(s simulator.Summary) SummaryPayload {
	return SummaryPayload{
		RunID:                 s.RunID,
		Steps:                 s.Steps,
		LoadKWh:               s.LoadKWh,
		GenerationKWh:         s.GenerationKWh,
		BaseloadKWh:           s.BaseloadKWh,
		StorageChargeKWh:      s.StorageChargeKWh,
		StorageDischargeKWh:   s.StorageDischargeKWh,
		GridImportKWh:         s.GridImportKWh,
		GridExportKWh:         s.GridExportKWh,
		LossesKWh:             s.LossesKWh,
		PeakImportKW:          s.PeakImportKW,
		PeakExportKW:          s.PeakExportKW,
		MinVoltagePU:          s.MinVoltagePU,
		MaxLineLoadingPercent: s.MaxLineLoadingPercent,
		SelfSufficiency:       s.SelfSufficiency(),
		ComponentKWh:          s.ComponentKWh,
	}
}

// ScenarioPayload is sent on connect and after a run finishes.
type ScenarioPayload = service.Info
