package simulator

import (
	"math"
	"time"
)

// State represents the current run or replay state.
type State struct {
	RunID   string    `json:"run_id"`
	Time    time.Time `json:"time"`
	Step    int       `json:"step"`
	Steps   int       `json:"steps"`
	Speed   float64   `json:"speed,omitempty"`
	Running bool      `json:"running"`
	Error   string    `json:"error,omitempty"`
}

// StepResult is emitted after every solved step. Values are in kW with the
// load sign.
type StepResult struct {
	Index     int                `json:"index"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`

	BaseloadKW             float64 `json:"baseload_kw"`
	GridKW                 float64 `json:"grid_kw"`
	LossesKW               float64 `json:"losses_kw"`
	MinVoltagePU           float64 `json:"min_voltage_pu"`
	MaxLineLoadingPercent  float64 `json:"max_line_loading_percent"`
	MaxTrafoLoadingPercent float64 `json:"max_trafo_loading_percent"`
}

// Summary holds running energy totals of a run.
type Summary struct {
	RunID string `json:"run_id"`
	Steps int    `json:"steps"`

	LoadKWh             float64 `json:"load_kwh"`
	GenerationKWh       float64 `json:"generation_kwh"`
	BaseloadKWh         float64 `json:"baseload_kwh"`
	StorageChargeKWh    float64 `json:"storage_charge_kwh"`
	StorageDischargeKWh float64 `json:"storage_discharge_kwh"`
	GridImportKWh       float64 `json:"grid_import_kwh"`
	GridExportKWh       float64 `json:"grid_export_kwh"`
	LossesKWh           float64 `json:"losses_kwh"`

	PeakImportKW          float64 `json:"peak_import_kw"`
	PeakExportKW          float64 `json:"peak_export_kw"`
	MinVoltagePU          float64 `json:"min_voltage_pu"`
	MaxLineLoadingPercent float64 `json:"max_line_loading_percent"`

	// Energy per component, signed like its values.
	ComponentKWh map[string]float64 `json:"component_kwh"`
}

// SelfSufficiency returns the share of plant and household demand that was
// not imported from the upstream grid, in percent.
func (s *Summary) SelfSufficiency() float64 {
	demand := s.LoadKWh + s.BaseloadKWh + s.StorageChargeKWh
	if demand <= 0 {
		return 100
	}
	pct := (demand - s.GridImportKWh) / demand * 100
	return math.Max(0, math.Min(100, pct))
}

// Callback receives run events.
type Callback interface {
	OnState(state State)
	OnStep(step StepResult)
	OnSummary(summary Summary)
}

// NopCallback discards every event.
type NopCallback struct{}

func (NopCallback) OnState(State)     {}
func (NopCallback) OnStep(StepResult) {}
func (NopCallback) OnSummary(Summary) {}

// MultiCallback fans events out in order.
type MultiCallback []Callback

func (m MultiCallback) OnState(s State) {
	for _, cb := range m {
		cb.OnState(s)
	}
}

func (m MultiCallback) OnStep(s StepResult) {
	for _, cb := range m {
		cb.OnStep(s)
	}
}

func (m MultiCallback) OnSummary(s Summary) {
	for _, cb := range m {
		cb.OnSummary(s)
	}
}

// accumulator folds step results into a Summary.
type accumulator struct {
	s       Summary
	dt      float64
	storage map[string]bool
}

func newAccumulator(runID string, stepHours float64, storage map[string]bool) *accumulator {
	return &accumulator{
		s:       Summary{RunID: runID, ComponentKWh: make(map[string]float64)},
		dt:      stepHours,
		storage: storage,
	}
}

func (a *accumulator) add(r StepResult) {
	s := &a.s
	if s.Steps == 0 || r.MinVoltagePU < s.MinVoltagePU {
		s.MinVoltagePU = r.MinVoltagePU
	}
	s.Steps++
	s.BaseloadKWh += r.BaseloadKW * a.dt
	s.LossesKWh += r.LossesKW * a.dt
	s.MaxLineLoadingPercent = math.Max(s.MaxLineLoadingPercent, r.MaxLineLoadingPercent)

	if r.GridKW > 0 {
		s.GridImportKWh += r.GridKW * a.dt
		s.PeakImportKW = math.Max(s.PeakImportKW, r.GridKW)
	} else {
		s.GridExportKWh -= r.GridKW * a.dt
		s.PeakExportKW = math.Max(s.PeakExportKW, -r.GridKW)
	}

	for id, v := range r.Values {
		e := v * a.dt
		s.ComponentKWh[id] += e
		switch {
		case a.storage[id] && e > 0:
			s.StorageChargeKWh += e
		case a.storage[id]:
			s.StorageDischargeKWh -= e
		case e > 0:
			s.LoadKWh += e
		default:
			s.GenerationKWh -= e
		}
	}
}

func (a *accumulator) summary() Summary {
	out := a.s
	out.ComponentKWh = make(map[string]float64, len(a.s.ComponentKWh))
	for id, v := range a.s.ComponentKWh {
		out.ComponentKWh[id] = v
	}
	return out
}
