package asset

import (
	"errors"
	"fmt"
	"math"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

// ErrNoPowerTrace is returned when an electrolyzer is prepared without a
// power trace.
var ErrNoPowerTrace = errors.New("no electrolyzer power trace")

const (
	DefaultCellArea            = 500.0 // cm²
	DefaultStackTemperature    = 50.0  // °C
	DefaultOutputPressure      = 30.0  // bar
	DefaultStoragePressure     = 200.0 // bar
	DefaultMaxCurrentDensity   = 2.0   // A/cm²
	DefaultBootingLoadFraction = 0.0085

	minPowerFraction = 0.1
)

type ElectrolyzerConfig struct {
	NominalPower      float64 `json:"p_nom" yaml:"p_nom"`     // kW
	NCells            int     `json:"n_cells" yaml:"n_cells"` // 0: sized from p_nom
	CellArea          float64 `json:"cell_area" yaml:"cell_area"`
	StackTemperature  float64 `json:"stack_temperature" yaml:"stack_temperature"`
	OutputPressure    float64 `json:"output_pressure" yaml:"output_pressure"`
	StoragePressure   float64 `json:"storage_pressure" yaml:"storage_pressure"`
	MaxCurrentDensity float64 `json:"max_current_density" yaml:"max_current_density"`
	// BootingLoadFraction of p_nom is drawn while booting.
	BootingLoadFraction float64 `json:"booting_load_fraction" yaml:"booting_load_fraction"`
	// PowerTrace names the environment series offered to the electrolyzer.
	PowerTrace string `json:"power_trace" yaml:"power_trace"`
}

func (c *ElectrolyzerConfig) Validate(id string) error {
	if c.CellArea == 0 {
		c.CellArea = DefaultCellArea
	}
	if c.StackTemperature == 0 {
		c.StackTemperature = DefaultStackTemperature
	}
	if c.OutputPressure == 0 {
		c.OutputPressure = DefaultOutputPressure
	}
	if c.StoragePressure == 0 {
		c.StoragePressure = DefaultStoragePressure
	}
	if c.MaxCurrentDensity == 0 {
		c.MaxCurrentDensity = DefaultMaxCurrentDensity
	}
	if c.BootingLoadFraction == 0 {
		c.BootingLoadFraction = DefaultBootingLoadFraction
	}
	switch {
	case c.NominalPower <= 0:
		return invalid(id, "nominal power %v must be positive", c.NominalPower)
	case c.NCells < 0:
		return invalid(id, "cell count %d must not be negative", c.NCells)
	case c.CellArea < 0 || c.MaxCurrentDensity < 0:
		return invalid(id, "cell area %v and max current density %v must be positive", c.CellArea, c.MaxCurrentDensity)
	case c.StackTemperature <= 0 || c.StackTemperature >= 100:
		return invalid(id, "stack temperature %v not in (0, 100) °C", c.StackTemperature)
	case c.OutputPressure < 1:
		return invalid(id, "output pressure %v must be at least 1 bar", c.OutputPressure)
	case c.BootingLoadFraction < 0 || c.BootingLoadFraction >= minPowerFraction:
		return invalid(id, "booting load fraction %v not in [0, %v)", c.BootingLoadFraction, minPowerFraction)
	}
	return nil
}

// Electrolyzer is a PEM electrolyzer following an offered power trace.
type Electrolyzer struct {
	component.Base
	cfg    ElectrolyzerConfig
	cell   *cellModel
	nCells int
	trace  []float64
}

func NewElectrolyzer(id string, env *environment.Environment, cfg ElectrolyzerConfig) (*Electrolyzer, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	cell, err := newCellModel(cfg.StackTemperature, cfg.OutputPressure, cfg.CellArea, cfg.MaxCurrentDensity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	n := cfg.NCells
	if n == 0 {
		n = int(math.Ceil(cfg.NominalPower * 1000 / cell.maxPower))
	}
	return &Electrolyzer{
		Base:   component.NewBase(id, component.ClassElectrolyzer, "kW", env),
		cfg:    cfg,
		cell:   cell,
		nCells: n,
	}, nil
}

func (e *Electrolyzer) Config() ElectrolyzerConfig { return e.cfg }
func (e *Electrolyzer) NCells() int                { return e.nCells }

// MinPower is the smallest power (kW) the stack produces at.
func (e *Electrolyzer) MinPower() float64 { return minPowerFraction * e.cfg.NominalPower }

// SetPowerTrace sets the offered power (kW) per step. It takes precedence
// over the environment series named in the configuration.
func (e *Electrolyzer) SetPowerTrace(trace []float64) error {
	if n := e.Environment().Len(); len(trace) != n {
		return fmt.Errorf("%s: power trace has %d values, want %d: %w", e.ID(), len(trace), n, environment.ErrLengthMismatch)
	}
	e.trace = append([]float64(nil), trace...)
	return nil
}

func (e *Electrolyzer) powerTrace() ([]float64, error) {
	if e.trace != nil {
		return e.trace, nil
	}
	if e.cfg.PowerTrace != "" {
		if vals, ok := e.Environment().Series(e.cfg.PowerTrace); ok {
			return vals, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", e.ID(), ErrNoPowerTrace)
}

// StepOutput is what the electrolyzer yields in one step. Masses are kg per
// step, powers kW.
type StepOutput struct {
	Status              Status
	PowerIn             float64
	CurrentDensity      float64
	CellCurrent         float64
	CellVoltage         float64
	FaradaicEfficiency  float64
	Hydrogen            float64
	Oxygen              float64
	Water               float64
	CoolingWater        float64
	Heat                float64
	PumpPower           float64
	CompressionPower    float64
	DryingPower         float64
	SpecificConsumption float64 // kWh/kg
	Surplus             float64
	Consumed            float64
}

// Produce computes the output of one production step at power pIn.
func (e *Electrolyzer) Produce(pIn float64) StepOutput {
	env := e.Environment()
	seconds := env.Step().Seconds()
	stack := min(pIn, e.cfg.NominalPower)

	i := e.cell.CurrentDensity(stack * 1000 / float64(e.nCells))
	current := i * e.cfg.CellArea
	voltage := e.cell.Voltage(i)
	eta := e.cell.FaradaicEfficiency(i)
	h2 := hydrogenMass(eta, current, e.nCells, seconds)
	heat := stackHeat(e.nCells, voltage, current)
	cooling := coolingWaterMass(heat, seconds)

	out := StepOutput{
		Status:             Production,
		PowerIn:            pIn,
		CurrentDensity:     i,
		CellCurrent:        current,
		CellVoltage:        voltage,
		FaradaicEfficiency: eta,
		Hydrogen:           h2,
		Oxygen:             oxygenMass(h2),
		Water:              waterMass(h2),
		CoolingWater:       cooling,
		Heat:               heat,
		PumpPower:          pumpPower(cooling, seconds),
		CompressionPower:   compressionPower(h2, seconds, e.cell.temperature, e.cfg.OutputPressure, e.cfg.StoragePressure),
		DryingPower:        dryingPower(h2, seconds, e.cfg.StackTemperature, e.cfg.OutputPressure),
		Surplus:            pIn - stack,
		Consumed:           stack,
	}
	if h2 > 0 {
		out.SpecificConsumption = stack * env.StepHours() / h2
	}
	return out
}

func (e *Electrolyzer) stepOutput(status Status, pIn float64) StepOutput {
	switch status {
	case Production:
		return e.Produce(pIn)
	case Booting:
		load := e.cfg.BootingLoadFraction * e.cfg.NominalPower
		return StepOutput{Status: Booting, PowerIn: pIn, Surplus: pIn - load, Consumed: load}
	}
	return StepOutput{Status: status, PowerIn: pIn, Surplus: pIn}
}

// PrepareTimeSeries classifies the power trace and computes every step.
func (e *Electrolyzer) PrepareTimeSeries() error {
	trace, err := e.powerTrace()
	if err != nil {
		return err
	}
	env := e.Environment()
	statuses := Classify(trace, e.MinPower(), env.Timebase())
	ts := e.Timeseries()
	for i, s := range statuses {
		out := e.stepOutput(s, trace[i])
		for col, v := range out.columns() {
			ts.Set(col, i, v)
		}
	}
	return nil
}

func (o StepOutput) columns() map[string]float64 {
	return map[string]float64{
		"status":               float64(o.Status),
		"power_in":             o.PowerIn,
		"current_density":      o.CurrentDensity,
		"cell_current":         o.CellCurrent,
		"cell_voltage":         o.CellVoltage,
		"faradaic_efficiency":  o.FaradaicEfficiency,
		"hydrogen_output":      o.Hydrogen,
		"oxygen_output":        o.Oxygen,
		"water_input":          o.Water,
		"cooling_water":        o.CoolingWater,
		"heat":                 o.Heat,
		"pump_power":           o.PumpPower,
		"compression_power":    o.CompressionPower,
		"drying_power":         o.DryingPower,
		"specific_consumption": o.SpecificConsumption,
		"surplus":              o.Surplus,
		"consumed_power":       o.Consumed,
	}
}

// StatusAt returns the status of the step starting at t.
func (e *Electrolyzer) StatusAt(t time.Time) (Status, error) {
	v, err := e.Column("status", t)
	if err != nil {
		return 0, err
	}
	return Status(v), nil
}

// ValueAt returns the power consumed at t.
func (e *Electrolyzer) ValueAt(t time.Time) (float64, error) {
	v, err := e.Column("consumed_power", t)
	if err != nil {
		return 0, err
	}
	return v * e.Limit(), nil
}

func (e *Electrolyzer) ObservationsAt(t time.Time) (component.Observations, error) {
	i, err := e.Position(t)
	if err != nil {
		return nil, err
	}
	ts := e.Timeseries()
	if _, ok := ts.At("status", i); !ok {
		return nil, component.ErrNotPrepared
	}
	obs := component.Observations{}
	for _, col := range ts.Columns() {
		obs[col], _ = ts.At(col, i)
	}
	return obs, nil
}
