// Package scenario builds a complete simulation from a YAML scenario file:
// environment, inputs, user profile, components, grid and baseload.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/grid"
	"vpp_simulator/internal/model"
	"vpp_simulator/internal/profile"
	"vpp_simulator/internal/simulator"
	"vpp_simulator/internal/solar"
	"vpp_simulator/internal/store"
	"vpp_simulator/internal/wind"
)

const (
	SolverRadial      = "radial"
	SolverCopperPlate = "copperplate"

	FormatWide = "wide"
	FormatLong = "long"
	FormatWind = "wind"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is the YAML document.
type Scenario struct {
	Name        string             `yaml:"name"`
	Environment environment.Config `yaml:"environment"`
	Profile     profile.Config     `yaml:"profile"`
	Tables      Tables             `yaml:"tables"`
	Inputs      []Input            `yaml:"inputs"`
	Grid        Grid               `yaml:"grid"`
	Assignment  Assignment         `yaml:"assignment"`
	Components  []Component        `yaml:"components"`
	Solver      string             `yaml:"solver"`
	Seed        uint64             `yaml:"seed"`
}

// Tables points at optional replacement SigLinDe and daily distribution
// tables.
type Tables struct {
	SigLinDe          string `yaml:"siglinde"`
	DailyDistribution string `yaml:"daily_distribution"`
}

// Input is one CSV file loaded into the series store.
type Input struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // wide | long | wind
	// Type and Unit label long-format rows and unknown wide columns.
	Type model.SeriesType `yaml:"type"`
	Unit string           `yaml:"unit"`
	// Columns maps wide-format headers to series types.
	Columns map[string]model.SeriesType `yaml:"columns"`
}

// Grid is either a JSON net file or a generated radial feeder.
type Grid struct {
	File     string  `yaml:"file"`
	Name     string  `yaml:"name"`
	Houses   int     `yaml:"houses"`
	LengthKM float64 `yaml:"length_km"`
}

type Assignment struct {
	Method      string                      `yaml:"method"`
	Percentages map[component.Class]float64 `yaml:"percentages"`
	Seed        uint64                      `yaml:"seed"`
}

// Component is one entry of the components list. Exactly the sub-block
// matching Type is read.
type Component struct {
	ID    string          `yaml:"id"`
	Type  component.Class `yaml:"type"`
	Bus   *int            `yaml:"bus,omitempty"`
	Limit *float64        `yaml:"limit,omitempty"`

	PV             *PV                       `yaml:"pv,omitempty"`
	Wind           *Wind                     `yaml:"wind,omitempty"`
	BEV            *BEV                      `yaml:"bev,omitempty"`
	HeatPump       *asset.HeatPumpConfig     `yaml:"heat_pump,omitempty"`
	HeatingRod     *asset.HeatingRodConfig   `yaml:"heating_rod,omitempty"`
	CHP            *asset.CHPConfig          `yaml:"chp,omitempty"`
	Storage        *asset.StorageConfig      `yaml:"storage,omitempty"`
	ThermalStorage *ThermalStorage           `yaml:"thermal_storage,omitempty"`
	Electrolyzer   *asset.ElectrolyzerConfig `yaml:"electrolyzer,omitempty"`
}

// PV selects the irradiance chain when System is set, otherwise the hourly
// profile chain scaled to PeakPower.
type PV struct {
	System        *solar.System `yaml:"system,omitempty"`
	PeakPower     float64       `yaml:"peak_power"`
	ProfileSeries string        `yaml:"profile_series"`
	Azimuth       float64       `yaml:"azimuth"`
	Tilt          float64       `yaml:"tilt"`
}

type Wind struct {
	Turbine wind.Turbine `yaml:"turbine"`
	Models  wind.Models  `yaml:"models"`
}

// BEV carries the vehicle and optional "HH:MM" schedule sets.
type BEV struct {
	asset.BEVConfig `yaml:",inline"`
	WorkDepartures  []string `yaml:"work_departures"`
	WorkArrivals    []string `yaml:"work_arrivals"`
	TripDepartures  []string `yaml:"trip_departures"`
	TripArrivals    []string `yaml:"trip_arrivals"`
}

// ThermalStorage wraps its producer, which is not added to the plant on
// its own.
type ThermalStorage struct {
	asset.ThermalStorageConfig `yaml:",inline"`
	Producer                   *Component `yaml:"producer"`
}

// Simulation is a built scenario ready for an Operator.
type Simulation struct {
	Name     string
	Env      *environment.Environment
	Store    *store.Store
	Profile  *profile.UserProfile
	VPP      *simulator.VirtualPowerPlant
	Net      *grid.Net
	Baseload simulator.Baseload
	Solver   grid.Solver
}

// Operator builds an operator for the simulation. Later options override
// the scenario's solver and run name.
func (s *Simulation) Operator(opts ...simulator.OperatorOption) (*simulator.Operator, error) {
	base := []simulator.OperatorOption{simulator.WithSolver(s.Solver), simulator.WithRunName(s.Name)}
	return simulator.NewOperator(s.VPP, s.Net, s.Env, append(base, opts...)...)
}

// Prepare resets every component and computes its time series. It is
// called before each run.
func (s *Simulation) Prepare() error {
	s.VPP.ResetTimeSeries()
	return s.VPP.PrepareTimeSeries()
}

// Parse decodes a scenario document. Unknown keys are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &sc, nil
}

// LoadFile parses the scenario at path. Relative input, table and grid
// paths are resolved against the file's directory.
func LoadFile(path string) (*Scenario, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	sc, err := Parse(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return sc, filepath.Dir(path), nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
