package solar

import (
	"fmt"
	"math"

	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/model"
)

// Module describes one PV module at standard test conditions.
type Module struct {
	Pdc0     float64 `json:"pdc0" yaml:"pdc0"`           // W
	GammaPdc float64 `json:"gamma_pdc" yaml:"gamma_pdc"` // 1/K, negative
	NOCT     float64 `json:"noct" yaml:"noct"`           // °C
}

// Inverter converts the DC output of its strings.
type Inverter struct {
	Pac0       float64 `json:"pac0" yaml:"pac0"` // W
	Efficiency float64 `json:"efficiency" yaml:"efficiency"`
}

// System is a PV installation of identical strings behind one inverter.
type System struct {
	Tilt               float64  `json:"tilt" yaml:"tilt"`
	Azimuth            float64  `json:"azimuth" yaml:"azimuth"` // clockwise from north
	Albedo             float64  `json:"albedo" yaml:"albedo"`
	Module             Module   `json:"module" yaml:"module"`
	Inverter           Inverter `json:"inverter" yaml:"inverter"`
	ModulesPerString   int      `json:"modules_per_string" yaml:"modules_per_string"`
	StringsPerInverter int      `json:"strings_per_inverter" yaml:"strings_per_inverter"`
}

// DefaultModule is a generic 300 Wp crystalline module.
var DefaultModule = Module{Pdc0: 300, GammaPdc: -0.004, NOCT: 45}

// DefaultInverter is a 5 kW string inverter.
var DefaultInverter = Inverter{Pac0: 5000, Efficiency: 0.96}

// WithDefaults fills unset fields.
func (s System) WithDefaults() System {
	if s.Module.Pdc0 == 0 {
		s.Module = DefaultModule
	}
	if s.Module.NOCT == 0 {
		s.Module.NOCT = DefaultModule.NOCT
	}
	if s.Inverter.Pac0 == 0 {
		s.Inverter = DefaultInverter
	}
	if s.Inverter.Efficiency == 0 {
		s.Inverter.Efficiency = DefaultInverter.Efficiency
	}
	if s.Albedo == 0 {
		s.Albedo = 0.25
	}
	if s.ModulesPerString == 0 {
		s.ModulesPerString = 1
	}
	if s.StringsPerInverter == 0 {
		s.StringsPerInverter = 1
	}
	return s
}

// PeakPower is the nominal DC power of the system in kW.
func (s System) PeakPower() float64 {
	return s.Module.Pdc0 * float64(s.ModulesPerString*s.StringsPerInverter) / 1000
}

// IrradianceChain models a PV system from horizontal irradiance: sun
// position, isotropic transposition to the plane of array, NOCT cell
// temperature, linear temperature derating and a clipping inverter.
type IrradianceChain struct {
	Latitude  float64
	Longitude float64
	System    System
}

func NewIrradianceChain(lat, lon float64, sys System) *IrradianceChain {
	return &IrradianceChain{Latitude: lat, Longitude: lon, System: sys.WithDefaults()}
}

// PlaneOfArray returns the irradiance (W/m²) on the module plane.
func (c *IrradianceChain) PlaneOfArray(zenith, azimuth, ghi, dni, dhi float64) float64 {
	tilt := c.System.Tilt * deg
	beam := dni * AngleOfIncidence(zenith, azimuth, c.System.Tilt, c.System.Azimuth)
	sky := dhi * (1 + math.Cos(tilt)) / 2
	ground := ghi * c.System.Albedo * (1 - math.Cos(tilt)) / 2
	return max(0, beam+sky+ground)
}

// ACPower returns the inverter output in kW for the given plane-of-array
// irradiance and air temperature.
func (c *IrradianceChain) ACPower(poa, tAir float64) float64 {
	s := c.System
	cell := tAir + (s.Module.NOCT-20)/800*poa
	dc := s.Module.Pdc0 * poa / 1000 * (1 + s.Module.GammaPdc*(cell-25))
	dc = max(0, dc) * float64(s.ModulesPerString*s.StringsPerInverter)
	return min(dc*s.Inverter.Efficiency, s.Inverter.Pac0) / 1000
}

func (c *IrradianceChain) Run(env *environment.Environment) ([]float64, error) {
	ghi, ok := env.Irradiation(string(model.SeriesGHI))
	if !ok {
		return nil, fmt.Errorf("irradiance chain: %s: %w", model.SeriesGHI, ErrMissingWeather)
	}
	dhi, ok := env.Irradiation(string(model.SeriesDHI))
	if !ok {
		return nil, fmt.Errorf("irradiance chain: %s: %w", model.SeriesDHI, ErrMissingWeather)
	}
	dni, hasDNI := env.Irradiation(string(model.SeriesDNI))
	if env.Temperature() == nil {
		return nil, fmt.Errorf("irradiance chain: %s: %w", model.SeriesAirTemperature, ErrMissingWeather)
	}

	half := env.Step() / 2
	out := make([]float64, env.Len())
	for i, t := range env.Index() {
		zenith, azimuth := SunPosition(t.Add(half), c.Latitude, c.Longitude)
		if zenith >= 90 {
			continue
		}
		beam := 0.0
		switch {
		case hasDNI:
			beam = dni[i]
		case zenith < 85:
			beam = max(0, (ghi[i]-dhi[i])/math.Cos(zenith*deg))
		}
		poa := c.PlaneOfArray(zenith, azimuth, ghi[i], beam, dhi[i])
		tAir, err := env.TemperatureAt(i)
		if err != nil {
			return nil, fmt.Errorf("irradiance chain: %w", err)
		}
		out[i] = c.ACPower(poa, tAir)
	}
	return out, nil
}
