package asset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

const (
	faraday     = 96485.33212 // C/mol
	gasConstant = 8.314462618 // J/(mol·K)

	molarMassH2  = 2.01588e-3 // kg/mol
	molarMassO2  = 31.9988e-3
	molarMassH2O = 18.01528e-3

	thermoneutralVoltage = 1.481 // V

	// Exchange current densities (A/cm²) of anode and cathode.
	anodeExchangeDensity   = 1e-5
	cathodeExchangeDensity = 0.1
	// Nafion membrane: thickness in cm and water content.
	membraneThickness = 0.0178
	membraneWater     = 20.0

	// Faradaic efficiency fit η = (a1·p + a2)·i^b + c.
	faradaicA1 = -0.0034
	faradaicA2 = -0.001711
	faradaicB  = -1.0
	faradaicC  = 1.0

	curveSamples = 200
)

// cellModel is the polarization model of a single PEM cell at fixed stack
// temperature and output pressure.
type cellModel struct {
	temperature float64 // K
	pressure    float64 // bar
	area        float64 // cm²
	maxDensity  float64 // A/cm²

	// curve maps cell power (W) to current density.
	curve    interp.PiecewiseLinear
	maxPower float64
}

func newCellModel(stackTempC, pressure, area, maxDensity float64) (*cellModel, error) {
	c := &cellModel{
		temperature: stackTempC + kelvinOffset,
		pressure:    pressure,
		area:        area,
		maxDensity:  maxDensity,
	}
	powers := make([]float64, curveSamples)
	densities := make([]float64, curveSamples)
	for k := range densities {
		densities[k] = maxDensity * float64(k) / float64(curveSamples-1)
		powers[k] = c.Power(densities[k])
	}
	if err := c.curve.Fit(powers, densities); err != nil {
		return nil, fmt.Errorf("polarization curve: %w", err)
	}
	c.maxPower = powers[curveSamples-1]
	return c, nil
}

// ReversibleVoltage is the temperature-dependent open circuit voltage at
// standard pressure.
func (c *cellModel) ReversibleVoltage() float64 {
	t := c.temperature
	return 1.5184 - 1.5421e-3*t + 9.523e-5*t*math.Log(t) + 9.84e-8*t*t
}

func (c *cellModel) nernst() float64 {
	p := c.pressure
	return gasConstant * c.temperature / (2 * faraday) * math.Log(p*math.Sqrt(p))
}

func (c *cellModel) activation(i float64) float64 {
	rtf := gasConstant * c.temperature / faraday
	return rtf*math.Asinh(i/(2*anodeExchangeDensity)) + rtf*math.Asinh(i/(2*cathodeExchangeDensity))
}

// membraneConductivity in S/cm.
func (c *cellModel) membraneConductivity() float64 {
	return (0.005139*membraneWater - 0.00326) * math.Exp(1268*(1.0/303-1/c.temperature))
}

func (c *cellModel) ohmic(i float64) float64 {
	return i * membraneThickness / c.membraneConductivity()
}

// Voltage returns the cell voltage at current density i (A/cm²).
func (c *cellModel) Voltage(i float64) float64 {
	return c.ReversibleVoltage() + c.nernst() + c.activation(i) + c.ohmic(i)
}

// Power returns the electrical power of one cell in W at current density i.
func (c *cellModel) Power(i float64) float64 {
	return c.Voltage(i) * i * c.area
}

// CurrentDensity inverts the polarization curve. Cell power outside the
// sampled range is clamped to it.
func (c *cellModel) CurrentDensity(cellPower float64) float64 {
	switch {
	case cellPower <= 0:
		return 0
	case cellPower >= c.maxPower:
		return c.maxDensity
	}
	return c.curve.Predict(cellPower)
}

// FaradaicEfficiency at current density i, clamped to [0, 1].
func (c *cellModel) FaradaicEfficiency(i float64) float64 {
	if i <= 0 {
		return 0
	}
	eta := (faradaicA1*c.pressure+faradaicA2)*math.Pow(i, faradaicB) + faradaicC
	return min(1, max(0, eta))
}
