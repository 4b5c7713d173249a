package asset

import "math"

const (
	waterHeatCapacity = 4.18 // kJ/(kg·K)
	waterDensity      = 1000.0
	coolingDeltaT     = 10.0 // K
	pumpPressureRise  = 2e5  // Pa
	pumpEfficiency    = 0.75

	hydrogenIsentropicExponent = 1.41
	compressorEfficiency       = 0.75

	// Heat to regenerate the dryer, per kg of removed water.
	dryingHeat = 2260.0 // kJ/kg
)

// hydrogenMass in kg produced over seconds by nCells cells carrying
// current I (A) at faradaic efficiency eta.
func hydrogenMass(eta, current float64, nCells int, seconds float64) float64 {
	return eta * current * float64(nCells) / (2 * faraday) * molarMassH2 * seconds
}

func oxygenMass(h2 float64) float64 {
	return h2 / molarMassH2 / 2 * molarMassO2
}

func waterMass(h2 float64) float64 {
	return h2 / molarMassH2 * molarMassH2O
}

// stackHeat is the heat released by the stack in kW.
func stackHeat(nCells int, voltage, current float64) float64 {
	return max(0, float64(nCells)*(voltage-thermoneutralVoltage)*current/1000)
}

// coolingWaterMass in kg needed to carry heat (kW) away over seconds.
func coolingWaterMass(heat, seconds float64) float64 {
	return heat * seconds / (waterHeatCapacity * coolingDeltaT)
}

// pumpPower in kW to circulate mass kg of cooling water over seconds.
func pumpPower(mass, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	flow := mass / waterDensity / seconds
	return flow * pumpPressureRise / pumpEfficiency / 1000
}

// compressionPower in kW to compress h2 kg over seconds from pIn to pOut
// (bar) at tK kelvin.
func compressionPower(h2, seconds, tK, pIn, pOut float64) float64 {
	if pOut <= pIn || seconds <= 0 {
		return 0
	}
	k := hydrogenIsentropicExponent
	specific := gasConstant / molarMassH2 * tK * k / (k - 1) * (math.Pow(pOut/pIn, (k-1)/k) - 1)
	return specific / compressorEfficiency * h2 / seconds / 1000
}

// saturationPressure of water vapour in kPa at tC °C (Tetens).
func saturationPressure(tC float64) float64 {
	return 0.61078 * math.Exp(17.27*tC/(tC+237.3))
}

// dryingPower in kW to remove the water vapour carried by h2 kg of
// saturated hydrogen at tC and p bar.
func dryingPower(h2, seconds, tC, p float64) float64 {
	if seconds <= 0 {
		return 0
	}
	y := min(saturationPressure(tC)/(p*100), 0.99)
	water := h2 / molarMassH2 * y / (1 - y) * molarMassH2O
	return water * dryingHeat / seconds
}
