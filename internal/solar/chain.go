// Package solar turns weather into PV generation.
package solar

import (
	"errors"

	"vpp_simulator/internal/environment"
)

// ErrMissingWeather is returned when the environment lacks a column a
// model chain needs.
var ErrMissingWeather = errors.New("missing weather column")

// ModelChain computes the AC output (kW, positive) of a PV system for every
// step of the environment index.
type ModelChain interface {
	Run(env *environment.Environment) ([]float64, error)
}
