// Package asset implements the components of a virtual power plant:
// generators, flexible loads and storages.
package asset

import (
	"errors"
	"fmt"

	"vpp_simulator/internal/component"
)

// ErrStepOrder is returned when a step-wise asset is advanced out of order
// or twice for the same timestamp.
var ErrStepOrder = errors.New("step already processed")

func invalid(id, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", id, component.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func inUnitInterval(v float64) bool { return v > 0 && v <= 1 }

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
