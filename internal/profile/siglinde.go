package profile

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnknownBuildingType = errors.New("unknown building type")

// SigLinDe holds the sigmoid-plus-linear coefficients of one building type.
// A row of the persisted table is building_type,A,B,C,D,m_H,b_H,m_W,b_W.
type SigLinDe struct {
	BuildingType string  `json:"building_type" yaml:"building_type"`
	A            float64 `json:"a" yaml:"a"`
	B            float64 `json:"b" yaml:"b"`
	C            float64 `json:"c" yaml:"c"`
	D            float64 `json:"d" yaml:"d"`
	MH           float64 `json:"m_h" yaml:"m_h"`
	BH           float64 `json:"b_h" yaml:"b_h"`
	MW           float64 `json:"m_w" yaml:"m_w"`
	BW           float64 `json:"b_w" yaml:"b_w"`
}

// referenceTemperature is the asymptote of the sigmoid term.
const referenceTemperature = 40.0

// HValue returns the dimensionless daily demand factor h(T).
func (s SigLinDe) HValue(t float64) float64 {
	if t > referenceTemperature-1 {
		t = referenceTemperature - 1
	}
	sigmoid := s.A/(1+math.Pow(s.B/(t-referenceTemperature), s.C)) + s.D
	linear := math.Max(s.MH*t+s.BH, s.MW*t+s.BW)
	return sigmoid + linear
}

// Table indexes SigLinDe rows by building type.
type Table map[string]SigLinDe

// NewTable builds a table, rejecting duplicate building types.
func NewTable(rows []SigLinDe) (Table, error) {
	t := make(Table, len(rows))
	for _, r := range rows {
		if _, dup := t[r.BuildingType]; dup {
			return nil, fmt.Errorf("duplicate building type %q", r.BuildingType)
		}
		t[r.BuildingType] = r
	}
	return t, nil
}

// Lookup returns the row for a building type.
func (t Table) Lookup(buildingType string) (SigLinDe, error) {
	row, ok := t[buildingType]
	if !ok {
		return SigLinDe{}, fmt.Errorf("%q: %w", buildingType, ErrUnknownBuildingType)
	}
	return row, nil
}

// DefaultSigLinDe returns the BDEW coefficients for common German archetypes.
func DefaultSigLinDe() []SigLinDe {
	return []SigLinDe{
		{BuildingType: "DE_HEF33", A: 1.6209544, B: -37.1833141, C: 5.6727847, D: 0.0716431, MH: -0.0495700, BH: 0.8401015, MW: -0.0022090, BW: 0.1074468},
		{BuildingType: "DE_HMF33", A: 1.2328655, B: -34.7213605, C: 5.8164304, D: 0.0873352, MH: -0.0409284, BH: 0.7672920, MW: -0.0022320, BW: 0.1199207},
		{BuildingType: "DE_GKO34", A: 1.3819663, B: -37.4124155, C: 6.1723179, D: 0.0396284, MH: -0.0672159, BH: 1.1167138, MW: -0.0019982, BW: 0.1355070},
		{BuildingType: "DE_GHA34", A: 1.3884977, B: -36.6958723, C: 7.7027356, D: 0.0342451, MH: -0.0522015, BH: 0.8932738, MW: -0.0018156, BW: 0.0832366},
	}
}
