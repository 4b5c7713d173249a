package profile

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// TemperatureBins are the inclusive upper bounds of the ten daily-mean
// temperature bins of a daily distribution. The last bin is open.
var TemperatureBins = [10]float64{-15, -10, -5, 0, 5, 10, 15, 20, 25, math.Inf(1)}

var ErrInvalidDistribution = errors.New("invalid daily distribution")

// DailyDistribution splits a day's heat demand over the day. Each bin holds
// 24 hourly or 96 quarter-hourly shares.
type DailyDistribution struct {
	Shares [10][]float64
}

// Bin returns the bin index of a daily mean temperature.
func Bin(t float64) int {
	for i, upper := range TemperatureBins {
		if t <= upper {
			return i
		}
	}
	return len(TemperatureBins) - 1
}

// Validate checks row counts and normalizes every bin to sum to one.
func (d *DailyDistribution) Validate() error {
	n := len(d.Shares[0])
	if n != 24 && n != 96 {
		return fmt.Errorf("%w: %d slots per day, want 24 or 96", ErrInvalidDistribution, n)
	}
	for b := range d.Shares {
		row := d.Shares[b]
		if len(row) != n {
			return fmt.Errorf("%w: bin %d has %d slots, want %d", ErrInvalidDistribution, b, len(row), n)
		}
		if floats.Min(row) < 0 {
			return fmt.Errorf("%w: bin %d has negative shares", ErrInvalidDistribution, b)
		}
		sum := floats.Sum(row)
		if sum <= 0 {
			return fmt.Errorf("%w: bin %d sums to zero", ErrInvalidDistribution, b)
		}
		normalized := make([]float64, n)
		copy(normalized, row)
		floats.Scale(1/sum, normalized)
		d.Shares[b] = normalized
	}
	return nil
}

// ShareOf returns the fraction of a day's demand falling into the window
// [minute, minute+length) of the day, for the given bin.
func (d *DailyDistribution) ShareOf(bin, minute, length int) float64 {
	row := d.Shares[bin]
	slotLen := 1440 / len(row)
	var share float64
	for m := minute; m < minute+length; {
		slot := (m / slotLen) % len(row)
		slotEnd := (m/slotLen + 1) * slotLen
		end := min(slotEnd, minute+length)
		share += row[slot] * float64(end-m) / float64(slotLen)
		m = end
	}
	return share
}

// DefaultDailyDistribution returns an hourly distribution with morning and
// evening peaks that sharpen as the day gets warmer. It panics if the
// built-in table is malformed.
func DefaultDailyDistribution() DailyDistribution {
	var d DailyDistribution
	rows := [10][]float64{
		{0.0238, 0.0238, 0.0239, 0.0243, 0.0263, 0.0485, 0.0583, 0.0635, 0.0583, 0.0485, 0.0422, 0.0402, 0.0398, 0.0398, 0.0400, 0.0409, 0.0435, 0.0485, 0.0541, 0.0567, 0.0541, 0.0485, 0.0276, 0.0250},
		{0.0225, 0.0225, 0.0226, 0.0231, 0.0258, 0.0489, 0.0615, 0.0684, 0.0615, 0.0489, 0.0408, 0.0381, 0.0376, 0.0376, 0.0379, 0.0390, 0.0424, 0.0488, 0.0562, 0.0596, 0.0562, 0.0488, 0.0274, 0.0240},
		{0.0211, 0.0211, 0.0211, 0.0218, 0.0251, 0.0493, 0.0652, 0.0737, 0.0652, 0.0493, 0.0392, 0.0358, 0.0352, 0.0352, 0.0355, 0.0370, 0.0412, 0.0492, 0.0584, 0.0627, 0.0584, 0.0492, 0.0272, 0.0230},
		{0.0194, 0.0194, 0.0195, 0.0203, 0.0244, 0.0498, 0.0692, 0.0796, 0.0692, 0.0498, 0.0374, 0.0333, 0.0325, 0.0325, 0.0329, 0.0347, 0.0399, 0.0497, 0.0609, 0.0661, 0.0609, 0.0497, 0.0270, 0.0218},
		{0.0176, 0.0176, 0.0177, 0.0187, 0.0236, 0.0503, 0.0736, 0.0862, 0.0736, 0.0503, 0.0354, 0.0304, 0.0295, 0.0295, 0.0300, 0.0322, 0.0384, 0.0502, 0.0637, 0.0700, 0.0637, 0.0502, 0.0267, 0.0205},
		{0.0156, 0.0156, 0.0157, 0.0168, 0.0227, 0.0509, 0.0787, 0.0936, 0.0787, 0.0509, 0.0331, 0.0273, 0.0262, 0.0261, 0.0268, 0.0294, 0.0368, 0.0508, 0.0669, 0.0743, 0.0669, 0.0508, 0.0264, 0.0190},
		{0.0133, 0.0133, 0.0135, 0.0148, 0.0217, 0.0516, 0.0844, 0.1020, 0.0844, 0.0516, 0.0306, 0.0236, 0.0224, 0.0223, 0.0231, 0.0261, 0.0349, 0.0515, 0.0705, 0.0792, 0.0705, 0.0515, 0.0260, 0.0173},
		{0.0107, 0.0107, 0.0109, 0.0124, 0.0206, 0.0523, 0.0909, 0.1116, 0.0909, 0.0523, 0.0277, 0.0195, 0.0180, 0.0180, 0.0189, 0.0225, 0.0328, 0.0522, 0.0745, 0.0848, 0.0745, 0.0522, 0.0256, 0.0153},
		{0.0077, 0.0077, 0.0079, 0.0097, 0.0193, 0.0532, 0.0984, 0.1227, 0.0984, 0.0532, 0.0244, 0.0148, 0.0130, 0.0130, 0.0140, 0.0182, 0.0303, 0.0531, 0.0792, 0.0913, 0.0792, 0.0531, 0.0252, 0.0131},
		{0.0042, 0.0042, 0.0044, 0.0065, 0.0177, 0.0542, 0.1071, 0.1356, 0.1071, 0.0542, 0.0205, 0.0093, 0.0072, 0.0072, 0.0083, 0.0133, 0.0274, 0.0541, 0.0847, 0.0988, 0.0847, 0.0541, 0.0247, 0.0105},
	}
	d.Shares = rows
	if err := d.Validate(); err != nil {
		panic(fmt.Sprintf("default daily distribution: %v", err))
	}
	return d
}
