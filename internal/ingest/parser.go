// Package ingest reads the CSV inputs of a simulation: timestamped series in
// long or wide layout, multi-level wind frames and the heat demand tables.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"vpp_simulator/internal/model"
	"vpp_simulator/internal/store"
)

var ErrBadHeader = errors.New("unexpected CSV header")

// Parser reads timestamped series from a source and returns readings.
type Parser interface {
	Parse(r io.Reader) ([]model.Reading, error)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseTimestamp accepts the layouts above, interpreting zone-less values in
// loc, or a Unix epoch in seconds.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 1e8 {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q", s)
}

// parseValue parses a float, rejecting empty cells and NaN markers.
func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// LoadInto parses r with p and adds the readings to st. It returns the
// number of readings added.
func LoadInto(st *store.Store, p Parser, r io.Reader) (int, error) {
	readings, err := p.Parse(r)
	if err != nil {
		return 0, err
	}
	st.AddReadings(readings)
	return len(readings), nil
}
