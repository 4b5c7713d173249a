package model

import (
	"strconv"
	"strings"
	"time"
)

type SeriesType string

const (
	SeriesGHI            SeriesType = "ghi"
	SeriesDNI            SeriesType = "dni"
	SeriesDHI            SeriesType = "dhi"
	SeriesAirTemperature SeriesType = "temp_air"
	SeriesWindSpeed      SeriesType = "wind_speed"
	SeriesPressure       SeriesType = "pressure"
	SeriesRoughness      SeriesType = "roughness_length"
	SeriesMeanTemp       SeriesType = "mean_temperature"
	SeriesBaseload       SeriesType = "baseload"
	SeriesPowerTrace     SeriesType = "power_trace"
	SeriesPVPower        SeriesType = "pv_power"
)

// SeriesInfo holds display name and unit for a series type.
type SeriesInfo struct {
	Name string
	Unit string
}

// SeriesCatalog maps every known SeriesType to its display name and unit.
var SeriesCatalog = map[SeriesType]SeriesInfo{
	SeriesGHI:            {Name: "Global Horizontal Irradiance", Unit: "W/m²"},
	SeriesDNI:            {Name: "Direct Normal Irradiance", Unit: "W/m²"},
	SeriesDHI:            {Name: "Diffuse Horizontal Irradiance", Unit: "W/m²"},
	SeriesAirTemperature: {Name: "Air Temperature", Unit: "°C"},
	SeriesWindSpeed:      {Name: "Wind Speed", Unit: "m/s"},
	SeriesPressure:       {Name: "Air Pressure", Unit: "Pa"},
	SeriesRoughness:      {Name: "Roughness Length", Unit: "m"},
	SeriesMeanTemp:       {Name: "Mean Air Temperature", Unit: "°C"},
	SeriesBaseload:       {Name: "Baseload", Unit: "kW"},
	SeriesPowerTrace:     {Name: "Power Trace", Unit: "kW"},
	SeriesPVPower:        {Name: "Measured PV Power", Unit: "kW"},
}

// Reading is a single timestamped value of one series.
type Reading struct {
	Timestamp time.Time
	SeriesID  string
	Type      SeriesType
	Value     float64
	Unit      string
}

type Series struct {
	ID   string
	Name string
	Type SeriesType
	Unit string
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// WindSeriesID builds the store key for one column of a multi-level wind frame.
func WindSeriesID(variable string, height float64) string {
	return "wind." + variable + "@" + strconv.FormatFloat(height, 'f', -1, 64)
}

// ParseWindSeriesID is the inverse of WindSeriesID.
func ParseWindSeriesID(id string) (variable string, height float64, ok bool) {
	rest, found := strings.CutPrefix(id, "wind.")
	if !found {
		return "", 0, false
	}
	variable, h, found := strings.Cut(rest, "@")
	if !found {
		return "", 0, false
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return "", 0, false
	}
	return variable, height, true
}

// BaseloadSeriesID builds the store key of the baseload series attached to a bus.
func BaseloadSeriesID(bus int) string {
	return "baseload.bus" + strconv.Itoa(bus)
}

// ParseBaseloadSeriesID is the inverse of BaseloadSeriesID.
func ParseBaseloadSeriesID(id string) (int, bool) {
	rest, found := strings.CutPrefix(id, "baseload.bus")
	if !found {
		return 0, false
	}
	bus, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return bus, true
}
