package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"vpp_simulator/internal/model"
)

// windVariables maps the variable names of a wind frame to series types.
var windVariables = map[string]model.SeriesType{
	"wind_speed":       model.SeriesWindSpeed,
	"temperature":      model.SeriesAirTemperature,
	"temp_air":         model.SeriesAirTemperature,
	"pressure":         model.SeriesPressure,
	"roughness_length": model.SeriesRoughness,
}

// WindParser parses a wind weather frame with a two-row header: variable
// names, then measurement heights in metres.
//
// Expected format:
//
//	variable,wind_speed,wind_speed,temperature,pressure,roughness_length
//	height,10,80,2,0,0
//	2015-01-01 00:00:00,5.3,7.9,267.3,98405.7,0.15
//
// Temperatures are given in kelvin and stored in °C. Pressure is in pascal.
type WindParser struct {
	Location *time.Location
}

func (p *WindParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)

	variables, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading variable header: %w", err)
	}
	heights, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading height header: %w", err)
	}
	if len(variables) < 2 || len(heights) != len(variables) {
		return nil, fmt.Errorf("%w: variable and height rows must have equal length > 1", ErrBadHeader)
	}

	type column struct {
		id  string
		typ model.SeriesType
	}
	cols := make([]column, len(variables))
	for i := 1; i < len(variables); i++ {
		name := strings.TrimSpace(variables[i])
		typ, ok := windVariables[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown wind variable %q", ErrBadHeader, name)
		}
		h, err := strconv.ParseFloat(strings.TrimSpace(heights[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: height %q of %s: %v", ErrBadHeader, heights[i], name, err)
		}
		cols[i] = column{id: model.WindSeriesID(string(typ), h), typ: typ}
	}

	var readings []model.Reading
	lineNum := 2
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		ts, err := parseTimestamp(record[0], p.Location)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		for i := 1; i < len(record); i++ {
			v, err := parseValue(record[i])
			if err != nil {
				continue
			}
			if cols[i].typ == model.SeriesAirTemperature {
				v -= 273.15
			}
			readings = append(readings, model.Reading{
				Timestamp: ts,
				SeriesID:  cols[i].id,
				Type:      cols[i].typ,
				Value:     v,
				Unit:      model.SeriesCatalog[cols[i].typ].Unit,
			})
		}
	}
	return readings, nil
}
