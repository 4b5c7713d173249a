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

// WideParser parses a frame with one timestamp column followed by one column
// per series.
//
// Expected format:
//
//	timestamp,ghi,dni,dhi,temp_air
//	2015-06-01 12:00:00,812.4,640.1,190.2,21.3
//
// A column is typed by Columns, else by its name when the name is a known
// series type, else as baseload when it is named "bus_<n>". Other columns
// take Default, or are skipped when Default is empty.
type WideParser struct {
	Columns  map[string]model.SeriesType
	Default  model.SeriesType
	Location *time.Location
}

type wideColumn struct {
	index int
	id    string
	typ   model.SeriesType
}

func (p *WideParser) resolve(name string) (string, model.SeriesType, bool) {
	if typ, ok := p.Columns[name]; ok {
		return name, typ, true
	}
	if _, ok := model.SeriesCatalog[model.SeriesType(name)]; ok {
		return name, model.SeriesType(name), true
	}
	if rest, ok := strings.CutPrefix(name, "bus_"); ok {
		if bus, err := strconv.Atoi(rest); err == nil {
			return model.BaseloadSeriesID(bus), model.SeriesBaseload, true
		}
	}
	if _, ok := model.ParseBaseloadSeriesID(name); ok {
		return name, model.SeriesBaseload, true
	}
	if p.Default != "" {
		return name, p.Default, true
	}
	return "", "", false
}

func (p *WideParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: expected a timestamp and at least one series column", ErrBadHeader)
	}
	var cols []wideColumn
	for i, name := range header[1:] {
		id, typ, ok := p.resolve(strings.TrimSpace(name))
		if ok {
			cols = append(cols, wideColumn{index: i + 1, id: id, typ: typ})
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no known series columns in %v", ErrBadHeader, header[1:])
	}

	var readings []model.Reading
	lineNum := 1
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
		for _, c := range cols {
			if c.index >= len(record) {
				continue
			}
			v, err := parseValue(record[c.index])
			if err != nil {
				continue
			}
			readings = append(readings, model.Reading{
				Timestamp: ts,
				SeriesID:  c.id,
				Type:      c.typ,
				Value:     v,
				Unit:      model.SeriesCatalog[c.typ].Unit,
			})
		}
	}
	return readings, nil
}
