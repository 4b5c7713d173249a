package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"vpp_simulator/internal/model"
)

// LongParser parses one reading per row.
//
// Expected format:
//
//	series_id,value,timestamp
//	electrolyzer.trace,95,2015-01-01T00:00:00Z
type LongParser struct {
	// Type to assign to parsed readings.
	Type model.SeriesType
	// Unit for the values, defaulting to the catalog unit of Type.
	Unit     string
	Location *time.Location
}

func NewLongParser(typ model.SeriesType, unit string) *LongParser {
	if unit == "" {
		unit = model.SeriesCatalog[typ].Unit
	}
	return &LongParser{Type: typ, Unit: unit, Location: time.UTC}
}

func (p *LongParser) Parse(r io.Reader) ([]model.Reading, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateLongHeader(header); err != nil {
		return nil, err
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

		reading, err := p.parseRecord(record, lineNum)
		if err != nil {
			// Gaps are left to the store's step-hold alignment.
			continue
		}
		readings = append(readings, reading)
	}

	return readings, nil
}

func validateLongHeader(header []string) error {
	if len(header) < 3 {
		return fmt.Errorf("%w: expected at least 3 columns, got %d", ErrBadHeader, len(header))
	}
	expected := []string{"series_id", "value", "timestamp"}
	for i, col := range expected {
		if strings.TrimSpace(header[i]) != col {
			return fmt.Errorf("%w: expected column %d to be %q, got %q", ErrBadHeader, i, col, header[i])
		}
	}
	return nil
}

func (p *LongParser) parseRecord(record []string, lineNum int) (model.Reading, error) {
	if len(record) < 3 {
		return model.Reading{}, fmt.Errorf("line %d: expected 3 fields, got %d", lineNum, len(record))
	}
	value, err := parseValue(record[1])
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: parsing value %q: %w", lineNum, record[1], err)
	}
	ts, err := parseTimestamp(record[2], p.Location)
	if err != nil {
		return model.Reading{}, fmt.Errorf("line %d: %w", lineNum, err)
	}
	return model.Reading{
		Timestamp: ts,
		SeriesID:  strings.TrimSpace(record[0]),
		Type:      p.Type,
		Value:     value,
		Unit:      p.Unit,
	}, nil
}
