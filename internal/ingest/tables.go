package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"vpp_simulator/internal/profile"
)

// tableReader reads a small table that may be written German style: ';'
// separated with decimal commas.
func tableReader(r io.Reader) (*csv.Reader, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	first, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	german := bytes.Contains(first, []byte(";")) && !bytes.Contains(first, []byte(","))
	cr := csv.NewReader(bytes.NewReader(data))
	if german {
		cr.Comma = ';'
	}
	cr.TrimLeadingSpace = true
	return cr, german, nil
}

func tableValue(s string, german bool) (float64, error) {
	if german {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return parseValue(s)
}

var sigLinDeColumns = []string{"a", "b", "c", "d", "m_h", "b_h", "m_w", "b_w"}

// ParseSigLinDe reads SigLinDe coefficient rows.
//
// Expected format (column order free, names case-insensitive):
//
//	building_type,A,B,C,D,m_H,b_H,m_W,b_W
//	DE_HEF33,1.6209544,-37.1833141,5.6727847,0.0716431,-0.04957,0.8401015,-0.002209,0.1074468
func ParseSigLinDe(r io.Reader) ([]profile.SigLinDe, error) {
	cr, german, err := tableReader(r)
	if err != nil {
		return nil, err
	}
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	typeCol, ok := pos["building_type"]
	if !ok {
		if typeCol, ok = pos["type"]; !ok {
			return nil, fmt.Errorf("%w: missing building_type column", ErrBadHeader)
		}
	}
	for _, c := range sigLinDeColumns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadHeader, c)
		}
	}

	var rows []profile.SigLinDe
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
		vals := make([]float64, len(sigLinDeColumns))
		for i, c := range sigLinDeColumns {
			v, err := tableValue(record[pos[c]], german)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", lineNum, c, err)
			}
			vals[i] = v
		}
		rows = append(rows, profile.SigLinDe{
			BuildingType: strings.TrimSpace(record[typeCol]),
			A:            vals[0],
			B:            vals[1],
			C:            vals[2],
			D:            vals[3],
			MH:           vals[4],
			BH:           vals[5],
			MW:           vals[6],
			BW:           vals[7],
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no SigLinDe rows")
	}
	return rows, nil
}

// ParseDailyDistribution reads a daily distribution: a time-of-day column
// followed by the ten temperature bins, coldest first, with 24 or 96 rows.
//
// Expected format:
//
//	time,<=-15,-10,-5,0,5,10,15,20,25,>25
//	00:00,0.0238,...
func ParseDailyDistribution(r io.Reader) (profile.DailyDistribution, error) {
	var d profile.DailyDistribution
	cr, german, err := tableReader(r)
	if err != nil {
		return d, err
	}
	header, err := cr.Read()
	if err != nil {
		return d, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) != 11 {
		return d, fmt.Errorf("%w: expected a time column and 10 bins, got %d columns", ErrBadHeader, len(header))
	}

	lineNum := 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return d, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		for b := range d.Shares {
			v, err := tableValue(record[b+1], german)
			if err != nil {
				return d, fmt.Errorf("line %d: bin %d: %w", lineNum, b, err)
			}
			d.Shares[b] = append(d.Shares[b], v)
		}
	}
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}
