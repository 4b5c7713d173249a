package simulator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"vpp_simulator/internal/grid"
)

var (
	ErrUnknownResult = errors.New("unknown result")
	ErrNoSnapshots   = errors.New("no snapshots")
)

type extractor func(r grid.Results, row int) float64

// measurements lists, per element kind, the result columns that can be
// extracted.
var measurements = map[string]map[string]extractor{
	"bus": {
		"vm_pu":     func(r grid.Results, i int) float64 { return r.Bus[i].VmPU },
		"va_degree": func(r grid.Results, i int) float64 { return r.Bus[i].VaDegree },
		"p_mw":      func(r grid.Results, i int) float64 { return r.Bus[i].PMW },
		"q_mvar":    func(r grid.Results, i int) float64 { return r.Bus[i].QMVar },
	},
	"line": {
		"p_from_mw":       func(r grid.Results, i int) float64 { return r.Line[i].PFromMW },
		"q_from_mvar":     func(r grid.Results, i int) float64 { return r.Line[i].QFromMVar },
		"pl_mw":           func(r grid.Results, i int) float64 { return r.Line[i].PlMW },
		"i_ka":            func(r grid.Results, i int) float64 { return r.Line[i].IKA },
		"loading_percent": func(r grid.Results, i int) float64 { return r.Line[i].LoadingPercent },
	},
	"trafo": {
		"p_hv_mw":         func(r grid.Results, i int) float64 { return r.Trafo[i].PHVMW },
		"q_hv_mvar":       func(r grid.Results, i int) float64 { return r.Trafo[i].QHVMVar },
		"pl_mw":           func(r grid.Results, i int) float64 { return r.Trafo[i].PlMW },
		"loading_percent": func(r grid.Results, i int) float64 { return r.Trafo[i].LoadingPercent },
	},
	"load":     pqMeasurements(func(r grid.Results) []grid.PQResult { return r.Load }),
	"sgen":     pqMeasurements(func(r grid.Results) []grid.PQResult { return r.Sgen }),
	"storage":  pqMeasurements(func(r grid.Results) []grid.PQResult { return r.Storage }),
	"ext_grid": pqMeasurements(func(r grid.Results) []grid.PQResult { return r.ExtGrid }),
}

func pqMeasurements(table func(grid.Results) []grid.PQResult) map[string]extractor {
	return map[string]extractor{
		"p_mw":   func(r grid.Results, i int) float64 { return table(r)[i].PMW },
		"q_mvar": func(r grid.Results, i int) float64 { return table(r)[i].QMVar },
	}
}

// resultRows returns how many result rows of kind a snapshot holds.
func resultRows(r grid.Results, kind string) int {
	switch kind {
	case "bus":
		return len(r.Bus)
	case "line":
		return len(r.Line)
	case "trafo":
		return len(r.Trafo)
	case "load":
		return len(r.Load)
	case "sgen":
		return len(r.Sgen)
	case "storage":
		return len(r.Storage)
	case "ext_grid":
		return len(r.ExtGrid)
	}
	return 0
}

// ResultKeys lists every "<kind>_<measurement>" key ExtractResults produces.
func ResultKeys() []string {
	var keys []string
	for kind, ms := range measurements {
		for m := range ms {
			keys = append(keys, kind+"_"+m)
		}
	}
	sort.Strings(keys)
	return keys
}

// ExtractResults turns the per-step snapshots into one frame per element
// kind and measurement, keyed "<kind>_<measurement>". Every frame has a
// timestamp column followed by one column per element name.
func ExtractResults(snaps *grid.Snapshots) (map[string]dataframe.DataFrame, error) {
	if snaps == nil || snaps.Len() == 0 {
		return nil, ErrNoSnapshots
	}
	out := make(map[string]dataframe.DataFrame)
	for kind, ms := range measurements {
		for m := range ms {
			df, err := ExtractSingleResult(snaps, kind, m)
			if err != nil {
				return nil, err
			}
			out[kind+"_"+m] = df
		}
	}
	return out, nil
}

// ExtractSingleResult returns the frame of one element kind and measurement,
// e.g. ("bus", "vm_pu").
func ExtractSingleResult(snaps *grid.Snapshots, kind, measurement string) (dataframe.DataFrame, error) {
	ms, ok := measurements[kind]
	if !ok {
		return dataframe.DataFrame{}, fmt.Errorf("%w: kind %q", ErrUnknownResult, kind)
	}
	get, ok := ms[measurement]
	if !ok {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %s %q", ErrUnknownResult, kind, measurement)
	}
	if snaps == nil || snaps.Len() == 0 {
		return dataframe.DataFrame{}, ErrNoSnapshots
	}

	stamps := snaps.Timestamps()
	first, _ := snaps.Get(stamps[0])
	names := first.Names[kind]
	cols := make([][]float64, len(names))
	for c := range cols {
		cols[c] = make([]float64, len(stamps))
	}
	labels := make([]string, len(stamps))
	for i, t := range stamps {
		snap, _ := snaps.Get(t)
		labels[i] = t.Format(time.RFC3339)
		if n := resultRows(snap.Results, kind); n != len(names) {
			return dataframe.DataFrame{}, fmt.Errorf("%s_%s at %s: %d rows, want %d: %w",
				kind, measurement, labels[i], n, len(names), grid.ErrInvalidNet)
		}
		for c := range names {
			cols[c][i] = get(snap.Results, c)
		}
	}

	list := []series.Series{series.New(labels, series.String, "timestamp")}
	for c, name := range uniqueNames(names) {
		list = append(list, series.New(cols[c], series.Float, name))
	}
	return dataframe.New(list...), nil
}

// uniqueNames fills empty names with the row index and disambiguates
// repeats, since frame columns must be unique.
func uniqueNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			n = fmt.Sprintf("%d", i)
		}
		if k := seen[n]; k > 0 {
			seen[n]++
			n = fmt.Sprintf("%s_%d", n, k)
		} else {
			seen[n] = 1
		}
		out[i] = n
	}
	return out
}
