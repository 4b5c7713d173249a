package component

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Frame is a set of named float columns over the simulation index. Unset
// cells hold NaN.
type Frame struct {
	index   []time.Time
	columns map[string][]float64
}

func NewFrame(index []time.Time) *Frame {
	return &Frame{index: index, columns: make(map[string][]float64)}
}

func (f *Frame) Len() int           { return len(f.index) }
func (f *Frame) Empty() bool        { return len(f.columns) == 0 }
func (f *Frame) Index() []time.Time { return f.index }

func (f *Frame) column(name string) []float64 {
	col, ok := f.columns[name]
	if !ok {
		col = make([]float64, len(f.index))
		for i := range col {
			col[i] = math.NaN()
		}
		f.columns[name] = col
	}
	return col
}

// Set writes one cell, creating the column if needed.
func (f *Frame) Set(name string, i int, v float64) {
	f.column(name)[i] = v
}

// SetColumn replaces a whole column.
func (f *Frame) SetColumn(name string, vals []float64) error {
	if len(vals) != len(f.index) {
		return fmt.Errorf("column %q: got %d values, want %d", name, len(vals), len(f.index))
	}
	col := make([]float64, len(vals))
	copy(col, vals)
	f.columns[name] = col
	return nil
}

// Column returns the stored column. Callers must not modify it.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.columns[name]
	return col, ok
}

// At returns one cell; ok is false for unknown columns, out-of-range rows
// and unset cells.
func (f *Frame) At(name string, i int) (float64, bool) {
	col, ok := f.columns[name]
	if !ok || i < 0 || i >= len(col) || math.IsNaN(col[i]) {
		return 0, false
	}
	return col[i], true
}

// Columns lists the column names, sorted.
func (f *Frame) Columns() []string {
	names := make([]string, 0, len(f.columns))
	for n := range f.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DataFrame converts the frame to a gota DataFrame with a leading
// RFC 3339 "timestamp" column.
func (f *Frame) DataFrame() dataframe.DataFrame {
	stamps := make([]string, len(f.index))
	for i, t := range f.index {
		stamps[i] = t.Format(time.RFC3339)
	}
	cols := []series.Series{series.New(stamps, series.String, "timestamp")}
	for _, name := range f.Columns() {
		cols = append(cols, series.New(f.columns[name], series.Float, name))
	}
	return dataframe.New(cols...)
}
