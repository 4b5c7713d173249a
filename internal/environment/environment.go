// Package environment holds the simulation clock and the exogenous series
// shared read-only by every component of a run.
package environment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
	_ "time/tzdata"
)

const (
	DefaultTimebase = 15
	DefaultTimezone = "Europe/Berlin"
)

var (
	ErrInvalidConfig  = errors.New("invalid environment configuration")
	ErrOutOfHorizon   = errors.New("timestamp outside simulation horizon")
	ErrLengthMismatch = errors.New("series length does not match simulation index")
	ErrNoTemperature  = errors.New("no air temperature loaded")
)

// timestampLayouts are the string forms accepted by Lookup and by Config.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Config is the clock configuration of a run. End is inclusive.
type Config struct {
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Timebase int    `json:"timebase" yaml:"timebase"` // minutes
	Timezone string `json:"timezone" yaml:"timezone"`
	Year     int    `json:"year" yaml:"year"`
}

// WindColumn is one height level of a wind variable.
type WindColumn struct {
	Height float64
	Values []float64
}

type windKey struct {
	variable string
	height   float64
}

// Environment is built once per run. Set* methods are meant for the loading
// phase only; components treat the environment as immutable.
type Environment struct {
	start    time.Time
	end      time.Time
	step     time.Duration
	timebase int
	loc      *time.Location
	year     int
	index    []time.Time
	days     []time.Time
	dayOf    []int

	irradiation map[string][]float64
	temperature []float64
	dailyMean   []float64
	wind        map[windKey][]float64
	series      map[string][]float64
}

// New validates the configuration and derives the simulation index.
func New(cfg Config) (*Environment, error) {
	if cfg.Timebase == 0 {
		cfg.Timebase = DefaultTimebase
	}
	if cfg.Timebase < 0 {
		return nil, fmt.Errorf("%w: timebase %d must be positive", ErrInvalidConfig, cfg.Timebase)
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, cfg.Timezone, err)
	}
	start, err := parseTimestamp(cfg.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInvalidConfig, err)
	}
	end, err := parseTimestamp(cfg.End, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %v", ErrInvalidConfig, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s must be after start %s", ErrInvalidConfig, cfg.End, cfg.Start)
	}
	year := cfg.Year
	if year == 0 {
		year = start.Year()
	}

	e := &Environment{
		start:       start,
		end:         end,
		step:        time.Duration(cfg.Timebase) * time.Minute,
		timebase:    cfg.Timebase,
		loc:         loc,
		year:        year,
		irradiation: make(map[string][]float64),
		wind:        make(map[windKey][]float64),
		series:      make(map[string][]float64),
	}
	e.buildIndex()
	return e, nil
}

func (e *Environment) buildIndex() {
	n := int(e.end.Sub(e.start)/e.step) + 1
	e.index = make([]time.Time, n)
	e.dayOf = make([]int, n)
	for i := range e.index {
		t := e.start.Add(time.Duration(i) * e.step)
		e.index[i] = t
		y, m, d := t.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, e.loc)
		if len(e.days) == 0 || !e.days[len(e.days)-1].Equal(day) {
			e.days = append(e.days, day)
		}
		e.dayOf[i] = len(e.days) - 1
	}
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (e *Environment) Start() time.Time         { return e.start }
func (e *Environment) End() time.Time           { return e.end }
func (e *Environment) Step() time.Duration      { return e.step }
func (e *Environment) Timebase() int            { return e.timebase }
func (e *Environment) Location() *time.Location { return e.loc }
func (e *Environment) Year() int                { return e.year }
func (e *Environment) Len() int                 { return len(e.index) }
func (e *Environment) StepHours() float64       { return float64(e.timebase) / 60 }
func (e *Environment) StepsPerHour() float64    { return 60 / float64(e.timebase) }
func (e *Environment) TimeFreq() string         { return fmt.Sprintf("%d min", e.timebase) }
func (e *Environment) At(i int) time.Time       { return e.index[i] }
func (e *Environment) DayOf(i int) int          { return e.dayOf[i] }

// Index returns the simulation index. Callers must not modify it.
func (e *Environment) Index() []time.Time { return e.index }

// Days returns the distinct local dates of the horizon, at local midnight.
func (e *Environment) Days() []time.Time { return e.days }

// StepsFor converts a duration to a whole number of steps, rounding up.
func (e *Environment) StepsFor(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(e.step)))
}

// Position returns the index position of t. t must fall on the index.
func (e *Environment) Position(t time.Time) (int, error) {
	d := t.Sub(e.start)
	if d < 0 || d%e.step != 0 {
		return 0, fmt.Errorf("%s: %w", t.Format(time.RFC3339), ErrOutOfHorizon)
	}
	i := int(d / e.step)
	if i >= len(e.index) {
		return 0, fmt.Errorf("%s: %w", t.Format(time.RFC3339), ErrOutOfHorizon)
	}
	return i, nil
}

// LookupResult is the outcome of resolving a timestamp string.
type LookupResult int

const (
	LookupOK LookupResult = iota
	LookupInvalidInput
	LookupOutOfHorizon
)

func (r LookupResult) String() string {
	switch r {
	case LookupOK:
		return "ok"
	case LookupInvalidInput:
		return "invalid_input"
	case LookupOutOfHorizon:
		return "out_of_horizon"
	}
	return "unknown"
}

// Lookup resolves a timestamp string in the environment's timezone.
func (e *Environment) Lookup(s string) (time.Time, LookupResult) {
	t, err := parseTimestamp(s, e.loc)
	if err != nil {
		return time.Time{}, LookupInvalidInput
	}
	if _, err := e.Position(t); err != nil {
		return t, LookupOutOfHorizon
	}
	return t, LookupOK
}

func (e *Environment) checkLength(name string, vals []float64, want int) error {
	if len(vals) != want {
		return fmt.Errorf("%s: got %d values, want %d: %w", name, len(vals), want, ErrLengthMismatch)
	}
	return nil
}

// SetIrradiation stores one column of the PV weather frame.
func (e *Environment) SetIrradiation(column string, vals []float64) error {
	if err := e.checkLength(column, vals, len(e.index)); err != nil {
		return err
	}
	e.irradiation[column] = vals
	return nil
}

func (e *Environment) Irradiation(column string) ([]float64, bool) {
	v, ok := e.irradiation[column]
	return v, ok
}

// IrradiationColumns lists the PV weather columns, sorted.
func (e *Environment) IrradiationColumns() []string {
	cols := make([]string, 0, len(e.irradiation))
	for c := range e.irradiation {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// SetTemperature stores the mean air temperature at index resolution.
func (e *Environment) SetTemperature(vals []float64) error {
	if err := e.checkLength("temperature", vals, len(e.index)); err != nil {
		return err
	}
	e.temperature = vals
	return nil
}

func (e *Environment) Temperature() []float64 { return e.temperature }

// TemperatureAt returns the mean air temperature at position i.
func (e *Environment) TemperatureAt(i int) (float64, error) {
	switch {
	case e.temperature == nil:
		return 0, ErrNoTemperature
	case i < 0 || i >= len(e.temperature):
		return 0, fmt.Errorf("position %d: %w", i, ErrOutOfHorizon)
	}
	return e.temperature[i], nil
}

// SetDailyMeanTemperatures stores one mean temperature per day of the horizon.
func (e *Environment) SetDailyMeanTemperatures(vals []float64) error {
	if err := e.checkLength("daily mean temperature", vals, len(e.days)); err != nil {
		return err
	}
	e.dailyMean = vals
	return nil
}

// DailyMeanTemperatures returns the daily means, deriving them from the
// index-resolution temperature when they were not set explicitly.
func (e *Environment) DailyMeanTemperatures() []float64 {
	if e.dailyMean != nil || e.temperature == nil {
		return e.dailyMean
	}
	sums := make([]float64, len(e.days))
	counts := make([]int, len(e.days))
	for i, v := range e.temperature {
		sums[e.dayOf[i]] += v
		counts[e.dayOf[i]]++
	}
	means := make([]float64, len(e.days))
	for d := range means {
		means[d] = sums[d] / float64(counts[d])
	}
	e.dailyMean = means
	return means
}

// SetWind stores one column of the multi-level wind frame.
func (e *Environment) SetWind(variable string, height float64, vals []float64) error {
	if err := e.checkLength(variable, vals, len(e.index)); err != nil {
		return err
	}
	e.wind[windKey{variable, height}] = vals
	return nil
}

// Wind returns all height levels of a wind variable, sorted by height.
func (e *Environment) Wind(variable string) []WindColumn {
	var cols []WindColumn
	for k, v := range e.wind {
		if k.variable == variable {
			cols = append(cols, WindColumn{Height: k.height, Values: v})
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Height < cols[j].Height })
	return cols
}

// SetSeries stores a named auxiliary series such as an electrolyzer power trace.
func (e *Environment) SetSeries(name string, vals []float64) error {
	if err := e.checkLength(name, vals, len(e.index)); err != nil {
		return err
	}
	e.series[name] = vals
	return nil
}

func (e *Environment) Series(name string) ([]float64, bool) {
	v, ok := e.series[name]
	return v, ok
}
