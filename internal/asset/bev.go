package asset

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
)

// BEVConfig holds the parameters of a battery-electric vehicle and its
// home charger.
type BEVConfig struct {
	BatteryMax           float64  `json:"battery_max" yaml:"battery_max"`     // kWh
	BatteryMin           float64  `json:"battery_min" yaml:"battery_min"`     // kWh
	BatteryUsage         float64  `json:"battery_usage" yaml:"battery_usage"` // kW while away
	ChargingPower        float64  `json:"charging_power" yaml:"charging_power"`
	ChargeEfficiency     float64  `json:"charge_efficiency" yaml:"charge_efficiency"`
	LoadDegradationBegin float64  `json:"load_degradation_begin" yaml:"load_degradation_begin"`
	InitialSOC           *float64 `json:"initial_soc,omitempty" yaml:"initial_soc,omitempty"` // defaults to BatteryMax
}

func (c *BEVConfig) Validate(id string) error {
	switch {
	case c.BatteryMax <= 0:
		return invalid(id, "battery max %v must be positive", c.BatteryMax)
	case c.BatteryMin < 0 || c.BatteryMin > c.BatteryMax:
		return invalid(id, "battery min %v not in [0, %v]", c.BatteryMin, c.BatteryMax)
	case c.BatteryUsage < 0 || c.ChargingPower < 0:
		return invalid(id, "usage %v and charging power %v must not be negative", c.BatteryUsage, c.ChargingPower)
	case !inUnitInterval(c.ChargeEfficiency):
		return invalid(id, "charge efficiency %v not in (0, 1]", c.ChargeEfficiency)
	case !inUnitInterval(c.LoadDegradationBegin):
		return invalid(id, "load degradation begin %v not in (0, 1]", c.LoadDegradationBegin)
	case c.InitialSOC != nil && (*c.InitialSOC < c.BatteryMin || *c.InitialSOC > c.BatteryMax):
		return invalid(id, "initial state of charge %v not in [%v, %v]", *c.InitialSOC, c.BatteryMin, c.BatteryMax)
	}
	return nil
}

// Schedule lists the candidate departure and arrival times of day from
// which each day's trip is drawn. Weekdays draw from the work sets,
// weekends from the trip sets.
type Schedule struct {
	WorkDepartures []time.Duration
	WorkArrivals   []time.Duration
	TripDepartures []time.Duration
	TripArrivals   []time.Duration
}

func clockRange(from, to time.Duration) []time.Duration {
	var out []time.Duration
	for d := from; d <= to; d += 15 * time.Minute {
		out = append(out, d)
	}
	return out
}

// DefaultSchedule commutes 06:00-08:00 to 16:00-18:00 on weekdays and
// takes a 09:00-12:00 to 17:00-21:00 trip on weekends.
func DefaultSchedule() Schedule {
	return Schedule{
		WorkDepartures: clockRange(6*time.Hour, 8*time.Hour),
		WorkArrivals:   clockRange(16*time.Hour, 18*time.Hour),
		TripDepartures: clockRange(9*time.Hour, 12*time.Hour),
		TripArrivals:   clockRange(17*time.Hour, 21*time.Hour),
	}
}

// ParseResult is the outcome of parsing user-supplied schedule input.
type ParseResult int

const (
	ParseOK ParseResult = iota
	ParseInvalidInput
)

// ParseTimeOfDay parses "HH:MM" into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, ParseResult) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, ParseInvalidInput
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, ParseInvalidInput
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, ParseInvalidInput
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, ParseOK
}

// Trip is one day's absence from home.
type Trip struct {
	Departure time.Time
	Arrival   time.Time
}

// BEV is a vehicle that charges whenever it is at home.
type BEV struct {
	component.Base
	cfg      BEVConfig
	schedule Schedule
	rng      *rand.Rand
	trips    []Trip
}

type BEVOption func(*BEV)

// WithSchedule replaces the default departure/arrival sets.
func WithSchedule(s Schedule) BEVOption {
	return func(b *BEV) { b.schedule = s }
}

// WithRand injects the source of the daily trip draws.
func WithRand(rng *rand.Rand) BEVOption {
	return func(b *BEV) { b.rng = rng }
}

func NewBEV(id string, env *environment.Environment, cfg BEVConfig, opts ...BEVOption) (*BEV, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	b := &BEV{
		Base:     component.NewBase(id, component.ClassBEV, "kW", env),
		cfg:      cfg,
		schedule: DefaultSchedule(),
		rng:      rand.New(rand.NewPCG(0, 0)),
	}
	for _, opt := range opts {
		opt(b)
	}
	s := b.schedule
	if len(s.WorkDepartures) == 0 || len(s.WorkArrivals) == 0 || len(s.TripDepartures) == 0 || len(s.TripArrivals) == 0 {
		return nil, invalid(id, "schedule sets must not be empty")
	}
	return b, nil
}

func (b *BEV) Config() BEVConfig { return b.cfg }

// Trips returns the drawn trips, one per day. Empty before PrepareTimeSeries.
func (b *BEV) Trips() []Trip { return b.trips }

func (b *BEV) pick(set []time.Duration) time.Duration {
	return set[b.rng.IntN(len(set))]
}

func (b *BEV) drawTrips() {
	days := b.Environment().Days()
	b.trips = make([]Trip, len(days))
	for d, day := range days {
		deps, arrs := b.schedule.WorkDepartures, b.schedule.WorkArrivals
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			deps, arrs = b.schedule.TripDepartures, b.schedule.TripArrivals
		}
		dep := day.Add(b.pick(deps))
		arr := day.Add(b.pick(arrs))
		if arr.Before(dep) {
			arr = dep
		}
		b.trips[d] = Trip{Departure: dep, Arrival: arr}
	}
}

// PrepareTimeSeries runs the charging loop over the whole horizon.
// state_of_charge holds the charge at the start of each step. Trips are
// drawn on the first call and reused by later ones.
func (b *BEV) PrepareTimeSeries() error {
	if len(b.trips) != len(b.Environment().Days()) {
		b.drawTrips()
	}

	env := b.Environment()
	dt := env.StepHours()
	maxSOC, minSOC := b.cfg.BatteryMax, b.cfg.BatteryMin
	begin := b.cfg.LoadDegradationBegin
	soc := maxSOC
	if b.cfg.InitialSOC != nil {
		soc = *b.cfg.InitialSOC
	}

	ts := b.Timeseries()
	for i, t := range env.Index() {
		trip := b.trips[env.DayOf(i)]
		home := t.Before(trip.Departure) || !t.Before(trip.Arrival)
		ts.Set("at_home", i, boolValue(home))
		ts.Set("state_of_charge", i, soc)

		var charger float64
		switch {
		case !home:
			if soc > minSOC {
				soc = max(minSOC, soc-b.cfg.BatteryUsage*dt)
			}
		case soc >= maxSOC:
			soc = maxSOC
		case soc > begin*maxSOC:
			charger = b.cfg.ChargingPower * (1 - (soc/maxSOC-begin)/(1-begin))
		default:
			charger = b.cfg.ChargingPower
		}

		if charger > 0 {
			add := charger * b.cfg.ChargeEfficiency * dt
			if soc+add > maxSOC {
				charger = (maxSOC - soc) / (b.cfg.ChargeEfficiency * dt)
				soc = maxSOC
			} else {
				soc += add
			}
		}
		ts.Set("car_charger", i, charger)
	}
	return nil
}

// ValueAt returns the charger draw at t.
func (b *BEV) ValueAt(t time.Time) (float64, error) {
	v, err := b.Column("car_charger", t)
	if err != nil {
		return 0, err
	}
	return v * b.Limit(), nil
}

func (b *BEV) ObservationsAt(t time.Time) (component.Observations, error) {
	obs := component.Observations{}
	for _, col := range []string{"at_home", "state_of_charge", "car_charger"} {
		v, err := b.Column(col, t)
		if err != nil {
			return nil, err
		}
		obs[col] = v
	}
	return obs, nil
}
