package asset

import (
	"context"
	"time"

	"github.com/looplab/fsm"
)

// RampOutcome is the result of a ramp request.
type RampOutcome int

const (
	// NoChange means the device already was in the requested state.
	NoChange RampOutcome = iota
	Accepted
	// Rejected means a minimum runtime or stop time is not yet over.
	Rejected
)

func (o RampOutcome) String() string {
	switch o {
	case NoChange:
		return "no_change"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// RampConfig holds the switching constraints of a ramp-constrained device.
type RampConfig struct {
	RampUpTime   time.Duration `json:"ramp_up_time" yaml:"ramp_up_time"`
	RampDownTime time.Duration `json:"ramp_down_time" yaml:"ramp_down_time"`
	MinRuntime   time.Duration `json:"min_runtime" yaml:"min_runtime"`
	MinStopTime  time.Duration `json:"min_stop_time" yaml:"min_stop_time"`
}

func (c RampConfig) validate(id string) error {
	if c.RampUpTime < 0 || c.RampDownTime < 0 || c.MinRuntime < 0 || c.MinStopTime < 0 {
		return invalid(id, "ramp durations must not be negative")
	}
	return nil
}

const (
	stateRunning  = "running"
	stateStopped  = "stopped"
	eventRampUp   = "ramp_up"
	eventRampDown = "ramp_down"
)

// RampEvent is one accepted transition.
type RampEvent struct {
	Time  time.Time
	Event string
}

// rampState tracks whether a device runs and when it last switched.
// A device that never switched may ramp either way.
type rampState struct {
	cfg      RampConfig
	machine  *fsm.FSM
	lastUp   time.Time
	lastDown time.Time
	history  []RampEvent
}

func newRampState(cfg RampConfig) *rampState {
	r := &rampState{cfg: cfg}
	r.restart()
	return r
}

// restart puts the device into the stopped state with no switching history.
func (r *rampState) restart() {
	r.lastUp, r.lastDown, r.history = time.Time{}, time.Time{}, nil
	r.machine = fsm.NewFSM(
		stateStopped,
		fsm.Events{
			{Name: eventRampUp, Src: []string{stateStopped}, Dst: stateRunning},
			{Name: eventRampDown, Src: []string{stateRunning}, Dst: stateStopped},
		},
		fsm.Callbacks{
			"enter_" + stateRunning: func(_ context.Context, e *fsm.Event) {
				r.lastUp = e.Args[0].(time.Time)
			},
			"enter_" + stateStopped: func(_ context.Context, e *fsm.Event) {
				r.lastDown = e.Args[0].(time.Time)
			},
			"after_event": func(_ context.Context, e *fsm.Event) {
				r.history = append(r.history, RampEvent{Time: e.Args[0].(time.Time), Event: e.Event})
			},
		},
	)
}

func (r *rampState) IsRunning() bool { return r.machine.Is(stateRunning) }

// LastRampUp returns the time of the last accepted ramp-up; zero if none.
func (r *rampState) LastRampUp() time.Time { return r.lastUp }

// LastRampDown returns the time of the last accepted ramp-down; zero if none.
func (r *rampState) LastRampDown() time.Time { return r.lastDown }

// RampHistory lists the accepted transitions in order.
func (r *rampState) RampHistory() []RampEvent { return r.history }

func (r *rampState) IsLegitRampUp(t time.Time) bool {
	return r.lastDown.IsZero() || t.Sub(r.lastDown) >= r.cfg.MinStopTime
}

func (r *rampState) IsLegitRampDown(t time.Time) bool {
	return r.lastUp.IsZero() || t.Sub(r.lastUp) >= r.cfg.MinRuntime
}

func (r *rampState) RampUp(t time.Time) RampOutcome {
	if r.IsRunning() {
		return NoChange
	}
	if !r.IsLegitRampUp(t) {
		return Rejected
	}
	if err := r.machine.Event(context.Background(), eventRampUp, t); err != nil {
		return Rejected
	}
	return Accepted
}

func (r *rampState) RampDown(t time.Time) RampOutcome {
	if !r.IsRunning() {
		return NoChange
	}
	if !r.IsLegitRampDown(t) {
		return Rejected
	}
	if err := r.machine.Event(context.Background(), eventRampDown, t); err != nil {
		return Rejected
	}
	return Accepted
}

// fraction is the share of nominal output delivered during the step
// starting at t. Output rises linearly over the ramp-up time and decays
// linearly over the ramp-down time.
func (r *rampState) fraction(t time.Time, step time.Duration) float64 {
	if r.IsRunning() {
		if r.cfg.RampUpTime <= 0 {
			return 1
		}
		return min(1, float64(t.Sub(r.lastUp)+step)/float64(r.cfg.RampUpTime))
	}
	if r.cfg.RampDownTime <= 0 || r.lastDown.IsZero() {
		return 0
	}
	return max(0, 1-float64(t.Sub(r.lastDown)+step)/float64(r.cfg.RampDownTime))
}

