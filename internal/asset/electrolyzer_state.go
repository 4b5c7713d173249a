package asset

import "math"

// Status is the operating state of an electrolyzer during one step.
type Status int

const (
	ColdStandby Status = iota
	HotStandby
	Hot
	Booting
	Production
)

var statusNames = [...]string{"cold_standby", "hot_standby", "hot", "booting", "production"}

func (s Status) String() string {
	if s < ColdStandby || s > Production {
		return "unknown"
	}
	return statusNames[s]
}

// ParseStatus resolves a status name.
func ParseStatus(s string) (Status, ParseResult) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), ParseOK
		}
	}
	return 0, ParseInvalidInput
}

// Idle step counts within the trailing hour that separate the standby states.
// The hour holds ⌈60/timebase⌉ steps, so hot standby needs a timebase of at
// most 12 minutes and cold standby a 1 minute timebase.
const (
	hotStandbyIdleSteps  = 5
	coldStandbyIdleSteps = 60
)

func windowSteps(minutes, timebase int) int {
	return int(math.Ceil(float64(minutes) / float64(timebase)))
}

// Classify assigns a status to every step of a power trace (kW). Steps at
// or above minPower produce; idle steps are hot, hot standby or cold
// standby by the number of idle steps in the trailing hour. A producing
// step boots instead when it follows an idle step, a cold standby within
// the last 30 minutes or a hot standby within the last 15 minutes.
func Classify(trace []float64, minPower float64, timebase int) []Status {
	idle := make([]int, len(trace)+1)
	for i, p := range trace {
		idle[i+1] = idle[i]
		if p < minPower {
			idle[i+1]++
		}
	}

	hour := windowSteps(60, timebase)
	out := make([]Status, len(trace))
	for i, p := range trace {
		if p >= minPower {
			out[i] = Production
			continue
		}
		switch n := idle[i+1] - idle[max(0, i-hour+1)]; {
		case n >= coldStandbyIdleSteps:
			out[i] = ColdStandby
		case n >= hotStandbyIdleSteps:
			out[i] = HotStandby
		default:
			out[i] = Hot
		}
	}

	coldWin, hotWin := windowSteps(30, timebase), windowSteps(15, timebase)
	for i := range out {
		if out[i] != Production || i == 0 {
			continue
		}
		if prev := out[i-1]; prev == ColdStandby || prev == HotStandby || prev == Hot ||
			seen(out, i, coldWin, ColdStandby) || seen(out, i, hotWin, HotStandby) {
			out[i] = Booting
		}
	}
	return out
}

// seen reports whether status s occurs in the window steps before i.
func seen(statuses []Status, i, window int, s Status) bool {
	for k := max(0, i-window); k < i; k++ {
		if statuses[k] == s {
			return true
		}
	}
	return false
}
