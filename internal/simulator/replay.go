package simulator

import (
	"sync"
	"time"
)

// Replay speed bounds, in simulated seconds per wall second.
const (
	DefaultSpeed = 3600.0
	minSpeed     = 0.1
	maxSpeed     = 604800.0
)

// Player replays the steps of a finished run at configurable speed.
type Player struct {
	mu       sync.Mutex
	run      *Run
	callback Callback

	running bool
	speed   float64
	simTime time.Time
	next    int
	acc     *accumulator

	stopCh chan struct{}
}

func NewPlayer(run *Run, cb Callback) *Player {
	p := &Player{
		run:      run,
		callback: cb,
		speed:    DefaultSpeed,
	}
	p.rewind(p.start())
	return p
}

func (p *Player) start() time.Time {
	if len(p.run.Steps) == 0 {
		return time.Time{}
	}
	return p.run.Steps[0].Timestamp
}

func (p *Player) end() time.Time {
	if len(p.run.Steps) == 0 {
		return time.Time{}
	}
	return p.run.Steps[len(p.run.Steps)-1].Timestamp
}

// rewind positions the player at t and drops the totals. Must be called with
// mu held.
func (p *Player) rewind(t time.Time) {
	p.simTime = t
	p.next = 0
	for p.next < len(p.run.Steps) && p.run.Steps[p.next].Timestamp.Before(t) {
		p.next++
	}
	p.acc = newAccumulator(p.run.ID.String(), p.run.stepHours, p.run.storage)
}

// State returns the current replay state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() State {
	return State{
		RunID:   p.run.ID.String(),
		Time:    p.simTime,
		Step:    p.next,
		Steps:   len(p.run.Steps),
		Speed:   p.speed,
		Running: p.running,
	}
}

// Start begins the replay loop.
func (p *Player) Start() {
	p.mu.Lock()
	if p.running || len(p.run.Steps) == 0 {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	p.broadcastState()
	go p.loop(stop)
}

// Pause stops the replay loop.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.broadcastState()
}

// SetSpeed sets the replay speed multiplier.
func (p *Player) SetSpeed(speed float64) {
	speed = max(minSpeed, min(maxSpeed, speed))

	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()

	p.broadcastState()
}

// Seek jumps to t, clamped to the run, and resets the totals.
func (p *Player) Seek(t time.Time) {
	p.mu.Lock()
	if t.Before(p.start()) {
		t = p.start()
	}
	if t.After(p.end()) {
		t = p.end()
	}
	p.rewind(t)
	s := p.acc.summary()
	p.mu.Unlock()

	p.broadcastState()
	p.callback.OnSummary(s)
}

// Step advances the replay by delta and emits the steps passed. It does not
// require Start.
func (p *Player) Step(delta time.Duration) {
	if p.advance(delta) {
		p.finish()
	}
}

const tickInterval = 100 * time.Millisecond

func (p *Player) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			delta := time.Duration(float64(tickInterval) * p.speed)
			p.mu.Unlock()
			if p.advance(delta) {
				p.finish()
				return
			}
		}
	}
}

// advance emits every step up to simTime+delta, inclusive. It reports
// whether the end of the run was reached.
func (p *Player) advance(delta time.Duration) bool {
	p.mu.Lock()
	p.simTime = p.simTime.Add(delta)
	ended := !p.simTime.Before(p.end())
	if ended {
		p.simTime = p.end()
	}
	var due []StepResult
	for p.next < len(p.run.Steps) && !p.run.Steps[p.next].Timestamp.After(p.simTime) {
		step := p.run.Steps[p.next]
		p.acc.add(step)
		due = append(due, step)
		p.next++
	}
	s := p.acc.summary()
	p.mu.Unlock()

	for _, step := range due {
		p.callback.OnStep(step)
	}
	p.broadcastState()
	p.callback.OnSummary(s)
	return ended
}

func (p *Player) finish() {
	p.mu.Lock()
	if p.running {
		p.running = false
		close(p.stopCh)
	}
	p.mu.Unlock()
	p.broadcastState()
}

func (p *Player) broadcastState() {
	p.mu.Lock()
	s := p.stateLocked()
	p.mu.Unlock()
	p.callback.OnState(s)
}
