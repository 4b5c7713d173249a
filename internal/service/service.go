// Package service owns the loaded simulation and serializes runs, component
// limits and replay control for the HTTP and websocket surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"go.uber.org/zap"

	"vpp_simulator/internal/repository"
	"vpp_simulator/internal/scenario"
	"vpp_simulator/internal/simulator"
)

var (
	ErrBusy  = errors.New("a run is in progress")
	ErrNoRun = errors.New("no finished run")
)

// ComponentInfo describes one component of the loaded plant.
type ComponentInfo struct {
	ID    string  `json:"id"`
	Class string  `json:"class"`
	Unit  string  `json:"unit"`
	Limit float64 `json:"limit"`
	Bus   *int    `json:"bus,omitempty"`
	Table string  `json:"table,omitempty"`
}

// Info describes the loaded scenario.
type Info struct {
	Name       string          `json:"name"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Timebase   int             `json:"timebase"`
	Steps      int             `json:"steps"`
	Buses      int             `json:"buses"`
	Components []ComponentInfo `json:"components"`
	Running    bool            `json:"running"`
	LastRunID  string          `json:"last_run_id,omitempty"`
}

type Option func(*Service)

// WithRunCallback receives the events of every operator run.
func WithRunCallback(cb simulator.Callback) Option {
	return func(s *Service) { s.runCallback = cb }
}

// WithReplayCallback receives the events of replays of the last run.
func WithReplayCallback(cb simulator.Callback) Option {
	return func(s *Service) { s.replayCallback = cb }
}

func WithRepository(r repository.Repository) Option {
	return func(s *Service) { s.repo = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithReplaySpeed sets the initial speed of new replays.
func WithReplaySpeed(speed float64) Option {
	return func(s *Service) { s.replaySpeed = speed }
}

// Service is safe for concurrent use.
type Service struct {
	mu             sync.Mutex
	sim            *scenario.Simulation
	runCallback    simulator.Callback
	replayCallback simulator.Callback
	repo           repository.Repository
	log            *zap.Logger
	replaySpeed    float64

	running bool
	last    *simulator.Run
	net     netPlacements
	player  *simulator.Player
}

// netPlacements remembers where the last operator placed each component.
type netPlacements map[string]simulator.Placement

func New(sim *scenario.Simulation, opts ...Option) *Service {
	s := &Service{
		sim:            sim,
		runCallback:    simulator.NopCallback{},
		replayCallback: simulator.NopCallback{},
		log:            zap.NewNop(),
		replaySpeed:    simulator.DefaultSpeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := s.sim.Env
	info := Info{
		Name:     s.sim.Name,
		Start:    env.Start(),
		End:      env.End(),
		Timebase: env.Timebase(),
		Steps:    env.Len(),
		Buses:    len(s.sim.Net.Buses),
		Running:  s.running,
	}
	for _, c := range s.sim.VPP.Components() {
		ci := ComponentInfo{ID: c.ID(), Class: string(c.Class()), Unit: c.Unit(), Limit: c.Limit()}
		if p, ok := s.net[c.ID()]; ok {
			bus := p.Bus
			ci.Bus, ci.Table = &bus, p.Table
		}
		info.Components = append(info.Components, ci)
	}
	if s.last != nil {
		info.LastRunID = s.last.ID.String()
	}
	return info
}

// Run prepares every component and walks the whole horizon. Only one run
// executes at a time.
func (s *Service) Run(ctx context.Context) (*simulator.Run, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.running = true
	if s.player != nil {
		s.player.Pause()
	}
	s.mu.Unlock()

	run, placements, err := s.execute()

	s.mu.Lock()
	s.running = false
	if run != nil {
		s.last = run
		s.net = placements
		s.player = simulator.NewPlayer(run, s.replayCallback)
		s.player.SetSpeed(s.replaySpeed)
	}
	s.mu.Unlock()

	if run != nil && s.repo != nil {
		if perr := s.repo.SaveRun(ctx, run); perr != nil {
			s.log.Error("failed to persist run", zap.String("run_id", run.ID.String()), zap.Error(perr))
		}
	}
	return run, err
}

func (s *Service) execute() (*simulator.Run, netPlacements, error) {
	if err := s.sim.Prepare(); err != nil {
		return nil, nil, fmt.Errorf("prepare: %w", err)
	}
	op, err := s.sim.Operator(simulator.WithCallback(s.runCallback), simulator.WithLogger(s.log))
	if err != nil {
		return nil, nil, err
	}
	placements := netPlacements{}
	for _, c := range s.sim.VPP.Components() {
		if p, ok := s.sim.VPP.Placement(c.ID()); ok {
			placements[c.ID()] = p
		}
	}
	run, err := op.RunBaseScenario(s.sim.Baseload)
	return run, placements, err
}

// StartRun runs in the background and reports ErrBusy synchronously.
func (s *Service) StartRun() error {
	s.mu.Lock()
	busy := s.running
	s.mu.Unlock()
	if busy {
		return ErrBusy
	}
	go func() {
		if _, err := s.Run(context.Background()); err != nil && !errors.Is(err, ErrBusy) {
			s.log.Warn("background run failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LimitComponent scales a component's output for the next run.
func (s *Service) LimitComponent(id string, limit float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}
	return s.sim.VPP.LimitPowerTo(id, limit)
}

func (s *Service) LastRun() (*simulator.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, ErrNoRun
	}
	return s.last, nil
}

// Result extracts one measurement table of the last run.
func (s *Service) Result(kind, measurement string) (dataframe.DataFrame, error) {
	run, err := s.LastRun()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return simulator.ExtractSingleResult(run.Snapshots, kind, measurement)
}

// Replay returns the player of the last run.
func (s *Service) Replay() (*simulator.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil, ErrNoRun
	}
	return s.player, nil
}

// ComponentIDs lists the plant's components sorted by ID.
func (s *Service) ComponentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, c := range s.sim.VPP.Components() {
		ids = append(ids, c.ID())
	}
	sort.Strings(ids)
	return ids
}

// Stop pauses any replay.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
}
