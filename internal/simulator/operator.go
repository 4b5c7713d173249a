package simulator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/grid"
)

var (
	ErrNonFinite        = errors.New("non-finite value")
	ErrInvalidBaseload  = errors.New("invalid baseload")
	ErrComponentMissing = errors.New("component has no placement")
)

// StepError reports the timestamp and, when known, the component at which a
// run stopped.
type StepError struct {
	Timestamp   time.Time
	ComponentID string
	Err         error
}

func (e *StepError) Error() string {
	if e.ComponentID == "" {
		return fmt.Sprintf("step %s: %v", e.Timestamp.Format(time.RFC3339), e.Err)
	}
	return fmt.Sprintf("step %s, component %s: %v", e.Timestamp.Format(time.RFC3339), e.ComponentID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Baseload maps a bus index to its household demand in kW, aligned to the
// simulation index.
type Baseload map[int][]float64

// Run is the outcome of one pass over the horizon.
type Run struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	Summary   Summary         `json:"summary"`
	Steps     []StepResult    `json:"-"`
	Snapshots *grid.Snapshots `json:"-"`
	Err       error           `json:"-"`

	storage   map[string]bool
	stepHours float64
}

// Operator steps a virtual power plant through the horizon, writes its
// values into the grid and solves the power flow at every step.
type Operator struct {
	name     string
	vpp      *VirtualPowerPlant
	env      *environment.Environment
	net      *grid.Net
	solver   grid.Solver
	callback Callback
	log      *zap.Logger

	baseloadRows map[int]int
	storages     []*asset.ElectricalStorage
}

type OperatorOption func(*Operator)

func WithSolver(s grid.Solver) OperatorOption { return func(o *Operator) { o.solver = s } }
func WithCallback(cb Callback) OperatorOption { return func(o *Operator) { o.callback = cb } }
func WithLogger(l *zap.Logger) OperatorOption { return func(o *Operator) { o.log = l } }
func WithRunName(name string) OperatorOption  { return func(o *Operator) { o.name = name } }

// NewOperator places the plant's components on a copy of net. The caller's
// net is not modified.
func NewOperator(vpp *VirtualPowerPlant, net *grid.Net, env *environment.Environment, opts ...OperatorOption) (*Operator, error) {
	o := &Operator{
		name:     vpp.Name(),
		vpp:      vpp,
		env:      env,
		net:      net.Clone(),
		solver:   grid.NewRadialSolver(),
		callback: NopCallback{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := vpp.PlaceComponents(o.net); err != nil {
		return nil, err
	}
	for _, c := range vpp.Components() {
		if st, ok := c.(*asset.ElectricalStorage); ok {
			o.storages = append(o.storages, st)
		}
	}
	sort.SliceStable(o.storages, func(a, b int) bool {
		pa, _ := vpp.Placement(o.storages[a].ID())
		pb, _ := vpp.Placement(o.storages[b].ID())
		return pa.Bus < pb.Bus
	})
	return o, nil
}

// Net returns the operator's grid. Its tables hold the last step written.
func (o *Operator) Net() *grid.Net { return o.net }

// bindBaseload maps every baseload bus to a baseload row, adding rows for
// buses that have none.
func (o *Operator) bindBaseload(baseload Baseload) error {
	o.baseloadRows = make(map[int]int, len(baseload))
	for i, row := range o.net.Loads {
		if row.Type != grid.TypeBaseload {
			continue
		}
		if _, ok := o.baseloadRows[row.Bus]; !ok {
			o.baseloadRows[row.Bus] = i
		}
	}
	buses := make([]int, 0, len(baseload))
	for bus, vals := range baseload {
		if bus < 0 || bus >= len(o.net.Buses) {
			return fmt.Errorf("%w: unknown bus %d", ErrInvalidBaseload, bus)
		}
		if len(vals) != o.env.Len() {
			return fmt.Errorf("%w: bus %d has %d values, want %d", ErrInvalidBaseload, bus, len(vals), o.env.Len())
		}
		buses = append(buses, bus)
	}
	sort.Ints(buses)
	for _, bus := range buses {
		if _, ok := o.baseloadRows[bus]; ok {
			continue
		}
		o.baseloadRows[bus] = o.net.AddLoad(grid.Element{
			Name: fmt.Sprintf("baseload_bus_%d", bus),
			Bus:  bus,
			Type: grid.TypeBaseload,
		})
	}
	return nil
}

// RunBaseScenario walks every step of the horizon. On failure the returned
// run still carries the snapshots written so far and the error is a
// *StepError.
func (o *Operator) RunBaseScenario(baseload Baseload) (*Run, error) {
	if err := o.bindBaseload(baseload); err != nil {
		return nil, err
	}
	run := &Run{
		ID:        uuid.New(),
		Name:      o.name,
		Started:   time.Now(),
		Snapshots: grid.NewSnapshots(),
	}
	storage := make(map[string]bool, len(o.storages))
	for _, st := range o.storages {
		storage[st.ID()] = true
	}
	run.storage, run.stepHours = storage, o.env.StepHours()
	acc := newAccumulator(run.ID.String(), o.env.StepHours(), storage)
	total := o.env.Len()
	o.log.Info("run started",
		zap.String("run_id", run.ID.String()),
		zap.String("name", o.name),
		zap.Int("steps", total),
		zap.Int("components", o.vpp.Len()),
	)
	o.callback.OnState(State{RunID: run.ID.String(), Time: o.env.Start(), Steps: total, Running: true})

	for i, t := range o.env.Index() {
		res, err := o.step(i, t, baseload)
		if err != nil {
			run.Err = err
			run.Finished = time.Now()
			run.Summary = acc.summary()
			o.log.Error("run aborted", zap.String("run_id", run.ID.String()), zap.Time("time", t), zap.Error(err))
			o.callback.OnState(State{RunID: run.ID.String(), Time: t, Step: i, Steps: total, Error: err.Error()})
			o.callback.OnSummary(run.Summary)
			return run, err
		}
		run.Snapshots.Put(grid.Capture(t, o.net))
		run.Steps = append(run.Steps, res)
		acc.add(res)
		o.callback.OnStep(res)
		o.log.Debug("step", zap.Time("time", t), zap.Float64("grid_kw", res.GridKW))
	}

	run.Finished = time.Now()
	run.Summary = acc.summary()
	o.log.Info("run finished",
		zap.String("run_id", run.ID.String()),
		zap.Duration("elapsed", run.Finished.Sub(run.Started)),
		zap.Float64("grid_import_kwh", run.Summary.GridImportKWh),
		zap.Float64("grid_export_kwh", run.Summary.GridExportKWh),
	)
	o.callback.OnSummary(run.Summary)
	o.callback.OnState(State{RunID: run.ID.String(), Time: o.env.End(), Step: total, Steps: total})
	return run, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (o *Operator) clearRows() {
	for _, rows := range [][]grid.Element{o.net.Loads, o.net.Sgens, o.net.Storages} {
		for i := range rows {
			rows[i].P, rows[i].Q = 0, 0
		}
	}
}

func (o *Operator) row(p Placement) *grid.Element {
	switch p.Table {
	case TableStorage:
		return &o.net.Storages[p.Row]
	case TableSgen:
		return &o.net.Sgens[p.Row]
	}
	return &o.net.Loads[p.Row]
}

func (o *Operator) step(i int, t time.Time, baseload Baseload) (StepResult, error) {
	o.clearRows()
	res := StepResult{Index: i, Timestamp: t, Values: make(map[string]float64, o.vpp.Len())}

	for bus, vals := range baseload {
		v := vals[i]
		if !finite(v) {
			return res, &StepError{Timestamp: t, ComponentID: fmt.Sprintf("baseload_bus_%d", bus), Err: ErrNonFinite}
		}
		o.net.Loads[o.baseloadRows[bus]].P = v / 1000
		res.BaseloadKW += v
	}

	for _, c := range o.vpp.Components() {
		if c.Class() == component.ClassStorage {
			continue
		}
		p, ok := o.vpp.Placement(c.ID())
		if !ok {
			return res, &StepError{Timestamp: t, ComponentID: c.ID(), Err: ErrComponentMissing}
		}
		v, err := c.ValueAt(t)
		if err != nil {
			return res, &StepError{Timestamp: t, ComponentID: c.ID(), Err: err}
		}
		if !finite(v) {
			return res, &StepError{Timestamp: t, ComponentID: c.ID(), Err: ErrNonFinite}
		}
		o.row(p).P = v / 1000
		res.Values[c.ID()] = v
	}

	for _, st := range o.storages {
		v, err := o.coordinate(st, t)
		if err != nil {
			return res, &StepError{Timestamp: t, ComponentID: st.ID(), Err: err}
		}
		res.Values[st.ID()] = v
	}

	if err := o.solver.RunPowerFlow(o.net); err != nil {
		return res, &StepError{Timestamp: t, Err: err}
	}
	o.fillGridResult(&res)
	return res, nil
}

// coordinate lets one storage absorb or serve the residual of its bus and
// writes the remainder back. The storage row itself stays at zero unless no
// load or sgen row of the matching sign exists on the bus.
func (o *Operator) coordinate(st *asset.ElectricalStorage, t time.Time) (float64, error) {
	p, ok := o.vpp.Placement(st.ID())
	if !ok {
		return 0, ErrComponentMissing
	}

	var residual float64
	firstLoad, firstSgen := -1, -1
	for i := range o.net.Loads {
		if o.net.Loads[i].Bus != p.Bus {
			continue
		}
		residual += o.net.Loads[i].P * 1000
		o.net.Loads[i].P = 0
		if firstLoad < 0 {
			firstLoad = i
		}
	}
	for i := range o.net.Sgens {
		if o.net.Sgens[i].Bus != p.Bus {
			continue
		}
		residual += o.net.Sgens[i].P * 1000
		o.net.Sgens[i].P = 0
		if firstSgen < 0 {
			firstSgen = i
		}
	}
	if !finite(residual) {
		return 0, ErrNonFinite
	}

	fed, bypass := residual, 0.0
	if limit := st.PowerCap(); limit > 0 && math.Abs(residual) > limit {
		fed = math.Copysign(limit, residual)
		bypass = residual - fed
	}
	_, remaining, err := st.Operate(t, fed)
	if err != nil {
		return 0, err
	}
	remaining += bypass

	switch {
	case remaining > 0 && firstLoad >= 0:
		o.net.Loads[firstLoad].P = remaining / 1000
	case remaining < 0 && firstSgen >= 0:
		o.net.Sgens[firstSgen].P = remaining / 1000
	default:
		o.net.Storages[p.Row].P += remaining / 1000
	}
	return st.ValueAt(t)
}

func (o *Operator) fillGridResult(res *StepResult) {
	r := o.net.Results
	for _, g := range r.ExtGrid {
		res.GridKW += g.PMW * 1000
	}
	res.LossesKW = res.GridKW - o.net.TotalP()*1000
	res.MinVoltagePU = math.Inf(1)
	for _, b := range r.Bus {
		res.MinVoltagePU = min(res.MinVoltagePU, b.VmPU)
	}
	if math.IsInf(res.MinVoltagePU, 1) {
		res.MinVoltagePU = 0
	}
	for _, l := range r.Line {
		res.MaxLineLoadingPercent = max(res.MaxLineLoadingPercent, l.LoadingPercent)
	}
	for _, tr := range r.Trafo {
		res.MaxTrafoLoadingPercent = max(res.MaxTrafoLoadingPercent, tr.LoadingPercent)
	}
}
