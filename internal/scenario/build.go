package scenario

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/environment"
	"vpp_simulator/internal/grid"
	"vpp_simulator/internal/ingest"
	"vpp_simulator/internal/model"
	"vpp_simulator/internal/profile"
	"vpp_simulator/internal/simulator"
	"vpp_simulator/internal/solar"
	"vpp_simulator/internal/store"
	"vpp_simulator/internal/wind"
)

// Build creates every part of the simulation. dir resolves relative paths.
func (sc *Scenario) Build(dir string, log *zap.Logger) (*Simulation, error) {
	if log == nil {
		log = zap.NewNop()
	}
	env, err := environment.New(sc.Environment)
	if err != nil {
		return nil, err
	}

	st := store.New()
	for _, in := range sc.Inputs {
		n, err := loadInput(st, in, dir, env)
		if err != nil {
			return nil, err
		}
		log.Info("input loaded", zap.String("path", in.Path), zap.Int("readings", n))
	}
	if err := env.LoadFromStore(st); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	prof, err := sc.buildProfile(dir, env)
	if err != nil {
		return nil, err
	}

	net, err := sc.buildGrid(dir)
	if err != nil {
		return nil, err
	}

	solver, err := sc.buildSolver()
	if err != nil {
		return nil, err
	}

	name := sc.Name
	if name == "" {
		name = "scenario"
	}
	vpp := simulator.NewVirtualPowerPlant(name, log)
	for i, c := range sc.Components {
		comp, err := sc.buildComponent(c, env, prof, st, i)
		if err != nil {
			return nil, err
		}
		if err := vpp.AddComponent(comp); err != nil {
			return nil, err
		}
		if c.Limit != nil {
			if err := vpp.LimitPowerTo(c.ID, *c.Limit); err != nil {
				return nil, err
			}
		}
		if c.Bus != nil {
			if err := vpp.PinBus(c.ID, *c.Bus); err != nil {
				return nil, err
			}
		}
	}

	if err := sc.assign(vpp, net); err != nil {
		return nil, err
	}

	baseload, err := buildBaseload(st, env, prof, net)
	if err != nil {
		return nil, err
	}

	log.Info("scenario built",
		zap.String("name", name),
		zap.Int("components", vpp.Len()),
		zap.Int("steps", env.Len()),
		zap.Int("buses", len(net.Buses)),
	)
	return &Simulation{
		Name:     name,
		Env:      env,
		Store:    st,
		Profile:  prof,
		VPP:      vpp,
		Net:      net,
		Baseload: baseload,
		Solver:   solver,
	}, nil
}

func loadInput(st *store.Store, in Input, dir string, env *environment.Environment) (int, error) {
	var p ingest.Parser
	switch in.Format {
	case "", FormatWide:
		p = &ingest.WideParser{Columns: in.Columns, Default: in.Type, Location: env.Location()}
	case FormatLong:
		if in.Type == "" {
			return 0, fmt.Errorf("%w: long input %s needs a type", ErrInvalidScenario, in.Path)
		}
		lp := ingest.NewLongParser(in.Type, in.Unit)
		lp.Location = env.Location()
		p = lp
	case FormatWind:
		p = &ingest.WindParser{Location: env.Location()}
	default:
		return 0, fmt.Errorf("%w: input %s: unknown format %q", ErrInvalidScenario, in.Path, in.Format)
	}

	f, err := os.Open(resolve(dir, in.Path))
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	n, err := ingest.LoadInto(st, p, f)
	if err != nil {
		return 0, fmt.Errorf("input %s: %w", in.Path, err)
	}
	return n, nil
}

func (sc *Scenario) buildProfile(dir string, env *environment.Environment) (*profile.UserProfile, error) {
	var opts []profile.Option
	if sc.Tables.SigLinDe != "" {
		f, err := os.Open(resolve(dir, sc.Tables.SigLinDe))
		if err != nil {
			return nil, fmt.Errorf("open siglinde table: %w", err)
		}
		rows, err := ingest.ParseSigLinDe(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		opts = append(opts, profile.WithSigLinDe(rows))
	}
	if sc.Tables.DailyDistribution != "" {
		f, err := os.Open(resolve(dir, sc.Tables.DailyDistribution))
		if err != nil {
			return nil, fmt.Errorf("open daily distribution: %w", err)
		}
		d, err := ingest.ParseDailyDistribution(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		opts = append(opts, profile.WithDailyDistribution(d))
	}
	return profile.New(sc.Profile, env, opts...)
}

func (sc *Scenario) buildGrid(dir string) (*grid.Net, error) {
	g := sc.Grid
	if g.File != "" {
		f, err := os.Open(resolve(dir, g.File))
		if err != nil {
			return nil, fmt.Errorf("open grid: %w", err)
		}
		defer f.Close()
		return grid.Load(f)
	}
	if g.Houses <= 0 {
		return nil, fmt.Errorf("%w: grid needs a file or a positive number of houses", ErrInvalidScenario)
	}
	if g.LengthKM <= 0 {
		g.LengthKM = 0.03
	}
	if g.Name == "" {
		g.Name = "feeder"
	}
	return grid.NewRadialFeeder(g.Name, g.Houses, g.LengthKM), nil
}

func (sc *Scenario) buildSolver() (grid.Solver, error) {
	switch sc.Solver {
	case "", SolverRadial:
		return grid.NewRadialSolver(), nil
	case SolverCopperPlate:
		return grid.CopperPlate{}, nil
	}
	return nil, fmt.Errorf("%w: unknown solver %q", ErrInvalidScenario, sc.Solver)
}

// assign draws the class bus lists. Classes without a configured share are
// spread over every candidate bus.
func (sc *Scenario) assign(vpp *simulator.VirtualPowerPlant, net *grid.Net) error {
	method := sc.Assignment.Method
	if method == "" {
		method = simulator.AssignRandomLoadBus
	}
	pct := map[component.Class]float64{}
	for class, p := range sc.Assignment.Percentages {
		pct[class] = p
	}
	for _, c := range vpp.Components() {
		if _, ok := pct[c.Class()]; !ok {
			pct[c.Class()] = 1
		}
	}
	if _, ok := pct[component.ClassStorage]; ok {
		if _, ok := pct[component.ClassPV]; !ok {
			pct[component.ClassPV] = 1
		}
	}
	seed := sc.Assignment.Seed
	if seed == 0 {
		seed = sc.Seed
	}
	_, err := vpp.AssignBuses(net, method, pct, rand.New(rand.NewPCG(seed, 1)))
	return err
}

// buildBaseload aligns a "baseload.bus<N>" series per bus where present and
// falls back to the profile's constant baseload on the remaining load buses.
func buildBaseload(st *store.Store, env *environment.Environment, prof *profile.UserProfile, net *grid.Net) (simulator.Baseload, error) {
	out := simulator.Baseload{}
	for _, id := range st.SeriesOfType(model.SeriesBaseload) {
		bus, ok := model.ParseBaseloadSeriesID(id)
		if !ok {
			continue
		}
		vals, err := st.Align(id, env.Index())
		if err != nil {
			return nil, fmt.Errorf("baseload: %w", err)
		}
		out[bus] = vals
	}
	if prof.Baseload() > 0 {
		for _, bus := range net.LoadBuses() {
			if _, ok := out[bus]; ok {
				continue
			}
			vals := make([]float64, env.Len())
			for i := range vals {
				vals[i] = prof.Baseload()
			}
			out[bus] = vals
		}
	}
	return out, nil
}

func (sc *Scenario) buildComponent(c Component, env *environment.Environment, prof *profile.UserProfile, st *store.Store, i int) (component.Component, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("%w: component %d has no id", ErrInvalidScenario, i)
	}
	missing := func(block string) error {
		return fmt.Errorf("%w: component %s of type %s needs a %s block", ErrInvalidScenario, c.ID, c.Type, block)
	}

	switch c.Type {
	case component.ClassPV:
		if c.PV == nil {
			return nil, missing("pv")
		}
		chain, err := buildPVChain(*c.PV, prof, st)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.ID, err)
		}
		return asset.NewPV(c.ID, env, chain), nil

	case component.ClassWind:
		if c.Wind == nil {
			return nil, missing("wind")
		}
		chain, err := wind.NewChain(c.Wind.Turbine, c.Wind.Models)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.ID, err)
		}
		return asset.NewWind(c.ID, env, chain), nil

	case component.ClassBEV:
		if c.BEV == nil {
			return nil, missing("bev")
		}
		schedule, err := c.BEV.schedule()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.ID, err)
		}
		rng := rand.New(rand.NewPCG(sc.Seed, uint64(i)+2))
		return asset.NewBEV(c.ID, env, c.BEV.BEVConfig, asset.WithSchedule(schedule), asset.WithRand(rng))

	case component.ClassHeatPump, component.ClassHeatingRod, component.ClassCHP:
		return buildProducer(c, env, prof, missing)

	case component.ClassStorage:
		if c.Storage == nil {
			return nil, missing("storage")
		}
		return asset.NewElectricalStorage(c.ID, env, *c.Storage)

	case component.ClassThermalEnergyStorage:
		if c.ThermalStorage == nil || c.ThermalStorage.Producer == nil {
			return nil, missing("thermal_storage with a producer")
		}
		pc := *c.ThermalStorage.Producer
		if pc.ID == "" {
			pc.ID = c.ID + "_producer"
		}
		p, err := buildProducer(pc, env, prof, func(block string) error {
			return fmt.Errorf("%w: producer of %s needs a %s block", ErrInvalidScenario, c.ID, block)
		})
		if err != nil {
			return nil, err
		}
		return asset.NewThermalEnergyStorage(c.ID, env, prof, p, c.ThermalStorage.ThermalStorageConfig)

	case component.ClassElectrolyzer:
		if c.Electrolyzer == nil {
			return nil, missing("electrolyzer")
		}
		return asset.NewElectrolyzer(c.ID, env, *c.Electrolyzer)
	}
	return nil, fmt.Errorf("%w: component %s has unknown type %q", ErrInvalidScenario, c.ID, c.Type)
}

func buildProducer(c Component, env *environment.Environment, demand asset.ThermalDemand, missing func(string) error) (asset.ThermalProducer, error) {
	switch c.Type {
	case component.ClassHeatPump:
		if c.HeatPump == nil {
			return nil, missing("heat_pump")
		}
		return asset.NewHeatPump(c.ID, env, demand, *c.HeatPump)
	case component.ClassHeatingRod:
		if c.HeatingRod == nil {
			return nil, missing("heating_rod")
		}
		return asset.NewHeatingRod(c.ID, env, demand, *c.HeatingRod)
	case component.ClassCHP:
		if c.CHP == nil {
			return nil, missing("chp")
		}
		return asset.NewCHP(c.ID, env, demand, *c.CHP)
	}
	return nil, fmt.Errorf("%w: %s of type %q is not a thermal producer", ErrInvalidScenario, c.ID, c.Type)
}

func buildPVChain(pv PV, prof *profile.UserProfile, st *store.Store) (solar.ModelChain, error) {
	if pv.System != nil {
		return solar.NewIrradianceChain(prof.Latitude(), prof.Longitude(), *pv.System), nil
	}
	if pv.PeakPower <= 0 {
		return nil, fmt.Errorf("%w: pv needs a system or a positive peak_power", ErrInvalidScenario)
	}
	shape := solar.DefaultProfile()
	if pv.ProfileSeries != "" {
		tr, ok := st.TimeRange(pv.ProfileSeries)
		if !ok {
			return nil, fmt.Errorf("%w: pv profile series %q has no readings", ErrInvalidScenario, pv.ProfileSeries)
		}
		shape = solar.BuildProfile(st.ReadingsInRange(pv.ProfileSeries, tr.Start, tr.End.Add(time.Nanosecond)))
	}
	if pv.Azimuth != 0 || pv.Tilt != 0 {
		shape = shape.Orient(pv.Azimuth, pv.Tilt, 180)
	}
	return &solar.ProfileChain{Profile: shape, PeakPower: pv.PeakPower}, nil
}

func (b *BEV) schedule() (asset.Schedule, error) {
	s := asset.DefaultSchedule()
	sets := []struct {
		in  []string
		out *[]time.Duration
	}{
		{b.WorkDepartures, &s.WorkDepartures},
		{b.WorkArrivals, &s.WorkArrivals},
		{b.TripDepartures, &s.TripDepartures},
		{b.TripArrivals, &s.TripArrivals},
	}
	for _, set := range sets {
		if len(set.in) == 0 {
			continue
		}
		parsed := make([]time.Duration, 0, len(set.in))
		for _, raw := range set.in {
			d, res := asset.ParseTimeOfDay(raw)
			if res != asset.ParseOK {
				return asset.Schedule{}, fmt.Errorf("%w: invalid time of day %q", ErrInvalidScenario, raw)
			}
			parsed = append(parsed, d)
		}
		sort.Slice(parsed, func(i, j int) bool { return parsed[i] < parsed[j] })
		*set.out = parsed
	}
	return s, nil
}
