package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"

	"vpp_simulator/internal/asset"
	"vpp_simulator/internal/component"
	"vpp_simulator/internal/grid"
)

var (
	ErrDuplicateComponent = errors.New("duplicate component")
	ErrUnknownComponent   = errors.New("unknown component")
	ErrUnknownMethod      = errors.New("unknown bus assignment method")
	ErrInvalidPercentage  = errors.New("bus percentage outside [0, 1]")
	ErrNoBus              = errors.New("no bus available for component")
)

// Bus assignment methods.
const (
	AssignRandom        = "random"
	AssignRandomLoadBus = "random_loadbus"
	defaultAssignSeed   = 0x5eed
)

// Grid tables a component can be written to.
const (
	TableLoad    = "load"
	TableSgen    = "sgen"
	TableStorage = "storage"
)

// Placement records where a component sits in the grid.
type Placement struct {
	Bus   int    `json:"bus"`
	Table string `json:"table"`
	Row   int    `json:"row"`
}

// VirtualPowerPlant aggregates components and knows which grid bus each of
// them feeds.
type VirtualPowerPlant struct {
	name       string
	log        *zap.Logger
	components map[string]component.Component
	order      []string
	buses      map[component.Class][]int
	pinned     map[string]int
	placements map[string]Placement
}

func NewVirtualPowerPlant(name string, log *zap.Logger) *VirtualPowerPlant {
	if log == nil {
		log = zap.NewNop()
	}
	return &VirtualPowerPlant{
		name:       name,
		log:        log,
		components: make(map[string]component.Component),
		buses:      make(map[component.Class][]int),
		pinned:     make(map[string]int),
		placements: make(map[string]Placement),
	}
}

func (v *VirtualPowerPlant) Name() string { return v.name }
func (v *VirtualPowerPlant) Len() int     { return len(v.order) }

// AddComponent registers c under its identifier.
func (v *VirtualPowerPlant) AddComponent(c component.Component) error {
	id := c.ID()
	if _, ok := v.components[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateComponent, id)
	}
	v.components[id] = c
	v.order = append(v.order, id)
	v.log.Debug("component added", zap.String("id", id), zap.String("class", string(c.Class())))
	return nil
}

// RemoveComponent drops the component and any placement it had.
func (v *VirtualPowerPlant) RemoveComponent(id string) error {
	if _, ok := v.components[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownComponent, id)
	}
	delete(v.components, id)
	delete(v.pinned, id)
	delete(v.placements, id)
	for i, o := range v.order {
		if o == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	return nil
}

func (v *VirtualPowerPlant) Component(id string) (component.Component, error) {
	c, ok := v.components[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, id)
	}
	return c, nil
}

// Components returns the components in insertion order.
func (v *VirtualPowerPlant) Components() []component.Component {
	out := make([]component.Component, len(v.order))
	for i, id := range v.order {
		out[i] = v.components[id]
	}
	return out
}

// LimitPowerTo forwards a limit to one component.
func (v *VirtualPowerPlant) LimitPowerTo(id string, limit float64) error {
	c, err := v.Component(id)
	if err != nil {
		return err
	}
	c.LimitPowerTo(limit)
	return nil
}

// PinBus places a component on a fixed bus instead of its class list.
func (v *VirtualPowerPlant) PinBus(id string, bus int) error {
	if _, ok := v.components[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownComponent, id)
	}
	v.pinned[id] = bus
	return nil
}

// SetBuses overrides the bus list of one class.
func (v *VirtualPowerPlant) SetBuses(class component.Class, buses []int) {
	v.buses[class] = append([]int(nil), buses...)
}

// Buses returns the bus list of each class.
func (v *VirtualPowerPlant) Buses() map[component.Class][]int {
	out := make(map[component.Class][]int, len(v.buses))
	for c, b := range v.buses {
		out[c] = append([]int(nil), b...)
	}
	return out
}

// AssignBuses samples, for every class in pct, round(n·pct) buses without
// replacement. Storage is drawn from the PV buses only. A nil rng uses a
// fixed seed.
func (v *VirtualPowerPlant) AssignBuses(net *grid.Net, method string, pct map[component.Class]float64, rng *rand.Rand) (map[component.Class][]int, error) {
	var candidates []int
	switch method {
	case AssignRandom:
		candidates = net.BusIndices()
	case AssignRandomLoadBus:
		candidates = net.LoadBuses()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(defaultAssignSeed, 0))
	}

	classes := make([]string, 0, len(pct))
	for c, p := range pct {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, fmt.Errorf("%w: %s=%g", ErrInvalidPercentage, c, p)
		}
		if c != component.ClassStorage {
			classes = append(classes, string(c))
		}
	}
	sort.Strings(classes)

	assigned := make(map[component.Class][]int, len(pct))
	for _, name := range classes {
		c := component.Class(name)
		assigned[c] = sample(candidates, pct[c], rng)
	}
	if p, ok := pct[component.ClassStorage]; ok {
		assigned[component.ClassStorage] = sample(assigned[component.ClassPV], p, rng)
	}

	for c, b := range assigned {
		v.buses[c] = b
		v.log.Debug("buses assigned", zap.String("class", string(c)), zap.Ints("buses", b))
	}
	return assigned, nil
}

func sample(from []int, pct float64, rng *rand.Rand) []int {
	k := int(math.Round(float64(len(from)) * pct))
	perm := rng.Perm(len(from))
	out := make([]int, k)
	for i := range out {
		out[i] = from[perm[i]]
	}
	sort.Ints(out)
	return out
}

// tableFor decides which grid table a component is written to.
func tableFor(c component.Component) string {
	switch c.Class() {
	case component.ClassStorage:
		return TableStorage
	case component.ClassThermalEnergyStorage:
		if tes, ok := c.(*asset.ThermalEnergyStorage); ok && tes.Producer().Class().Generates() {
			return TableSgen
		}
		return TableLoad
	}
	if c.Class().Generates() {
		return TableSgen
	}
	return TableLoad
}

// PlaceComponents attaches every component to a bus and adds its row to the
// net. Pinned components keep their bus; the others take their class list
// round-robin in insertion order. Earlier placements are replaced.
func (v *VirtualPowerPlant) PlaceComponents(net *grid.Net) error {
	v.placements = make(map[string]Placement, len(v.order))
	next := make(map[component.Class]int)
	for _, id := range v.order {
		c := v.components[id]
		bus, ok := v.pinned[id]
		if !ok {
			list := v.buses[c.Class()]
			if len(list) == 0 {
				return fmt.Errorf("%w: %q (%s)", ErrNoBus, id, c.Class())
			}
			bus = list[next[c.Class()]%len(list)]
			next[c.Class()]++
		}
		if bus < 0 || bus >= len(net.Buses) {
			return fmt.Errorf("%w: %q on bus %d", grid.ErrInvalidNet, id, bus)
		}

		row := grid.Element{Name: id, Bus: bus, Type: string(c.Class())}
		p := Placement{Bus: bus, Table: tableFor(c)}
		switch p.Table {
		case TableStorage:
			p.Row = net.AddStorage(row)
		case TableSgen:
			p.Row = net.AddSgen(row)
		default:
			p.Row = net.AddLoad(row)
		}
		v.placements[id] = p
	}
	return net.Validate()
}

func (v *VirtualPowerPlant) Placement(id string) (Placement, bool) {
	p, ok := v.placements[id]
	return p, ok
}

// BalanceAt sums the signed values of all components at t: positive when
// the plant draws power, negative when it feeds in.
func (v *VirtualPowerPlant) BalanceAt(t time.Time) (float64, error) {
	var sum float64
	for _, id := range v.order {
		val, err := v.components[id].ValueAt(t)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", id, err)
		}
		sum += val
	}
	return sum, nil
}

// PrepareTimeSeries prepares every component, stopping at the first error.
func (v *VirtualPowerPlant) PrepareTimeSeries() error {
	for _, id := range v.order {
		if err := v.components[id].PrepareTimeSeries(); err != nil {
			return fmt.Errorf("prepare %s: %w", id, err)
		}
	}
	return nil
}

func (v *VirtualPowerPlant) ResetTimeSeries() {
	for _, id := range v.order {
		v.components[id].ResetTimeSeries()
	}
}
