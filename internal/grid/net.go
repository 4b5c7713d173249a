// Package grid holds the power-flow snapshot a simulation writes into and
// the solver that balances it.
package grid

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidNet   = errors.New("invalid grid")
	ErrDisconnected = errors.New("bus not connected to external grid")
	ErrNotRadial    = errors.New("grid is not radial")
	ErrNotConverged = errors.New("power flow did not converge")
)

// Row types "baseload" mark load rows that carry the household baseload
// rather than a component.
const TypeBaseload = "baseload"

type Bus struct {
	Name string  `json:"name"`
	VnKV float64 `json:"vn_kv"`
}

type Line struct {
	Name      string  `json:"name"`
	FromBus   int     `json:"from_bus"`
	ToBus     int     `json:"to_bus"`
	LengthKM  float64 `json:"length_km"`
	ROhmPerKM float64 `json:"r_ohm_per_km"`
	XOhmPerKM float64 `json:"x_ohm_per_km"`
	MaxIKA    float64 `json:"max_i_ka"`
}

type Trafo struct {
	Name       string  `json:"name"`
	HVBus      int     `json:"hv_bus"`
	LVBus      int     `json:"lv_bus"`
	SnMVA      float64 `json:"sn_mva"`
	VkPercent  float64 `json:"vk_percent"`
	VkrPercent float64 `json:"vkr_percent"`
}

// Element is a load, static generator or storage row. P and Q are in MW and
// MVar with the load sign: consumption positive, generation negative.
type Element struct {
	Name string  `json:"name"`
	Bus  int     `json:"bus"`
	P    float64 `json:"p_mw"`
	Q    float64 `json:"q_mvar"`
	Type string  `json:"type,omitempty"`
}

type ExtGrid struct {
	Name string  `json:"name"`
	Bus  int     `json:"bus"`
	VmPU float64 `json:"vm_pu"`
}

// Net is a distribution grid with its element tables and, after a power
// flow, its result tables.
type Net struct {
	Name     string    `json:"name"`
	Buses    []Bus     `json:"bus"`
	Lines    []Line    `json:"line"`
	Trafos   []Trafo   `json:"trafo"`
	Loads    []Element `json:"load"`
	Sgens    []Element `json:"sgen"`
	Storages []Element `json:"storage"`
	ExtGrids []ExtGrid `json:"ext_grid"`

	Results Results `json:"-"`
}

// Validate checks bus references and row name uniqueness.
func (n *Net) Validate() error {
	nb := len(n.Buses)
	if nb == 0 {
		return fmt.Errorf("%w: no buses", ErrInvalidNet)
	}
	if len(n.ExtGrids) == 0 {
		return fmt.Errorf("%w: no external grid", ErrInvalidNet)
	}
	inRange := func(b int) bool { return b >= 0 && b < nb }
	for _, l := range n.Lines {
		if !inRange(l.FromBus) || !inRange(l.ToBus) {
			return fmt.Errorf("%w: line %q references unknown bus", ErrInvalidNet, l.Name)
		}
	}
	for _, t := range n.Trafos {
		if !inRange(t.HVBus) || !inRange(t.LVBus) || t.SnMVA <= 0 {
			return fmt.Errorf("%w: trafo %q", ErrInvalidNet, t.Name)
		}
	}
	for table, rows := range map[string][]Element{"load": n.Loads, "sgen": n.Sgens, "storage": n.Storages} {
		seen := make(map[string]bool, len(rows))
		for _, e := range rows {
			if !inRange(e.Bus) {
				return fmt.Errorf("%w: %s %q references unknown bus %d", ErrInvalidNet, table, e.Name, e.Bus)
			}
			if seen[e.Name] {
				return fmt.Errorf("%w: duplicate %s name %q", ErrInvalidNet, table, e.Name)
			}
			seen[e.Name] = true
		}
	}
	for _, g := range n.ExtGrids {
		if !inRange(g.Bus) {
			return fmt.Errorf("%w: ext grid %q references unknown bus", ErrInvalidNet, g.Name)
		}
	}
	return nil
}

// BusIndices returns 0..len(Buses)-1.
func (n *Net) BusIndices() []int {
	out := make([]int, len(n.Buses))
	for i := range out {
		out[i] = i
	}
	return out
}

// LoadBuses returns the distinct buses carrying at least one load, sorted.
func (n *Net) LoadBuses() []int {
	seen := map[int]bool{}
	var out []int
	for _, l := range n.Loads {
		if !seen[l.Bus] {
			seen[l.Bus] = true
			out = append(out, l.Bus)
		}
	}
	sort.Ints(out)
	return out
}

// BusIndex returns the index of the named bus.
func (n *Net) BusIndex(name string) (int, bool) {
	for i, b := range n.Buses {
		if b.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (n *Net) AddLoad(e Element) int {
	n.Loads = append(n.Loads, e)
	return len(n.Loads) - 1
}

func (n *Net) AddSgen(e Element) int {
	n.Sgens = append(n.Sgens, e)
	return len(n.Sgens) - 1
}

func (n *Net) AddStorage(e Element) int {
	n.Storages = append(n.Storages, e)
	return len(n.Storages) - 1
}

// Clone returns a deep copy without results.
func (n *Net) Clone() *Net {
	c := &Net{Name: n.Name}
	c.Buses = append(c.Buses, n.Buses...)
	c.Lines = append(c.Lines, n.Lines...)
	c.Trafos = append(c.Trafos, n.Trafos...)
	c.Loads = append(c.Loads, n.Loads...)
	c.Sgens = append(c.Sgens, n.Sgens...)
	c.Storages = append(c.Storages, n.Storages...)
	c.ExtGrids = append(c.ExtGrids, n.ExtGrids...)
	return c
}

// TotalP sums P over loads, sgens and storages: the net demand of the grid.
func (n *Net) TotalP() float64 {
	var sum float64
	for _, rows := range [][]Element{n.Loads, n.Sgens, n.Storages} {
		for _, e := range rows {
			sum += e.P
		}
	}
	return sum
}
