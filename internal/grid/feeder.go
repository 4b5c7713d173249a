package grid

import "fmt"

// NewRadialFeeder builds a low-voltage feeder: a 20 kV external grid, a
// 400 kVA transformer and houses buses in a chain of lengthKM cable
// sections. Every house bus carries one baseload row.
func NewRadialFeeder(name string, houses int, lengthKM float64) *Net {
	n := &Net{
		Name:     name,
		Buses:    []Bus{{Name: "mv", VnKV: 20}, {Name: "lv_busbar", VnKV: 0.4}},
		ExtGrids: []ExtGrid{{Name: "grid", Bus: 0, VmPU: 1}},
		Trafos: []Trafo{{
			Name: "trafo", HVBus: 0, LVBus: 1,
			SnMVA: 0.4, VkPercent: 6, VkrPercent: 1.425,
		}},
	}
	for h := 0; h < houses; h++ {
		bus := len(n.Buses)
		n.Buses = append(n.Buses, Bus{Name: fmt.Sprintf("house_%d", h), VnKV: 0.4})
		n.Lines = append(n.Lines, Line{
			Name:    fmt.Sprintf("line_%d", h),
			FromBus: bus - 1, ToBus: bus,
			LengthKM: lengthKM, ROhmPerKM: 0.206, XOhmPerKM: 0.08, MaxIKA: 0.27,
		})
		n.AddLoad(Element{Name: fmt.Sprintf("baseload_%d", h), Bus: bus, Type: TypeBaseload})
	}
	return n
}
