package grid

import (
	"fmt"
	"math"
)

// Solver balances a net and fills its result tables.
type Solver interface {
	RunPowerFlow(net *Net) error
}

// RadialSolver is a backward/forward sweep over the branch flow (DistFlow)
// equations. It handles radial grids fed from a single external grid.
// Voltage angles are not computed.
type RadialSolver struct {
	BaseMVA       float64
	MaxIterations int
	Tolerance     float64 // per unit voltage
}

func NewRadialSolver() *RadialSolver {
	return &RadialSolver{BaseMVA: 1, MaxIterations: 50, Tolerance: 1e-9}
}

type branch struct {
	line     int // index into Lines, or -1
	trafo    int // index into Trafos, or -1
	a, b     int
	r, x     float64 // per unit
	baseKV   float64
	maxIKA   float64
	ratedMVA float64
}

func (s *RadialSolver) branches(n *Net) ([]branch, error) {
	var out []branch
	for i, l := range n.Lines {
		vn := n.Buses[l.ToBus].VnKV
		if vn <= 0 {
			return nil, fmt.Errorf("%w: bus %q has no nominal voltage", ErrInvalidNet, n.Buses[l.ToBus].Name)
		}
		zb := vn * vn / s.BaseMVA
		out = append(out, branch{
			line: i, trafo: -1, a: l.FromBus, b: l.ToBus,
			r:      l.ROhmPerKM * l.LengthKM / zb,
			x:      l.XOhmPerKM * l.LengthKM / zb,
			baseKV: vn, maxIKA: l.MaxIKA,
		})
	}
	for i, t := range n.Trafos {
		z := t.VkPercent / 100 * s.BaseMVA / t.SnMVA
		r := t.VkrPercent / 100 * s.BaseMVA / t.SnMVA
		out = append(out, branch{
			line: -1, trafo: i, a: t.HVBus, b: t.LVBus,
			r: r, x: math.Sqrt(max(0, z*z-r*r)),
			baseKV: n.Buses[t.HVBus].VnKV, ratedMVA: t.SnMVA,
		})
	}
	return out, nil
}

func (s *RadialSolver) RunPowerFlow(n *Net) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if len(n.ExtGrids) != 1 {
		return fmt.Errorf("%w: radial solver needs exactly one external grid, got %d", ErrInvalidNet, len(n.ExtGrids))
	}
	branches, err := s.branches(n)
	if err != nil {
		return err
	}

	nb := len(n.Buses)
	adj := make([][]int, nb)
	for k, br := range branches {
		adj[br.a] = append(adj[br.a], k)
		adj[br.b] = append(adj[br.b], k)
	}

	root := n.ExtGrids[0].Bus
	parent := make([]int, nb)
	via := make([]int, nb)
	visited := make([]bool, nb)
	for i := range parent {
		parent[i], via[i] = -1, -1
	}
	order := []int{root}
	visited[root] = true
	for k := 0; k < len(order); k++ {
		bus := order[k]
		for _, bi := range adj[bus] {
			if bi == via[bus] {
				continue
			}
			other := branches[bi].b
			if other == bus {
				other = branches[bi].a
			}
			if visited[other] {
				return fmt.Errorf("%w: loop through bus %q", ErrNotRadial, n.Buses[other].Name)
			}
			visited[other] = true
			parent[other], via[other] = bus, bi
			order = append(order, other)
		}
	}
	if len(order) != nb {
		for i, ok := range visited {
			if !ok {
				return fmt.Errorf("%w: %q", ErrDisconnected, n.Buses[i].Name)
			}
		}
	}

	pd := make([]float64, nb)
	qd := make([]float64, nb)
	for _, rows := range [][]Element{n.Loads, n.Sgens, n.Storages} {
		for _, e := range rows {
			pd[e.Bus] += e.P / s.BaseMVA
			qd[e.Bus] += e.Q / s.BaseMVA
		}
	}

	vm0 := n.ExtGrids[0].VmPU
	if vm0 == 0 {
		vm0 = 1
	}
	v := make([]float64, nb)
	for i := range v {
		v[i] = vm0
	}
	downP := make([]float64, nb)
	downQ := make([]float64, nb)
	sendP := make([]float64, nb)
	sendQ := make([]float64, nb)

	converged := false
	for iter := 0; iter < s.MaxIterations && !converged; iter++ {
		copy(downP, pd)
		copy(downQ, qd)
		for k := len(order) - 1; k >= 1; k-- {
			bus := order[k]
			br := branches[via[bus]]
			ell := (downP[bus]*downP[bus] + downQ[bus]*downQ[bus]) / (v[bus] * v[bus])
			sendP[bus] = downP[bus] + br.r*ell
			sendQ[bus] = downQ[bus] + br.x*ell
			downP[parent[bus]] += sendP[bus]
			downQ[parent[bus]] += sendQ[bus]
		}

		var diff float64
		for k := 1; k < len(order); k++ {
			bus := order[k]
			br := branches[via[bus]]
			vi := v[parent[bus]]
			ell := (sendP[bus]*sendP[bus] + sendQ[bus]*sendQ[bus]) / (vi * vi)
			v2 := vi*vi - 2*(br.r*sendP[bus]+br.x*sendQ[bus]) + (br.r*br.r+br.x*br.x)*ell
			if v2 <= 0 || math.IsNaN(v2) {
				return fmt.Errorf("%w: voltage collapse at bus %q", ErrNotConverged, n.Buses[bus].Name)
			}
			nv := math.Sqrt(v2)
			diff = max(diff, math.Abs(nv-v[bus]))
			v[bus] = nv
		}
		converged = diff < s.Tolerance
	}
	if !converged {
		return fmt.Errorf("%w after %d iterations", ErrNotConverged, s.MaxIterations)
	}

	s.fillResults(n, branches, order, parent, via, v, pd, qd, downP, downQ, sendP, sendQ)
	return nil
}

func (s *RadialSolver) fillResults(n *Net, branches []branch, order, parent, via []int, v, pd, qd, downP, downQ, sendP, sendQ []float64) {
	base := s.BaseMVA
	res := Results{
		Bus:     make([]BusResult, len(n.Buses)),
		Line:    make([]LineResult, len(n.Lines)),
		Trafo:   make([]TrafoResult, len(n.Trafos)),
		Load:    pqRows(n.Loads),
		Sgen:    pqRows(n.Sgens),
		Storage: pqRows(n.Storages),
	}
	for i := range res.Bus {
		res.Bus[i] = BusResult{VmPU: v[i], PMW: pd[i] * base, QMVar: qd[i] * base}
	}
	for _, bus := range order[1:] {
		br := branches[via[bus]]
		up := parent[bus]
		// Flow seen from the branch's own first terminal.
		pFrom, qFrom := sendP[bus], sendQ[bus]
		if br.a != up {
			pFrom, qFrom = -downP[bus], -downQ[bus]
		}
		sSend := math.Hypot(sendP[bus], sendQ[bus])
		sRecv := math.Hypot(downP[bus], downQ[bus])
		loss := (sendP[bus] - downP[bus]) * base
		if br.line >= 0 {
			ika := sSend / v[up] * base / (math.Sqrt(3) * br.baseKV)
			r := LineResult{PFromMW: pFrom * base, QFromMVar: qFrom * base, PlMW: loss, IKA: ika}
			if br.maxIKA > 0 {
				r.LoadingPercent = ika / br.maxIKA * 100
			}
			res.Line[br.line] = r
			continue
		}
		res.Trafo[br.trafo] = TrafoResult{
			PHVMW:          pFrom * base,
			QHVMVar:        qFrom * base,
			PlMW:           loss,
			LoadingPercent: max(sSend, sRecv) * base / br.ratedMVA * 100,
		}
	}
	root := order[0]
	res.ExtGrid = []PQResult{{PMW: downP[root] * base, QMVar: downQ[root] * base}}
	n.Results = res
}

func pqRows(rows []Element) []PQResult {
	out := make([]PQResult, len(rows))
	for i, e := range rows {
		out[i] = PQResult{PMW: e.P, QMVar: e.Q}
	}
	return out
}

// CopperPlate treats the grid as a single lossless node. Every bus sits at
// the voltage of the first external grid and all lines and trafos report
// zero flow. It serves meshed grids and runs where only the balance matters.
type CopperPlate struct{}

func (CopperPlate) RunPowerFlow(n *Net) error {
	if err := n.Validate(); err != nil {
		return err
	}
	vm := n.ExtGrids[0].VmPU
	if vm == 0 {
		vm = 1
	}
	res := Results{
		Bus:     make([]BusResult, len(n.Buses)),
		Line:    make([]LineResult, len(n.Lines)),
		Trafo:   make([]TrafoResult, len(n.Trafos)),
		Load:    pqRows(n.Loads),
		Sgen:    pqRows(n.Sgens),
		Storage: pqRows(n.Storages),
		ExtGrid: make([]PQResult, len(n.ExtGrids)),
	}
	for i := range res.Bus {
		res.Bus[i].VmPU = vm
	}
	var p, q float64
	for _, rows := range [][]Element{n.Loads, n.Sgens, n.Storages} {
		for _, e := range rows {
			res.Bus[e.Bus].PMW += e.P
			res.Bus[e.Bus].QMVar += e.Q
			p += e.P
			q += e.Q
		}
	}
	res.ExtGrid[0] = PQResult{PMW: p, QMVar: q}
	n.Results = res
	return nil
}
