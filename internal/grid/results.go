package grid

import (
	"time"
)

type BusResult struct {
	VmPU     float64 `json:"vm_pu"`
	VaDegree float64 `json:"va_degree"`
	PMW      float64 `json:"p_mw"`
	QMVar    float64 `json:"q_mvar"`
}

type LineResult struct {
	PFromMW        float64 `json:"p_from_mw"`
	QFromMVar      float64 `json:"q_from_mvar"`
	PlMW           float64 `json:"pl_mw"`
	IKA            float64 `json:"i_ka"`
	LoadingPercent float64 `json:"loading_percent"`
}

type TrafoResult struct {
	PHVMW          float64 `json:"p_hv_mw"`
	QHVMVar        float64 `json:"q_hv_mvar"`
	PlMW           float64 `json:"pl_mw"`
	LoadingPercent float64 `json:"loading_percent"`
}

type PQResult struct {
	PMW   float64 `json:"p_mw"`
	QMVar float64 `json:"q_mvar"`
}

// Results holds the result tables of the last power flow, indexed like the
// element tables.
type Results struct {
	Bus     []BusResult   `json:"res_bus"`
	Line    []LineResult  `json:"res_line"`
	Trafo   []TrafoResult `json:"res_trafo"`
	Load    []PQResult    `json:"res_load"`
	Sgen    []PQResult    `json:"res_sgen"`
	Storage []PQResult    `json:"res_storage"`
	ExtGrid []PQResult    `json:"res_ext_grid"`
}

func (r Results) clone() Results {
	return Results{
		Bus:     append([]BusResult(nil), r.Bus...),
		Line:    append([]LineResult(nil), r.Line...),
		Trafo:   append([]TrafoResult(nil), r.Trafo...),
		Load:    append([]PQResult(nil), r.Load...),
		Sgen:    append([]PQResult(nil), r.Sgen...),
		Storage: append([]PQResult(nil), r.Storage...),
		ExtGrid: append([]PQResult(nil), r.ExtGrid...),
	}
}

// Snapshot is the state of the grid tables after one timestep.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Results   Results   `json:"results"`
	// Row names per element table, for labelling extracted results.
	Names map[string][]string `json:"names"`
}

// Capture copies the element names and result tables of n.
func Capture(t time.Time, n *Net) Snapshot {
	names := map[string][]string{
		"bus":      make([]string, len(n.Buses)),
		"line":     make([]string, len(n.Lines)),
		"trafo":    make([]string, len(n.Trafos)),
		"load":     elementNames(n.Loads),
		"sgen":     elementNames(n.Sgens),
		"storage":  elementNames(n.Storages),
		"ext_grid": make([]string, len(n.ExtGrids)),
	}
	for i, b := range n.Buses {
		names["bus"][i] = b.Name
	}
	for i, l := range n.Lines {
		names["line"][i] = l.Name
	}
	for i, tr := range n.Trafos {
		names["trafo"][i] = tr.Name
	}
	for i, g := range n.ExtGrids {
		names["ext_grid"][i] = g.Name
	}
	return Snapshot{Timestamp: t, Results: n.Results.clone(), Names: names}
}

func elementNames(rows []Element) []string {
	out := make([]string, len(rows))
	for i, e := range rows {
		out[i] = e.Name
	}
	return out
}

// Snapshots keeps one snapshot per timestep in insertion order.
type Snapshots struct {
	order []time.Time
	items map[int64]Snapshot
}

func NewSnapshots() *Snapshots {
	return &Snapshots{items: make(map[int64]Snapshot)}
}

// Put stores s, replacing an earlier snapshot of the same timestamp.
func (s *Snapshots) Put(snap Snapshot) {
	key := snap.Timestamp.UnixNano()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, snap.Timestamp)
	}
	s.items[key] = snap
}

func (s *Snapshots) Get(t time.Time) (Snapshot, bool) {
	snap, ok := s.items[t.UnixNano()]
	return snap, ok
}

// Timestamps returns the keys in insertion order.
func (s *Snapshots) Timestamps() []time.Time { return s.order }
func (s *Snapshots) Len() int                { return len(s.order) }
