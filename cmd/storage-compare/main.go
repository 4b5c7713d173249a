package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"vpp_simulator/internal/component"
	"vpp_simulator/internal/scenario"
	"vpp_simulator/internal/simulator"
)

type result struct {
	capacity float64
	maxPower float64
	storages int
	summary  simulator.Summary
}

func main() {
	scenarioFile := flag.String("scenario", "scenario.yaml", "scenario file")
	cRate := flag.Float64("max-power-rate", 0.5, "C-rate for max charge/discharge power, 0 keeps the scenario's value")
	capsFlag := flag.String("capacities", "2.5,5,7.5,10,15,20", "comma-separated storage capacities in kWh")
	flag.Parse()

	capacities, err := parseCapacities(*capsFlag)
	if err != nil {
		log.Fatalf("Invalid capacities %q: %v", *capsFlag, err)
	}
	sort.Float64s(capacities)

	results := make([]result, 0, len(capacities))
	for _, c := range capacities {
		r, err := simulate(*scenarioFile, c, *cRate)
		if err != nil {
			log.Fatalf("%.1f kWh: %v", c, err)
		}
		results = append(results, r)
		fmt.Fprintf(os.Stderr, "  %.1f kWh done\n", c)
	}

	printTable(os.Stdout, *scenarioFile, results, *cRate)
}

// simulate rebuilds the scenario with every storage resized to capacity and
// runs it once.
func simulate(path string, capacity, cRate float64) (result, error) {
	sc, dir, err := scenario.LoadFile(path)
	if err != nil {
		return result{}, err
	}
	maxPower, n := resize(sc, capacity, cRate)
	if n == 0 {
		return result{}, fmt.Errorf("scenario %s has no storage component", path)
	}

	sim, err := sc.Build(dir, nil)
	if err != nil {
		return result{}, err
	}
	if err := sim.Prepare(); err != nil {
		return result{}, err
	}
	op, err := sim.Operator()
	if err != nil {
		return result{}, err
	}
	run, err := op.RunBaseScenario(sim.Baseload)
	if err != nil {
		return result{}, err
	}
	return result{capacity: capacity, maxPower: maxPower, storages: n, summary: run.Summary}, nil
}

// resize sets the capacity of every storage component and returns the
// resulting max power and the number of storages changed.
func resize(sc *scenario.Scenario, capacity, cRate float64) (float64, int) {
	var maxPower float64
	n := 0
	for i := range sc.Components {
		c := &sc.Components[i]
		if c.Type != component.ClassStorage || c.Storage == nil {
			continue
		}
		cfg := *c.Storage
		cfg.Capacity = capacity
		if cfg.InitialSOC > capacity {
			cfg.InitialSOC = capacity
		}
		if cRate > 0 {
			cfg.MaxPower = capacity * cRate
		}
		c.Storage = &cfg
		maxPower = cfg.MaxPower
		n++
	}
	return maxPower, n
}

func printTable(w io.Writer, scenarioFile string, results []result, cRate float64) {
	if len(results) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Storage Size Comparison")
	fmt.Fprintf(w, "  Scenario: %s, C-rate: %.2f, Steps: %d\n", scenarioFile, cRate, results[0].summary.Steps)
	fmt.Fprintln(w)

	fmt.Fprintf(w, " %9s │ %9s │ %11s │ %11s │ %6s │ %9s │ %9s\n",
		"Capacity", "Max Power", "Grid Import", "Grid Export", "Cycles", "Marginal", "Self-Suff")
	fmt.Fprintf(w, "───────────┼───────────┼─────────────┼─────────────┼────────┼───────────┼───────────\n")

	for i, r := range results {
		marginal := "-"
		if i > 0 {
			prev := results[i-1]
			if dCap := r.capacity - prev.capacity; dCap > 0 {
				marginal = fmt.Sprintf("%.2f", (prev.summary.GridImportKWh-r.summary.GridImportKWh)/dCap)
			}
		}
		fmt.Fprintf(w, " %5.1f kWh │ %5.1f kW  │ %7.1f kWh │ %7.1f kWh │ %6.1f │ %9s │ %8.1f%%\n",
			r.capacity,
			r.maxPower,
			r.summary.GridImportKWh,
			r.summary.GridExportKWh,
			cycles(r),
			marginal,
			r.summary.SelfSufficiency(),
		)
	}
	fmt.Fprintln(w)
}

// cycles counts full equivalent discharge cycles per storage.
func cycles(r result) float64 {
	if r.capacity <= 0 || r.storages == 0 {
		return 0
	}
	return r.summary.StorageDischargeKWh / (r.capacity * float64(r.storages))
}

func parseCapacities(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	caps := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", p, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("capacity must be positive, got %v", v)
		}
		caps = append(caps, v)
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("no capacities specified")
	}
	return caps, nil
}
