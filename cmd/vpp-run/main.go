// Command vpp-run simulates a scenario once, prints its energy summary and
// exports the grid result tables as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"vpp_simulator/internal/config"
	"vpp_simulator/internal/logging"
	"vpp_simulator/internal/messaging"
	"vpp_simulator/internal/repository"
	"vpp_simulator/internal/scenario"
	"vpp_simulator/internal/simulator"
)

type options struct {
	scenarioFile string
	outDir       string
	seed         uint64
	export       bool
	persist      bool
	publish      bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.scenarioFile, "scenario", cfg.ScenarioFile, "scenario file")
	flag.StringVar(&opts.outDir, "out", cfg.DataDir, "directory for CSV exports")
	flag.Uint64Var(&opts.seed, "seed", cfg.Seed, "override the scenario seed (0 keeps it)")
	flag.BoolVar(&opts.export, "export", true, "write result tables as CSV")
	flag.BoolVar(&opts.persist, "persist", false, "store the run in SQLITE_PATH or DATABASE_URL")
	flag.BoolVar(&opts.publish, "publish", false, "publish run events to NATS_URL")
	debug := flag.Bool("debug", cfg.Debug, "verbose logging")
	flag.Parse()

	logger := logging.New(*debug)
	defer logger.Sync()

	if err := run(context.Background(), cfg, opts, os.Stdout, logger); err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, w io.Writer, logger *zap.Logger) error {
	sc, dir, err := scenario.LoadFile(opts.scenarioFile)
	if err != nil {
		return err
	}
	if opts.seed != 0 {
		sc.Seed = opts.seed
	}
	sim, err := sc.Build(dir, logger)
	if err != nil {
		return err
	}
	if err := sim.Prepare(); err != nil {
		return err
	}

	var callbacks simulator.MultiCallback
	if opts.publish && cfg.NATSURL != "" {
		nc, err := messaging.Connect(messaging.Config{URL: cfg.NATSURL, Name: "vpp-run"}, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		defer nc.Flush()
		callbacks = append(callbacks, messaging.NewPublisher(nc, cfg.NATSSubject, logger))
	}

	op, err := sim.Operator(simulator.WithCallback(callbacks), simulator.WithLogger(logger))
	if err != nil {
		return err
	}
	res, runErr := op.RunBaseScenario(sim.Baseload)
	if res == nil {
		return runErr
	}

	if opts.persist {
		repo, err := repository.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
		if err != nil {
			return err
		}
		if repo == nil {
			logger.Warn("Persistence requested but SQLITE_PATH and DATABASE_URL are empty")
		} else {
			defer repo.Close()
			if err := repo.SaveRun(ctx, res); err != nil {
				return fmt.Errorf("save run: %w", err)
			}
		}
	}

	printSummary(w, res)

	if opts.export && len(res.Steps) > 0 {
		files, err := export(opts.outDir, res)
		if err != nil {
			return err
		}
		logger.Info("Results exported", zap.String("dir", opts.outDir), zap.Int("files", files))
	}
	return runErr
}

// export writes one CSV per result table plus steps.csv with the component
// values of every step.
func export(dir string, res *simulator.Run) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	frames, err := simulator.ExtractResults(res.Snapshots)
	if err != nil {
		return 0, err
	}
	frames["steps"] = stepsFrame(res.Steps)

	for key, df := range frames {
		if err := writeCSV(filepath.Join(dir, key+".csv"), df); err != nil {
			return 0, err
		}
	}
	return len(frames), nil
}

func writeCSV(path string, df dataframe.DataFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func stepsFrame(steps []simulator.StepResult) dataframe.DataFrame {
	ids := map[string]bool{}
	for _, s := range steps {
		for id := range s.Values {
			ids[id] = true
		}
	}
	names := make([]string, 0, len(ids))
	for id := range ids {
		names = append(names, id)
	}
	sort.Strings(names)

	stamps := make([]string, len(steps))
	baseload := make([]float64, len(steps))
	gridKW := make([]float64, len(steps))
	cols := make([][]float64, len(names))
	for c := range cols {
		cols[c] = make([]float64, len(steps))
	}
	for i, s := range steps {
		stamps[i] = s.Timestamp.Format(time.RFC3339)
		baseload[i] = s.BaseloadKW
		gridKW[i] = s.GridKW
		for c, id := range names {
			cols[c][i] = s.Values[id]
		}
	}

	list := []series.Series{
		series.New(stamps, series.String, "timestamp"),
		series.New(baseload, series.Float, "baseload_kw"),
		series.New(gridKW, series.Float, "grid_kw"),
	}
	for c, id := range names {
		list = append(list, series.New(cols[c], series.Float, id))
	}
	return dataframe.New(list...)
}

func printSummary(w io.Writer, res *simulator.Run) {
	s := res.Summary
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s (%s)\n", res.Name, res.ID)
	fmt.Fprintf(w, "  Steps: %d, elapsed: %s\n", s.Steps, res.Finished.Sub(res.Started).Round(time.Millisecond))
	if res.Err != nil {
		fmt.Fprintf(w, "  Aborted: %v\n", res.Err)
	}
	fmt.Fprintln(w)

	rows := []struct {
		label string
		value float64
		unit  string
	}{
		{"Load", s.LoadKWh, "kWh"},
		{"Generation", s.GenerationKWh, "kWh"},
		{"Household baseload", s.BaseloadKWh, "kWh"},
		{"Storage charge", s.StorageChargeKWh, "kWh"},
		{"Storage discharge", s.StorageDischargeKWh, "kWh"},
		{"Grid import", s.GridImportKWh, "kWh"},
		{"Grid export", s.GridExportKWh, "kWh"},
		{"Line losses", s.LossesKWh, "kWh"},
		{"Peak import", s.PeakImportKW, "kW"},
		{"Peak export", s.PeakExportKW, "kW"},
		{"Min voltage", s.MinVoltagePU, "pu"},
		{"Max line loading", s.MaxLineLoadingPercent, "%"},
		{"Self-sufficiency", s.SelfSufficiency(), "%"},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-20s %10.2f %s\n", r.label, r.value, r.unit)
	}

	if len(s.ComponentKWh) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Components")
		ids := make([]string, 0, len(s.ComponentKWh))
		for id := range s.ComponentKWh {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  %-20s %10.2f kWh\n", id, s.ComponentKWh[id])
		}
	}
	fmt.Fprintln(w)
}
