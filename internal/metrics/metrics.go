// Package metrics exposes run progress and grid state as Prometheus
// collectors fed by the operator callback.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vpp_simulator/internal/simulator"
)

// Collector implements simulator.Callback.
type Collector struct {
	reg *prometheus.Registry

	running         prometheus.Gauge
	steps           prometheus.Counter
	runs            *prometheus.CounterVec
	gridPower       prometheus.Gauge
	losses          prometheus.Gauge
	minVoltage      prometheus.Gauge
	lineLoading     prometheus.Gauge
	trafoLoading    prometheus.Gauge
	componentPower  *prometheus.GaugeVec
	energy          *prometheus.GaugeVec
	selfSufficiency prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		running: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_run_active",
			Help: "1 while a simulation run is in progress.",
		}),
		steps: f.NewCounter(prometheus.CounterOpts{
			Name: "vpp_steps_total",
			Help: "Simulation steps computed.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpp_runs_total",
			Help: "Finished simulation runs by outcome.",
		}, []string{"outcome"}),
		gridPower: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_grid_power_kw",
			Help: "External grid exchange of the last step; positive is import.",
		}),
		losses: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_grid_losses_kw",
			Help: "Line and transformer losses of the last step.",
		}),
		minVoltage: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_min_voltage_pu",
			Help: "Lowest bus voltage of the last step.",
		}),
		lineLoading: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_max_line_loading_percent",
			Help: "Highest line loading of the last step.",
		}),
		trafoLoading: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_max_trafo_loading_percent",
			Help: "Highest transformer loading of the last step.",
		}),
		componentPower: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpp_component_power_kw",
			Help: "Component value of the last step; generation is negative.",
		}, []string{"component"}),
		energy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpp_run_energy_kwh",
			Help: "Energy totals of the current run.",
		}, []string{"flow"}),
		selfSufficiency: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpp_self_sufficiency_percent",
			Help: "Share of demand not covered by grid import.",
		}),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) OnState(s simulator.State) {
	if s.Running {
		c.running.Set(1)
		return
	}
	c.running.Set(0)
	switch {
	case s.Error != "":
		c.runs.WithLabelValues("failed").Inc()
	case s.Steps > 0 && s.Step == s.Steps:
		c.runs.WithLabelValues("completed").Inc()
	}
}

func (c *Collector) OnStep(s simulator.StepResult) {
	c.steps.Inc()
	c.gridPower.Set(s.GridKW)
	c.losses.Set(s.LossesKW)
	c.minVoltage.Set(s.MinVoltagePU)
	c.lineLoading.Set(s.MaxLineLoadingPercent)
	c.trafoLoading.Set(s.MaxTrafoLoadingPercent)
	for id, v := range s.Values {
		c.componentPower.WithLabelValues(id).Set(v)
	}
}

func (c *Collector) OnSummary(s simulator.Summary) {
	for flow, v := range map[string]float64{
		"load":              s.LoadKWh,
		"generation":        s.GenerationKWh,
		"baseload":          s.BaseloadKWh,
		"storage_charge":    s.StorageChargeKWh,
		"storage_discharge": s.StorageDischargeKWh,
		"grid_import":       s.GridImportKWh,
		"grid_export":       s.GridExportKWh,
		"losses":            s.LossesKWh,
	} {
		c.energy.WithLabelValues(flow).Set(v)
	}
	c.selfSufficiency.Set(s.SelfSufficiency())
}
