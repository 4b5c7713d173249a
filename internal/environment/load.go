package environment

import (
	"errors"
	"fmt"

	"vpp_simulator/internal/model"
	"vpp_simulator/internal/store"
)

// DailyMeanSeriesID is the store key of an optional day-resolution mean
// temperature series. Without it, daily means are derived.
const DailyMeanSeriesID = "daily_mean_temperature"

var pvWeatherTypes = []model.SeriesType{
	model.SeriesGHI,
	model.SeriesDNI,
	model.SeriesDHI,
	model.SeriesAirTemperature,
	model.SeriesWindSpeed,
}

// LoadFromStore aligns every known input series in st onto the index:
// PV weather columns by type, mean temperature, wind frame columns and
// named series such as power traces. Missing optional inputs are skipped.
func (e *Environment) LoadFromStore(st *store.Store) error {
	for _, typ := range pvWeatherTypes {
		for _, id := range st.SeriesOfType(typ) {
			if _, _, ok := model.ParseWindSeriesID(id); ok {
				continue
			}
			vals, err := st.Align(id, e.index)
			if err != nil {
				return fmt.Errorf("load irradiation: %w", err)
			}
			if err := e.SetIrradiation(string(typ), vals); err != nil {
				return err
			}
		}
	}

	for _, id := range st.SeriesOfType(model.SeriesMeanTemp) {
		if id == DailyMeanSeriesID {
			continue
		}
		vals, err := st.Align(id, e.index)
		if err != nil {
			return fmt.Errorf("load temperature: %w", err)
		}
		if err := e.SetTemperature(vals); err != nil {
			return err
		}
	}
	if e.temperature == nil {
		if vals, ok := e.irradiation[string(model.SeriesAirTemperature)]; ok {
			e.temperature = vals
		}
	}

	if vals, err := st.Align(DailyMeanSeriesID, e.days); err == nil {
		if err := e.SetDailyMeanTemperatures(vals); err != nil {
			return err
		}
	} else if !errors.Is(err, store.ErrNoData) {
		return err
	}

	for _, s := range st.Series() {
		if variable, height, ok := model.ParseWindSeriesID(s.ID); ok {
			vals, err := st.Align(s.ID, e.index)
			if err != nil {
				return fmt.Errorf("load wind: %w", err)
			}
			if err := e.SetWind(variable, height, vals); err != nil {
				return err
			}
		}
	}

	for _, typ := range []model.SeriesType{model.SeriesPowerTrace, model.SeriesPVPower} {
		for _, id := range st.SeriesOfType(typ) {
			vals, err := st.Align(id, e.index)
			if err != nil {
				return fmt.Errorf("load %s: %w", typ, err)
			}
			if err := e.SetSeries(id, vals); err != nil {
				return err
			}
		}
	}
	return nil
}
