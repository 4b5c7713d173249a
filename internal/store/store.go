package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"vpp_simulator/internal/model"
)

// ErrNoData is returned when a series has no reading covering a requested timestamp.
var ErrNoData = errors.New("no data")

// Store holds exogenous input series in memory, indexed by series ID.
type Store struct {
	mu       sync.RWMutex
	series   map[string]model.Series
	readings map[string][]model.Reading // keyed by series ID, sorted by timestamp
}

func New() *Store {
	return &Store{
		series:   make(map[string]model.Series),
		readings: make(map[string][]model.Reading),
	}
}

// AddSeries registers a series.
func (s *Store) AddSeries(series model.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.ID] = series
}

// AddReadings adds readings, registering unknown series from the catalog,
// then sorts every affected series by timestamp.
func (s *Store) AddReadings(readings []model.Reading) {
	if len(readings) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, r := range readings {
		s.readings[r.SeriesID] = append(s.readings[r.SeriesID], r)
		touched[r.SeriesID] = true
		if _, ok := s.series[r.SeriesID]; !ok {
			info := model.SeriesCatalog[r.Type]
			unit := r.Unit
			if unit == "" {
				unit = info.Unit
			}
			s.series[r.SeriesID] = model.Series{ID: r.SeriesID, Name: info.Name, Type: r.Type, Unit: unit}
		}
	}

	for id := range touched {
		rs := s.readings[id]
		sort.SliceStable(rs, func(i, j int) bool {
			return rs[i].Timestamp.Before(rs[j].Timestamp)
		})
	}
}

// Series returns all registered series sorted by ID.
func (s *Store) Series() []model.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Series, 0, len(s.series))
	for _, series := range s.series {
		out = append(out, series)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeriesOfType returns the IDs of all series with the given type, sorted.
func (s *Store) SeriesOfType(t model.SeriesType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, series := range s.series {
		if series.Type == t {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ReadingCount returns the total number of readings for a series.
func (s *Store) ReadingCount(seriesID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings[seriesID])
}

// TimeRange returns the time range covered by a series' readings.
func (s *Store) TimeRange(seriesID string) (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.readings[seriesID]
	if len(readings) == 0 {
		return model.TimeRange{}, false
	}

	return model.TimeRange{
		Start: readings[0].Timestamp,
		End:   readings[len(readings)-1].Timestamp,
	}, true
}

// GlobalTimeRange returns the union of all series' time ranges.
func (s *Store) GlobalTimeRange() (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tr model.TimeRange
	first := true
	for _, readings := range s.readings {
		if len(readings) == 0 {
			continue
		}
		rStart := readings[0].Timestamp
		rEnd := readings[len(readings)-1].Timestamp
		if first || rStart.Before(tr.Start) {
			tr.Start = rStart
		}
		if first || rEnd.After(tr.End) {
			tr.End = rEnd
		}
		first = false
	}
	return tr, !first
}

// ReadingsInRange returns readings for a series between start (inclusive) and end (exclusive).
func (s *Store) ReadingsInRange(seriesID string, start, end time.Time) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.readings[seriesID]
	startIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(start)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(end)
	})
	if startIdx >= endIdx {
		return nil
	}

	result := make([]model.Reading, endIdx-startIdx)
	copy(result, all[startIdx:endIdx])
	return result
}

// ReadingAt returns the most recent reading at or before the given timestamp.
func (s *Store) ReadingAt(seriesID string, t time.Time) (model.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readingAt(s.readings[seriesID], t)
}

func readingAt(all []model.Reading, t time.Time) (model.Reading, bool) {
	idx := sort.Search(len(all), func(i int) bool {
		return all[i].Timestamp.After(t)
	})
	if idx == 0 {
		return model.Reading{}, false
	}
	return all[idx-1], true
}

// Align samples a series onto a simulation index, holding the last reading
// at or before each timestamp. Coarser inputs (hourly weather on a
// quarter-hourly index) are therefore stepped, not interpolated.
func (s *Store) Align(seriesID string, index []time.Time) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.readings[seriesID]
	if len(all) == 0 {
		return nil, fmt.Errorf("series %q: %w", seriesID, ErrNoData)
	}

	out := make([]float64, len(index))
	for i, t := range index {
		r, ok := readingAt(all, t)
		if !ok {
			return nil, fmt.Errorf("series %q at %s: %w", seriesID, t.Format(time.RFC3339), ErrNoData)
		}
		out[i] = r.Value
	}
	return out, nil
}
