package analysis

import (
	"sync"

	"github.com/stwalsh4118/broker/internal/models"
	"golang.org/x/sync/singleflight"
)

// ForecastMemo memoizes forecasts per (zipcode, as-of month) for the lifetime of one batch.
// Concurrent requests for the same key share a single computation. Create a new memo per batch.
type ForecastMemo struct {
	forecaster *Forecaster
	horizon    int

	group   singleflight.Group
	mu      sync.RWMutex
	results map[string]*models.ForecastResult
	misses  int
}

// NewForecastMemo creates an empty memo in front of forecaster.
func NewForecastMemo(forecaster *Forecaster, horizon int) *ForecastMemo {
	return &ForecastMemo{
		forecaster: forecaster,
		horizon:    horizon,
		results:    make(map[string]*models.ForecastResult),
	}
}

// Forecast returns the memoized forecast for the series, computing it at most once per key.
// Failures are not memoized.
func (m *ForecastMemo) Forecast(series *MarketSeries) (*models.ForecastResult, error) {
	key := memoKey(series)

	m.mu.RLock()
	cached, ok := m.results[key]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.RLock()
		cached, ok := m.results[key]
		m.mu.RUnlock()
		if ok {
			return cached, nil
		}

		result, err := m.forecaster.Forecast(series, m.horizon)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.results[key] = result
		m.misses++
		m.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ForecastResult), nil
}

// Computed returns how many forecasts were actually computed.
func (m *ForecastMemo) Computed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.misses
}

func memoKey(series *MarketSeries) string {
	if series == nil || series.Len() == 0 {
		return ""
	}
	return series.ZipCode + "@" + series.AsOf().Format("2006-01")
}
