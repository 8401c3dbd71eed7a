package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/stwalsh4118/broker/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// smoothingGrid is the candidate set for alpha, beta and gamma.
var smoothingGrid = []float64{0.05, 0.2, 0.4, 0.6, 0.8}

// SeasonalStrategy is an additive Holt-Winters model (level, trend and a fixed-length season).
// Parameters are chosen by grid search on one-step-ahead squared error, so fits are deterministic.
type SeasonalStrategy struct {
	Enabled      bool
	SeasonLength int
}

// Method implements ForecastStrategy.
func (s *SeasonalStrategy) Method() models.ForecastMethod {
	return models.ForecastSeasonal
}

// Project implements ForecastStrategy.
func (s *SeasonalStrategy) Project(values []float64, horizon int) ([]float64, error) {
	if !s.Enabled {
		return nil, fmt.Errorf("%w: seasonal model disabled", ErrTierUnavailable)
	}
	m := s.SeasonLength
	if m < 2 {
		m = 12
	}
	if len(values) < 2*m {
		return nil, fmt.Errorf("%w: seasonal model needs %d observations, have %d", ErrTierUnavailable, 2*m, len(values))
	}

	var best []float64
	bestSSE := -1.0
	for _, alpha := range smoothingGrid {
		for _, beta := range smoothingGrid {
			for _, gamma := range smoothingGrid {
				forecast, sse := holtWinters(values, m, alpha, beta, gamma, horizon)
				if !isFinite(sse) || !allFinite(forecast) {
					continue
				}
				if bestSSE < 0 || sse < bestSSE {
					bestSSE = sse
					best = forecast
				}
			}
		}
	}

	if best == nil {
		return nil, errors.New("seasonal model did not converge")
	}
	return best, nil
}

// holtWinters fits an additive Holt-Winters model and returns the projection and the
// sum of squared one-step-ahead errors after the first season.
func holtWinters(y []float64, m int, alpha, beta, gamma float64, horizon int) ([]float64, float64) {
	firstMean := stat.Mean(y[:m], nil)
	secondMean := stat.Mean(y[m:2*m], nil)
	trend := (secondMean - firstMean) / float64(m)

	// Seasonal offsets are measured against the initial trend line so that the
	// first prediction reproduces y[0].
	center := float64(m-1) / 2
	season := make([]float64, m)
	for i := 0; i < m; i++ {
		season[i] = y[i] - (firstMean + (float64(i)-center)*trend)
	}
	level := firstMean - (center+1)*trend

	sse := 0.0
	for t, obs := range y {
		s := season[t%m]
		predicted := level + trend + s
		if t >= m {
			diff := obs - predicted
			sse += diff * diff
		}
		newLevel := alpha*(obs-s) + (1-alpha)*(level+trend)
		trend = beta*(newLevel-level) + (1-beta)*trend
		season[t%m] = gamma*(obs-newLevel) + (1-gamma)*s
		level = newLevel
	}

	n := len(y)
	forecast := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		forecast[h-1] = level + float64(h)*trend + season[(n+h-1)%m]
	}
	if floats.HasNaN(forecast) {
		return forecast, math.NaN()
	}
	return forecast, sse
}
