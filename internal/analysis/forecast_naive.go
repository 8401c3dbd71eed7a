package analysis

import (
	"fmt"

	"github.com/stwalsh4118/broker/internal/models"
	"gonum.org/v1/gonum/stat"
)

// NaiveStrategy extrapolates the trailing linear trend from the last observed value.
// It holds the last value flat when the window is degenerate. It is the floor of the
// chain and succeeds for any non-empty series.
type NaiveStrategy struct {
	Window int
}

// Method implements ForecastStrategy.
func (n *NaiveStrategy) Method() models.ForecastMethod {
	return models.ForecastNaive
}

// Project implements ForecastStrategy.
func (n *NaiveStrategy) Project(values []float64, horizon int) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: naive model needs at least one observation", ErrTierUnavailable)
	}

	last := values[len(values)-1]
	slope := TrailingSlope(values, n.Window)

	forecast := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		forecast[h-1] = last + slope*float64(h)
	}
	return forecast, nil
}

// TrailingSlope is the least-squares slope per month over the last window observations.
// It is zero for fewer than two observations or a constant window.
func TrailingSlope(values []float64, window int) float64 {
	if window < MinTrendWindow {
		window = DefaultTrendWindow
	}
	if len(values) < window {
		window = len(values)
	}
	if window < 2 {
		return 0
	}

	tail := values[len(values)-window:]
	if stat.Variance(tail, nil) == 0 || !allFinite(tail) {
		return 0
	}

	xs := make([]float64, window)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, tail, nil, false)
	if !isFinite(beta) {
		return 0
	}
	return beta
}
