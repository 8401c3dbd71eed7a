package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/stwalsh4118/broker/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// minARObservations is the shortest history the autoregressive tier will fit.
	minARObservations = 8
	// explosionFactor bounds projections relative to the largest observed magnitude.
	explosionFactor = 10.0
)

// arOrders is the fixed (p, d) search space, in evaluation order.
var arOrders = []struct{ p, d int }{
	{1, 0}, {2, 0}, {3, 0},
	{1, 1}, {2, 1}, {3, 1},
}

// AutoregressiveStrategy fits ARIMA(p,d,0) models by least squares over a small fixed
// order search and keeps the candidate with the lowest AIC.
type AutoregressiveStrategy struct{}

// Method implements ForecastStrategy.
func (a *AutoregressiveStrategy) Method() models.ForecastMethod {
	return models.ForecastAutoregressive
}

// Project implements ForecastStrategy.
func (a *AutoregressiveStrategy) Project(values []float64, horizon int) ([]float64, error) {
	if len(values) < minARObservations {
		return nil, fmt.Errorf("%w: autoregressive model needs %d observations, have %d",
			ErrTierUnavailable, minARObservations, len(values))
	}

	limit := explosionFactor * math.Max(floats.Max(values), -floats.Min(values))

	var best []float64
	bestAIC := math.Inf(1)
	var lastErr error
	for _, order := range arOrders {
		forecast, aic, err := fitARIMA(values, order.p, order.d, horizon)
		if err != nil {
			lastErr = err
			continue
		}
		if !allFinite(forecast) || exceeds(forecast, limit) {
			lastErr = fmt.Errorf("ARIMA(%d,%d,0) projection diverged", order.p, order.d)
			continue
		}
		if aic < bestAIC {
			bestAIC = aic
			best = forecast
		}
	}

	if best == nil {
		if lastErr == nil {
			lastErr = errors.New("no candidate order")
		}
		return nil, fmt.Errorf("autoregressive fit failed: %w", lastErr)
	}
	return best, nil
}

// fitARIMA fits z_t = c + sum(phi_i * z_{t-i}) on the d-times differenced series and
// integrates the projection back to levels.
func fitARIMA(y []float64, p, d, horizon int) ([]float64, float64, error) {
	z := difference(y, d)
	rows := len(z) - p
	cols := p + 1
	if rows < cols+2 {
		return nil, 0, fmt.Errorf("ARIMA(%d,%d,0) has too few observations", p, d)
	}

	target := z[p:]
	if stat.Variance(target, nil) == 0 {
		return nil, 0, fmt.Errorf("ARIMA(%d,%d,0) target has zero variance", p, d)
	}

	design := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		t := r + p
		design.Set(r, 0, 1)
		for i := 1; i <= p; i++ {
			design.Set(r, i, z[t-i])
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(design, mat.NewVecDense(rows, append([]float64(nil), target...))); err != nil {
		return nil, 0, fmt.Errorf("ARIMA(%d,%d,0) least squares failed: %w", p, d, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &coef)
	sse := 0.0
	for r := 0; r < rows; r++ {
		diff := target[r] - fitted.AtVec(r)
		sse += diff * diff
	}
	variance := math.Max(sse/float64(rows), 1e-12)
	aic := float64(rows)*math.Log(variance) + 2*float64(cols)

	history := append([]float64(nil), z...)
	projected := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		next := coef.AtVec(0)
		n := len(history)
		for i := 1; i <= p; i++ {
			next += coef.AtVec(i) * history[n-i]
		}
		history = append(history, next)
		projected[h] = next
	}

	return integrate(y, projected, d), aic, nil
}

// difference applies first differencing d times.
func difference(y []float64, d int) []float64 {
	out := append([]float64(nil), y...)
	for k := 0; k < d; k++ {
		next := make([]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			next[i-1] = out[i] - out[i-1]
		}
		out = next
	}
	return out
}

// integrate undoes first differencing for a projection that starts after y ends.
func integrate(y, projected []float64, d int) []float64 {
	if d == 0 {
		return projected
	}
	out := make([]float64, len(projected))
	level := y[len(y)-1]
	for i, step := range projected {
		level += step
		out[i] = level
	}
	return out
}

func exceeds(values []float64, limit float64) bool {
	for _, v := range values {
		if math.Abs(v) > limit {
			return true
		}
	}
	return false
}
