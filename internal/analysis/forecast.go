package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/stwalsh4118/broker/internal/logger"
	"github.com/stwalsh4118/broker/internal/models"
)

// Forecast defaults
const (
	DefaultHorizonMonths = 36
	DefaultTrendWindow   = 12
	MinTrendWindow       = 3
	rentGrowthMonths     = 12
)

// ForecastStrategy fits one series and projects it horizon months ahead.
// Implementations return an error wrapping ErrTierUnavailable when they cannot run for the input.
type ForecastStrategy interface {
	Method() models.ForecastMethod
	Project(values []float64, horizon int) ([]float64, error)
}

// ForecastOptions configures the tier chain.
type ForecastOptions struct {
	SeasonalEnabled bool
	TrendWindow     int
}

// Forecaster runs an ordered chain of forecast strategies and keeps the first that succeeds
// for both price and rent.
type Forecaster struct {
	strategies []ForecastStrategy
	log        *logger.Logger
}

// NewForecaster builds the standard seasonal -> autoregressive -> naive chain.
func NewForecaster(opts ForecastOptions, log *logger.Logger) *Forecaster {
	strategies := make([]ForecastStrategy, 0, 3)
	strategies = append(strategies, &SeasonalStrategy{Enabled: opts.SeasonalEnabled, SeasonLength: 12})
	strategies = append(strategies, &AutoregressiveStrategy{})
	strategies = append(strategies, &NaiveStrategy{Window: opts.TrendWindow})
	return NewForecasterWithStrategies(strategies, log)
}

// NewForecasterWithStrategies builds a chain from an explicit strategy list, tried in order.
func NewForecasterWithStrategies(strategies []ForecastStrategy, log *logger.Logger) *Forecaster {
	return &Forecaster{strategies: strategies, log: log}
}

// tierOutcome is the tagged result of one tier attempt.
type tierOutcome struct {
	method models.ForecastMethod
	prices []float64
	rents  []float64
	err    error
}

// Forecast projects price and rent for the series. It fails only when every tier failed,
// which the naive tier prevents for any non-empty series.
func (f *Forecaster) Forecast(series *MarketSeries, horizon int) (*models.ForecastResult, error) {
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrForecastUnavailable)
	}
	if horizon <= 0 {
		horizon = DefaultHorizonMonths
	}

	prices := series.Prices()
	rents := series.Rents()

	var failures []error
	for _, strategy := range f.strategies {
		outcome := attempt(strategy, prices, rents, horizon)
		if outcome.err != nil {
			failures = append(failures, outcome.err)
			if f.log != nil {
				f.log.Warn("Forecast tier demoted", map[string]interface{}{
					"zipcode": series.ZipCode,
					"method":  string(outcome.method),
					"reason":  outcome.err.Error(),
				})
			}
			continue
		}

		result := buildForecastResult(series, outcome, horizon)
		if f.log != nil {
			f.log.Debug("Forecast produced", map[string]interface{}{
				"zipcode": series.ZipCode,
				"method":  string(result.Method),
				"horizon": horizon,
				"months":  series.Len(),
			})
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: zip %s: %w", ErrForecastUnavailable, series.ZipCode, errors.Join(failures...))
}

// attempt runs one strategy on both series. A panic inside a model fit is reported as a tier failure.
func attempt(strategy ForecastStrategy, prices, rents []float64, horizon int) (outcome tierOutcome) {
	outcome.method = strategy.Method()
	defer func() {
		if r := recover(); r != nil {
			outcome.prices, outcome.rents = nil, nil
			outcome.err = fmt.Errorf("%s tier panicked: %v", outcome.method, r)
		}
	}()

	p, err := strategy.Project(prices, horizon)
	if err != nil {
		outcome.err = fmt.Errorf("%s price: %w", outcome.method, err)
		return outcome
	}
	r, err := strategy.Project(rents, horizon)
	if err != nil {
		outcome.err = fmt.Errorf("%s rent: %w", outcome.method, err)
		return outcome
	}
	if len(p) != horizon || len(r) != horizon || !allFinite(p) || !allFinite(r) {
		outcome.err = fmt.Errorf("%s produced an invalid projection", outcome.method)
		return outcome
	}
	outcome.prices, outcome.rents = p, r
	return outcome
}

func buildForecastResult(series *MarketSeries, outcome tierOutcome, horizon int) *models.ForecastResult {
	asOf := series.AsOf()
	projection := make([]models.ProjectionPoint, horizon)
	for i := 0; i < horizon; i++ {
		projection[i] = models.ProjectionPoint{
			Date:  addMonths(asOf, i+1),
			Price: math.Max(outcome.prices[i], 0),
			Rent:  math.Max(outcome.rents[i], 0),
		}
	}

	return &models.ForecastResult{
		AsOf:          asOf,
		ZipCode:       series.ZipCode,
		Method:        outcome.method,
		Projection:    projection,
		RentGrowth12m: rentGrowth(series.Latest().MedianRent, projection),
	}
}

// rentGrowth is (projected rent at month 12 - current rent) / current rent.
// Shorter projections use their last point.
func rentGrowth(current float64, projection []models.ProjectionPoint) *float64 {
	if current <= 0 || len(projection) == 0 {
		return nil
	}
	idx := rentGrowthMonths
	if idx > len(projection) {
		idx = len(projection)
	}
	return ptr((projection[idx-1].Rent - current) / current)
}
