package analysis

import (
	"fmt"

	"github.com/stwalsh4118/broker/internal/models"
)

// Metric defaults
const (
	DefaultExpenseRatio = 0.35
	// incomeGrowthLookbackMonths is how far back income growth is measured.
	incomeGrowthLookbackMonths = 36
	// minIncomeGrowthSpanMonths is the shortest span accepted for income growth.
	minIncomeGrowthSpanMonths = 12
)

// MetricOptions configures metric computation.
type MetricOptions struct {
	// ExpenseRatio is the share of gross annual rent assumed lost to operating expenses.
	ExpenseRatio float64
}

// MetricResult holds computed metrics and, for each metric that could not be computed, why.
type MetricResult struct {
	Metrics models.Metrics
	Missing map[string]error
}

// MissingReasons renders the missing-metric errors as strings.
func (r MetricResult) MissingReasons() map[string]string {
	if len(r.Missing) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Missing))
	for name, err := range r.Missing {
		out[name] = err.Error()
	}
	return out
}

// ComputeMetrics computes every metric independently. A metric that cannot be computed is
// left nil and its error (wrapping ErrMissingInput) recorded; the others are unaffected.
func ComputeMetrics(property models.PropertySnapshot, series *MarketSeries, forecast *models.ForecastResult,
	reference *ReferenceSnapshot, opts MetricOptions) MetricResult {
	result := MetricResult{Missing: make(map[string]error)}

	record := func(name string, value float64, err error) *float64 {
		if err != nil {
			result.Missing[name] = err
			return nil
		}
		if !isFinite(value) {
			result.Missing[name] = fmt.Errorf("%w: %s is not finite", ErrMissingInput, name)
			return nil
		}
		return ptr(value)
	}

	v, err := CapRate(property, series, opts.ExpenseRatio)
	result.Metrics.CapRate = record(models.MetricCapRate, v, err)

	v, err = Affordability(property, series)
	result.Metrics.Affordability = record(models.MetricAffordability, v, err)

	v, err = Appreciation(property)
	result.Metrics.Appreciation = record(models.MetricAppreciation, v, err)

	v, err = projectedRentGrowth(forecast)
	result.Metrics.RentGrowth12m = record(models.MetricRentGrowth12m, v, err)

	v, err = MarketStrength(series, reference)
	result.Metrics.MSI = record(models.MetricMSI, v, err)

	return result
}

// CapRate is (annual rent - expenseRatio * annual rent) / value.
// The ZIP's latest median price stands in for a missing property value estimate.
func CapRate(property models.PropertySnapshot, series *MarketSeries, expenseRatio float64) (float64, error) {
	if property.EstimatedMonthlyRent == nil || *property.EstimatedMonthlyRent <= 0 {
		return 0, fmt.Errorf("%w: property %s has no estimated rent", ErrMissingInput, property.ID)
	}

	value := 0.0
	if property.CurrentEstimatedValue != nil {
		value = *property.CurrentEstimatedValue
	} else if series != nil && series.Len() > 0 {
		value = series.Latest().MedianPrice
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: property %s has no value estimate", ErrMissingInput, property.ID)
	}

	annualRent := *property.EstimatedMonthlyRent * 12
	return (annualRent - expenseRatio*annualRent) / value, nil
}

// Affordability is monthly rent over monthly median income. The ZIP median rent is
// substituted when the property has no rent estimate.
func Affordability(property models.PropertySnapshot, series *MarketSeries) (float64, error) {
	rent := 0.0
	if property.EstimatedMonthlyRent != nil && *property.EstimatedMonthlyRent > 0 {
		rent = *property.EstimatedMonthlyRent
	} else if series != nil && series.Len() > 0 {
		rent = series.Latest().MedianRent
	}
	if rent <= 0 {
		return 0, fmt.Errorf("%w: no rent for property %s or its zip", ErrMissingInput, property.ID)
	}

	if series == nil || series.Len() == 0 {
		return 0, fmt.Errorf("%w: no market series for property %s", ErrMissingInput, property.ID)
	}
	income := series.Latest().MedianIncome
	if income == nil || *income <= 0 {
		return 0, fmt.Errorf("%w: zip %s has no median income", ErrMissingInput, series.ZipCode)
	}

	return rent / (*income / 12), nil
}

// Appreciation is (value - last sale price) / last sale price. It is display-only.
func Appreciation(property models.PropertySnapshot) (float64, error) {
	if property.CurrentEstimatedValue == nil || property.LastSalePrice == nil || *property.LastSalePrice <= 0 {
		return 0, fmt.Errorf("%w: property %s lacks value or last sale price", ErrMissingInput, property.ID)
	}
	return (*property.CurrentEstimatedValue - *property.LastSalePrice) / *property.LastSalePrice, nil
}

func projectedRentGrowth(forecast *models.ForecastResult) (float64, error) {
	if forecast == nil || forecast.RentGrowth12m == nil {
		return 0, fmt.Errorf("%w: no rent forecast", ErrMissingInput)
	}
	return *forecast.RentGrowth12m, nil
}

// MSIComponents are the raw market strength sub-terms at one month.
type MSIComponents struct {
	IncomeLevel  float64
	IncomeGrowth float64
	VacancyRate  float64
	DaysOnMarket float64
}

// MarketStrength is n(income) + n(income growth) - n(vacancy) - n(days on market) for the
// latest month, each sub-term normalized against the reference bounds.
func MarketStrength(series *MarketSeries, reference *ReferenceSnapshot) (float64, error) {
	if reference == nil {
		return 0, fmt.Errorf("%w: no reference snapshot for market strength", ErrMissingInput)
	}
	if series == nil || series.Len() == 0 {
		return 0, fmt.Errorf("%w: no market series for market strength", ErrMissingInput)
	}
	components, err := msiComponentsAt(series.Observations, series.Len()-1)
	if err != nil {
		return 0, fmt.Errorf("zip %s: %w", series.ZipCode, err)
	}
	return combineMSI(components, reference), nil
}

func combineMSI(c MSIComponents, reference *ReferenceSnapshot) float64 {
	return reference.Normalize(models.MetricIncomeLevel, c.IncomeLevel) +
		reference.Normalize(models.MetricIncomeGrowth, c.IncomeGrowth) -
		reference.Normalize(models.MetricVacancyRate, c.VacancyRate) -
		reference.Normalize(models.MetricDaysOnMarket, c.DaysOnMarket)
}

// msiComponentsAt extracts the raw MSI sub-terms for observation idx. All four are required.
func msiComponentsAt(obs []models.MarketObservation, idx int) (MSIComponents, error) {
	o := obs[idx]
	if o.MedianIncome == nil {
		return MSIComponents{}, fmt.Errorf("%w: median income missing", ErrMissingInput)
	}
	if o.VacancyRate == nil {
		return MSIComponents{}, fmt.Errorf("%w: vacancy rate missing", ErrMissingInput)
	}
	if o.DaysOnMarket == nil {
		return MSIComponents{}, fmt.Errorf("%w: days on market missing", ErrMissingInput)
	}
	growth, ok := incomeGrowthAt(obs, idx)
	if !ok {
		return MSIComponents{}, fmt.Errorf("%w: income growth needs %d months of income history",
			ErrMissingInput, minIncomeGrowthSpanMonths)
	}
	return MSIComponents{
		IncomeLevel:  *o.MedianIncome,
		IncomeGrowth: growth,
		VacancyRate:  *o.VacancyRate,
		DaysOnMarket: *o.DaysOnMarket,
	}, nil
}

// incomeGrowthAt measures income growth at idx against the latest observation at least
// 36 months earlier, or the earliest observation with income when history is shorter.
func incomeGrowthAt(obs []models.MarketObservation, idx int) (float64, bool) {
	current := obs[idx].MedianIncome
	if current == nil {
		return 0, false
	}

	base := -1
	for i := idx - 1; i >= 0; i-- {
		if obs[i].MedianIncome == nil || *obs[i].MedianIncome <= 0 {
			continue
		}
		base = i
		if monthsBetween(obs[i].Date, obs[idx].Date) >= incomeGrowthLookbackMonths {
			break
		}
	}
	if base < 0 || monthsBetween(obs[base].Date, obs[idx].Date) < minIncomeGrowthSpanMonths {
		return 0, false
	}
	prior := *obs[base].MedianIncome
	return (*current - prior) / prior, true
}
