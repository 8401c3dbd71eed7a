package models

import (
	"time"
)

// Decision is the investment recommendation derived from a score.
type Decision string

const (
	DecisionBuy  Decision = "Buy"
	DecisionHold Decision = "Hold"
	DecisionSell Decision = "Sell"
)

// Metric names used as keys for factors, reference bounds and missing-metric reasons.
const (
	MetricCapRate       = "cap_rate"
	MetricRentGrowth12m = "rent_growth_12m"
	MetricMSI           = "msi"
	MetricAffordability = "affordability"
	MetricAppreciation  = "appreciation"

	// Market strength sub-terms.
	MetricIncomeLevel  = "income_level"
	MetricIncomeGrowth = "income_growth"
	MetricVacancyRate  = "vacancy_rate"
	MetricDaysOnMarket = "days_on_market"
)

// Metrics holds the raw computed metrics for a property.
// A nil field means the metric could not be computed; the reason is kept in AnalysisResult.MissingMetrics.
type Metrics struct {
	CapRate       *float64 `json:"capRate"`
	RentGrowth12m *float64 `json:"rentGrowth12m"`
	MSI           *float64 `json:"msi"`
	Affordability *float64 `json:"affordability"`
	Appreciation  *float64 `json:"appreciation"`
}

// Get returns the metric value for a metric name.
func (m Metrics) Get(name string) *float64 {
	switch name {
	case MetricCapRate:
		return m.CapRate
	case MetricRentGrowth12m:
		return m.RentGrowth12m
	case MetricMSI:
		return m.MSI
	case MetricAffordability:
		return m.Affordability
	case MetricAppreciation:
		return m.Appreciation
	default:
		return nil
	}
}

// FactorAttribution explains how much one normalized metric contributed to the score.
// NormalizedValue is oriented so that higher is better. For affordability, where a lower
// rent-to-income ratio is better, it is 1 minus the percentile position of RawValue.
type FactorAttribution struct {
	Name            string  `json:"name"`
	RawValue        float64 `json:"rawValue"`
	NormalizedValue float64 `json:"normalizedValue"`
	Weight          float64 `json:"weight"`
	Contribution    float64 `json:"contribution"`
}

// Provenance records which data produced an analysis.
type Provenance struct {
	GeneratedAt      time.Time `json:"generatedAt"`
	DatasetVersion   string    `json:"datasetVersion"`
	ReferenceVersion string    `json:"referenceVersion"`
}

// AnalysisResult is the terminal output of the engine. It is owned by the caller.
type AnalysisResult struct {
	Provenance     Provenance          `json:"provenance"`
	Metrics        Metrics             `json:"metrics"`
	MissingMetrics map[string]string   `json:"missingMetrics,omitempty"`
	Forecast       *ForecastResult     `json:"forecast"`
	ZipTrends      ZipTrends           `json:"zipTrends"`
	RunID          string              `json:"runId"`
	PropertyID     string              `json:"propertyId"`
	Address        string              `json:"address"`
	ZipCode        string              `json:"zipcode"`
	Decision       Decision            `json:"decision"`
	Factors        []FactorAttribution `json:"factors"`
	RankedComps    []ComparableSale    `json:"rankedComps"`
	Score          float64             `json:"score"`
}
