package models

import (
	"time"
)

// MarketObservation is one month of market statistics for a ZIP code.
// Date is normalised to the first day of the month (UTC) by the series builder.
type MarketObservation struct {
	Date           time.Time `json:"date"`
	InventoryCount *float64  `json:"inventoryCount,omitempty"`
	DaysOnMarket   *float64  `json:"daysOnMarket,omitempty"`
	MedianIncome   *float64  `json:"medianIncome,omitempty"`
	VacancyRate    *float64  `json:"vacancyRate,omitempty"`
	ZipCode        string    `json:"zipcode"`
	MedianPrice    float64   `json:"medianPrice"`
	MedianRent     float64   `json:"medianRent"`
}

// ForecastMethod identifies which forecasting tier produced a projection.
type ForecastMethod string

const (
	ForecastSeasonal       ForecastMethod = "seasonal"
	ForecastAutoregressive ForecastMethod = "autoregressive"
	ForecastNaive          ForecastMethod = "naive"
)

// ProjectionPoint is a single projected month.
type ProjectionPoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
	Rent  float64   `json:"rent"`
}

// ForecastResult is the projection for one (zipcode, as-of month) pair.
// It is never mutated after creation; a new request produces a new result.
type ForecastResult struct {
	AsOf          time.Time         `json:"asOf"`
	RentGrowth12m *float64          `json:"rentGrowth12m"`
	ZipCode       string            `json:"zipcode"`
	Method        ForecastMethod    `json:"method"`
	Projection    []ProjectionPoint `json:"projection"`
}

// TrendPoint is a single historical value used for ZIP trend charts.
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ZipTrends carries observed price and rent history next to the projection.
type ZipTrends struct {
	PriceHistory []TrendPoint `json:"priceHistory"`
	RentHistory  []TrendPoint `json:"rentHistory"`
}
