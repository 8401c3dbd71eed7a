package analysis

import (
	"time"

	"github.com/stwalsh4118/broker/internal/models"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func observation(zip string, date time.Time, price, rent float64) models.MarketObservation {
	return models.MarketObservation{ZipCode: zip, Date: date, MedianPrice: price, MedianRent: rent}
}

// seriesFrom builds a series of consecutive months starting January 2020 directly, bypassing BuildSeries.
func seriesFrom(zip string, prices, rents []float64) *MarketSeries {
	obs := make([]models.MarketObservation, len(prices))
	for i := range prices {
		obs[i] = observation(zip, addMonths(month(2020, time.January), i), prices[i], rents[i])
	}
	return &MarketSeries{ZipCode: zip, Observations: obs}
}

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

var testTime = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
