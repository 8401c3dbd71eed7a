package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/stwalsh4118/broker/internal/models"
)

// DefaultMinHistoryMonths is the minimum series length accepted by BuildSeries when none is configured.
const DefaultMinHistoryMonths = 6

// MarketSeries is a date-ordered, duplicate-free sequence of monthly observations for one ZIP.
// Missing months are allowed.
type MarketSeries struct {
	ZipCode      string
	Observations []models.MarketObservation
}

// Len returns the number of observed months.
func (s *MarketSeries) Len() int {
	return len(s.Observations)
}

// Latest returns the most recent observation.
func (s *MarketSeries) Latest() models.MarketObservation {
	return s.Observations[len(s.Observations)-1]
}

// AsOf returns the month of the most recent observation.
func (s *MarketSeries) AsOf() time.Time {
	return s.Latest().Date
}

// Prices returns the median price values in date order.
func (s *MarketSeries) Prices() []float64 {
	out := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		out[i] = o.MedianPrice
	}
	return out
}

// Rents returns the median rent values in date order.
func (s *MarketSeries) Rents() []float64 {
	out := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		out[i] = o.MedianRent
	}
	return out
}

// Trends converts the series into chart-ready price and rent history.
func (s *MarketSeries) Trends() models.ZipTrends {
	trends := models.ZipTrends{
		PriceHistory: make([]models.TrendPoint, 0, len(s.Observations)),
		RentHistory:  make([]models.TrendPoint, 0, len(s.Observations)),
	}
	for _, o := range s.Observations {
		trends.PriceHistory = append(trends.PriceHistory, models.TrendPoint{Date: o.Date, Value: o.MedianPrice})
		trends.RentHistory = append(trends.RentHistory, models.TrendPoint{Date: o.Date, Value: o.MedianRent})
	}
	return trends
}

// BuildSeries assembles the ordered monthly series for zip from raw observations.
// Rows for other ZIP codes are ignored. Dates are truncated to the month.
//
// Returns ErrDataIntegrity for duplicate months or non-positive prices/rents.
// Returns ErrInsufficientHistory if fewer than minHistory months remain.
func BuildSeries(zip string, raw []models.MarketObservation, minHistory int) (*MarketSeries, error) {
	if minHistory <= 0 {
		minHistory = DefaultMinHistoryMonths
	}

	observations := make([]models.MarketObservation, 0, len(raw))
	for _, o := range raw {
		if o.ZipCode != zip {
			continue
		}
		if o.Date.IsZero() {
			return nil, fmt.Errorf("%w: zip %s has an observation without a date", ErrDataIntegrity, zip)
		}
		if !isFinite(o.MedianPrice) || o.MedianPrice <= 0 || !isFinite(o.MedianRent) || o.MedianRent <= 0 {
			return nil, fmt.Errorf("%w: zip %s month %s has non-positive price or rent",
				ErrDataIntegrity, zip, o.Date.Format("2006-01"))
		}
		o.Date = monthStart(o.Date)
		observations = append(observations, o)
	}

	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})

	for i := 1; i < len(observations); i++ {
		if observations[i].Date.Equal(observations[i-1].Date) {
			return nil, fmt.Errorf("%w: zip %s has duplicate observations for %s",
				ErrDataIntegrity, zip, observations[i].Date.Format("2006-01"))
		}
	}

	if len(observations) < minHistory {
		return nil, fmt.Errorf("%w: zip %s has %d months, need at least %d",
			ErrInsufficientHistory, zip, len(observations), minHistory)
	}

	return &MarketSeries{ZipCode: zip, Observations: observations}, nil
}
