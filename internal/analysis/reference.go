package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/stwalsh4118/broker/internal/models"
)

// Realized rent growth is measured against an observation 12 to 24 months earlier.
const (
	rentGrowthMinSpanMonths = 12
	rentGrowthMaxSpanMonths = 24
)

// ReferenceDataset is everything available at evaluation time, used to derive percentile bounds.
type ReferenceDataset struct {
	Properties []models.PropertySnapshot
	Series     map[string]*MarketSeries
}

// ReferenceSamples collects raw metric samples across every ZIP-month and property.
// Market-level proxies stand in for property metrics at each ZIP-month: the median-based cap
// rate, realized annualised rent growth and median rent-to-income ratio.
func ReferenceSamples(dataset ReferenceDataset, opts MetricOptions) map[string][]float64 {
	samples := make(map[string][]float64)
	add := func(name string, v float64) {
		if isFinite(v) {
			samples[name] = append(samples[name], v)
		}
	}

	zips := sortedZips(dataset.Series)
	var components []MSIComponents

	for _, zip := range zips {
		obs := dataset.Series[zip].Observations
		for idx, o := range obs {
			add(models.MetricCapRate, (o.MedianRent*12*(1-opts.ExpenseRatio))/o.MedianPrice)

			if growth, ok := realizedRentGrowthAt(obs, idx); ok {
				add(models.MetricRentGrowth12m, growth)
			}
			if o.MedianIncome != nil && *o.MedianIncome > 0 {
				add(models.MetricAffordability, o.MedianRent/(*o.MedianIncome/12))
				add(models.MetricIncomeLevel, *o.MedianIncome)
			}
			if growth, ok := incomeGrowthAt(obs, idx); ok {
				add(models.MetricIncomeGrowth, growth)
			}
			if o.VacancyRate != nil {
				add(models.MetricVacancyRate, *o.VacancyRate)
			}
			if o.DaysOnMarket != nil {
				add(models.MetricDaysOnMarket, *o.DaysOnMarket)
			}
			if c, err := msiComponentsAt(obs, idx); err == nil {
				components = append(components, c)
			}
		}
	}

	for _, p := range dataset.Properties {
		series := dataset.Series[p.ZipCode]
		if v, err := CapRate(p, series, opts.ExpenseRatio); err == nil {
			add(models.MetricCapRate, v)
		}
		if v, err := Affordability(p, series); err == nil {
			add(models.MetricAffordability, v)
		}
	}

	// MSI is a composite of normalized sub-terms, so its distribution is taken over the
	// composites computed against the sub-term bounds.
	subterms := NewReferenceSnapshot("", samples, time.Time{})
	for _, c := range components {
		add(models.MetricMSI, combineMSI(c, subterms))
	}

	return samples
}

// BuildReference computes the reference snapshot for a dataset version.
func BuildReference(version string, dataset ReferenceDataset, opts MetricOptions, builtAt time.Time) *ReferenceSnapshot {
	return NewReferenceSnapshot(version, ReferenceSamples(dataset, opts), builtAt)
}

// realizedRentGrowthAt is the annualised rent growth at idx against the latest observation
// 12 to 24 months earlier.
func realizedRentGrowthAt(obs []models.MarketObservation, idx int) (float64, bool) {
	for i := idx - 1; i >= 0; i-- {
		span := monthsBetween(obs[i].Date, obs[idx].Date)
		if span < rentGrowthMinSpanMonths {
			continue
		}
		if span > rentGrowthMaxSpanMonths {
			return 0, false
		}
		ratio := obs[idx].MedianRent / obs[i].MedianRent
		return math.Pow(ratio, 12/float64(span)) - 1, true
	}
	return 0, false
}

func sortedZips(series map[string]*MarketSeries) []string {
	zips := make([]string, 0, len(series))
	for zip, s := range series {
		if s != nil && s.Len() > 0 {
			zips = append(zips, zip)
		}
	}
	sort.Strings(zips)
	return zips
}
