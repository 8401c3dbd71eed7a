package analysis

import (
	"sort"
	"time"

	"github.com/stwalsh4118/broker/internal/models"
)

// Comp filter defaults
const (
	DefaultCompSqftBand    = 0.25
	DefaultCompMaxAgeYears = 5
	DefaultCompLimit       = 6
)

// CompFilterOptions bounds which comparable sales are considered.
type CompFilterOptions struct {
	SqftBand    float64
	MaxAgeYears int
}

// RankComps orders comps by recency (most recent first), then distance (closest first, unknown
// last), then comp ID. The input slice is not modified.
func RankComps(comps []models.ComparableSale, evaluationDate time.Time) []models.ComparableSale {
	ranked := append([]models.ComparableSale(nil), comps...)

	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := daysSince(ranked[i].SaleDate, evaluationDate), daysSince(ranked[j].SaleDate, evaluationDate)
		if di != dj {
			return di < dj
		}
		if c := compareDistance(ranked[i].DistanceMiles, ranked[j].DistanceMiles); c != 0 {
			return c < 0
		}
		return ranked[i].CompID < ranked[j].CompID
	})
	return ranked
}

// FilterComps drops sales older than the age limit, sales after the evaluation date and,
// when a size target is known, comps outside the sqft band around it. The subject's
// size falls back to the median comp size.
func FilterComps(comps []models.ComparableSale, subjectSqft *int, evaluationDate time.Time, opts CompFilterOptions) []models.ComparableSale {
	if opts.SqftBand <= 0 {
		opts.SqftBand = DefaultCompSqftBand
	}
	if opts.MaxAgeYears <= 0 {
		opts.MaxAgeYears = DefaultCompMaxAgeYears
	}
	cutoff := evaluationDate.AddDate(-opts.MaxAgeYears, 0, 0)

	target := 0.0
	if subjectSqft != nil && *subjectSqft > 0 {
		target = float64(*subjectSqft)
	} else {
		target = medianSqft(comps)
	}
	lower, upper := target*(1-opts.SqftBand), target*(1+opts.SqftBand)

	out := make([]models.ComparableSale, 0, len(comps))
	for _, c := range comps {
		if c.SaleDate.Before(cutoff) || c.SaleDate.After(evaluationDate) {
			continue
		}
		if target > 0 && c.Sqft != nil {
			size := float64(*c.Sqft)
			if size < lower || size > upper {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func daysSince(saleDate, evaluationDate time.Time) int {
	return int(evaluationDate.Sub(saleDate).Hours() / 24)
}

func compareDistance(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func medianSqft(comps []models.ComparableSale) float64 {
	sizes := make([]float64, 0, len(comps))
	for _, c := range comps {
		if c.Sqft != nil && *c.Sqft > 0 {
			sizes = append(sizes, float64(*c.Sqft))
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	m, _ := Percentile(sizes, 50)
	return m
}
