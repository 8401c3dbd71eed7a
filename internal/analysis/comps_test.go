package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stwalsh4118/broker/internal/models"
)

func comp(id string, daysAgo int, distance *float64, sqft *int) models.ComparableSale {
	return models.ComparableSale{
		CompID:        id,
		SaleDate:      testTime.AddDate(0, 0, -daysAgo),
		DistanceMiles: distance,
		Sqft:          sqft,
		SalePrice:     350000,
	}
}

func compIDs(comps []models.ComparableSale) []string {
	ids := make([]string, len(comps))
	for i, c := range comps {
		ids[i] = c.CompID
	}
	return ids
}

func TestRankComps_Order(t *testing.T) {
	// Arrange
	comps := []models.ComparableSale{
		comp("e", 90, floatPtr(0.2), nil),
		comp("d", 30, nil, nil),
		comp("c", 30, floatPtr(1.5), nil),
		comp("b", 30, floatPtr(0.5), nil),
		comp("a", 30, floatPtr(0.5), nil),
		comp("f", 10, floatPtr(3.0), nil),
	}

	// Act
	ranked := RankComps(comps, testTime)

	// Assert
	assert.Equal(t, []string{"f", "a", "b", "c", "d", "e"}, compIDs(ranked))
	assert.Equal(t, "e", comps[0].CompID, "input must not be reordered")
}

func TestRankComps_DeterministicAcrossInputOrder(t *testing.T) {
	comps := []models.ComparableSale{
		comp("x", 5, floatPtr(1), nil),
		comp("y", 5, floatPtr(1), nil),
		comp("z", 5, nil, nil),
		comp("w", 2, nil, nil),
	}
	reversed := []models.ComparableSale{comps[3], comps[2], comps[1], comps[0]}

	assert.Equal(t, compIDs(RankComps(comps, testTime)), compIDs(RankComps(reversed, testTime)))
	assert.Equal(t, []string{"w", "x", "y", "z"}, compIDs(RankComps(reversed, testTime)))
}

func TestRankComps_Empty(t *testing.T) {
	assert.Empty(t, RankComps(nil, testTime))
}

func TestFilterComps(t *testing.T) {
	comps := []models.ComparableSale{
		comp("in-band", 100, nil, intPtr(1900)),
		comp("too-small", 100, nil, intPtr(1400)),
		comp("too-large", 100, nil, intPtr(2600)),
		comp("unknown-size", 100, nil, nil),
		comp("too-old", 6*365, nil, intPtr(2000)),
		comp("future", -10, nil, intPtr(2000)),
	}

	filtered := FilterComps(comps, intPtr(2000), testTime, CompFilterOptions{})

	assert.Equal(t, []string{"in-band", "unknown-size"}, compIDs(filtered))
}

func TestFilterComps_MedianFallback(t *testing.T) {
	comps := []models.ComparableSale{
		comp("a", 10, nil, intPtr(1000)),
		comp("b", 10, nil, intPtr(1100)),
		comp("c", 10, nil, intPtr(1200)),
		comp("outlier", 10, nil, intPtr(4000)),
	}

	filtered := FilterComps(comps, nil, testTime, CompFilterOptions{SqftBand: 0.25, MaxAgeYears: 5})

	assert.Equal(t, []string{"a", "b", "c"}, compIDs(filtered))
}

func TestFilterComps_CustomAge(t *testing.T) {
	comps := []models.ComparableSale{
		comp("recent", 200, nil, nil),
		comp("old", 800, nil, nil),
	}

	filtered := FilterComps(comps, nil, testTime, CompFilterOptions{MaxAgeYears: 1})

	assert.Equal(t, []string{"recent"}, compIDs(filtered))
}
