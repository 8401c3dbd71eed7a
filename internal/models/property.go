package models

import (
	"time"
)

// PropertySnapshot is the read-only view of a residential property supplied by the data source.
// All nullable fields use pointers to distinguish between zero values and NULL.
type PropertySnapshot struct {
	LastSaleDate          *time.Time `json:"lastSaleDate,omitempty"`
	Sqft                  *int       `json:"sqft,omitempty" validate:"omitempty,gt=0"`
	LastSalePrice         *float64   `json:"lastSalePrice,omitempty" validate:"omitempty,gt=0"`
	CurrentEstimatedValue *float64   `json:"currentEstimatedValue,omitempty" validate:"omitempty,gt=0"`
	EstimatedMonthlyRent  *float64   `json:"estimatedMonthlyRent,omitempty" validate:"omitempty,gte=0"`
	ID                    string     `json:"id" validate:"required"`
	Address               string     `json:"address"`
	ZipCode               string     `json:"zipcode" validate:"required,len=5,numeric"`
	PropertyType          string     `json:"propertyType,omitempty"`
}

// ComparableSale is a recent nearby sale used to contextualise a property.
// Comps are ranked for display only; they never feed the score.
type ComparableSale struct {
	SaleDate      time.Time `json:"saleDate"`
	Sqft          *int      `json:"sqft,omitempty"`
	DistanceMiles *float64  `json:"distanceMiles,omitempty"`
	CompID        string    `json:"compId"`
	PropertyID    string    `json:"propertyId"`
	Address       string    `json:"address"`
	SalePrice     float64   `json:"salePrice"`
}
