package repository

import (
	"context"
	"errors"

	"github.com/stwalsh4118/broker/internal/models"
)

// ErrInvalidRecord is returned when a source row cannot be parsed or fails validation.
var ErrInvalidRecord = errors.New("invalid record")

// MarketRepository defines read access to properties, monthly market statistics and comparable sales.
type MarketRepository interface {
	// ListProperties returns properties ordered by ID. An empty zip matches every ZIP code and
	// a limit <= 0 returns all matches.
	ListProperties(ctx context.Context, zip string, limit int) ([]models.PropertySnapshot, error)

	// GetProperty finds a property by ID.
	// Returns nil, nil if no property is found (not an error).
	GetProperty(ctx context.Context, id string) (*models.PropertySnapshot, error)

	// FindPropertyByAddress finds a property by case-insensitive address match.
	// Returns nil, nil if no property is found (not an error).
	FindPropertyByAddress(ctx context.Context, address string) (*models.PropertySnapshot, error)

	// GetMarketObservations returns the raw monthly rows for one ZIP code in source order.
	// Ordering and duplicate checks belong to the series builder.
	GetMarketObservations(ctx context.Context, zip string) ([]models.MarketObservation, error)

	// AllMarketObservations returns every monthly row across all ZIP codes.
	AllMarketObservations(ctx context.Context) ([]models.MarketObservation, error)

	// GetComps returns the comparable sales recorded for a property.
	// Returns an empty slice if there are none.
	GetComps(ctx context.Context, propertyID string) ([]models.ComparableSale, error)

	// DatasetVersion identifies the current contents of the data source.
	// It changes whenever the underlying data changes.
	DatasetVersion(ctx context.Context) (string, error)

	// Reload re-reads the data source where it is cached in memory.
	Reload(ctx context.Context) error

	// Ping reports whether the data source is reachable.
	Ping(ctx context.Context) error
}
