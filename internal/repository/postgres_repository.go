package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/broker/internal/database"
	"github.com/stwalsh4118/broker/internal/models"
)

// postgresRepository is the PostgreSQL implementation of MarketRepository.
type postgresRepository struct {
	db *database.Database
}

// NewPostgresRepository creates a MarketRepository backed by the given pool.
func NewPostgresRepository(db *database.Database) MarketRepository {
	return &postgresRepository{
		db: db,
	}
}

const propertyColumns = `
	id,
	address,
	zipcode,
	sqft,
	property_type,
	last_sale_price,
	last_sale_date,
	current_estimated_value,
	estimated_monthly_rent`

func scanProperty(row pgx.Row) (*models.PropertySnapshot, error) {
	var p models.PropertySnapshot
	err := row.Scan(
		&p.ID,
		&p.Address,
		&p.ZipCode,
		&p.Sqft,
		&p.PropertyType,
		&p.LastSalePrice,
		&p.LastSaleDate,
		&p.CurrentEstimatedValue,
		&p.EstimatedMonthlyRent,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProperties returns properties ordered by id, optionally filtered by ZIP code.
func (r *postgresRepository) ListProperties(ctx context.Context, zip string, limit int) ([]models.PropertySnapshot, error) {
	query := `SELECT` + propertyColumns + `
		FROM properties
		WHERE ($1 = '' OR zipcode = $1)
		ORDER BY id
		LIMIT NULLIF($2, 0)
	`
	if limit < 0 {
		limit = 0
	}

	rows, err := r.db.Pool.Query(ctx, query, zip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties (zip=%q): %w", zip, err)
	}
	defer rows.Close()

	results := []models.PropertySnapshot{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property row: %w", err)
		}
		results = append(results, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating property rows: %w", err)
	}
	return results, nil
}

// GetProperty loads one property by id.
func (r *postgresRepository) GetProperty(ctx context.Context, id string) (*models.PropertySnapshot, error) {
	query := `SELECT` + propertyColumns + ` FROM properties WHERE id = $1`

	p, err := scanProperty(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		// Handle no rows found - this is not an error at the repository level
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query property %s: %w", id, err)
	}
	return p, nil
}

// FindPropertyByAddress matches addresses case-insensitively with whitespace collapsed.
func (r *postgresRepository) FindPropertyByAddress(ctx context.Context, address string) (*models.PropertySnapshot, error) {
	query := `SELECT` + propertyColumns + `
		FROM properties
		WHERE lower(regexp_replace(trim(address), '\s+', ' ', 'g')) = $1
		ORDER BY id
		LIMIT 1
	`

	p, err := scanProperty(r.db.Pool.QueryRow(ctx, query, normalizeAddress(address)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query property by address: %w", err)
	}
	return p, nil
}

const observationColumns = `
	zipcode,
	month,
	median_price,
	median_rent,
	inventory_count,
	days_on_market,
	median_income,
	vacancy_rate`

func (r *postgresRepository) queryObservations(ctx context.Context, query string, args ...any) ([]models.MarketObservation, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query market stats: %w", err)
	}
	defer rows.Close()

	results := []models.MarketObservation{}
	for rows.Next() {
		var o models.MarketObservation
		if err := rows.Scan(
			&o.ZipCode,
			&o.Date,
			&o.MedianPrice,
			&o.MedianRent,
			&o.InventoryCount,
			&o.DaysOnMarket,
			&o.MedianIncome,
			&o.VacancyRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan market stats row: %w", err)
		}
		o.Date = o.Date.UTC()
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market stats rows: %w", err)
	}
	return results, nil
}

// GetMarketObservations returns every monthly row for the ZIP code.
func (r *postgresRepository) GetMarketObservations(ctx context.Context, zip string) ([]models.MarketObservation, error) {
	query := `SELECT` + observationColumns + ` FROM market_stats WHERE zipcode = $1 ORDER BY month`
	return r.queryObservations(ctx, query, zip)
}

// AllMarketObservations returns every monthly row.
func (r *postgresRepository) AllMarketObservations(ctx context.Context) ([]models.MarketObservation, error) {
	query := `SELECT` + observationColumns + ` FROM market_stats ORDER BY zipcode, month`
	return r.queryObservations(ctx, query)
}

// GetComps returns the comparable sales recorded for a property.
func (r *postgresRepository) GetComps(ctx context.Context, propertyID string) ([]models.ComparableSale, error) {
	query := `
		SELECT
			comp_id,
			property_id,
			address,
			sale_price,
			sale_date,
			sqft,
			distance_miles
		FROM comps
		WHERE property_id = $1
	`

	rows, err := r.db.Pool.Query(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comps for property %s: %w", propertyID, err)
	}
	defer rows.Close()

	results := []models.ComparableSale{}
	for rows.Next() {
		var c models.ComparableSale
		if err := rows.Scan(
			&c.CompID,
			&c.PropertyID,
			&c.Address,
			&c.SalePrice,
			&c.SaleDate,
			&c.Sqft,
			&c.DistanceMiles,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comp row: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comp rows: %w", err)
	}
	return results, nil
}

// DatasetVersion fingerprints the contents of the market_stats and properties tables.
// Any inserted, deleted or updated row changes the version, including edits that keep
// the row counts and latest month the same.
func (r *postgresRepository) DatasetVersion(ctx context.Context) (string, error) {
	query := `
		SELECT
			(SELECT count(*) FROM market_stats),
			(SELECT count(*) FROM properties),
			md5(
				coalesce((SELECT string_agg(m::text, ',' ORDER BY m.zipcode, m.month, m::text) FROM market_stats m), '')
				|| '|' ||
				coalesce((SELECT string_agg(p::text, ',' ORDER BY p.id) FROM properties p), '')
			)
	`

	var marketRows, propertyRows int64
	var digest string
	if err := r.db.Pool.QueryRow(ctx, query).Scan(&marketRows, &propertyRows, &digest); err != nil {
		return "", fmt.Errorf("failed to compute dataset version: %w", err)
	}

	return fmt.Sprintf("pg-%d-%d-%s", marketRows, propertyRows, digest[:16]), nil
}

// Reload is a no-op; every call reads the database directly.
func (r *postgresRepository) Reload(ctx context.Context) error {
	return nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
