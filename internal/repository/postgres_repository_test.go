package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/broker/internal/config"
	"github.com/stwalsh4118/broker/internal/database"
)

// getTestConfig returns database configuration for integration tests.
func getTestConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "host.docker.internal"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", "broker"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:  1,
		PoolMax:  4,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupTestRepository connects, creates the schema and seeds a small fixture inside a
// dedicated ZIP code so existing data is left alone.
func setupTestRepository(t *testing.T) (MarketRepository, *database.Database) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, getTestConfig())
	if err != nil {
		t.Skipf("Database not reachable: %v", err)
	}
	require.NoError(t, db.EnsureSchema(ctx))

	cleanup := func() {
		_, _ = db.Pool.Exec(ctx, `DELETE FROM comps WHERE property_id LIKE 'it-%'`)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM properties WHERE id LIKE 'it-%'`)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM market_stats WHERE zipcode = '00001'`)
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		db.Close()
	})

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO properties (id, address, zipcode, sqft, estimated_monthly_rent)
		VALUES ('it-1', '1 Test  Way', '00001', 1800, 2100), ('it-2', '2 Test Way', '00001', NULL, NULL)`)
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO market_stats (zipcode, month, median_price, median_rent, median_income)
		VALUES ('00001', '2024-01-01', 300000, 2000, 72000), ('00001', '2024-02-01', 301000, 2005, NULL)`)
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO comps (comp_id, property_id, address, sale_price, sale_date, distance_miles)
		VALUES ('c1', 'it-1', '5 Test Way', 295000, '2023-12-01', 0.2)`)
	require.NoError(t, err)

	return NewPostgresRepository(db), db
}

func TestPostgresRepository_Properties(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	list, err := repo.ListProperties(ctx, "00001", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "it-1", list[0].ID)

	p, err := repo.GetProperty(ctx, "it-2")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.Sqft)
	assert.Nil(t, p.EstimatedMonthlyRent)

	missing, err := repo.GetProperty(ctx, "it-404")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	byAddress, err := repo.FindPropertyByAddress(ctx, "1 test way")
	require.NoError(t, err)
	require.NotNil(t, byAddress)
	assert.Equal(t, "it-1", byAddress.ID)
}

func TestPostgresRepository_MarketAndComps(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	obs, err := repo.GetMarketObservations(ctx, "00001")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	require.NotNil(t, obs[0].MedianIncome)
	assert.Nil(t, obs[1].MedianIncome)

	comps, err := repo.GetComps(ctx, "it-1")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, 0.2, *comps[0].DistanceMiles)

	version, err := repo.DatasetVersion(ctx)
	require.NoError(t, err)
	assert.Contains(t, version, "pg-")
	assert.NoError(t, repo.Ping(ctx))
}

func TestPostgresRepository_DatasetVersionTracksContent(t *testing.T) {
	repo, db := setupTestRepository(t)
	ctx := context.Background()

	before, err := repo.DatasetVersion(ctx)
	require.NoError(t, err)

	again, err := repo.DatasetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, again, "version must be stable while the data is unchanged")

	t.Run("in-place update", func(t *testing.T) {
		_, err := db.Pool.Exec(ctx, `UPDATE market_stats SET median_income = median_income * 2 WHERE zipcode = '00001'`)
		require.NoError(t, err)

		after, err := repo.DatasetVersion(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
		before = after
	})

	t.Run("delete and insert with equal counts", func(t *testing.T) {
		_, err := db.Pool.Exec(ctx, `DELETE FROM properties WHERE id = 'it-2'`)
		require.NoError(t, err)
		_, err = db.Pool.Exec(ctx, `
			INSERT INTO properties (id, address, zipcode, sqft, estimated_monthly_rent)
			VALUES ('it-3', '3 Test Way', '00001', 1500, 1900)`)
		require.NoError(t, err)

		after, err := repo.DatasetVersion(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})
}
