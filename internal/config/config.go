package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data source kinds.
const (
	DataSourceCSV      = "csv"
	DataSourcePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Analysis AnalysisConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
	// RequestTimeout bounds how long a single API request may run.
	RequestTimeout time.Duration
}

// DataConfig selects where properties, market statistics and comps are read from.
type DataConfig struct {
	Source string
	Dir    string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// AnalysisConfig holds the tunables of the analysis engine.
type AnalysisConfig struct {
	MinHistoryMonths int
	HorizonMonths    int
	TrendWindow      int
	ExpenseRatio     float64
	SeasonalEnabled  bool

	WeightCapRate       float64
	WeightRentGrowth    float64
	WeightMSI           float64
	WeightAffordability float64

	CompLimit       int
	CompSqftBand    float64
	CompMaxAgeYears int

	BatchParallelism int
	// RefreshSchedule is a cron expression for rebuilding the reference snapshot. Empty disables it.
	RefreshSchedule string
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("DATA_SOURCE", DataSourceCSV)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "broker")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")

	v.SetDefault("ANALYSIS_MIN_HISTORY_MONTHS", 6)
	v.SetDefault("ANALYSIS_HORIZON_MONTHS", 36)
	v.SetDefault("ANALYSIS_TREND_WINDOW", 12)
	v.SetDefault("ANALYSIS_EXPENSE_RATIO", 0.35)
	v.SetDefault("ANALYSIS_SEASONAL_ENABLED", true)
	v.SetDefault("ANALYSIS_WEIGHT_CAP_RATE", 0.25)
	v.SetDefault("ANALYSIS_WEIGHT_RENT_GROWTH", 0.25)
	v.SetDefault("ANALYSIS_WEIGHT_MSI", 0.25)
	v.SetDefault("ANALYSIS_WEIGHT_AFFORDABILITY", 0.25)
	v.SetDefault("ANALYSIS_COMP_LIMIT", 6)
	v.SetDefault("ANALYSIS_COMP_SQFT_BAND", 0.25)
	v.SetDefault("ANALYSIS_COMP_MAX_AGE_YEARS", 5)
	v.SetDefault("ANALYSIS_BATCH_PARALLELISM", 4)
	v.SetDefault("ANALYSIS_REFRESH_SCHEDULE", "0 */6 * * *")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			Env:            v.GetString("ENV"),
			RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		},
		Data: DataConfig{
			Source: strings.ToLower(strings.TrimSpace(v.GetString("DATA_SOURCE"))),
			Dir:    v.GetString("DATA_DIR"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		Analysis: AnalysisConfig{
			MinHistoryMonths:    v.GetInt("ANALYSIS_MIN_HISTORY_MONTHS"),
			HorizonMonths:       v.GetInt("ANALYSIS_HORIZON_MONTHS"),
			TrendWindow:         v.GetInt("ANALYSIS_TREND_WINDOW"),
			ExpenseRatio:        v.GetFloat64("ANALYSIS_EXPENSE_RATIO"),
			SeasonalEnabled:     v.GetBool("ANALYSIS_SEASONAL_ENABLED"),
			WeightCapRate:       v.GetFloat64("ANALYSIS_WEIGHT_CAP_RATE"),
			WeightRentGrowth:    v.GetFloat64("ANALYSIS_WEIGHT_RENT_GROWTH"),
			WeightMSI:           v.GetFloat64("ANALYSIS_WEIGHT_MSI"),
			WeightAffordability: v.GetFloat64("ANALYSIS_WEIGHT_AFFORDABILITY"),
			CompLimit:           v.GetInt("ANALYSIS_COMP_LIMIT"),
			CompSqftBand:        v.GetFloat64("ANALYSIS_COMP_SQFT_BAND"),
			CompMaxAgeYears:     v.GetInt("ANALYSIS_COMP_MAX_AGE_YEARS"),
			BatchParallelism:    v.GetInt("ANALYSIS_BATCH_PARALLELISM"),
			RefreshSchedule:     strings.TrimSpace(v.GetString("ANALYSIS_REFRESH_SCHEDULE")),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.Data.Source {
	case DataSourceCSV:
		if c.Data.Dir == "" {
			return fmt.Errorf("DATA_DIR is required when DATA_SOURCE is csv")
		}
	case DataSourcePostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", DataSourceCSV, DataSourcePostgres, c.Data.Source)
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	return c.Analysis.Validate()
}

// Validate checks the PostgreSQL connection settings.
func (d DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// Validate checks the analysis tunables. Weights must be non-negative with a positive sum.
func (a AnalysisConfig) Validate() error {
	if a.MinHistoryMonths < 1 {
		return fmt.Errorf("ANALYSIS_MIN_HISTORY_MONTHS must be at least 1")
	}
	if a.HorizonMonths < 1 {
		return fmt.Errorf("ANALYSIS_HORIZON_MONTHS must be at least 1")
	}
	if a.TrendWindow < 3 {
		return fmt.Errorf("ANALYSIS_TREND_WINDOW must be at least 3")
	}
	if a.ExpenseRatio < 0 || a.ExpenseRatio >= 1 {
		return fmt.Errorf("ANALYSIS_EXPENSE_RATIO must be in [0, 1)")
	}

	weights := map[string]float64{
		"ANALYSIS_WEIGHT_CAP_RATE":      a.WeightCapRate,
		"ANALYSIS_WEIGHT_RENT_GROWTH":   a.WeightRentGrowth,
		"ANALYSIS_WEIGHT_MSI":           a.WeightMSI,
		"ANALYSIS_WEIGHT_AFFORDABILITY": a.WeightAffordability,
	}
	total := 0.0
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("at least one scoring weight must be positive")
	}

	if a.CompLimit < 1 {
		return fmt.Errorf("ANALYSIS_COMP_LIMIT must be at least 1")
	}
	if a.CompSqftBand <= 0 || a.CompSqftBand >= 1 {
		return fmt.Errorf("ANALYSIS_COMP_SQFT_BAND must be in (0, 1)")
	}
	if a.CompMaxAgeYears < 1 {
		return fmt.Errorf("ANALYSIS_COMP_MAX_AGE_YEARS must be at least 1")
	}
	if a.BatchParallelism < 1 {
		return fmt.Errorf("ANALYSIS_BATCH_PARALLELISM must be at least 1")
	}
	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
