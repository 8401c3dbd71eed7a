package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/broker/internal/analysis"
	"github.com/stwalsh4118/broker/internal/config"
	"github.com/stwalsh4118/broker/internal/logger"
	"github.com/stwalsh4118/broker/internal/models"
	"github.com/stwalsh4118/broker/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Request limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	MaxBatchSize     = 100
	MaxHorizonMonths = 120
)

// Service-level errors
var (
	ErrPropertyNotFound = errors.New("property not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrReferenceMissing = errors.New("reference snapshot unavailable")
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// BatchItem is the outcome for one property in a batch. Exactly one of Result and Err is set.
type BatchItem struct {
	PropertyID string                 `json:"propertyId"`
	Result     *models.AnalysisResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Err        error                  `json:"-"`
}

// BatchResult holds per-property outcomes in request order.
type BatchResult struct {
	Items             []BatchItem `json:"items"`
	Succeeded         int         `json:"succeeded"`
	Failed            int         `json:"failed"`
	ForecastsComputed int         `json:"forecastsComputed"`
}

// ZipForecast is a ZIP-level projection with the history it was fitted on.
type ZipForecast struct {
	Forecast *models.ForecastResult `json:"forecast"`
	Trends   models.ZipTrends       `json:"trends"`
}

// ReferenceStatus describes the published reference snapshot.
type ReferenceStatus struct {
	Version      string                     `json:"version"`
	BuiltAt      time.Time                  `json:"builtAt"`
	Rebuilt      bool                       `json:"rebuilt"`
	Bounds       map[string]analysis.Bounds `json:"bounds"`
	SampleCounts map[string]int             `json:"sampleCounts"`
}

// AnalysisService defines the property analysis operations.
type AnalysisService interface {
	// ListProperties returns properties, optionally filtered by ZIP code.
	// Returns ErrInvalidRequest for a malformed ZIP code.
	ListProperties(ctx context.Context, zip string, limit int) ([]models.PropertySnapshot, error)

	// Analyze scores one property.
	// Returns ErrPropertyNotFound if the property does not exist.
	// Engine errors (analysis.ErrDataIntegrity, analysis.ErrInsufficientHistory,
	// analysis.ErrInsufficientFactors) are returned wrapped.
	Analyze(ctx context.Context, propertyID string) (*models.AnalysisResult, error)

	// AnalyzeByAddress scores the property at an address.
	AnalyzeByAddress(ctx context.Context, address string) (*models.AnalysisResult, error)

	// AnalyzeBatch scores many properties in parallel, sharing forecasts per ZIP and month.
	// Per-property failures are reported in the items; only invalid requests fail the call.
	AnalyzeBatch(ctx context.Context, propertyIDs []string) (*BatchResult, error)

	// ForecastZip projects price and rent for a ZIP code.
	ForecastZip(ctx context.Context, zip string, horizon int) (*ZipForecast, error)

	// RefreshReference reloads the data source and rebuilds the reference snapshot if the
	// dataset changed. invalidate forces a rebuild even when the version is unchanged.
	RefreshReference(ctx context.Context, invalidate bool) (*ReferenceStatus, error)
}

// analysisService is the concrete implementation of AnalysisService.
type analysisService struct {
	repo       repository.MarketRepository
	cfg        config.AnalysisConfig
	forecaster *analysis.Forecaster
	rubric     analysis.Rubric
	cache      *analysis.BoundsCache
	log        *logger.Logger
	now        func() time.Time
}

// NewAnalysisService creates a new instance of AnalysisService.
func NewAnalysisService(repo repository.MarketRepository, cfg config.AnalysisConfig, log *logger.Logger) AnalysisService {
	return newAnalysisService(repo, cfg, log, func() time.Time { return time.Now().UTC() })
}

func newAnalysisService(repo repository.MarketRepository, cfg config.AnalysisConfig, log *logger.Logger, now func() time.Time) *analysisService {
	return &analysisService{
		repo: repo,
		cfg:  cfg,
		forecaster: analysis.NewForecaster(analysis.ForecastOptions{
			SeasonalEnabled: cfg.SeasonalEnabled,
			TrendWindow:     cfg.TrendWindow,
		}, log.WithComponent("forecast")),
		rubric: analysis.NewRubric(cfg.WeightCapRate, cfg.WeightRentGrowth, cfg.WeightMSI, cfg.WeightAffordability),
		cache:  analysis.NewBoundsCache(),
		log:    log,
		now:    now,
	}
}

func (s *analysisService) metricOptions() analysis.MetricOptions {
	return analysis.MetricOptions{ExpenseRatio: s.cfg.ExpenseRatio}
}

// ListProperties validates the filter and clamps the limit.
func (s *analysisService) ListProperties(ctx context.Context, zip string, limit int) ([]models.PropertySnapshot, error) {
	zip = strings.TrimSpace(zip)
	if zip != "" && !zipPattern.MatchString(zip) {
		return nil, fmt.Errorf("%w: zipcode must be 5 digits, got %q", ErrInvalidRequest, zip)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	properties, err := s.repo.ListProperties(ctx, zip, limit)
	if err != nil {
		s.log.Error("Failed to list properties", err, map[string]interface{}{
			"zipcode": zip,
		})
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return properties, nil
}

func (s *analysisService) Analyze(ctx context.Context, propertyID string) (*models.AnalysisResult, error) {
	property, err := s.lookup(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return s.analyzeOne(ctx, property)
}

func (s *analysisService) AnalyzeByAddress(ctx context.Context, address string) (*models.AnalysisResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}

	property, err := s.repo.FindPropertyByAddress(ctx, address)
	if err != nil {
		s.log.Error("Failed to query property by address", err, map[string]interface{}{
			"address": address,
		})
		return nil, fmt.Errorf("failed to query property: %w", err)
	}
	// Repository returns nil, nil when nothing matches - transform to domain error
	if property == nil {
		return nil, fmt.Errorf("%w: no property at address %q", ErrPropertyNotFound, address)
	}
	return s.analyzeOne(ctx, *property)
}

func (s *analysisService) analyzeOne(ctx context.Context, property models.PropertySnapshot) (*models.AnalysisResult, error) {
	reference, datasetVersion, err := s.ensureReference(ctx)
	if err != nil {
		return nil, err
	}
	memo := analysis.NewForecastMemo(s.forecaster, s.cfg.HorizonMonths)
	return s.analyze(ctx, property, reference, datasetVersion, memo)
}

func (s *analysisService) AnalyzeBatch(ctx context.Context, propertyIDs []string) (*BatchResult, error) {
	if len(propertyIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one property id is required", ErrInvalidRequest)
	}
	if len(propertyIDs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds %d", ErrInvalidRequest, len(propertyIDs), MaxBatchSize)
	}

	reference, datasetVersion, err := s.ensureReference(ctx)
	if err != nil {
		return nil, err
	}

	start := s.now()
	memo := analysis.NewForecastMemo(s.forecaster, s.cfg.HorizonMonths)
	items := make([]BatchItem, len(propertyIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.BatchParallelism, 1))
	for i, id := range propertyIDs {
		g.Go(func() error {
			items[i] = BatchItem{PropertyID: id}
			if err := gctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}

			property, err := s.lookup(gctx, id)
			if err == nil {
				items[i].Result, err = s.analyze(gctx, property, reference, datasetVersion, memo)
			}
			items[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Items: items, ForecastsComputed: memo.Computed()}
	for i := range items {
		if items[i].Err != nil {
			items[i].Error = items[i].Err.Error()
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	s.log.Info("Batch analysis completed", map[string]interface{}{
		"requested":          len(propertyIDs),
		"succeeded":          result.Succeeded,
		"failed":             result.Failed,
		"forecasts_computed": result.ForecastsComputed,
		"duration_ms":        s.now().Sub(start).Milliseconds(),
	})
	return result, nil
}

func (s *analysisService) ForecastZip(ctx context.Context, zip string, horizon int) (*ZipForecast, error) {
	if !zipPattern.MatchString(zip) {
		return nil, fmt.Errorf("%w: zipcode must be 5 digits, got %q", ErrInvalidRequest, zip)
	}
	if horizon == 0 {
		horizon = s.cfg.HorizonMonths
	}
	if horizon < 1 || horizon > MaxHorizonMonths {
		return nil, fmt.Errorf("%w: horizon must be between 1 and %d months", ErrInvalidRequest, MaxHorizonMonths)
	}

	series, err := s.loadSeries(ctx, zip)
	if err != nil {
		return nil, err
	}
	forecast, err := s.forecaster.Forecast(series, horizon)
	if err != nil {
		s.log.Error("Forecast failed", err, map[string]interface{}{"zipcode": zip})
		return nil, err
	}
	return &ZipForecast{Forecast: forecast, Trends: series.Trends()}, nil
}

func (s *analysisService) RefreshReference(ctx context.Context, invalidate bool) (*ReferenceStatus, error) {
	if err := s.repo.Reload(ctx); err != nil {
		s.log.Error("Failed to reload data source", err, nil)
		return nil, fmt.Errorf("failed to reload data source: %w", err)
	}
	if invalidate {
		s.cache.Invalidate()
	}

	version, err := s.repo.DatasetVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset version: %w", err)
	}
	snap, rebuilt, err := s.cache.Refresh(version, func() (*analysis.ReferenceSnapshot, error) {
		return s.buildReference(ctx, version)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReferenceMissing, err)
	}

	return &ReferenceStatus{
		Version:      snap.Version(),
		BuiltAt:      snap.BuiltAt(),
		Rebuilt:      rebuilt,
		Bounds:       snap.AllBounds(),
		SampleCounts: sampleCounts(snap),
	}, nil
}

// analyze runs the engine pipeline for one property against a fixed reference snapshot.
func (s *analysisService) analyze(ctx context.Context, property models.PropertySnapshot, reference *analysis.ReferenceSnapshot,
	datasetVersion string, memo *analysis.ForecastMemo) (*models.AnalysisResult, error) {
	runID := uuid.NewString()
	log := s.log.WithRunID(runID)
	evaluatedAt := s.now()

	series, err := s.loadSeries(ctx, property.ZipCode)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", property.ID, err)
	}

	forecast, err := memo.Forecast(series)
	if err != nil {
		log.Error("Forecast unavailable", err, map[string]interface{}{
			"property_id": property.ID,
			"zipcode":     property.ZipCode,
		})
		return nil, fmt.Errorf("property %s: %w", property.ID, err)
	}

	metrics := analysis.ComputeMetrics(property, series, forecast, reference, s.metricOptions())
	for name, reason := range metrics.Missing {
		log.Debug("Metric unavailable", map[string]interface{}{
			"property_id": property.ID,
			"metric":      name,
			"reason":      reason.Error(),
		})
	}

	factors, err := analysis.NormalizeFactors(metrics.Metrics, reference, s.rubric)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", property.ID, err)
	}
	score, decision, err := analysis.ScoreAndDecide(factors)
	if err != nil {
		log.Warn("Property could not be scored", map[string]interface{}{
			"property_id": property.ID,
			"missing":     metrics.MissingReasons(),
		})
		return nil, fmt.Errorf("property %s: %w", property.ID, err)
	}

	comps, err := s.rankedComps(ctx, property, evaluatedAt)
	if err != nil {
		return nil, err
	}

	log.Info("Property analyzed", map[string]interface{}{
		"property_id": property.ID,
		"zipcode":     property.ZipCode,
		"score":       score,
		"decision":    string(decision),
		"method":      string(forecast.Method),
	})

	return &models.AnalysisResult{
		RunID:          runID,
		PropertyID:     property.ID,
		Address:        property.Address,
		ZipCode:        property.ZipCode,
		Score:          score,
		Decision:       decision,
		Metrics:        metrics.Metrics,
		MissingMetrics: metrics.MissingReasons(),
		Factors:        factors,
		RankedComps:    comps,
		Forecast:       forecast,
		ZipTrends:      series.Trends(),
		Provenance: models.Provenance{
			GeneratedAt:      evaluatedAt,
			DatasetVersion:   datasetVersion,
			ReferenceVersion: reference.Version(),
		},
	}, nil
}

func (s *analysisService) lookup(ctx context.Context, propertyID string) (models.PropertySnapshot, error) {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return models.PropertySnapshot{}, fmt.Errorf("%w: property id is required", ErrInvalidRequest)
	}

	property, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		s.log.Error("Failed to query property", err, map[string]interface{}{
			"property_id": propertyID,
		})
		return models.PropertySnapshot{}, fmt.Errorf("failed to query property: %w", err)
	}
	if property == nil {
		return models.PropertySnapshot{}, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}
	return *property, nil
}

func (s *analysisService) loadSeries(ctx context.Context, zip string) (*analysis.MarketSeries, error) {
	raw, err := s.repo.GetMarketObservations(ctx, zip)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data for %s: %w", zip, err)
	}
	return analysis.BuildSeries(zip, raw, s.cfg.MinHistoryMonths)
}

func (s *analysisService) rankedComps(ctx context.Context, property models.PropertySnapshot, evaluatedAt time.Time) ([]models.ComparableSale, error) {
	comps, err := s.repo.GetComps(ctx, property.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comps for %s: %w", property.ID, err)
	}

	filtered := analysis.FilterComps(comps, property.Sqft, evaluatedAt, analysis.CompFilterOptions{
		SqftBand:    s.cfg.CompSqftBand,
		MaxAgeYears: s.cfg.CompMaxAgeYears,
	})
	ranked := analysis.RankComps(filtered, evaluatedAt)
	if len(ranked) > s.cfg.CompLimit {
		ranked = ranked[:s.cfg.CompLimit]
	}
	return ranked, nil
}

// ensureReference returns the snapshot for the current dataset version, building it on first
// use or when the version moved. A failed rebuild falls back to the previous snapshot.
func (s *analysisService) ensureReference(ctx context.Context) (*analysis.ReferenceSnapshot, string, error) {
	version, err := s.repo.DatasetVersion(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read dataset version: %w", err)
	}

	snap, _, err := s.cache.Refresh(version, func() (*analysis.ReferenceSnapshot, error) {
		return s.buildReference(ctx, version)
	})
	if err != nil {
		if snap == nil {
			return nil, "", fmt.Errorf("%w: %w", ErrReferenceMissing, err)
		}
		s.log.Warn("Reference rebuild failed, using previous snapshot", map[string]interface{}{
			"version":          version,
			"snapshot_version": snap.Version(),
			"error":            err.Error(),
		})
	}
	return snap, version, nil
}

// buildReference assembles every usable ZIP series and property into a reference snapshot.
// ZIP codes whose series cannot be built are left out.
func (s *analysisService) buildReference(ctx context.Context, version string) (*analysis.ReferenceSnapshot, error) {
	start := time.Now()

	raw, err := s.repo.AllMarketObservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}
	properties, err := s.repo.ListProperties(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}

	byZip := make(map[string][]models.MarketObservation)
	for _, o := range raw {
		byZip[o.ZipCode] = append(byZip[o.ZipCode], o)
	}

	dataset := analysis.ReferenceDataset{
		Properties: properties,
		Series:     make(map[string]*analysis.MarketSeries, len(byZip)),
	}
	var skipped []string
	for zip, rows := range byZip {
		series, err := analysis.BuildSeries(zip, rows, 1)
		if err != nil {
			skipped = append(skipped, zip)
			continue
		}
		dataset.Series[zip] = series
	}
	sort.Strings(skipped)

	snap := analysis.BuildReference(version, dataset, s.metricOptions(), s.now())

	s.log.Info("Reference snapshot rebuilt", map[string]interface{}{
		"version":      version,
		"zipcodes":     len(dataset.Series),
		"skipped_zips": skipped,
		"properties":   len(properties),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	return snap, nil
}

func sampleCounts(snap *analysis.ReferenceSnapshot) map[string]int {
	bounds := snap.AllBounds()
	counts := make(map[string]int, len(bounds))
	for name := range bounds {
		counts[name] = snap.SampleCount(name)
	}
	return counts
}
