package repository

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/broker/internal/models"
)

// File names expected in the CSV data directory.
const (
	PropertiesFile  = "properties.csv"
	MarketStatsFile = "market_stats.csv"
	CompsFile       = "comps.csv"
)

// csvDataset is one fully parsed load of the data directory.
type csvDataset struct {
	properties []models.PropertySnapshot
	byID       map[string]int
	market     []models.MarketObservation
	byZip      map[string][]models.MarketObservation
	comps      map[string][]models.ComparableSale
	version    string
}

// csvRepository serves market data from CSV files loaded into memory.
type csvRepository struct {
	dir      string
	validate *validator.Validate

	mu   sync.RWMutex
	data *csvDataset
}

// NewCSVRepository loads properties.csv and market_stats.csv (and comps.csv if present) from dir.
func NewCSVRepository(dir string) (MarketRepository, error) {
	r := &csvRepository{
		dir:      dir,
		validate: validator.New(),
	}
	if err := r.Reload(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every file and swaps the dataset in one step.
func (r *csvRepository) Reload(ctx context.Context) error {
	data, err := r.load()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	return nil
}

func (r *csvRepository) dataset() *csvDataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

func (r *csvRepository) ListProperties(ctx context.Context, zip string, limit int) ([]models.PropertySnapshot, error) {
	data := r.dataset()

	results := []models.PropertySnapshot{}
	for _, p := range data.properties {
		if zip != "" && p.ZipCode != zip {
			continue
		}
		results = append(results, p)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

func (r *csvRepository) GetProperty(ctx context.Context, id string) (*models.PropertySnapshot, error) {
	data := r.dataset()

	idx, ok := data.byID[id]
	if !ok {
		return nil, nil
	}
	p := data.properties[idx]
	return &p, nil
}

func (r *csvRepository) FindPropertyByAddress(ctx context.Context, address string) (*models.PropertySnapshot, error) {
	data := r.dataset()

	want := normalizeAddress(address)
	for _, p := range data.properties {
		if normalizeAddress(p.Address) == want {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *csvRepository) GetMarketObservations(ctx context.Context, zip string) ([]models.MarketObservation, error) {
	data := r.dataset()
	return append([]models.MarketObservation{}, data.byZip[zip]...), nil
}

func (r *csvRepository) AllMarketObservations(ctx context.Context) ([]models.MarketObservation, error) {
	data := r.dataset()
	return append([]models.MarketObservation{}, data.market...), nil
}

func (r *csvRepository) GetComps(ctx context.Context, propertyID string) ([]models.ComparableSale, error) {
	data := r.dataset()
	return append([]models.ComparableSale{}, data.comps[propertyID]...), nil
}

func (r *csvRepository) DatasetVersion(ctx context.Context) (string, error) {
	return r.dataset().version, nil
}

// Ping checks that the data directory is still readable.
func (r *csvRepository) Ping(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.dir, MarketStatsFile)); err != nil {
		return fmt.Errorf("market stats file unavailable: %w", err)
	}
	return nil
}

// load parses all files. The dataset version is a digest over the raw file contents.
func (r *csvRepository) load() (*csvDataset, error) {
	hash := sha256.New()
	data := &csvDataset{
		byID:  make(map[string]int),
		byZip: make(map[string][]models.MarketObservation),
		comps: make(map[string][]models.ComparableSale),
	}

	propRows, err := readCSV(filepath.Join(r.dir, PropertiesFile), hash)
	if err != nil {
		return nil, err
	}
	for _, row := range propRows {
		p, err := parseProperty(row)
		if err != nil {
			return nil, err
		}
		if err := r.validate.Struct(p); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrInvalidRecord, PropertiesFile, row.line, err)
		}
		if _, dup := data.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s line %d: duplicate property id %s", ErrInvalidRecord, PropertiesFile, row.line, p.ID)
		}
		data.byID[p.ID] = len(data.properties)
		data.properties = append(data.properties, p)
	}
	sort.SliceStable(data.properties, func(i, j int) bool {
		return data.properties[i].ID < data.properties[j].ID
	})
	for i, p := range data.properties {
		data.byID[p.ID] = i
	}

	marketRows, err := readCSV(filepath.Join(r.dir, MarketStatsFile), hash)
	if err != nil {
		return nil, err
	}
	for _, row := range marketRows {
		o, err := parseObservation(row)
		if err != nil {
			return nil, err
		}
		data.market = append(data.market, o)
		data.byZip[o.ZipCode] = append(data.byZip[o.ZipCode], o)
	}

	compRows, err := readCSV(filepath.Join(r.dir, CompsFile), hash)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, row := range compRows {
		c, err := parseComp(row)
		if err != nil {
			return nil, err
		}
		data.comps[c.PropertyID] = append(data.comps[c.PropertyID], c)
	}

	data.version = hex.EncodeToString(hash.Sum(nil))[:16]
	return data, nil
}

// csvRow gives access to one record by column name.
type csvRow struct {
	file    string
	line    int
	columns map[string]int
	values  []string
}

func (r csvRow) get(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[idx])
}

func (r csvRow) invalid(column string, err error) error {
	return fmt.Errorf("%w: %s line %d column %s: %v", ErrInvalidRecord, r.file, r.line, column, err)
}

func (r csvRow) float(name string) (float64, error) {
	v, err := strconv.ParseFloat(r.get(name), 64)
	if err != nil {
		return 0, r.invalid(name, err)
	}
	return v, nil
}

func (r csvRow) optionalFloat(name string) (*float64, error) {
	if r.get(name) == "" {
		return nil, nil
	}
	v, err := r.float(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r csvRow) optionalInt(name string) (*int, error) {
	raw := r.get(name)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, r.invalid(name, err)
	}
	v := int(f)
	return &v, nil
}

func (r csvRow) date(name string) (time.Time, error) {
	t, err := parseDate(r.get(name))
	if err != nil {
		return time.Time{}, r.invalid(name, err)
	}
	return t, nil
}

func (r csvRow) optionalDate(name string) (*time.Time, error) {
	if r.get(name) == "" {
		return nil, nil
	}
	t, err := r.date(name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var dateLayouts = []string{"2006-01-02", "2006-01", time.RFC3339}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// readCSV reads a headed CSV file, feeding the raw bytes into digest.
func readCSV(path string, digest io.Writer) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	io.WriteString(digest, name)
	reader := csv.NewReader(io.TeeReader(f, digest))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var rows []csvRow
	for line := 2; ; line++ {
		values, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", name, line, err)
		}
		rows = append(rows, csvRow{file: name, line: line, columns: columns, values: values})
	}
	return rows, nil
}

func parseProperty(row csvRow) (models.PropertySnapshot, error) {
	p := models.PropertySnapshot{
		ID:           row.get("id"),
		Address:      row.get("address"),
		ZipCode:      row.get("zipcode"),
		PropertyType: row.get("property_type"),
	}

	var err error
	if p.Sqft, err = row.optionalInt("sqft"); err != nil {
		return p, err
	}
	if p.LastSalePrice, err = row.optionalFloat("last_sale_price"); err != nil {
		return p, err
	}
	if p.LastSaleDate, err = row.optionalDate("last_sale_date"); err != nil {
		return p, err
	}
	if p.CurrentEstimatedValue, err = row.optionalFloat("current_estimated_value"); err != nil {
		return p, err
	}
	if p.EstimatedMonthlyRent, err = row.optionalFloat("estimated_monthly_rent"); err != nil {
		return p, err
	}
	return p, nil
}

func parseObservation(row csvRow) (models.MarketObservation, error) {
	o := models.MarketObservation{ZipCode: row.get("zipcode")}

	var err error
	if o.Date, err = row.date("date"); err != nil {
		return o, err
	}
	if o.MedianPrice, err = row.float("median_price"); err != nil {
		return o, err
	}
	if o.MedianRent, err = row.float("median_rent"); err != nil {
		return o, err
	}
	if o.InventoryCount, err = row.optionalFloat("inventory_count"); err != nil {
		return o, err
	}
	if o.DaysOnMarket, err = row.optionalFloat("days_on_market"); err != nil {
		return o, err
	}
	if o.MedianIncome, err = row.optionalFloat("median_income"); err != nil {
		return o, err
	}
	if o.VacancyRate, err = row.optionalFloat("vacancy_rate"); err != nil {
		return o, err
	}
	return o, nil
}

func parseComp(row csvRow) (models.ComparableSale, error) {
	c := models.ComparableSale{
		CompID:     row.get("comp_id"),
		PropertyID: row.get("property_id"),
		Address:    row.get("address"),
	}

	var err error
	if c.SalePrice, err = row.float("sale_price"); err != nil {
		return c, err
	}
	if c.SaleDate, err = row.date("sale_date"); err != nil {
		return c, err
	}
	if c.Sqft, err = row.optionalInt("sqft"); err != nil {
		return c, err
	}
	if c.DistanceMiles, err = row.optionalFloat("distance_miles"); err != nil {
		return c, err
	}
	return c, nil
}

func normalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}
