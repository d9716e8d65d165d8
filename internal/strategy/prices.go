package strategy

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// PriceProvider supplies a daily closing-price series for a symbol.
type PriceProvider interface {
	Prices(symbol string) ([]float64, error)
}

// FileProvider loads prices from per-symbol CSVs in a data directory and falls
// back to a deterministic synthetic series when no file exists, so backtests
// remain runnable on a fresh install.
type FileProvider struct {
	dir string
	log zerolog.Logger
}

// NewFileProvider creates a price provider rooted at dir.
func NewFileProvider(dir string, log zerolog.Logger) *FileProvider {
	return &FileProvider{
		dir: dir,
		log: log.With().Str("component", "prices").Logger(),
	}
}

// Prices returns the closing-price series for a symbol.
func (p *FileProvider) Prices(symbol string) ([]float64, error) {
	path := filepath.Join(p.dir, strings.ToUpper(symbol)+".csv")
	if _, err := os.Stat(path); err == nil {
		prices, err := loadPricesCSV(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for %s: %w", symbol, err)
		}
		return prices, nil
	}

	p.log.Debug().Str("symbol", symbol).Msg("No price CSV found, using synthetic series")
	return SyntheticSeries(symbol, DefaultSeriesLength), nil
}

// loadPricesCSV reads a CSV with a header row; the closing price is taken from
// a "close" or "price" column (case-insensitive), else the last column.
func loadPricesCSV(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV has no data rows")
	}

	priceCol := len(records[0]) - 1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "close", "adj close", "price":
			priceCol = i
		}
	}

	prices := make([]float64, 0, len(records)-1)
	for _, rec := range records[1:] {
		if priceCol >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		if err != nil {
			// Skip malformed rows rather than failing the whole series
			continue
		}
		prices = append(prices, v)
	}

	if len(prices) == 0 {
		return nil, fmt.Errorf("no parseable prices in %s", path)
	}

	return prices, nil
}

// DefaultSeriesLength is the length of generated synthetic series
// (roughly three trading years).
const DefaultSeriesLength = 756

// SyntheticSeries generates a deterministic random-walk price series seeded by
// the symbol name. The same symbol always yields the same series, which keeps
// backtests and tests reproducible.
func SyntheticSeries(symbol string, n int) []float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	prices := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		// Mild upward drift with daily noise
		price *= 1 + 0.0002 + 0.01*rng.NormFloat64()
		if price < 1 {
			price = 1
		}
		prices[i] = price
	}

	return prices
}
