// Package sweep loads parameter-sweep result records and ranks them by a
// composite score.
package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Row is one (fast, slow) parameter combination with its metrics and score.
type Row struct {
	Fast        int     `json:"fast"`
	Slow        int     `json:"slow"`
	TotalReturn float64 `json:"total_return"`
	VolAnnual   float64 `json:"vol_annual"`
	Sharpe      float64 `json:"sharpe"`
	Score       float64 `json:"score"`

	// Source is the record filename, kept for diagnostics.
	Source string `json:"source,omitempty"`
}

// filenamePattern recovers the parameter pair from record filenames like
// sma_cross_fast10_slow100.json when the record itself lacks them.
var filenamePattern = regexp.MustCompile(`fast(\d+)_slow(\d+)`)

// Loader reads sweep records from a directory.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a sweep record loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "sweep_loader").Logger()}
}

// Load parses every JSON record in dir into rows, in filename order.
// Parameters are recovered from a nested params object, else flat fields,
// else the filename; metrics read the same tiered way and default to 0 only
// when entirely absent. A record that fails every stage, or holds a
// non-numeric value where a number is required, is skipped with a warning —
// one bad record never aborts the batch.
func (l *Loader) Load(dir string) ([]Row, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	rows := make([]Row, 0, len(names))
	for _, name := range names {
		row, err := l.loadRecord(dir, name)
		if err != nil {
			l.log.Warn().Err(err).Str("file", name).Msg("Skipping unusable sweep record")
			continue
		}
		rows = append(rows, *row)
	}

	return rows, nil
}

func (l *Loader) loadRecord(dir, name string) (*Row, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}

	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}

	fast, err := intParam(record, name, "fast")
	if err != nil {
		return nil, err
	}
	slow, err := intParam(record, name, "slow")
	if err != nil {
		return nil, err
	}

	row := &Row{Fast: fast, Slow: slow, Source: name}
	for key, dst := range map[string]*float64{
		"total_return": &row.TotalReturn,
		"vol_annual":   &row.VolAnnual,
		"sharpe":       &row.Sharpe,
	} {
		v, err := metricValue(record, key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	row.Score = CompositeScore(row.Sharpe, row.TotalReturn)
	return row, nil
}

// intParam reads an integer parameter: nested params object first, then a
// flat field, then the filename.
func intParam(record map[string]interface{}, filename, key string) (int, error) {
	if params, ok := record["params"].(map[string]interface{}); ok {
		if v, present := params[key]; present {
			return coerceInt(v, key)
		}
	}

	if v, present := record[key]; present {
		return coerceInt(v, key)
	}

	if m := filenamePattern.FindStringSubmatch(filename); m != nil {
		idx := 1
		if key == "slow" {
			idx = 2
		}
		n, err := strconv.Atoi(m[idx])
		if err == nil {
			return n, nil
		}
	}

	return 0, fmt.Errorf("parameter %q not recoverable from record or filename", key)
}

// metricValue reads a metric: nested params first, then flat. Entirely absent
// defaults to 0; present but non-numeric is an error.
func metricValue(record map[string]interface{}, key string) (float64, error) {
	if params, ok := record["params"].(map[string]interface{}); ok {
		if v, present := params[key]; present {
			return coerceFloat(v, key)
		}
	}

	if v, present := record[key]; present {
		return coerceFloat(v, key)
	}

	return 0, nil
}

func coerceFloat(v interface{}, key string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %q", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q is not numeric: %v", key, v)
	}
}

func coerceInt(v interface{}, key string) (int, error) {
	f, err := coerceFloat(v, key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("field %q is not an integer: %v", key, v)
	}
	return int(f), nil
}
