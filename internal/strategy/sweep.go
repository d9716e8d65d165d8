package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// SweepResult is the on-disk record produced for one parameter combination.
// Parameters are nested under params so downstream readers have one canonical
// place to look for them.
type SweepResult struct {
	Strategy    string         `json:"strategy"`
	Symbol      string         `json:"symbol"`
	Params      map[string]int `json:"params"`
	TotalReturn float64        `json:"total_return"`
	VolAnnual   float64        `json:"vol_annual"`
	Sharpe      float64        `json:"sharpe"`
	MaxDrawdown float64        `json:"maxDD"`
	GeneratedAt string         `json:"generated_at"`
}

// SweepRunner backtests a grid of SMA windows for one symbol and writes a JSON
// result file per combination into the sweep directory.
type SweepRunner struct {
	engine *Engine
	dir    string
	log    zerolog.Logger
}

// NewSweepRunner creates a sweep runner writing into dir.
func NewSweepRunner(engine *Engine, dir string, log zerolog.Logger) *SweepRunner {
	return &SweepRunner{
		engine: engine,
		dir:    dir,
		log:    log.With().Str("component", "sweep_runner").Logger(),
	}
}

// Run backtests every (fast, slow) pair with fast < slow and records the
// results. Invalid pairs are skipped. Returns the number of files written.
func (r *SweepRunner) Run(symbol string, fastWindows, slowWindows []int) (int, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create sweep directory: %w", err)
	}

	written := 0
	for _, fast := range fastWindows {
		for _, slow := range slowWindows {
			if fast >= slow {
				continue
			}

			metrics, err := r.engine.RunSMACross(symbol, fast, slow)
			if err != nil {
				r.log.Warn().Err(err).
					Int("fast", fast).
					Int("slow", slow).
					Msg("Sweep combination failed, skipping")
				continue
			}

			result := &SweepResult{
				Strategy:    SMACrossName,
				Symbol:      symbol,
				Params:      map[string]int{"fast": fast, "slow": slow},
				TotalReturn: metrics.TotalReturn,
				VolAnnual:   metrics.VolAnnual,
				Sharpe:      metrics.Sharpe,
				MaxDrawdown: metrics.MaxDrawdown,
				GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			}

			name := fmt.Sprintf("%s_fast%d_slow%d.json", SMACrossName, fast, slow)
			if err := writeJSONAtomic(filepath.Join(r.dir, name), result); err != nil {
				return written, fmt.Errorf("failed to write sweep result %s: %w", name, err)
			}
			written++
		}
	}

	r.log.Info().
		Str("symbol", symbol).
		Int("written", written).
		Msg("Parameter sweep complete")

	return written, nil
}

// writeJSONAtomic writes JSON via a temp file and rename so readers never see
// a partially written result.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".sweep_*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
