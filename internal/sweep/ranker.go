package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// CompositeScore combines risk-adjusted and absolute performance. Losing
// parameter sets score 0 rather than negative: a negative total return
// clamps to zero so a deeply negative Sharpe cannot flip the sign back to
// positive through multiplication.
func CompositeScore(sharpe, totalReturn float64) float64 {
	if totalReturn < 0 {
		totalReturn = 0
	}
	return sharpe * totalReturn
}

// Rank returns the rows sorted descending by score. Ties keep their original
// order. The input slice is not modified.
func Rank(rows []Row) []Row {
	ranked := append([]Row(nil), rows...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// WriteCSV exports ranked rows as a flat table with a fixed column order.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"fast", "slow", "total_return", "vol_annual", "sharpe", "score"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.Fast),
			strconv.Itoa(row.Slow),
			formatFloat(row.TotalReturn),
			formatFloat(row.VolAnnual),
			formatFloat(row.Sharpe),
			formatFloat(row.Score),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
