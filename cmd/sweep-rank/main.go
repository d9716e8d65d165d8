// sweep-rank runs an SMA-cross parameter sweep and ranks the results.
//
// With -symbol it backtests every fast/slow combination and writes one JSON
// record per combination into the sweep directory. It then loads whatever
// records the directory holds, ranks them by composite score, and emits CSV.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aegis-trader/aegis/internal/strategy"
	"github.com/aegis-trader/aegis/internal/sweep"
	"github.com/aegis-trader/aegis/pkg/logger"
)

func main() {
	var (
		dir      = flag.String("dir", "./data/sweeps", "directory holding sweep records")
		symbol   = flag.String("symbol", "", "run the sweep for this symbol before ranking (empty = rank existing records only)")
		fastList = flag.String("fast", "10,20,50", "comma-separated fast SMA windows")
		slowList = flag.String("slow", "100,150,200", "comma-separated slow SMA windows")
		prices   = flag.String("prices", "./data/prices", "directory of price CSVs (synthetic fallback when missing)")
		out      = flag.String("out", "", "output CSV path (empty = stdout)")
		top      = flag.Int("top", 0, "limit output to the top N rows (0 = all)")
		logLevel = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true})

	if *symbol != "" {
		fastWindows, err := parseWindows(*fastList)
		if err != nil {
			fatalf("invalid -fast: %v", err)
		}
		slowWindows, err := parseWindows(*slowList)
		if err != nil {
			fatalf("invalid -slow: %v", err)
		}

		engine := strategy.NewEngine(strategy.NewFileProvider(*prices, log), log)
		runner := strategy.NewSweepRunner(engine, *dir, log)
		written, err := runner.Run(*symbol, fastWindows, slowWindows)
		if err != nil {
			fatalf("sweep failed: %v", err)
		}
		fmt.Fprintf(os.Stderr, "wrote %d sweep records to %s\n", written, *dir)
	}

	rows, err := sweep.NewLoader(log).Load(*dir)
	if err != nil {
		fatalf("load sweep records: %v", err)
	}
	if len(rows) == 0 {
		fatalf("no sweep records found in %s", *dir)
	}

	ranked := sweep.Rank(rows)
	if *top > 0 && *top < len(ranked) {
		ranked = ranked[:*top]
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatalf("create output file: %v", err)
		}
		defer f.Close()
		w = f
	}

	if err := sweep.WriteCSV(w, ranked); err != nil {
		fatalf("write rankings: %v", err)
	}
}

func parseWindows(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	windows := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		if n <= 0 {
			return nil, fmt.Errorf("window %d must be positive", n)
		}
		windows = append(windows, n)
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("no windows given")
	}
	return windows, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "sweep-rank: "+format+"\n", args...)
	os.Exit(1)
}
