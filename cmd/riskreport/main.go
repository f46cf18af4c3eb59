// Command riskreport loads daily price history, computes per-asset risk
// reports and portfolio allocations, and prints them as JSON.
//
// Prices come either from a CSV file (first column a label, remaining
// columns one close series per symbol) or from the SQLite history
// database configured through the environment.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/history"
	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/aristath/riskengine/pkg/logger"
	"github.com/aristath/riskengine/pkg/portfolio"
	"github.com/aristath/riskengine/pkg/risk"
	"github.com/aristath/riskengine/pkg/series"
)

type output struct {
	Reports     map[string]*risk.Report          `json:"reports"`
	Allocations map[string]*portfolio.Allocation `json:"allocations"`
}

func main() {
	csvPath := flag.String("csv", "", "CSV file with close prices, one column per symbol")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols to load from the history database")
	lookback := flag.Int("lookback", 0, "most recent bars to use, 0 for all")
	varMethodFlag := flag.String("var-method", string(risk.VaRHistorical), "VaR method: historical, parametric or monte_carlo")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting risk report")

	varMethod, err := parseVaRMethod(*varMethodFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -var-method")
	}

	prices, err := loadPrices(cfg, log, *csvPath, *symbolsFlag, *lookback)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load prices")
	}
	if len(prices) == 0 {
		log.Fatal().Msg("No price series loaded")
	}

	out, err := analyze(cfg, log, prices, varMethod)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}

func parseVaRMethod(name string) (risk.VaRMethod, error) {
	switch method := risk.VaRMethod(name); method {
	case risk.VaRHistorical, risk.VaRParametric, risk.VaRMonteCarlo:
		return method, nil
	default:
		return "", fmt.Errorf("unknown VaR method %q", name)
	}
}

func analyze(cfg *config.Config, log zerolog.Logger, prices map[string][]float64, varMethod risk.VaRMethod) (*output, error) {
	assets := make([]string, 0, len(prices))
	for symbol := range prices {
		assets = append(assets, symbol)
	}
	sort.Strings(assets)

	returnsByAsset := make(map[string]series.ReturnSeries, len(prices))
	for _, symbol := range assets {
		returns, err := formulas.ReturnsFromPrices(prices[symbol])
		if err != nil {
			return nil, fmt.Errorf("returns for %s: %w", symbol, err)
		}
		rs, err := series.NewReturnSeries(returns)
		if err != nil {
			return nil, fmt.Errorf("series for %s: %w", symbol, err)
		}
		returnsByAsset[symbol] = rs
	}

	builder := risk.NewReportBuilder(cfg.RiskFreeRate, cfg.PeriodsPerYear, log).
		UseVaRMethod(varMethod, risk.MonteCarloOptions{Samples: cfg.MonteCarloSamples})
	reports := make(map[string]*risk.Report, len(assets))
	for _, symbol := range assets {
		report, err := builder.Build(returnsByAsset[symbol], nil, risk.DefaultConfidences...)
		if err != nil {
			return nil, fmt.Errorf("report for %s: %w", symbol, err)
		}
		reports[symbol] = report
	}

	out := &output{Reports: reports, Allocations: map[string]*portfolio.Allocation{}}

	if len(assets) < 2 {
		log.Info().Msg("Single asset, skipping portfolio construction")
		return out, nil
	}

	universe, err := series.NewAssetUniverse(assets, returnsByAsset)
	if err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}

	opt := portfolio.New(portfolio.Config{
		RiskFreeRate:   cfg.RiskFreeRate,
		PeriodsPerYear: cfg.PeriodsPerYear,
		LongOnly:       cfg.LongOnly,
	}, log)

	solvers := []struct {
		name  string
		solve func(series.AssetUniverse) (*portfolio.Allocation, error)
	}{
		{"minimum_variance", opt.MinimumVariance},
		{"max_sharpe", opt.MaxSharpe},
		{"risk_parity", opt.RiskParity},
	}
	for _, s := range solvers {
		alloc, err := s.solve(universe)
		if err != nil {
			log.Warn().Err(err).Str("solver", s.name).Msg("Portfolio solve failed")
			continue
		}
		out.Allocations[s.name] = alloc
	}

	return out, nil
}

func loadPrices(cfg *config.Config, log zerolog.Logger, csvPath, symbolsFlag string, lookback int) (map[string][]float64, error) {
	if csvPath != "" {
		return loadCSV(csvPath, lookback)
	}

	store, err := history.Open(cfg.HistoryDBPath, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var symbols []string
	if symbolsFlag != "" {
		for _, sym := range strings.Split(symbolsFlag, ",") {
			if trimmed := strings.TrimSpace(sym); trimmed != "" {
				symbols = append(symbols, trimmed)
			}
		}
	} else {
		symbols, err = store.Symbols(ctx)
		if err != nil {
			return nil, err
		}
	}

	prices := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		closes, err := store.Closes(ctx, symbol, lookback)
		if err != nil {
			return nil, err
		}
		if len(closes) == 0 {
			return nil, fmt.Errorf("no history for symbol %s", symbol)
		}
		prices[symbol] = closes
	}
	return prices, nil
}

// loadCSV reads close prices from a CSV whose header row names the
// symbols. The first column is treated as a row label (typically the
// date) and skipped.
func loadCSV(path string, lookback int) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: need a header and at least one data row", path)
	}

	header := records[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: need at least one symbol column", path)
	}

	prices := make(map[string][]float64, len(header)-1)
	for col := 1; col < len(header); col++ {
		symbol := strings.TrimSpace(header[col])
		closes := make([]float64, 0, len(records)-1)
		for rowIdx, row := range records[1:] {
			if len(row) != len(header) {
				return nil, fmt.Errorf("%s: row %d has %d fields, expected %d", path, rowIdx+2, len(row), len(header))
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d column %s: %w", path, rowIdx+2, symbol, err)
			}
			closes = append(closes, value)
		}
		if lookback > 0 && len(closes) > lookback {
			closes = closes[len(closes)-lookback:]
		}
		prices[symbol] = closes
	}
	return prices, nil
}
