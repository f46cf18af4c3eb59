package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/aristath/riskengine/pkg/series"
)

// DefaultConfidences are the confidence levels reports are built at when
// the caller does not choose their own.
var DefaultConfidences = []float64{0.95, 0.99}

// BenchmarkMetrics holds the benchmark-relative block of a Report.
type BenchmarkMetrics struct {
	Beta             float64 `json:"beta"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`
}

// ConfidenceMetrics holds the tail metrics at one confidence level.
type ConfidenceMetrics struct {
	Confidence        float64 `json:"confidence"`
	VaR               float64 `json:"var"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
}

// Report is an immutable snapshot of risk metrics computed from one return
// series, optionally against a benchmark. Produced on demand, never mutated.
type Report struct {
	Tails                []ConfidenceMetrics `json:"tails"`
	AnnualizedVolatility float64             `json:"annualized_volatility"`
	SharpeRatio          float64             `json:"sharpe_ratio"`
	MaxDrawdown          float64             `json:"max_drawdown"`
	CalmarRatio          float64             `json:"calmar_ratio"`
	Benchmark            *BenchmarkMetrics   `json:"benchmark,omitempty"`
}

// ReportBuilder assembles Reports from return series with a fixed risk-free
// rate and annualization base.
type ReportBuilder struct {
	riskFreeRate   float64
	periodsPerYear float64
	varMethod      VaRMethod
	mcOpts         MonteCarloOptions
	log            zerolog.Logger
}

// NewReportBuilder creates a report builder. riskFreeRate is annualized;
// periodsPerYear is the annualization base (252 for daily series). VaR in
// reports uses the historical method unless UseVaRMethod changes it.
func NewReportBuilder(riskFreeRate, periodsPerYear float64, log zerolog.Logger) *ReportBuilder {
	return &ReportBuilder{
		riskFreeRate:   riskFreeRate,
		periodsPerYear: periodsPerYear,
		varMethod:      VaRHistorical,
		log:            log.With().Str("component", "risk_report").Logger(),
	}
}

// UseVaRMethod selects the VaR estimation method for subsequent Builds.
// opts only applies to the Monte-Carlo method and is ignored otherwise.
// Returns the builder for chaining.
func (b *ReportBuilder) UseVaRMethod(method VaRMethod, opts MonteCarloOptions) *ReportBuilder {
	b.varMethod = method
	b.mcOpts = opts
	return b
}

// Build computes a Report for the given return series at one or more
// confidence levels. benchmark may be nil; when present its series must be
// aligned with rs.
func (b *ReportBuilder) Build(rs series.ReturnSeries, benchmark *series.ReturnSeries, confidences ...float64) (*Report, error) {
	if len(confidences) == 0 {
		return nil, fmt.Errorf("risk report: no confidence levels: %w", formulas.ErrEmptyInput)
	}

	returns := rs.Values()

	tails := make([]ConfidenceMetrics, 0, len(confidences))
	for _, c := range confidences {
		var v float64
		var err error
		if b.varMethod == VaRMonteCarlo {
			v, err = MonteCarloVaR(returns, c, b.mcOpts)
		} else {
			v, err = VaR(returns, c, b.varMethod)
		}
		if err != nil {
			return nil, fmt.Errorf("risk report: %w", err)
		}
		es, err := ExpectedShortfall(returns, c)
		if err != nil {
			return nil, fmt.Errorf("risk report: %w", err)
		}
		tails = append(tails, ConfidenceMetrics{Confidence: c, VaR: v, ExpectedShortfall: es})
	}

	vol, err := formulas.AnnualizedVolatility(returns, b.periodsPerYear)
	if err != nil {
		return nil, fmt.Errorf("risk report: %w", err)
	}

	sharpe, err := SharpeRatio(returns, b.riskFreeRate, b.periodsPerYear)
	if err != nil {
		return nil, fmt.Errorf("risk report: %w", err)
	}

	maxDD, err := MaxDrawdownFromReturns(returns)
	if err != nil {
		return nil, fmt.Errorf("risk report: %w", err)
	}

	calmar, err := CalmarRatio(returns, b.periodsPerYear)
	if err != nil {
		return nil, fmt.Errorf("risk report: %w", err)
	}

	report := &Report{
		Tails:                tails,
		AnnualizedVolatility: vol,
		SharpeRatio:          sharpe,
		MaxDrawdown:          maxDD,
		CalmarRatio:          calmar,
	}

	if benchmark != nil {
		bench := benchmark.Values()

		beta, err := Beta(returns, bench)
		if err != nil {
			return nil, fmt.Errorf("risk report: %w", err)
		}
		te, err := TrackingError(returns, bench, b.periodsPerYear)
		if err != nil {
			return nil, fmt.Errorf("risk report: %w", err)
		}
		ir, err := InformationRatio(returns, bench, b.periodsPerYear)
		if err != nil {
			return nil, fmt.Errorf("risk report: %w", err)
		}

		report.Benchmark = &BenchmarkMetrics{
			Beta:             beta,
			TrackingError:    te,
			InformationRatio: ir,
		}
	}

	b.log.Debug().
		Int("num_periods", rs.Len()).
		Int("num_confidence_levels", len(confidences)).
		Bool("has_benchmark", benchmark != nil).
		Msg("Built risk report")

	return report, nil
}
