package portfolio

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/aristath/riskengine/pkg/series"
)

// penaltyWeight scales the quadratic constraint penalties in the
// constrained solves.
const penaltyWeight = 1000.0

// Config holds optimizer configuration.
type Config struct {
	// RiskFreeRate is the annualized risk-free rate used for Sharpe figures
	// and the tangency portfolio.
	RiskFreeRate float64

	// PeriodsPerYear is the annualization base. Defaults to 252.
	PeriodsPerYear float64

	// LongOnly constrains weights to [0, 1].
	LongOnly bool

	// RiskParityTolerance is the relative risk-contribution spread below
	// which the risk-parity iteration is considered converged. Defaults to 1e-8.
	RiskParityTolerance float64

	// RiskParityMaxIterations bounds the risk-parity fixed-point loop.
	// Defaults to 10000.
	RiskParityMaxIterations int
}

// Optimizer builds portfolio allocations from an asset universe.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// New creates a portfolio optimizer.
func New(cfg Config, log zerolog.Logger) *Optimizer {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = formulas.TradingDaysPerYear
	}
	if cfg.RiskParityTolerance <= 0 {
		cfg.RiskParityTolerance = 1e-8
	}
	if cfg.RiskParityMaxIterations <= 0 {
		cfg.RiskParityMaxIterations = 10000
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// model is the per-call optimization input: annualized expected returns and
// a positive-definite periodic covariance with its factorization.
type model struct {
	assets []string
	mu     []float64
	cov    [][]float64
	chol   *mat.Cholesky
}

func (o *Optimizer) buildModel(u series.AssetUniverse) (*model, error) {
	if u.NumAssets() == 0 {
		return nil, fmt.Errorf("optimizer: %w", ErrInsufficientAssets)
	}

	cov, err := CovarianceMatrix(u)
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}

	cov, chol, err := EnsurePositiveDefinite(cov)
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}

	assets := u.Assets()
	mu := make([]float64, len(assets))
	for i, asset := range assets {
		returns, _ := u.Returns(asset)
		mu[i] = stat.Mean(returns, nil) * o.cfg.PeriodsPerYear
	}

	return &model{assets: assets, mu: mu, cov: cov, chol: chol}, nil
}

// MinimumVariance finds the weights minimizing portfolio variance subject
// to the full-investment constraint (and non-negativity when long-only).
//
// Unconstrained the solution is closed-form via the Lagrange conditions:
// w = Sigma^-1 1 / (1' Sigma^-1 1). Long-only uses the penalized solve.
func (o *Optimizer) MinimumVariance(u series.AssetUniverse) (*Allocation, error) {
	m, err := o.buildModel(u)
	if err != nil {
		return nil, err
	}

	var weights []float64
	if o.cfg.LongOnly {
		weights, err = o.solvePenalized(m, func(x []float64) (float64, []float64) {
			variance, gradVar := quadraticForm(m.cov, x)
			return variance, gradVar
		})
		if err != nil {
			return nil, fmt.Errorf("minimum variance: %w", err)
		}
	} else {
		ones := constantVec(len(m.assets), 1.0)
		x, err := o.solveWithCholesky(m.chol, ones)
		if err != nil {
			return nil, fmt.Errorf("minimum variance: %w", err)
		}
		weights = normalizeSum(x)
	}

	return o.allocationFor(m, weights, true), nil
}

// MeanVariance minimizes portfolio variance subject to the full-investment
// constraint and an annualized target return. The target must lie within
// the range of the single-asset expected returns.
func (o *Optimizer) MeanVariance(u series.AssetUniverse, targetReturn float64) (*Allocation, error) {
	m, err := o.buildModel(u)
	if err != nil {
		return nil, err
	}

	lo, hi := minMax(m.mu)
	if targetReturn < lo-WeightSumTolerance || targetReturn > hi+WeightSumTolerance {
		return nil, fmt.Errorf("mean variance: target %v outside [%v, %v]: %w", targetReturn, lo, hi, ErrInfeasibleTarget)
	}

	var weights []float64
	if o.cfg.LongOnly {
		weights, err = o.solvePenalized(m, func(x []float64) (float64, []float64) {
			variance, grad := quadraticForm(m.cov, x)

			portfolioReturn := dot(m.mu, x)
			diff := portfolioReturn - targetReturn
			variance += penaltyWeight * diff * diff
			for i := range grad {
				grad[i] += 2 * penaltyWeight * diff * m.mu[i]
			}
			return variance, grad
		})
		if err != nil {
			return nil, fmt.Errorf("mean variance: %w", err)
		}
	} else {
		weights, err = o.closedFormTargetReturn(m, targetReturn)
		if err != nil {
			return nil, fmt.Errorf("mean variance: %w", err)
		}
	}

	return o.allocationFor(m, weights, true), nil
}

// MaxSharpe finds the tangency portfolio maximizing
// (mu'w - riskFreeRate) / sqrt(w' Sigma w).
func (o *Optimizer) MaxSharpe(u series.AssetUniverse) (*Allocation, error) {
	m, err := o.buildModel(u)
	if err != nil {
		return nil, err
	}

	var weights []float64
	if o.cfg.LongOnly {
		rf := o.cfg.RiskFreeRate
		weights, err = o.solvePenalized(m, func(x []float64) (float64, []float64) {
			variance, gradVar := quadraticForm(m.cov, x)
			stdDev := math.Sqrt(math.Max(variance, 1e-10))
			excess := dot(m.mu, x) - rf

			obj := -excess / stdDev
			grad := make([]float64, len(x))
			for i := range grad {
				grad[i] = -m.mu[i]/stdDev + excess*gradVar[i]/(2*stdDev*stdDev*stdDev)
			}
			return obj, grad
		})
		if err != nil {
			return nil, fmt.Errorf("max sharpe: %w", err)
		}
	} else {
		// Unconstrained tangency: w proportional to Sigma^-1 (mu - rf*1).
		excess := make([]float64, len(m.mu))
		for i, r := range m.mu {
			excess[i] = r - o.cfg.RiskFreeRate
		}
		x, err := o.solveWithCholesky(m.chol, excess)
		if err != nil {
			return nil, fmt.Errorf("max sharpe: %w", err)
		}
		sum := 0.0
		for _, v := range x {
			sum += v
		}
		if math.Abs(sum) < 1e-12 {
			return nil, fmt.Errorf("max sharpe: no asset carries excess return: %w", formulas.ErrDegenerateInput)
		}
		weights = make([]float64, len(x))
		for i, v := range x {
			weights[i] = v / sum
		}
	}

	return o.allocationFor(m, weights, true), nil
}

// EfficientFrontier evaluates minimum-variance portfolios at numPoints
// evenly spaced target returns between the minimum and maximum single-asset
// expected return.
func (o *Optimizer) EfficientFrontier(u series.AssetUniverse, numPoints int) ([]*Allocation, error) {
	if numPoints < 2 {
		return nil, fmt.Errorf("efficient frontier: need at least 2 points, got %d: %w", numPoints, formulas.ErrInvalidParameter)
	}

	m, err := o.buildModel(u)
	if err != nil {
		return nil, err
	}

	lo, hi := minMax(m.mu)
	step := (hi - lo) / float64(numPoints-1)

	frontier := make([]*Allocation, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		target := lo + float64(i)*step
		alloc, err := o.MeanVariance(u, target)
		if err != nil {
			o.log.Warn().Float64("target_return", target).Err(err).Msg("Frontier point failed")
			continue
		}
		frontier = append(frontier, alloc)
	}

	if len(frontier) == 0 {
		return nil, fmt.Errorf("efficient frontier: no feasible points: %w", ErrInfeasibleTarget)
	}

	o.log.Debug().
		Int("requested_points", numPoints).
		Int("solved_points", len(frontier)).
		Msg("Built efficient frontier")

	return frontier, nil
}

// closedFormTargetReturn solves the two-constraint mean-variance problem
// with Lagrange multipliers (shorts allowed):
//
//	w = [(C - B*t) Sigma^-1 1 + (A*t - B) Sigma^-1 mu] / (A*C - B^2)
func (o *Optimizer) closedFormTargetReturn(m *model, target float64) ([]float64, error) {
	n := len(m.assets)

	x, err := o.solveWithCholesky(m.chol, constantVec(n, 1.0)) // Sigma^-1 1
	if err != nil {
		return nil, err
	}
	y, err := o.solveWithCholesky(m.chol, m.mu) // Sigma^-1 mu
	if err != nil {
		return nil, err
	}

	a := sum(x)
	b := dot(m.mu, x)
	c := dot(m.mu, y)
	d := a*c - b*b

	if math.Abs(d) < 1e-18 {
		// Degenerate frontier (e.g. identical expected returns): every
		// full-investment portfolio has the same return, so the
		// minimum-variance weights solve the problem when feasible.
		if a == 0 {
			return nil, fmt.Errorf("degenerate frontier: %w", ErrSingularCovariance)
		}
		minVar := normalizeSum(x)
		if math.Abs(dot(m.mu, minVar)-target) > 1e-6 {
			return nil, fmt.Errorf("degenerate frontier at target %v: %w", target, ErrInfeasibleTarget)
		}
		return minVar, nil
	}

	g1 := (c - b*target) / d
	g2 := (a*target - b) / d

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = g1*x[i] + g2*y[i]
	}
	return weights, nil
}

// solvePenalized minimizes objective(x) + penaltyWeight*(sum(x)-1)^2 over
// the box [0, 1]^n, then clamps and renormalizes the solution. objective
// must return the value and its gradient. BFGS runs first with a
// Nelder-Mead fallback, accepting the usual convergence statuses.
func (o *Optimizer) solvePenalized(m *model, objective func(x []float64) (float64, []float64)) ([]float64, error) {
	n := len(m.assets)
	bounds := make([][2]float64, n)
	for i := range bounds {
		bounds[i] = [2]float64{0, 1}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, bounds)
			obj, _ := objective(xProj)

			s := sum(xProj)
			obj += penaltyWeight * (s - 1.0) * (s - 1.0)
			return obj
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, bounds)
			_, g := objective(xProj)
			copy(grad, g)

			s := sum(xProj)
			for i := range grad {
				grad[i] += 2 * penaltyWeight * (s - 1.0)
			}
		},
	}

	initial := constantVec(n, 1.0/float64(n))

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !acceptableStatus(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !acceptableStatus(result.Status) {
			return nil, fmt.Errorf("optimization did not converge: status=%v: %w", result.Status, formulas.ErrDegenerateInput)
		}
	}

	xFinal := projectToBounds(result.X, bounds)
	for i, v := range xFinal {
		if v < 0 {
			xFinal[i] = 0
		}
	}
	total := sum(xFinal)
	if total <= 0 {
		return nil, fmt.Errorf("optimization collapsed to zero weights: %w", formulas.ErrDegenerateInput)
	}
	for i := range xFinal {
		xFinal[i] /= total
	}

	return xFinal, nil
}

func acceptableStatus(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

func (o *Optimizer) solveWithCholesky(chol *mat.Cholesky, rhs []float64) ([]float64, error) {
	n := len(rhs)
	var dst mat.VecDense
	if err := chol.SolveVecTo(&dst, mat.NewVecDense(n, rhs)); err != nil {
		return nil, fmt.Errorf("covariance solve: %w", ErrSingularCovariance)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = dst.AtVec(i)
	}
	return out, nil
}

// allocationFor assembles an Allocation with annualized figures:
// expected return mu'w, volatility sqrt(P * w' Sigma w), and Sharpe.
func (o *Optimizer) allocationFor(m *model, weights []float64, converged bool) *Allocation {
	expectedReturn := dot(m.mu, weights)
	variance, _ := quadraticForm(m.cov, weights)
	volatility := math.Sqrt(math.Max(variance, 0) * o.cfg.PeriodsPerYear)

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (expectedReturn - o.cfg.RiskFreeRate) / volatility
	}

	assets := make([]string, len(m.assets))
	copy(assets, m.assets)
	w := make([]float64, len(weights))
	copy(w, weights)

	return &Allocation{
		Assets:         assets,
		Weights:        w,
		ExpectedReturn: expectedReturn,
		Volatility:     volatility,
		SharpeRatio:    sharpe,
		Converged:      converged,
	}
}

// Helpers shared by the solvers.

// quadraticForm returns w' Sigma w and its gradient 2 Sigma w.
func quadraticForm(cov [][]float64, w []float64) (float64, []float64) {
	n := len(w)
	grad := make([]float64, n)
	value := 0.0
	for i := 0; i < n; i++ {
		row := cov[i]
		var rowDot float64
		for j := 0; j < n; j++ {
			rowDot += row[j] * w[j]
		}
		grad[i] = 2 * rowDot
		value += w[i] * rowDot
	}
	return value, grad
}

func projectToBounds(x []float64, bounds [][2]float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x[i]))
	}
	return proj
}

func normalizeSum(x []float64) []float64 {
	total := sum(x)
	out := make([]float64, len(x))
	if total == 0 {
		return out
	}
	for i, v := range x {
		out[i] = v / total
	}
	return out
}

func constantVec(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func sum(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func minMax(x []float64) (float64, float64) {
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
