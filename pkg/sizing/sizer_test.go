package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskengine/pkg/formulas"
)

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name     string
		winRate  float64
		avgWin   float64
		avgLoss  float64
		expected float64
		wantErr  error
	}{
		{
			name:     "positive edge",
			winRate:  0.6,
			avgWin:   100,
			avgLoss:  100,
			expected: 0.2,
		},
		{
			name:     "asymmetric payoff",
			winRate:  0.5,
			avgWin:   200,
			avgLoss:  100,
			expected: 0.25,
		},
		{
			name:     "fair coin at even odds has no edge",
			winRate:  0.5,
			avgWin:   100,
			avgLoss:  100,
			expected: 0,
		},
		{
			name:     "negative edge stays signed",
			winRate:  0.4,
			avgWin:   100,
			avgLoss:  100,
			expected: -0.2,
		},
		{
			name:    "win rate above one",
			winRate: 1.2,
			avgWin:  100,
			avgLoss: 100,
			wantErr: formulas.ErrInvalidParameter,
		},
		{
			name:    "zero average loss",
			winRate: 0.6,
			avgWin:  100,
			avgLoss: 0,
			wantErr: formulas.ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KellyFraction(tt.winRate, tt.avgWin, tt.avgLoss)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}

	t.Run("monotone in win rate", func(t *testing.T) {
		previous := -1.0
		for _, winRate := range []float64{0.3, 0.4, 0.5, 0.6, 0.7} {
			f, err := KellyFraction(winRate, 100, 100)
			require.NoError(t, err)
			assert.Greater(t, f, previous)
			previous = f
		}
	})
}

func TestKellyPosition(t *testing.T) {
	t.Run("scales capital by the fraction", func(t *testing.T) {
		got, err := KellyPosition(10000, 0.6, 100, 100)
		require.NoError(t, err)
		assert.InDelta(t, 2000, got, 1e-9)
	})

	t.Run("no edge means no position", func(t *testing.T) {
		got, err := KellyPosition(10000, 0.4, 100, 100)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("requires positive capital", func(t *testing.T) {
		_, err := KellyPosition(0, 0.6, 100, 100)
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
	})
}

func TestFractionalKelly(t *testing.T) {
	got, err := FractionalKelly(10000, 0.6, 100, 100, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1000, got, 1e-9)

	_, err = FractionalKelly(10000, 0.6, 100, 100, 0)
	assert.ErrorIs(t, err, formulas.ErrInvalidParameter)

	_, err = FractionalKelly(10000, 0.6, 100, 100, 1.5)
	assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
}

func TestFixedFractional(t *testing.T) {
	t.Run("risk amount over stop distance", func(t *testing.T) {
		// Risking 2% of 100k with a 5 point stop: 2000/5 = 400 units.
		got, err := FixedFractional(100000, 0.02, 100, 95)
		require.NoError(t, err)
		assert.InDelta(t, 400, got, 1e-9)
	})

	t.Run("short side uses the absolute distance", func(t *testing.T) {
		got, err := FixedFractional(100000, 0.02, 95, 100)
		require.NoError(t, err)
		assert.InDelta(t, 400, got, 1e-9)
	})

	t.Run("stop at entry is invalid", func(t *testing.T) {
		_, err := FixedFractional(100000, 0.02, 100, 100)
		assert.ErrorIs(t, err, ErrInvalidStop)
	})

	t.Run("risk fraction bounds", func(t *testing.T) {
		_, err := FixedFractional(100000, 0, 100, 95)
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)

		_, err = FixedFractional(100000, 1.5, 100, 95)
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
	})
}

func TestVolatilityTarget(t *testing.T) {
	t.Run("scales down a volatile asset", func(t *testing.T) {
		got, err := VolatilityTarget(10000, 0.10, 0.20)
		require.NoError(t, err)
		assert.InDelta(t, 5000, got, 1e-9)
	})

	t.Run("caps at full capital", func(t *testing.T) {
		got, err := VolatilityTarget(10000, 0.30, 0.10)
		require.NoError(t, err)
		assert.InDelta(t, 10000, got, 1e-9)
	})

	t.Run("rejects non-positive volatility", func(t *testing.T) {
		_, err := VolatilityTarget(10000, 0.10, 0)
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
	})
}

func TestVolatilityTargetWithCorrelation(t *testing.T) {
	base, err := VolatilityTarget(10000, 0.10, 0.20)
	require.NoError(t, err)

	t.Run("positive correlation shrinks the size", func(t *testing.T) {
		got, err := VolatilityTargetWithCorrelation(10000, 0.10, 0.20, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, base/2, got, 1e-9)
	})

	t.Run("negative correlation leaves it unchanged", func(t *testing.T) {
		got, err := VolatilityTargetWithCorrelation(10000, 0.10, 0.20, -0.5)
		require.NoError(t, err)
		assert.InDelta(t, base, got, 1e-9)
	})

	t.Run("correlation must be in range", func(t *testing.T) {
		_, err := VolatilityTargetWithCorrelation(10000, 0.10, 0.20, 1.5)
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
	})
}

func TestVaRConstrained(t *testing.T) {
	t.Run("sizes to the risk budget", func(t *testing.T) {
		got, err := VaRConstrained(10000, 0.02, -0.05)
		require.NoError(t, err)
		assert.InDelta(t, 4000, got, 1e-9)
	})

	t.Run("accepts VaR as a positive loss too", func(t *testing.T) {
		got, err := VaRConstrained(10000, 0.02, 0.05)
		require.NoError(t, err)
		assert.InDelta(t, 4000, got, 1e-9)
	})

	t.Run("zero asset VaR is degenerate", func(t *testing.T) {
		_, err := VaRConstrained(10000, 0.02, 0)
		assert.ErrorIs(t, err, formulas.ErrDegenerateInput)
	})
}

func TestRiskParity(t *testing.T) {
	t.Run("inverse volatility split", func(t *testing.T) {
		sizes, err := RiskParity(9000, []float64{0.10, 0.20})
		require.NoError(t, err)
		require.Len(t, sizes, 2)

		assert.InDelta(t, 6000, sizes[0], 1e-9)
		assert.InDelta(t, 3000, sizes[1], 1e-9)
	})

	t.Run("allocates all capital", func(t *testing.T) {
		sizes, err := RiskParity(10000, []float64{0.08, 0.15, 0.25})
		require.NoError(t, err)

		total := 0.0
		for _, s := range sizes {
			total += s
		}
		assert.InDelta(t, 10000, total, 1e-9)
	})

	t.Run("rejects non-positive volatility", func(t *testing.T) {
		_, err := RiskParity(10000, []float64{0.1, 0})
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := RiskParity(10000, nil)
		assert.ErrorIs(t, err, formulas.ErrEmptyInput)
	})
}

func TestRiskParityWithCorrelation(t *testing.T) {
	t.Run("identity correlation with equal vols splits evenly", func(t *testing.T) {
		corr := [][]float64{{1, 0}, {0, 1}}
		sizes, err := RiskParityWithCorrelation(10000, []float64{0.2, 0.2}, corr)
		require.NoError(t, err)

		assert.InDelta(t, 5000, sizes[0], 1e-9)
		assert.InDelta(t, 5000, sizes[1], 1e-9)
	})

	t.Run("correlated asset gets less capital", func(t *testing.T) {
		// Asset 0 is correlated with asset 2, asset 1 is independent.
		corr := [][]float64{
			{1.0, 0.0, 0.8},
			{0.0, 1.0, 0.0},
			{0.8, 0.0, 1.0},
		}
		vols := []float64{0.2, 0.2, 0.2}

		sizes, err := RiskParityWithCorrelation(10000, vols, corr)
		require.NoError(t, err)
		assert.Greater(t, sizes[1], sizes[0])
		assert.Greater(t, sizes[1], sizes[2])
	})

	t.Run("rejects a non-square matrix", func(t *testing.T) {
		_, err := RiskParityWithCorrelation(10000, []float64{0.2, 0.2}, [][]float64{{1, 0}})
		assert.ErrorIs(t, err, formulas.ErrMismatchedSeries)
	})
}

func TestAdaptiveSize(t *testing.T) {
	t.Run("winning streak sizes up", func(t *testing.T) {
		got, err := AdaptiveSize(10000, []float64{0.02, 0.02, 0.02}, 0.02)
		require.NoError(t, err)
		// Factor 1 + 10*0.02 = 1.2.
		assert.InDelta(t, 10000*0.02*1.2, got, 1e-9)
	})

	t.Run("losing streak sizes down to the floor", func(t *testing.T) {
		got, err := AdaptiveSize(10000, []float64{-0.10, -0.10}, 0.02)
		require.NoError(t, err)
		assert.InDelta(t, 10000*0.02*0.5, got, 1e-9)
	})

	t.Run("factor ceiling", func(t *testing.T) {
		got, err := AdaptiveSize(10000, []float64{0.10, 0.10}, 0.02)
		require.NoError(t, err)
		assert.InDelta(t, 10000*0.02*1.5, got, 1e-9)
	})

	t.Run("never exceeds capital", func(t *testing.T) {
		got, err := AdaptiveSize(10000, []float64{0.10}, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, 10000, got, 1e-9)
	})

	t.Run("requires recent returns", func(t *testing.T) {
		_, err := AdaptiveSize(10000, nil, 0.02)
		assert.ErrorIs(t, err, formulas.ErrEmptyInput)
	})
}

func TestDrawdownAdjusted(t *testing.T) {
	t.Run("linear reduction", func(t *testing.T) {
		got, err := DrawdownAdjusted(10000, 0.02, 0.05, 0.20)
		require.NoError(t, err)
		assert.InDelta(t, 150, got, 1e-9)
	})

	t.Run("no drawdown keeps the base size", func(t *testing.T) {
		got, err := DrawdownAdjusted(10000, 0.02, 0, 0.20)
		require.NoError(t, err)
		assert.InDelta(t, 200, got, 1e-9)
	})

	t.Run("at the limit the size is zero", func(t *testing.T) {
		got, err := DrawdownAdjusted(10000, 0.02, 0.20, 0.20)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("beyond the limit stays zero", func(t *testing.T) {
		got, err := DrawdownAdjusted(10000, 0.02, 0.30, 0.20)
		require.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("negative drawdown is invalid", func(t *testing.T) {
		_, err := DrawdownAdjusted(10000, 0.02, -0.01, 0.20)
		assert.ErrorIs(t, err, formulas.ErrInvalidParameter)
	})
}
