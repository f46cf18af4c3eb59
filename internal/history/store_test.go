package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestStoreSaveAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Deliberately out of date order; queries must sort.
	bars := []Bar{
		{Symbol: "VTI", Date: day(3), Open: 101, High: 103, Low: 100, Close: 102},
		{Symbol: "VTI", Date: day(1), Open: 99, High: 101, Low: 98, Close: 100},
		{Symbol: "VTI", Date: day(2), Open: 100, High: 102, Low: 99, Close: 101},
		{Symbol: "AGG", Date: day(1), Open: 50, High: 50.5, Low: 49.5, Close: 50},
	}
	require.NoError(t, store.SaveBars(ctx, bars))

	t.Run("closes come back in date order", func(t *testing.T) {
		closes, err := store.Closes(ctx, "VTI", 0)
		require.NoError(t, err)
		assert.Equal(t, []float64{100, 101, 102}, closes)
	})

	t.Run("limit keeps the most recent bars", func(t *testing.T) {
		closes, err := store.Closes(ctx, "VTI", 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{101, 102}, closes)
	})

	t.Run("ohlc bars for stop calculations", func(t *testing.T) {
		ohlc, err := store.OHLCBars(ctx, "VTI", 0)
		require.NoError(t, err)
		require.Len(t, ohlc, 3)
		assert.Equal(t, 101.0, ohlc[0].High)
		assert.Equal(t, 98.0, ohlc[0].Low)
		assert.Equal(t, 100.0, ohlc[0].Close)
	})

	t.Run("symbols are listed sorted", func(t *testing.T) {
		symbols, err := store.Symbols(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"AGG", "VTI"}, symbols)
	})

	t.Run("bar counts", func(t *testing.T) {
		count, err := store.BarCount(ctx, "VTI")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		count, err = store.BarCount(ctx, "MISSING")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("unknown symbol has no closes", func(t *testing.T) {
		closes, err := store.Closes(ctx, "MISSING", 0)
		require.NoError(t, err)
		assert.Empty(t, closes)
	})
}

func TestStoreUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBars(ctx, []Bar{
		{Symbol: "VTI", Date: day(1), Open: 99, High: 101, Low: 98, Close: 100},
	}))
	require.NoError(t, store.SaveBars(ctx, []Bar{
		{Symbol: "VTI", Date: day(1), Open: 99, High: 102, Low: 98, Close: 101.5},
	}))

	closes, err := store.Closes(ctx, "VTI", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{101.5}, closes)

	count, err := store.BarCount(ctx, "VTI")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStoreEmptySave(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.SaveBars(context.Background(), nil))
}
