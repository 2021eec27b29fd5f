package cost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeExact(t *testing.T) {
	// 1M input tokens at $3/MTok (3_000_000 micro-USD per MTok) is exactly $3.
	require.Equal(t, int64(3_000_000), Compute(1_000_000, 0, 3_000_000, 0))
	// 500 output tokens at $15/MTok: 500*15_000_000/1e6 = 7500 micro-USD.
	require.Equal(t, int64(7_500), Compute(0, 500, 0, 15_000_000))
}

func TestComputeBankersRounding(t *testing.T) {
	// 1 token at 1_500_000 micro-USD/MTok = 1.5 micro-USD: rounds to even 2.
	require.Equal(t, int64(2), Compute(1, 0, 1_500_000, 0))
	// 3 tokens at 500_000 micro-USD/MTok = 1.5: rounds to 2 (even).
	require.Equal(t, int64(2), Compute(3, 0, 500_000, 0))
	// 5 tokens at 500_000 = 2.5: rounds to even 2, not 3.
	require.Equal(t, int64(2), Compute(5, 0, 500_000, 0))
	// 0.4 rounds down, 0.6 rounds up.
	require.Equal(t, int64(0), Compute(1, 0, 400_000, 0))
	require.Equal(t, int64(1), Compute(1, 0, 600_000, 0))
}

func TestComputeZeroAndNegative(t *testing.T) {
	require.Equal(t, int64(0), Compute(0, 0, 3_000_000, 15_000_000))
	require.Equal(t, int64(0), Compute(-5, -5, 3_000_000, 15_000_000))
}

func TestComputeBothSides(t *testing.T) {
	got := Compute(1000, 200, 3_000_000, 15_000_000)
	// 1000*3 + 200*15 = 3000 + 3000 micro-USD.
	require.Equal(t, int64(6_000), got)
}
