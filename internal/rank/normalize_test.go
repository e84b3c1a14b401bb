package rank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_MinMax_ScalesToUnitRange(t *testing.T) {
	// Given: raw scores over an arbitrary range
	scores := []float64{2.0, 8.0, 5.0}

	// When: min-max normalizing
	out := Normalize(PolicyMinMax, scores)

	// Then: extremes map to 0 and 1, middle interpolates
	require.Len(t, out, 3)
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 1.0, out[1])
	assert.Equal(t, 0.5, out[2])
}

func TestNormalize_MinMax_AllEqualReturnsOnes(t *testing.T) {
	out := Normalize(PolicyMinMax, []float64{3.3, 3.3, 3.3})

	for _, v := range out {
		assert.Equal(t, 1.0, v)
	}
}

func TestNormalize_EmptyInputReturnsEmpty(t *testing.T) {
	for _, policy := range []Policy{PolicyMinMax, PolicyZScore, PolicyReciprocalRank} {
		out := Normalize(policy, nil)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	}
}

func TestNormalize_ZScore_PreservesOrdering(t *testing.T) {
	scores := []float64{1.0, 10.0, 5.0, 7.5}

	out := Normalize(PolicyZScore, scores)

	require.Len(t, out, 4)
	// Φ squash keeps everything in (0,1)
	for _, v := range out {
		assert.Greater(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
	// Ordering matches the input ordering
	assert.Greater(t, out[1], out[3])
	assert.Greater(t, out[3], out[2])
	assert.Greater(t, out[2], out[0])
}

func TestNormalize_ZScore_ZeroVarianceReturnsZeros(t *testing.T) {
	out := Normalize(PolicyZScore, []float64{4.0, 4.0, 4.0})

	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestNormalize_ZScore_SymmetricAroundMean(t *testing.T) {
	out := Normalize(PolicyZScore, []float64{0.0, 10.0})

	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, out[0]+out[1], 1e-9)
}

func TestNormalize_ReciprocalRank_BestIsOneWorstIsZero(t *testing.T) {
	scores := []float64{0.2, 0.9, 0.5}

	out := Normalize(PolicyReciprocalRank, scores)

	require.Len(t, out, 3)
	assert.Equal(t, 1.0, out[1]) // highest raw score
	assert.Equal(t, 0.0, out[0]) // lowest raw score
	assert.Greater(t, out[2], 0.0)
	assert.Less(t, out[2], 1.0)
}

func TestNormalize_ReciprocalRank_PreservesIndexAlignment(t *testing.T) {
	scores := []float64{5.0, 1.0, 3.0}

	out := Normalize(PolicyReciprocalRank, scores)

	// Output position i still refers to input position i
	assert.Greater(t, out[0], out[2])
	assert.Greater(t, out[2], out[1])
}

func TestNormalize_FailOpen_NaNInputReturnedUnchanged(t *testing.T) {
	scores := []float64{1.0, math.NaN(), 3.0}

	out := Normalize(PolicyMinMax, scores)

	require.Len(t, out, 3)
	assert.Equal(t, 1.0, out[0])
	assert.True(t, math.IsNaN(out[1]))
	assert.Equal(t, 3.0, out[2])
}

func TestNormalize_FailOpen_InfInputReturnedUnchanged(t *testing.T) {
	scores := []float64{1.0, math.Inf(1)}

	out := Normalize(PolicyZScore, scores)

	assert.Equal(t, 1.0, out[0])
	assert.True(t, math.IsInf(out[1], 1))
}

func TestNormalize_SingleScore(t *testing.T) {
	out := Normalize(PolicyMinMax, []float64{42.0})

	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0])
}

func BenchmarkNormalize_MinMax(b *testing.B) {
	scores := make([]float64, 100)
	for i := range scores {
		scores[i] = float64(i) * 0.7
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(PolicyMinMax, scores)
	}
}

func BenchmarkNormalize_ReciprocalRank(b *testing.B) {
	scores := make([]float64, 100)
	for i := range scores {
		scores[i] = float64((i * 37) % 100)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Normalize(PolicyReciprocalRank, scores)
	}
}
