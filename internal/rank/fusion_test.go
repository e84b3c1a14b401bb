package rank

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createLexical builds a descending lexical result list for tests.
func createLexical(pairs ...Scored) []Scored {
	return pairs
}

func createDense(pairs ...Scored) []Scored {
	return pairs
}

func TestFuser_AdaptWeights_Defaults(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	// Given: a plain mid-length query
	w := f.AdaptWeights(AnalyzeQuery("vector search engine basics"))

	// Then: balanced weights
	assert.Equal(t, 0.5, w.Lex)
	assert.Equal(t, 0.5, w.Dense)
}

func TestFuser_AdaptWeights_ShortExactQueryBoostsLexical(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	w := f.AdaptWeights(AnalyzeQuery(`"API"`))

	assert.InDelta(t, 0.7, w.Lex, 1e-9)
	assert.InDelta(t, 0.3, w.Dense, 1e-9)
	assert.InDelta(t, 1.0, w.Lex+w.Dense, 1e-9)
}

func TestFuser_AdaptWeights_BooleanShortQueryBoostsLexical(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	w := f.AdaptWeights(AnalyzeQuery("cats AND dogs"))

	assert.InDelta(t, 0.7, w.Lex, 1e-9)
}

func TestFuser_AdaptWeights_HighComplexityBoostsDense(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	w := f.AdaptWeights(AnalyzeQuery("implementing distributed machine-learning algorithms heterogeneous clusters"))

	assert.InDelta(t, 0.3, w.Lex, 1e-9)
	assert.InDelta(t, 0.7, w.Dense, 1e-9)
}

func TestFuser_AdaptWeights_CapsAtEightyTwenty(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	// Whatever the shape, neither weight escapes [0.2, 0.8] while both
	// arms are alive
	for _, q := range []string{`"x"`, "a AND b", "extraordinarily complicated terminology throughout"} {
		w := f.AdaptWeights(AnalyzeQuery(q))
		assert.LessOrEqual(t, w.Lex, 0.8, q)
		assert.GreaterOrEqual(t, w.Lex, 0.2, q)
		assert.InDelta(t, 1.0, w.Lex+w.Dense, 1e-9, q)
	}
}

func TestDegradedWeights_CollapseOntoSurvivingArm(t *testing.T) {
	w := Weights{Lex: 0.7, Dense: 0.3}

	assert.Equal(t, Weights{Lex: 1, Dense: 0}, DegradedWeights(w, true, false))
	assert.Equal(t, Weights{Lex: 0, Dense: 1}, DegradedWeights(w, false, true))
	assert.Equal(t, w, DegradedWeights(w, true, true))
}

func TestFuser_Fuse_BothEmptyReturnsEmpty(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	out := f.Fuse(nil, nil, DefaultWeights(), 0)

	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFuser_Fuse_UnionWithMissingSideZero(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	lexical := createLexical(
		Scored{ChunkID: "a", Score: 3.0},
		Scored{ChunkID: "b", Score: 1.0},
	)
	dense := createDense(
		Scored{ChunkID: "b", Score: 0.9},
		Scored{ChunkID: "c", Score: 0.4},
	)

	out := f.Fuse(lexical, dense, DefaultWeights(), 10)

	require.Len(t, out, 3)
	byID := map[string]Fused{}
	for _, r := range out {
		byID[r.ChunkID] = r
	}

	// "a" only lexical: dense contribution is zero
	assert.Equal(t, 0.0, byID["a"].Dense)
	assert.False(t, byID["a"].InBoth)
	// "b" in both arms
	assert.True(t, byID["b"].InBoth)
	// "c" only dense
	assert.Equal(t, 0.0, byID["c"].Lexical)
}

func TestFuser_Fuse_WeightedCombination(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	lexical := createLexical(
		Scored{ChunkID: "a", Score: 2.0},
		Scored{ChunkID: "b", Score: 1.0},
	)
	dense := createDense(
		Scored{ChunkID: "a", Score: 0.8},
		Scored{ChunkID: "b", Score: 0.2},
	)

	out := f.Fuse(lexical, dense, Weights{Lex: 0.7, Dense: 0.3}, 10)

	require.Len(t, out, 2)
	// "a" normalizes to 1.0 on both sides: fused = 0.7 + 0.3
	assert.Equal(t, "a", out[0].ChunkID)
	assert.InDelta(t, 1.0, out[0].Fused, 1e-9)
	// "b" normalizes to 0.0 on both sides
	assert.InDelta(t, 0.0, out[1].Fused, 1e-9)
}

func TestFuser_Fuse_SortedDescendingWithChunkIDTieBreak(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	// Identical raw scores on one arm only: all normalize to 1.0, so all
	// fused values tie and ordering falls back to chunk id ascending
	lexical := createLexical(
		Scored{ChunkID: "zeta", Score: 5.0},
		Scored{ChunkID: "alpha", Score: 5.0},
		Scored{ChunkID: "mid", Score: 5.0},
	)

	out := f.Fuse(lexical, nil, Weights{Lex: 1, Dense: 0}, 10)

	require.Len(t, out, 3)
	assert.Equal(t, "alpha", out[0].ChunkID)
	assert.Equal(t, "mid", out[1].ChunkID)
	assert.Equal(t, "zeta", out[2].ChunkID)
}

func TestFuser_Fuse_SingleArmDominatesWhenOtherUniform(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	// All lexical scores identical -> all 1.0 after normalization; dense
	// side still produces a valid ordering
	lexical := createLexical(
		Scored{ChunkID: "a", Score: 2.0},
		Scored{ChunkID: "b", Score: 2.0},
	)
	dense := createDense(
		Scored{ChunkID: "b", Score: 0.9},
		Scored{ChunkID: "a", Score: 0.1},
	)

	out := f.Fuse(lexical, dense, DefaultWeights(), 10)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ChunkID)
	assert.Equal(t, "a", out[1].ChunkID)
}

func TestFuser_Fuse_LimitTruncates(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	var lexical []Scored
	for i := 0; i < 20; i++ {
		lexical = append(lexical, Scored{
			ChunkID: fmt.Sprintf("chunk-%02d", i),
			Score:   float64(20 - i),
		})
	}

	out := f.Fuse(lexical, nil, Weights{Lex: 1, Dense: 0}, 5)

	assert.Len(t, out, 5)
	assert.Equal(t, "chunk-00", out[0].ChunkID)
}

func TestFuser_Fuse_DefaultLimitIsLongerArm(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	lexical := createLexical(
		Scored{ChunkID: "a", Score: 2.0},
		Scored{ChunkID: "b", Score: 1.0},
	)
	dense := createDense(
		Scored{ChunkID: "c", Score: 0.9},
	)

	// Union has 3 candidates but the longer arm has 2
	out := f.Fuse(lexical, dense, DefaultWeights(), 0)

	assert.Len(t, out, 2)
}

func TestFuser_Fuse_ScoresWithinUnitRange(t *testing.T) {
	f := NewFuser(PolicyZScore)

	lexical := createLexical(
		Scored{ChunkID: "a", Score: 12.0},
		Scored{ChunkID: "b", Score: 3.0},
		Scored{ChunkID: "c", Score: 7.0},
	)
	dense := createDense(
		Scored{ChunkID: "b", Score: 0.8},
		Scored{ChunkID: "d", Score: 0.3},
	)

	out := f.Fuse(lexical, dense, DefaultWeights(), 10)

	for _, r := range out {
		assert.GreaterOrEqual(t, r.Fused, 0.0)
		assert.LessOrEqual(t, r.Fused, 1.0)
		assert.GreaterOrEqual(t, r.Lexical, 0.0)
		assert.LessOrEqual(t, r.Lexical, 1.0)
	}
}

func TestFuser_Fuse_Deterministic(t *testing.T) {
	f := NewFuser(PolicyMinMax)

	lexical := createLexical(
		Scored{ChunkID: "x", Score: 1.0},
		Scored{ChunkID: "y", Score: 0.5},
	)
	dense := createDense(
		Scored{ChunkID: "y", Score: 0.7},
		Scored{ChunkID: "z", Score: 0.2},
	)

	a := f.Fuse(lexical, dense, DefaultWeights(), 10)
	b := f.Fuse(lexical, dense, DefaultWeights(), 10)

	assert.Equal(t, a, b)
}

func BenchmarkFuser_Fuse(b *testing.B) {
	f := NewFuser(PolicyMinMax)

	var lexical, dense []Scored
	for i := 0; i < 50; i++ {
		lexical = append(lexical, Scored{
			ChunkID: fmt.Sprintf("lex-%03d", i),
			Score:   float64(100 - i),
		})
		dense = append(dense, Scored{
			ChunkID: fmt.Sprintf("dense-%03d", i),
			Score:   1.0 - float64(i)*0.01,
		})
	}
	w := DefaultWeights()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fuse(lexical, dense, w, 50)
	}
}
