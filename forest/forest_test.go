package forest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeData builds n rows: feature 0 drives y, feature 1 is noise, feature 2 is a code in 0..3.
func makeData(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for ind := 0; ind < n; ind++ {
		x0 := rnd.NormFloat64()
		X[ind] = []float64{x0, rnd.NormFloat64(), float64(rnd.Intn(4))}
		if x0+0.3*rnd.NormFloat64() > 0 {
			y[ind] = 1
		}
	}

	return X, y
}

func TestNew(t *testing.T) {
	_, e := New(WithNEstimators(0))
	assert.NotNil(t, e)
	_, e = New(WithMinSamplesLeaf(0))
	assert.NotNil(t, e)
	_, e = New(WithMinSamplesSplit(1))
	assert.NotNil(t, e)
	_, e = New(WithMaxDepth(-1))
	assert.NotNil(t, e)
	_, e = New(WithMaxFeatures(-1))
	assert.NotNil(t, e)

	f, e1 := New(WithNEstimators(10), WithSeed(3), WithBootstrap(false))
	assert.Nil(t, e1)
	assert.Equal(t, 10, f.nEstimators)
	assert.False(t, f.bootstrap)
}

func TestFit_Errors(t *testing.T) {
	f, _ := New(WithNEstimators(5))
	assert.NotNil(t, f.Fit(nil, nil))
	assert.NotNil(t, f.Fit([][]float64{{1}, {2}}, []int{1}))
	assert.NotNil(t, f.Fit([][]float64{{1}, {2, 3}}, []int{0, 1}))
	assert.NotNil(t, f.Fit([][]float64{{1}, {2}}, []int{1, 1}))
	assert.NotNil(t, f.Fit([][]float64{{1}, {2}}, []int{0, 2}))
	assert.NotNil(t, f.Fit([][]float64{{math.NaN()}, {2}}, []int{0, 1}))

	_, e := f.PredictProba([][]float64{{1}})
	assert.NotNil(t, e)
}

func TestFit_Separates(t *testing.T) {
	X, y := makeData(400, 1)
	f, _ := New(WithNEstimators(50), WithSeed(7))
	require.Nil(t, f.Fit(X, y))
	assert.Equal(t, 50, f.NTrees())

	p, e := f.PredictProba([][]float64{{-3, 0, 1}, {3, 0, 1}})
	require.Nil(t, e)
	assert.Less(t, p[0], 0.2)
	assert.Greater(t, p[1], 0.8)

	probs, _ := f.PredictProba(X)
	for _, pv := range probs {
		assert.True(t, pv >= 0 && pv <= 1)
	}

	_, e1 := f.PredictProba([][]float64{{1, 2}})
	assert.NotNil(t, e1)

	imp := f.Importance()
	assert.Len(t, imp, 3)
	assert.InDelta(t, 1.0, imp[0]+imp[1]+imp[2], 1e-9)
	assert.Greater(t, imp[0], imp[1])
	assert.Greater(t, imp[0], imp[2])
}

func TestFit_Deterministic(t *testing.T) {
	X, y := makeData(200, 2)

	f1, _ := New(WithNEstimators(30), WithSeed(11))
	f2, _ := New(WithNEstimators(30), WithSeed(11))
	f3, _ := New(WithNEstimators(30), WithSeed(12))
	require.Nil(t, f1.Fit(X, y))
	require.Nil(t, f2.Fit(X, y))
	require.Nil(t, f3.Fit(X, y))

	p1, _ := f1.OOBProba(X)
	p2, _ := f2.OOBProba(X)
	p3, _ := f3.OOBProba(X)
	assert.Equal(t, p1, p2)
	assert.NotEqual(t, p1, p3)
}

func TestOOBProba(t *testing.T) {
	X, y := makeData(300, 3)
	f, _ := New(WithNEstimators(40), WithSeed(5))
	require.Nil(t, f.Fit(X, y))

	oob, e := f.OOBProba(X)
	require.Nil(t, e)
	assert.Len(t, oob, len(X))

	// out-of-bag scores are less confident than in-sample scores of fully grown trees
	in, _ := f.PredictProba(X)
	errIn, errOOB := 0.0, 0.0
	for ind := range X {
		errIn += math.Abs(in[ind] - float64(y[ind]))
		errOOB += math.Abs(oob[ind] - float64(y[ind]))
	}
	assert.Less(t, errIn, errOOB)

	_, e1 := f.OOBProba(X[:10])
	assert.NotNil(t, e1)

	g, _ := New(WithNEstimators(5), WithBootstrap(false))
	require.Nil(t, g.Fit(X, y))
	_, e2 := g.OOBProba(X)
	assert.NotNil(t, e2)
}

func TestCategoricalSplit(t *testing.T) {
	// y is 1 only for code 2, which a single threshold can't isolate
	var (
		X [][]float64
		y []int
	)
	for rep := 0; rep < 25; rep++ {
		for code := 0; code < 4; code++ {
			X = append(X, []float64{float64(code)})
			if code == 2 {
				y = append(y, 1)
				continue
			}
			y = append(y, 0)
		}
	}

	f, _ := New(WithNEstimators(1), WithBootstrap(false), WithMaxDepth(1))
	require.Nil(t, f.Fit(X, y))
	p, _ := f.PredictProba([][]float64{{0}, {1}, {2}, {3}})
	assert.Equal(t, []float64{0, 0, 1, 0}, p)
	assert.Equal(t, 1, f.MaxDepth())
}

func TestMinSamplesLeaf(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []int{0, 0, 0, 1}
	f, _ := New(WithNEstimators(1), WithBootstrap(false), WithMinSamplesLeaf(2))
	require.Nil(t, f.Fit(X, y))
	p, _ := f.PredictProba([][]float64{{4}})
	assert.Equal(t, 0.5, p[0])
}
