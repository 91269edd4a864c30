// Package forest fits random forests of classification trees to a 0/1 outcome and returns class-1
// probabilities. It is used to estimate propensity scores.
//
// Tree i draws its bootstrap sample and its split features from rand.NewSource(seed + i), and trees are
// grown in order, so a fixed seed gives the same forest.
package forest

import (
	"fmt"
	"math"
	"math/rand"
)

// Forest is a random forest classifier for a 0/1 outcome.
type Forest struct {
	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	bootstrap       bool
	seed            int64

	trees     []*tree
	inBag     [][]bool
	nFeatures int
	nRows     int
}

// Option sets a property of the Forest.
type Option func(f *Forest) error

// WithNEstimators sets the number of trees. Default 500.
func WithNEstimators(n int) Option {
	return func(f *Forest) error {
		if n < 1 {
			return fmt.Errorf("need at least one tree, got %d", n)
		}

		f.nEstimators = n
		return nil
	}
}

// WithMaxDepth limits the depth of the trees. 0 means no limit.
func WithMaxDepth(d int) Option {
	return func(f *Forest) error {
		if d < 0 {
			return fmt.Errorf("negative max depth")
		}

		f.maxDepth = d
		return nil
	}
}

func WithMinSamplesSplit(n int) Option {
	return func(f *Forest) error {
		if n < 2 {
			return fmt.Errorf("min samples to split must be at least 2")
		}

		f.minSamplesSplit = n
		return nil
	}
}

func WithMinSamplesLeaf(n int) Option {
	return func(f *Forest) error {
		if n < 1 {
			return fmt.Errorf("min samples in a leaf must be at least 1")
		}

		f.minSamplesLeaf = n
		return nil
	}
}

// WithMaxFeatures sets the number of features tried at each split. 0 means floor(sqrt(# features)).
func WithMaxFeatures(k int) Option {
	return func(f *Forest) error {
		if k < 0 {
			return fmt.Errorf("negative max features")
		}

		f.maxFeatures = k
		return nil
	}
}

func WithBootstrap(b bool) Option {
	return func(f *Forest) error {
		f.bootstrap = b
		return nil
	}
}

func WithSeed(seed int64) Option {
	return func(f *Forest) error {
		f.seed = seed
		return nil
	}
}

func New(opts ...Option) (*Forest, error) {
	f := &Forest{
		nEstimators:     500,
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		bootstrap:       true,
		seed:            1,
	}

	for _, o := range opts {
		if e := o(f); e != nil {
			return nil, e
		}
	}

	return f, nil
}

// Fit grows the forest. X is n x p with no NaNs, y is 0/1 with both classes present.
func (f *Forest) Fit(X [][]float64, y []int) error {
	var (
		n, p int
		e    error
	)
	if n, p, e = check(X); e != nil {
		return e
	}

	if len(y) != n {
		return fmt.Errorf("forest: X has %d rows, y has %d", n, len(y))
	}

	n1 := 0
	for ind, yv := range y {
		if yv != 0 && yv != 1 {
			return fmt.Errorf("forest: y must be 0 or 1, got %d at row %d", yv, ind)
		}

		n1 += yv
	}

	if n1 == 0 || n1 == n {
		return fmt.Errorf("forest: y has only one class")
	}

	maxFeatures := f.maxFeatures
	if maxFeatures == 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(p))))
	}

	f.nFeatures, f.nRows = p, n
	f.trees = make([]*tree, f.nEstimators)
	f.inBag = make([][]bool, f.nEstimators)
	for ind := 0; ind < f.nEstimators; ind++ {
		rnd := rand.New(rand.NewSource(f.seed + int64(ind)))

		idx := make([]int, n)
		inBag := make([]bool, n)
		for j := 0; j < n; j++ {
			idx[j] = j
			if f.bootstrap {
				idx[j] = rnd.Intn(n)
			}

			inBag[idx[j]] = true
		}

		t := &tree{
			maxDepth:        f.maxDepth,
			minSamplesSplit: f.minSamplesSplit,
			minSamplesLeaf:  f.minSamplesLeaf,
			maxFeatures:     maxFeatures,
			rnd:             rnd,
		}
		t.fit(X, y, idx)

		f.trees[ind], f.inBag[ind] = t, inBag
	}

	return nil
}

// PredictProba returns the mean over trees of the class-1 share of the leaf each row of X lands in.
func (f *Forest) PredictProba(X [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, fmt.Errorf("forest: not fit")
	}

	var (
		p int
		e error
	)
	if _, p, e = check(X); e != nil {
		return nil, e
	}

	if p != f.nFeatures {
		return nil, fmt.Errorf("forest: fit with %d features, got %d", f.nFeatures, p)
	}

	out := make([]float64, len(X))
	for row := range X {
		for _, t := range f.trees {
			out[row] += t.predict(X[row])
		}

		out[row] /= float64(len(f.trees))
	}

	return out, nil
}

// OOBProba returns out-of-bag probabilities for the rows the forest was fit on: each row is scored only by
// the trees whose bootstrap sample missed it. A row that was in every sample is scored by all trees.
func (f *Forest) OOBProba(X [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, fmt.Errorf("forest: not fit")
	}

	if !f.bootstrap {
		return nil, fmt.Errorf("forest: out-of-bag scores need bootstrap samples")
	}

	if len(X) != f.nRows {
		return nil, fmt.Errorf("forest: fit on %d rows, got %d", f.nRows, len(X))
	}

	all, e := f.PredictProba(X)
	if e != nil {
		return nil, e
	}

	out := make([]float64, len(X))
	for row := range X {
		cnt := 0
		for ind, t := range f.trees {
			if f.inBag[ind][row] {
				continue
			}

			out[row] += t.predict(X[row])
			cnt++
		}

		if cnt == 0 {
			out[row] = all[row]
			continue
		}

		out[row] /= float64(cnt)
	}

	return out, nil
}

// Importance returns the mean decrease in Gini impurity of each feature, scaled to sum to 1.
func (f *Forest) Importance() []float64 {
	imp := make([]float64, f.nFeatures)
	for _, t := range f.trees {
		for j, v := range t.importance {
			imp[j] += v
		}
	}

	tot := 0.0
	for _, v := range imp {
		tot += v
	}

	if tot > 0 {
		for j := range imp {
			imp[j] /= tot
		}
	}

	return imp
}

func (f *Forest) NTrees() int {
	return len(f.trees)
}

// MaxDepth returns the depth of the deepest tree.
func (f *Forest) MaxDepth() int {
	d := 0
	for _, t := range f.trees {
		d = max(d, t.depth())
	}

	return d
}

func check(X [][]float64) (n, p int, err error) {
	if len(X) == 0 {
		return 0, 0, fmt.Errorf("forest: empty X")
	}

	p = len(X[0])
	if p == 0 {
		return 0, 0, fmt.Errorf("forest: X has no features")
	}

	for ind, row := range X {
		if len(row) != p {
			return 0, 0, fmt.Errorf("forest: row %d has %d features, expected %d", ind, len(row), p)
		}

		for j, xv := range row {
			if math.IsNaN(xv) || math.IsInf(xv, 0) {
				return 0, 0, fmt.Errorf("forest: X[%d][%d] is not finite", ind, j)
			}
		}
	}

	return len(X), p, nil
}
