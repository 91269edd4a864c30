package forest

import (
	"math"
	"math/rand"
	"sort"
)

// maxCategories is the most distinct integer values a feature may have and still be tried as categorical.
const maxCategories = 30

// node is a node of a classification tree. Leaves hold the share of class 1.
type node struct {
	leaf      bool
	feature   int
	threshold float64 // x <= threshold goes left, or x == threshold if isCat
	isCat     bool
	left      *node
	right     *node

	n  int
	p1 float64
}

// tree is a CART classifier for a 0/1 outcome using Gini impurity.
type tree struct {
	root *node

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int

	rnd        *rand.Rand
	importance []float64
	nTotal     int
}

type split struct {
	gain      float64
	feature   int
	threshold float64
	isCat     bool
	left      []int
	right     []int
}

// pair is a feature value and the row it came from.
type pair struct {
	v float64
	i int
}

func (t *tree) fit(X [][]float64, y []int, idx []int) {
	p := len(X[0])
	t.importance = make([]float64, p)
	t.nTotal = len(idx)
	t.root = t.build(X, y, idx, 0)
}

func (t *tree) build(X [][]float64, y []int, idx []int, depth int) *node {
	n0, n1 := counts(y, idx)
	nd := &node{n: len(idx), p1: float64(n1) / float64(len(idx))}

	if n0 == 0 || n1 == 0 || len(idx) < t.minSamplesSplit || (t.maxDepth > 0 && depth >= t.maxDepth) {
		nd.leaf = true
		return nd
	}

	parent := gini(n0, n1)
	best := split{feature: -1}
	for _, f := range t.features(len(X[0])) {
		if s := t.bestSplit(X, y, idx, f, parent); s.feature >= 0 && s.gain > best.gain {
			best = s
		}
	}

	if best.feature < 0 || best.gain <= 1e-12 {
		nd.leaf = true
		return nd
	}

	t.importance[best.feature] += float64(len(idx)) / float64(t.nTotal) * best.gain

	nd.feature = best.feature
	nd.threshold = best.threshold
	nd.isCat = best.isCat
	nd.left = t.build(X, y, best.left, depth+1)
	nd.right = t.build(X, y, best.right, depth+1)

	return nd
}

// features draws the candidate features for one split.
func (t *tree) features(p int) []int {
	feats := make([]int, p)
	for j := 0; j < p; j++ {
		feats[j] = j
	}

	if t.maxFeatures <= 0 || t.maxFeatures >= p {
		return feats
	}

	for i := 0; i < t.maxFeatures; i++ {
		j := i + t.rnd.Intn(p-i)
		feats[i], feats[j] = feats[j], feats[i]
	}

	return feats[:t.maxFeatures]
}

// bestSplit finds the split of feature f with the largest decrease in Gini impurity.
func (t *tree) bestSplit(X [][]float64, y []int, idx []int, f int, parent float64) split {
	best := split{feature: -1}

	vals := make([]pair, len(idx))
	for ind, row := range idx {
		vals[ind] = pair{v: X[row][f], i: row}
	}

	sort.Slice(vals, func(a, b int) bool {
		if vals[a].v == vals[b].v {
			return vals[a].i < vals[b].i
		}

		return vals[a].v < vals[b].v
	})

	n := len(vals)
	tot0, tot1 := counts(y, idx)

	// numeric: scan thresholds between distinct values
	l0, l1 := 0, 0
	for s := 1; s < n; s++ {
		if y[vals[s-1].i] == 1 {
			l1++
		} else {
			l0++
		}

		if vals[s].v == vals[s-1].v || s < t.minSamplesLeaf || n-s < t.minSamplesLeaf {
			continue
		}

		gain := parent - weighted(l0, l1, tot0-l0, tot1-l1)
		if gain > best.gain {
			best = split{gain: gain, feature: f, threshold: (vals[s-1].v + vals[s].v) / 2}
		}
	}

	// categorical: one value against the rest
	uniq := distinct(vals)
	if len(uniq) > 2 && len(uniq) <= maxCategories && allInts(uniq) {
		for _, u := range uniq {
			c0, c1, nIn := 0, 0, 0
			for _, pv := range vals {
				if pv.v != u {
					continue
				}

				nIn++
				if y[pv.i] == 1 {
					c1++
				} else {
					c0++
				}
			}

			if nIn < t.minSamplesLeaf || n-nIn < t.minSamplesLeaf {
				continue
			}

			gain := parent - weighted(c0, c1, tot0-c0, tot1-c1)
			if gain > best.gain {
				best = split{gain: gain, feature: f, threshold: u, isCat: true}
			}
		}
	}

	if best.feature < 0 {
		return best
	}

	for _, row := range idx {
		if goLeft(X[row][f], best.threshold, best.isCat) {
			best.left = append(best.left, row)
			continue
		}

		best.right = append(best.right, row)
	}

	return best
}

func (t *tree) predict(x []float64) float64 {
	nd := t.root
	for !nd.leaf {
		if goLeft(x[nd.feature], nd.threshold, nd.isCat) {
			nd = nd.left
			continue
		}

		nd = nd.right
	}

	return nd.p1
}

func (t *tree) depth() int {
	var walk func(nd *node) int
	walk = func(nd *node) int {
		if nd == nil || nd.leaf {
			return 0
		}

		return 1 + max(walk(nd.left), walk(nd.right))
	}

	return walk(t.root)
}

// ***************** Helpers *****************

func goLeft(x, threshold float64, isCat bool) bool {
	if isCat {
		return x == threshold
	}

	return x <= threshold
}

func counts(y []int, idx []int) (n0, n1 int) {
	for _, row := range idx {
		if y[row] == 1 {
			n1++
			continue
		}

		n0++
	}

	return n0, n1
}

func gini(n0, n1 int) float64 {
	n := float64(n0 + n1)
	if n == 0 {
		return 0
	}

	p0, p1 := float64(n0)/n, float64(n1)/n

	return 1 - p0*p0 - p1*p1
}

func weighted(l0, l1, r0, r1 int) float64 {
	nl, nr := float64(l0+l1), float64(r0+r1)

	return (nl*gini(l0, l1) + nr*gini(r0, r1)) / (nl + nr)
}

func distinct(sorted []pair) []float64 {
	var out []float64
	for ind, pv := range sorted {
		if ind == 0 || pv.v != sorted[ind-1].v {
			out = append(out, pv.v)
		}
	}

	return out
}

func allInts(x []float64) bool {
	for _, xv := range x {
		if xv != math.Trunc(xv) {
			return false
		}
	}

	return true
}
