// Package match pairs treated units with control units on a propensity score.
//
// Matching is greedy nearest-neighbour: treated units are visited in a fixed order and each takes the closest
// control still available. The visiting order changes which pairs are formed, so it is an option (Order) and
// "random" order is drawn from a seeded source.
package match

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/invertedv/psm"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoTreated = errors.New("no treated units")
	ErrNoControl = errors.New("no control units")
)

// Discard selects which units outside common support are dropped before matching.
type Discard int

const (
	DiscardNone Discard = 0 + iota
	DiscardBoth
	DiscardTreated
	DiscardControl
)

var discardNames = []string{"none", "both", "treated", "control"}

func (d Discard) String() string {
	if d < 0 || int(d) >= len(discardNames) {
		return "unknown"
	}

	return discardNames[d]
}

func ParseDiscard(s string) (Discard, error) {
	for ind, nm := range discardNames {
		if strings.EqualFold(strings.TrimSpace(s), nm) {
			return Discard(ind), nil
		}
	}

	return DiscardNone, fmt.Errorf("unknown discard option %q", s)
}

// Order is the order in which treated units are matched.
type Order int

const (
	OrderLargest Order = 0 + iota
	OrderSmallest
	OrderData
	OrderRandom
)

var orderNames = []string{"largest", "smallest", "data", "random"}

func (o Order) String() string {
	if o < 0 || int(o) >= len(orderNames) {
		return "unknown"
	}

	return orderNames[o]
}

func ParseOrder(s string) (Order, error) {
	for ind, nm := range orderNames {
		if strings.EqualFold(strings.TrimSpace(s), nm) {
			return Order(ind), nil
		}
	}

	return OrderLargest, fmt.Errorf("unknown order option %q", s)
}

// Matcher holds the matching options.
type Matcher struct {
	discard Discard
	order   Order
	ratio   int
	replace bool
	caliper float64
	seed    int64
}

type Opt func(m *Matcher) error

func WithDiscard(d Discard) Opt {
	return func(m *Matcher) error {
		if d < DiscardNone || d > DiscardControl {
			return fmt.Errorf("invalid discard %d", d)
		}

		m.discard = d
		return nil
	}
}

func WithOrder(o Order) Opt {
	return func(m *Matcher) error {
		if o < OrderLargest || o > OrderRandom {
			return fmt.Errorf("invalid order %d", o)
		}

		m.order = o
		return nil
	}
}

// WithRatio sets the number of controls matched to each treated unit.
func WithRatio(k int) Opt {
	return func(m *Matcher) error {
		if k < 1 {
			return fmt.Errorf("ratio must be at least 1, got %d", k)
		}

		m.ratio = k
		return nil
	}
}

func WithReplace(r bool) Opt {
	return func(m *Matcher) error {
		m.replace = r
		return nil
	}
}

// WithCaliper sets the largest allowed score distance, in standard deviations of the score. 0 turns it off.
// Match fails if a caliper is set and the scores kept after discard have no spread.
func WithCaliper(c float64) Opt {
	return func(m *Matcher) error {
		if c < 0 || math.IsNaN(c) {
			return fmt.Errorf("caliper must be non-negative")
		}

		m.caliper = c
		return nil
	}
}

// WithSeed seeds the permutation used by OrderRandom.
func WithSeed(seed int64) Opt {
	return func(m *Matcher) error {
		m.seed = seed
		return nil
	}
}

func NewMatcher(opts ...Opt) (*Matcher, error) {
	m := &Matcher{discard: DiscardBoth, order: OrderLargest, ratio: 1, seed: 1}

	for _, o := range opts {
		if e := o(m); e != nil {
			return nil, e
		}
	}

	return m, nil
}

func (m *Matcher) Discard() Discard { return m.discard }
func (m *Matcher) Order() Order     { return m.order }
func (m *Matcher) Ratio() int       { return m.ratio }
func (m *Matcher) Replace() bool    { return m.replace }
func (m *Matcher) Caliper() float64 { return m.caliper }

// Pairs is the outcome of matching. Slices indexed by row have the length of the input.
type Pairs struct {
	// Treated lists the matched treated rows in the order they were matched.
	Treated []int
	// Controls[i] are the controls matched to Treated[i], nearest first.
	Controls [][]int

	Weights   []float64 // 0 for rows not in the matched data
	Subclass  []int     // 1-based pair id, 0 for rows not in the matched data
	Discarded []bool    // outside common support

	CaliperWidth float64 // caliper in score units, 0 if none
}

// Matched returns the rows in the matched data, in row order.
func (p *Pairs) Matched() []int {
	var rows []int
	for ind, w := range p.Weights {
		if w > 0 {
			rows = append(rows, ind)
		}
	}

	return rows
}

// Match pairs rows with treat==1 to rows with treat==0 on score.
func (m *Matcher) Match(treat []int, score []float64) (*Pairs, error) {
	if len(treat) != len(score) {
		return nil, fmt.Errorf("treatment has %d rows, score has %d", len(treat), len(score))
	}

	var treated, control []int
	for ind, tv := range treat {
		if tv != 0 && tv != 1 {
			return nil, fmt.Errorf("treatment must be 0 or 1, got %d at row %d", tv, ind)
		}

		if math.IsNaN(score[ind]) || math.IsInf(score[ind], 0) {
			return nil, fmt.Errorf("score at row %d is not finite", ind)
		}

		if tv == 1 {
			treated = append(treated, ind)
			continue
		}

		control = append(control, ind)
	}

	if len(treated) == 0 {
		return nil, ErrNoTreated
	}

	if len(control) == 0 {
		return nil, ErrNoControl
	}

	n := len(treat)
	p := &Pairs{
		Weights:   make([]float64, n),
		Subclass:  make([]int, n),
		Discarded: make([]bool, n),
	}

	treated, control = m.support(treated, control, score, p.Discarded)
	if len(treated) == 0 {
		return nil, fmt.Errorf("after discard: %w", ErrNoTreated)
	}

	if len(control) == 0 {
		return nil, fmt.Errorf("after discard: %w", ErrNoControl)
	}

	if m.caliper > 0 {
		var kept []float64
		for _, row := range append(append([]int{}, treated...), control...) {
			kept = append(kept, score[row])
		}

		sd := stat.StdDev(kept, nil)
		if !(sd > 0) {
			return nil, fmt.Errorf("caliper %v: all kept scores are equal", m.caliper)
		}

		p.CaliperWidth = m.caliper * sd
	}

	treated = m.visit(treated, score)

	used := make([]bool, n)
	found := make(map[int][]int)
	for round := 0; round < m.ratio; round++ {
		for _, t := range treated {
			// a treated unit with no match in an earlier round stays unmatched
			if round > 0 && len(found[t]) < round {
				continue
			}

			c := m.nearest(t, control, score, used, found[t], p.CaliperWidth)
			if c < 0 {
				continue
			}

			found[t] = append(found[t], c)
			if !m.replace {
				used[c] = true
			}
		}
	}

	for _, t := range treated {
		if len(found[t]) == 0 {
			continue
		}

		p.Treated = append(p.Treated, t)
		p.Controls = append(p.Controls, found[t])
	}

	p.weigh(n)

	return p, nil
}

// support marks the units outside common support as discarded and returns the rest.
func (m *Matcher) support(treated, control []int, score []float64, discarded []bool) (keptT, keptC []int) {
	minT, maxT := limits(treated, score)
	minC, maxC := limits(control, score)

	for _, row := range treated {
		if (m.discard == DiscardBoth || m.discard == DiscardTreated) && (score[row] < minC || score[row] > maxC) {
			discarded[row] = true
			continue
		}

		keptT = append(keptT, row)
	}

	for _, row := range control {
		if (m.discard == DiscardBoth || m.discard == DiscardControl) && (score[row] < minT || score[row] > maxT) {
			discarded[row] = true
			continue
		}

		keptC = append(keptC, row)
	}

	return keptT, keptC
}

// visit returns the treated rows in matching order. Ties in score keep row order.
func (m *Matcher) visit(treated []int, score []float64) []int {
	out := append([]int{}, treated...)

	switch m.order {
	case OrderLargest:
		sort.SliceStable(out, func(i, j int) bool { return score[out[i]] > score[out[j]] })
	case OrderSmallest:
		sort.SliceStable(out, func(i, j int) bool { return score[out[i]] < score[out[j]] })
	case OrderRandom:
		perm := rand.New(rand.NewSource(m.seed)).Perm(len(out))
		shuffled := make([]int, len(out))
		for ind, pv := range perm {
			shuffled[ind] = out[pv]
		}

		out = shuffled
	case OrderData:
	}

	return out
}

// nearest returns the closest available control to treated row t, or -1. Equal distances go to the lower row.
func (m *Matcher) nearest(t int, control []int, score []float64, used []bool, taken []int, width float64) int {
	best, bestDist := -1, math.Inf(1)
	for _, c := range control {
		if used[c] || psm.Has(c, taken) {
			continue
		}

		d := math.Abs(score[t] - score[c])
		if width > 0 && d > width {
			continue
		}

		if d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}

	return best
}

// weigh fills Weights and Subclass. Treated units get 1. A control gets the sum of 1/k over the treated units
// it serves, k being the number of controls that unit got; control weights are then scaled to sum to the
// number of matched controls.
func (p *Pairs) weigh(n int) {
	// subclasses follow treated row order
	order := make([]int, len(p.Treated))
	for ind := range order {
		order[ind] = ind
	}

	sort.Slice(order, func(i, j int) bool { return p.Treated[order[i]] < p.Treated[order[j]] })

	isControl := make([]bool, n)
	for sub, ind := range order {
		t := p.Treated[ind]
		p.Weights[t] = 1
		p.Subclass[t] = sub + 1

		k := float64(len(p.Controls[ind]))
		for _, c := range p.Controls[ind] {
			p.Weights[c] += 1 / k
			isControl[c] = true
			if p.Subclass[c] == 0 {
				p.Subclass[c] = sub + 1
			}
		}
	}

	nc, tot := 0, 0.0
	for row := 0; row < n; row++ {
		if isControl[row] {
			nc++
			tot += p.Weights[row]
		}
	}

	if tot == 0 {
		return
	}

	for row := 0; row < n; row++ {
		if isControl[row] {
			p.Weights[row] *= float64(nc) / tot
		}
	}
}

func limits(rows []int, score []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range rows {
		lo = math.Min(lo, score[row])
		hi = math.Max(hi, score[row])
	}

	return lo, hi
}
