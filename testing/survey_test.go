package testing

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invertedv/psm"
	"github.com/invertedv/psm/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinguistic(t *testing.T) {
	df, e := Linguistic(500, 3, 0.3)
	require.Nil(t, e)
	assert.Equal(t, 500, df.RowCount())
	assert.Equal(t, []psm.DataTypes{psm.DTint, psm.DTint, psm.DTfloat, psm.DTint, psm.DTstring, psm.DTstring,
		psm.DTstring, psm.DTint, psm.DTfloat, psm.DTstring}, df.ColumnTypes())

	treat, _ := df.Int("indirect")
	birth, _ := df.Int("birth_year")
	var nt int
	var byT, byC float64
	for ind, tv := range treat {
		assert.True(t, tv == 0 || tv == 1)
		assert.True(t, birth[ind] >= 1920 && birth[ind] < 2000)
		nt += tv
		if tv == 1 {
			byT += float64(birth[ind])
			continue
		}

		byC += float64(birth[ind])
	}

	require.True(t, nt > 0 && nt < 500)
	// indirect interviews skew older
	assert.Less(t, byT/float64(nt), byC/float64(500-nt))

	itm, _ := df.Float("ITM")
	nan := 0
	for _, y := range itm {
		if math.IsNaN(y) {
			nan++
		}
	}

	assert.Greater(t, nan, 0)

	again, _ := Linguistic(500, 3, 0.3)
	a, _ := again.Int("indirect")
	assert.Equal(t, treat, a)
}

// the survey round-trips through each source that is available
func TestSources(t *testing.T) {
	dir := t.TempDir()
	want, e := Linguistic(200, 4, 0.3)
	require.Nil(t, e)

	for _, src := range sources() {
		df, ok, e1 := loadData(src, dir, 200, 4)
		require.Nil(t, e1, src)
		if !ok {
			t.Logf("skipping %s: no host", src)
			continue
		}

		assert.Equal(t, 200, df.RowCount(), src)
		require.Nil(t, df.HasColumns(want.ColumnNames()...), src)

		// the database may return rows in its own order
		wb, _ := want.Int("birth_year")
		gb, _ := df.Int("birth_year")
		assert.ElementsMatch(t, wb, gb, src)

		wr, _ := want.Strings("residence")
		gr, _ := df.Strings("residence")
		assert.ElementsMatch(t, wr, gr, src)
	}
}

const surveyConfig = `
seed: 7
out_dir: %s
save_matched: true
forest:
  trees: 60
  min_leaf: 3
plot:
  x: birth_year
  bin_width: 10
datasets:
  - name: survey a
    file: %s
    treatment: indirect
    covariates: [birth_year, village_population, elevation, residence, mother_tongue, sex]
    outcomes:
      - name: ITM
        kind: continuous
      - name: Russian
        kind: binary
        positive: "yes"
  - name: survey_b
    file: %s
    treatment: indirect
    covariates: [birth_year, village_population, residence]
    outcomes:
      - name: ITM
`

func runSurvey(t *testing.T, dir string) ([]*pipeline.Result, string, string) {
	fa, fb := filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")
	require.Nil(t, WriteLinguistic(fa, 600, 11, 0.3))
	require.Nil(t, WriteLinguistic(fb, 400, 12, 0))

	cfg, e := pipeline.ParseConfig([]byte(fmt.Sprintf(surveyConfig, dir, fa, fb)))
	require.Nil(t, e)

	var buf bytes.Buffer
	a, e1 := pipeline.New(cfg, pipeline.WithOutput(&buf))
	require.Nil(t, e1)

	res, e2 := a.Run(context.Background())
	require.Nil(t, e2)

	return res, buf.String(), a.RunID()
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	res, out, runID := runSurvey(t, dir)
	require.Len(t, res, 2)

	ra := res[0]
	assert.Equal(t, "survey a", ra.Name)
	assert.Equal(t, 600, ra.Rows)
	assert.Equal(t, 0, ra.Dropped)
	assert.Len(t, ra.Importance, 6)
	require.Len(t, ra.Effects, 2)
	assert.Equal(t, "Russian", ra.Effects[1].Outcome)
	assert.Greater(t, ra.Effects[0].Dropped, 0)

	// matching improves balance on the main confounder
	var smdAll, smdMatched float64
	for ind, b := range ra.Summary.All {
		if b.Name == "birth_year" {
			smdAll, smdMatched = b.SMD, ra.Summary.Matched[ind].SMD
		}
	}

	assert.Less(t, math.Abs(smdMatched), math.Abs(smdAll))

	sz := ra.Summary.Sizes
	assert.Equal(t, sz.Matched[1]+sz.Unmatched[1]+sz.Discarded[1], sz.All[1])

	for _, r := range res {
		require.NotEmpty(t, r.Figures)
		for _, f := range append(r.Figures, r.SavedTo...) {
			assert.True(t, strings.Contains(f, runID[:8]), f)
			st, e := os.Stat(f)
			require.Nil(t, e, f)
			assert.Greater(t, st.Size(), int64(0))
		}
	}

	assert.Len(t, res[0].Figures, 2)
	assert.Len(t, res[1].Figures, 1)
	assert.Contains(t, res[0].SavedTo[0], "survey_a_matched")

	matched, e := psm.FileLoad(res[1].SavedTo[0])
	require.Nil(t, e)
	assert.Nil(t, matched.HasColumns("distance", "weights", "subclass"))

	for _, s := range []string{"survey a", "survey_b", "Balance for all data:", "Balance for matched data:",
		"Sample sizes:", "odds ratio", "welch t", "logistic"} {
		assert.Contains(t, out, s)
	}
}

func TestEndToEnd_Deterministic(t *testing.T) {
	r1, _, _ := runSurvey(t, t.TempDir())
	r2, _, _ := runSurvey(t, t.TempDir())

	for ind := range r1 {
		p1, p2 := r1[ind].Match.Pairs, r2[ind].Match.Pairs
		assert.Equal(t, p1.Treated, p2.Treated)
		assert.Equal(t, p1.Controls, p2.Controls)
		assert.Equal(t, p1.Weights, p2.Weights)
		assert.Equal(t, r1[ind].Effects[0].Estimate(), r2[ind].Effects[0].Estimate())
	}
}
