package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/invertedv/psm"
	"github.com/invertedv/psm/estimate"
	"github.com/invertedv/psm/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const minimal = `
datasets:
  - name: d1
    file: x.csv
    treatment: t
    covariates: [x]
`

func TestParseConfig(t *testing.T) {
	cfg, e := ParseConfig([]byte(minimal))
	require.Nil(t, e)
	assert.Equal(t, int64(1), cfg.Seed)
	assert.Equal(t, 0.95, cfg.Level)
	assert.Equal(t, 500, cfg.Forest.Trees)
	assert.True(t, cfg.Forest.OOB)
	assert.Equal(t, "both", cfg.Match.Discard)
	assert.Equal(t, "largest", cfg.Match.Order)
	assert.Equal(t, 5.0, cfg.Plot.BinWidth)

	cfg, e = ParseConfig([]byte(`
seed: 9
level: 0.9
forest: {trees: 10, oob: false}
match: {discard: control, order: Random, ratio: 2, replace: true, caliper: 0.2}
` + minimal))
	require.Nil(t, e)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, 10, cfg.Forest.Trees)
	assert.False(t, cfg.Forest.OOB)
	assert.Equal(t, 2, cfg.Match.Ratio)
	assert.Equal(t, 0.2, cfg.Match.Caliper)

	fn := filepath.Join(t.TempDir(), "cfg.yaml")
	require.Nil(t, os.WriteFile(fn, []byte(minimal), 0o600))
	cfg, e = LoadConfig(fn)
	require.Nil(t, e)
	assert.Equal(t, "d1", cfg.Datasets[0].Name)

	_, e = LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	assert.NotNil(t, e)
}

func TestParseConfig_Errors(t *testing.T) {
	bad := []string{
		"datasets: [",
		"level: 1.5\n" + minimal,
		"match: {discard: some}\n" + minimal,
		"match: {order: backwards}\n" + minimal,
		"seed: 1",
		"datasets: [{file: x.csv, treatment: t, covariates: [x]}]",
		"datasets: [{name: a, treatment: t, covariates: [x]}]",
		"datasets: [{name: a, file: x.csv, query: select 1, treatment: t, covariates: [x]}]",
		"datasets: [{name: a, query: select 1, treatment: t, covariates: [x]}]",
		"datasets: [{name: a, file: x.csv, covariates: [x]}]",
		"datasets: [{name: a, file: x.csv, treatment: t}]",
		"datasets: [{name: a, file: x.csv, treatment: t, covariates: [x], outcomes: [{name: y, kind: ordinal}]}]",
		"datasets: [{name: a, file: x.csv, treatment: t, covariates: [x]}, {name: a, file: y.csv, treatment: t, covariates: [x]}]",
	}

	for _, b := range bad {
		_, e := ParseConfig([]byte(b))
		assert.NotNil(t, e, b)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "my_data_ITM_abc", fileName("my data", "ITM", "abc"))
	assert.Equal(t, "a_b_c", fileName(`a/b\c`))
}

// study writes n rows where t depends on x and y = x + effect*t + noise.
func study(t *testing.T, n int, effect float64) string {
	rnd := rand.New(rand.NewSource(5))
	var (
		x, y  []float64
		treat []int
		grp   []string
	)
	for ind := 0; ind < n; ind++ {
		xv := 10 * rnd.Float64()
		tv := 0
		if rnd.Float64() < xv/12 {
			tv = 1
		}

		g := "a"
		if ind%3 == 0 {
			g = "b"
		}

		x = append(x, xv)
		treat = append(treat, tv)
		y = append(y, xv+effect*float64(tv)+0.5*rnd.NormFloat64())
		grp = append(grp, g)
	}

	cx, _ := psm.NewCol(x, psm.DTfloat, psm.ColName("x"))
	cy, _ := psm.NewCol(y, psm.DTfloat, psm.ColName("y"))
	ct, _ := psm.NewCol(treat, psm.DTint, psm.ColName("t"))
	cg, _ := psm.NewCol(grp, psm.DTstring, psm.ColName("grp"))
	df, e := psm.NewDF(cx, cy, ct, cg)
	require.Nil(t, e)

	fn := filepath.Join(t.TempDir(), "study.csv")
	f, _ := psm.NewFiles()
	require.Nil(t, f.Save(fn, df))

	return fn
}

func config(t *testing.T, file string) *Config {
	cfg := DefaultConfig()
	cfg.OutDir = t.TempDir()
	cfg.Forest.Trees = 40
	cfg.Datasets = []Dataset{{
		Name:       "study",
		File:       file,
		Treatment:  "t",
		Covariates: []string{"x", "grp"},
		Outcomes:   []OutcomeConfig{{Name: "y"}},
	}}

	return cfg
}

func TestNew(t *testing.T) {
	_, e := New(nil)
	assert.NotNil(t, e)

	_, e = New(&Config{Level: 0.95})
	assert.NotNil(t, e)

	cfg := config(t, "x.csv")
	_, e = New(cfg, WithLogger(nil))
	assert.NotNil(t, e)

	a, e1 := New(cfg, WithLogger(zap.NewExample()), WithOutput(nil))
	require.Nil(t, e1)
	assert.Len(t, a.RunID(), 36)
}

func TestRunDataset(t *testing.T) {
	cfg := config(t, study(t, 300, 1))
	cfg.Plot.HTML = true
	cfg.Datasets[0].PlotX = "x"
	a, e := New(cfg, WithOutput(nil))
	require.Nil(t, e)

	r, e1 := a.RunDataset(context.Background(), cfg.Datasets[0])
	require.Nil(t, e1)
	assert.Equal(t, 300, r.Rows)
	assert.Contains(t, r.Importance, "grp")
	assert.Greater(t, r.Importance["x"], r.Importance["grp"])
	assert.Equal(t, estimate.KindContinuous, r.Effects[0].Kind)

	// x confounds the raw comparison
	assert.Greater(t, r.RawEffects[0].Estimate(), r.Effects[0].Estimate())
	assert.InDelta(t, 1, r.Effects[0].Estimate(), 1)

	// one png and two html files
	assert.Len(t, r.Figures, 3)
	assert.Empty(t, r.SavedTo)

	w, e2 := r.Match.Data.Float(match.WeightsCol)
	require.Nil(t, e2)
	for _, wv := range w {
		assert.Greater(t, wv, 0.0)
	}
}

func TestRun_Errors(t *testing.T) {
	file := study(t, 100, 1)

	cfg := config(t, file)
	cfg.Datasets[0].Covariates = []string{"x", "nope"}
	a, _ := New(cfg, WithOutput(nil))
	_, e := a.Run(context.Background())
	require.NotNil(t, e)
	assert.Contains(t, e.Error(), "dataset study: load:")

	// a string treatment is rejected
	cfg = config(t, file)
	cfg.Datasets[0].Treatment = "grp"
	a, _ = New(cfg, WithOutput(nil))
	_, e = a.Run(context.Background())
	require.NotNil(t, e)
	assert.Contains(t, e.Error(), "prepare:")

	// a continuous treatment is too
	cfg = config(t, file)
	cfg.Datasets[0].Treatment = "y"
	a, _ = New(cfg, WithOutput(nil))
	_, e = a.Run(context.Background())
	assert.NotNil(t, e)
}

func TestRun_Connector(t *testing.T) {
	errDown := errors.New("database down")
	calls := 0
	connect := func(dialect string) (*sql.DB, error) {
		calls++
		return nil, fmt.Errorf("%s: %w", dialect, errDown)
	}

	cfg := config(t, "")
	cfg.Datasets[0].File = ""
	cfg.Datasets[0].Query = "SELECT * FROM study"
	cfg.Datasets[0].Dialect = "postgres"
	a, e := New(cfg, WithConnector(connect), WithOutput(nil))
	require.Nil(t, e)

	_, e = a.Run(context.Background())
	assert.ErrorIs(t, e, errDown)
	assert.Equal(t, 1, calls)

	// the matched data is written to the table through the same connector
	cfg = config(t, study(t, 100, 1))
	cfg.Datasets[0].SaveTable = "matched"
	cfg.Datasets[0].Dialect = "clickhouse"
	a, _ = New(cfg, WithConnector(connect), WithOutput(nil))
	_, e = a.Run(context.Background())
	assert.ErrorIs(t, e, errDown)
	assert.Contains(t, e.Error(), "save:")
}
